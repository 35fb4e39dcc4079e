package ambient

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/g19d/internal/raster"
)

type colorLog struct {
	mu     sync.Mutex
	colors []raster.Color
}

func (l *colorLog) add(c raster.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colors = append(l.colors, c)
}

func (l *colorLog) get() []raster.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]raster.Color(nil), l.colors...)
}

func TestAdapterApply(t *testing.T) {
	var log colorLog
	a := NewAdapter(log.add, nil)

	steps := []struct {
		payload []byte
		applied bool
	}{
		{[]byte{0, 0, 0}, true},
		{[]byte{0, 0, 0}, false},
		{[]byte{10, 20, 30}, true},
		{[]byte{10, 20}, false},
		{[]byte{10, 20, 30, 40}, false},
		{nil, false},
		{[]byte{10, 20, 30}, false},
		{[]byte{0, 0, 0}, true},
	}
	for i, s := range steps {
		assert.Equal(t, s.applied, a.Apply(s.payload), "step %d", i)
	}

	assert.Equal(t, []raster.Color{{R: 0, G: 0, B: 0}, {R: 10, G: 20, B: 30}, {R: 0, G: 0, B: 0}}, log.get())
	last, ok := a.Last()
	assert.True(t, ok)
	assert.Equal(t, raster.Black, last)
}

func TestServer(t *testing.T) {
	var log colorLog
	s := NewServer(NewAdapter(log.add, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Listen(ctx, "127.0.0.1:0"))

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)

	send := func(payload ...byte) {
		t.Helper()
		_, err := conn.Write(payload)
		require.NoError(t, err)
	}
	waitFor := func(n int) {
		t.Helper()
		require.Eventually(t, func() bool { return len(log.get()) == n }, time.Second, 5*time.Millisecond)
	}

	send(1, 2, 3)
	waitFor(1)

	// A wrong-length write is dropped and later samples stay aligned.
	send(1, 2, 3, 4)
	time.Sleep(50 * time.Millisecond)
	send(10, 20, 30)
	waitFor(2)
	send(40, 50, 60)
	waitFor(3)
	require.NoError(t, conn.Close())

	assert.Equal(t, []raster.Color{{R: 1, G: 2, B: 3}, {R: 10, G: 20, B: 30}, {R: 40, G: 50, B: 60}}, log.get())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWithoutListen(t *testing.T) {
	s := NewServer(NewAdapter(nil, nil), nil)
	assert.Nil(t, s.Addr())
	assert.Error(t, s.Serve(context.Background()))
}

func TestHelperRestarts(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	logPath := filepath.Join(t.TempDir(), "logs", "ambient.log")
	h := NewHelper("ambient_light", logPath, 10*time.Millisecond, nil)
	h.command = func(ctx context.Context, _ string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", "echo sample")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	starts := h.Run(ctx)

	assert.GreaterOrEqual(t, starts, 2)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(string(data), "sample"), 2)
}

func TestHelperMissingExecutable(t *testing.T) {
	h := NewHelper("g19d-no-such-helper", "", 10*time.Millisecond, nil)
	assert.False(t, h.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.GreaterOrEqual(t, h.Run(ctx), 1)
}
