package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

type controlCall struct {
	requestType, request uint8
	value, index         uint16
	data                 []byte
}

type fakeTransport struct {
	mu       sync.Mutex
	bulk     [][]byte
	controls []controlCall
	reads    map[uint8][][]byte
	failWith error
	resets   int
	closed   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: map[uint8][][]byte{}}
}

func (f *fakeTransport) BulkWrite(endpoint uint8, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.bulk = append(f.bulk, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Control(requestType, request uint8, value, index uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.controls = append(f.controls, controlCall{requestType, request, value, index, append([]byte(nil), data...)})
	return nil
}

func (f *fakeTransport) InterruptRead(_ context.Context, endpoint uint8, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return 0, f.failWith
	}
	queue := f.reads[endpoint]
	if len(queue) == 0 {
		return 0, nil
	}
	f.reads[endpoint] = queue[1:]
	return copy(buf, queue[0]), nil
}

func (f *fakeTransport) Reset() error {
	f.resets++
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func TestPreamble(t *testing.T) {
	p := Preamble()
	require.Len(t, p, PreambleSize)
	assert.Equal(t, []byte{0x10, 0x0F, 0x00, 0x58, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x3F, 0x01, 0xEF, 0x00, 0x0F}, p[:16])
	assert.Equal(t, byte(16), p[16])
	assert.Equal(t, byte(255), p[255])
	assert.Equal(t, byte(0), p[256])
	assert.Equal(t, byte(255), p[511])
}

func TestSendFrame(t *testing.T) {
	ft := newFakeTransport()
	g := New(ft, nil)

	frame := raster.NewCanvas()
	frame.Fill(raster.White)
	require.NoError(t, g.SendFrame(frame.Bytes()))

	require.Len(t, ft.bulk, 1)
	sent := ft.bulk[0]
	assert.Len(t, sent, PreambleSize+raster.FrameSize)
	assert.Equal(t, Preamble(), sent[:PreambleSize])
	assert.Equal(t, []byte{0xff, 0xff}, sent[PreambleSize:PreambleSize+2])
}

func TestSendFrameSizeMismatch(t *testing.T) {
	ft := newFakeTransport()
	g := New(ft, nil)

	for _, size := range []int{0, raster.FrameSize - 1, raster.FrameSize + 1} {
		err := g.SendFrame(make([]byte, size))
		assert.ErrorIs(t, err, ErrSizeMismatch, "size %d", size)
	}
	assert.Empty(t, ft.bulk)
}

func TestControlMessages(t *testing.T) {
	tests := []struct {
		name string
		call func(*G19) error
		want controlCall
	}{
		{
			name: "backlight",
			call: func(g *G19) error { return g.SetBacklight(10, 20, 30) },
			want: controlCall{0x21, 0x09, 0x307, 0x01, []byte{7, 10, 20, 30}},
		},
		{
			name: "default backlight",
			call: func(g *G19) error { return g.SaveDefaultBacklight(1, 2, 3) },
			want: controlCall{0x21, 0x09, 0x308, 0x01, []byte{7, 1, 2, 3}},
		},
		{
			name: "mode leds",
			call: func(g *G19) error { return g.SetModeLEDs(keys.M1.LED() | keys.MR.LED()) },
			want: controlCall{0x21, 0x09, 0x305, 0x01, []byte{5, 0x90}},
		},
		{
			name: "brightness",
			call: func(g *G19) error { return g.SetBrightness(80) },
			want: controlCall{0x41, 0x0a, 0, 0, []byte{80, 0xe2, 0x12, 0x00, 0x8c, 0x11, 0x00, 0x10, 0x00}},
		},
		{
			name: "brightness clamped",
			call: func(g *G19) error { return g.SetBrightness(250) },
			want: controlCall{0x41, 0x0a, 0, 0, []byte{100, 0xe2, 0x12, 0x00, 0x8c, 0x11, 0x00, 0x10, 0x00}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			require.NoError(t, tt.call(New(ft, nil)))
			require.Len(t, ft.controls, 1)
			assert.Equal(t, tt.want, ft.controls[0])
		})
	}
}

func TestHardwareError(t *testing.T) {
	ft := newFakeTransport()
	ft.failWith = errors.New("pipe error")
	g := New(ft, nil)

	err := g.SetBacklight(1, 2, 3)
	var hw *HardwareError
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, "set backlight", hw.Op)
	assert.ErrorIs(t, err, ft.failWith)

	_, err = g.Poll(context.Background())
	assert.ErrorAs(t, err, &hw)
}

func TestPoll(t *testing.T) {
	ft := newFakeTransport()
	ft.reads[EndpointDisplayKeys] = [][]byte{{0x08, 0x80}}
	ft.reads[EndpointGKeys] = [][]byte{{0x02, 0x01, 0x00, 0x00}}
	g := New(ft, nil)

	reports, err := g.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, keys.Report{Source: keys.DisplaySource, Data: []byte{0x08, 0x80}}, reports[0])
	assert.Equal(t, keys.Report{Source: keys.GKeySource, Data: []byte{0x02, 0x01, 0x00, 0x00}}, reports[1])

	reports, err = g.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestClose(t *testing.T) {
	ft := newFakeTransport()
	g := New(ft, nil)

	require.NoError(t, g.Reset())
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 1, ft.resets)
	assert.Equal(t, 1, ft.closed)

	assert.ErrorIs(t, g.SendFrame(make([]byte, raster.FrameSize)), ErrClosed)
	assert.ErrorIs(t, g.SetModeLEDs(0), ErrClosed)
	assert.ErrorIs(t, g.Reset(), ErrClosed)
}
