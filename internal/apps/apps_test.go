package apps

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"

	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/notify"
	"github.com/jmylchreest/g19d/internal/raster"
)

type fakeController struct {
	mu      sync.Mutex
	listed  []string
	ambient bool
	colors  []raster.Color
	changes []string
	events  chan string
}

func newFakeController(listed ...string) *fakeController {
	return &fakeController{listed: listed, ambient: true, events: make(chan string, 16)}
}

func (f *fakeController) ChangeApp(name string) error {
	f.mu.Lock()
	f.changes = append(f.changes, name)
	f.mu.Unlock()
	f.events <- "change:" + name
	return nil
}

func (f *fakeController) Irq(name string) error {
	f.events <- "irq:" + name
	return nil
}

func (f *fakeController) Unirq() {
	f.events <- "unirq"
}

func (f *fakeController) Listed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listed...)
}

func (f *fakeController) SetAmbientEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ambient = enabled
}

func (f *fakeController) ApplyColor(c raster.Color, force bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if force || f.ambient {
		f.colors = append(f.colors, c)
	}
}

func (f *fakeController) state() (bool, []raster.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ambient, append([]raster.Color(nil), f.colors...)
}

func (f *fakeController) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for controller call")
		return ""
	}
}

func testCanvas() *raster.Canvas {
	return raster.NewCanvasWithFaces(raster.FixedFace(basicfont.Face7x13))
}

func press(t keys.Table, k keys.Key) {
	t[keys.Press(k)].HandleKey(keys.Event{Key: k, Pressed: true})
}

func pixel(frame []byte, x, y int) uint16 {
	i := 2 * (y*raster.Width + x)
	return binary.LittleEndian.Uint16(frame[i:])
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSwitcherWrapAround(t *testing.T) {
	ctl := newFakeController("watch", "backlight", "clock")
	s := NewSwitcher(ctl, nil)

	s.Up()
	assert.Equal(t, 2, s.Selected())
	s.Down()
	assert.Equal(t, 0, s.Selected())
	s.Down()
	s.Down()
	assert.Equal(t, 2, s.Selected())
	s.Down()
	assert.Equal(t, 0, s.Selected())
}

func TestSwitcherBindings(t *testing.T) {
	ctl := newFakeController("watch", "backlight")
	s := NewSwitcher(ctl, nil)
	b := s.Bindings()

	press(b, keys.Down)
	press(b, keys.OK)
	assert.Equal(t, "change:backlight", ctl.next(t))

	press(b, keys.Back)
	assert.Equal(t, "unirq", ctl.next(t))

	press(s.Trigger(keys.Settings), keys.Settings)
	assert.Equal(t, "irq:switcher", ctl.next(t))
}

func TestSwitcherEmpty(t *testing.T) {
	ctl := newFakeController()
	s := NewSwitcher(ctl, nil)
	s.Up()
	s.Select()
	assert.Equal(t, 0, s.Selected())
	assert.Empty(t, ctl.changes)
}

func TestSwitcherRender(t *testing.T) {
	ctl := newFakeController("watch", "backlight")
	s := NewSwitcher(ctl, nil)
	c := testCanvas()

	s.Setup(c)
	assert.False(t, s.Render(c))
	assert.Equal(t, headerColor.RGB565(), c.At(250, 60))
	assert.Equal(t, selectionColor.RGB565(), c.At(260, 100))

	s.Down()
	assert.True(t, s.Render(c))
	assert.Equal(t, raster.Black.RGB565(), c.At(260, 100))
	assert.Equal(t, selectionColor.RGB565(), c.At(260, 130))

	ctl.mu.Lock()
	ctl.listed = append(ctl.listed, "other")
	ctl.mu.Unlock()
	assert.True(t, s.Render(c))
}

func newTestWatch(t *testing.T, mode string) (*Watch, *fakeClock) {
	t.Helper()
	cfg := config.DefaultConfig().Watch
	cfg.Mode = mode
	cfg.Alpha = 1
	w := NewWatch(cfg, nil)
	clock := &fakeClock{t: time.Date(2026, 10, 17, 9, 30, 15, 0, time.UTC)}
	w.now = clock.Now
	w.Reset()
	return w, clock
}

func TestWatchStopwatch(t *testing.T) {
	w, clock := newTestWatch(t, config.WatchStopwatch)
	assert.Equal(t, "00:00:00", w.Text())

	clock.Advance(time.Hour + 2*time.Minute + 3*time.Second)
	assert.Equal(t, "01:02:03", w.Text())

	w.TogglePause()
	clock.Advance(time.Minute)
	assert.Equal(t, "01:02:03", w.Text())

	w.TogglePause()
	clock.Advance(2 * time.Second)
	assert.Equal(t, "01:02:05", w.Text())

	clock.Advance(24 * time.Hour)
	assert.Equal(t, "01:02:05", w.Text())

	w.Reset()
	assert.Equal(t, "00:00:00", w.Text())
}

func TestWatchClock(t *testing.T) {
	w, clock := newTestWatch(t, config.WatchClock)
	assert.Equal(t, "09:30:15", w.Text())

	press(w.Bindings(), keys.OK)
	clock.Advance(5 * time.Second)
	assert.Equal(t, "09:30:15", w.Text())

	press(w.Bindings(), keys.OK)
	assert.Equal(t, "09:30:20", w.Text())

	press(w.Bindings(), keys.Menu)
	assert.Equal(t, config.WatchStopwatch, w.Mode())
	press(w.Bindings(), keys.Menu)
	assert.Equal(t, config.WatchClock, w.Mode())
}

func TestWatchRender(t *testing.T) {
	w, clock := newTestWatch(t, config.WatchClock)
	c := testCanvas()

	w.Setup(c)
	band := raster.Color{R: 177, G: 31, B: 80}
	assert.Equal(t, band.RGB565(), c.At(0, 100))
	assert.Equal(t, raster.Black.RGB565(), c.At(0, 50))

	assert.False(t, w.Render(c))

	w.OnAmbient(raster.Black)
	assert.False(t, w.Render(c))

	red := raster.Color{R: 255}
	w.OnAmbient(red)
	assert.True(t, w.Render(c))
	assert.Equal(t, red.RGB565(), c.At(0, 100))

	clock.Advance(time.Second)
	assert.True(t, w.Render(c))
	assert.False(t, w.Render(c))
}

func TestWatchBackground(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for y := range 12 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "bg.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	loaded, err := LoadBackground(path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(16, 12), loaded.Bounds().Size())

	cfg := config.DefaultConfig().Watch
	cfg.Background = path
	w := NewWatch(cfg, nil)
	c := testCanvas()
	w.Setup(c)
	assert.Equal(t, raster.Color{G: 255}.RGB565(), c.At(10, 10))

	_, err = LoadBackground(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestBacklightModes(t *testing.T) {
	ctl := newFakeController()
	b := NewBacklight(ctl, config.DefaultConfig().Backlight)
	palette := config.DefaultConfig().Backlight.Palette
	keysTable := b.Bindings()

	b.Apply()
	ambient, colors := ctl.state()
	assert.True(t, ambient)
	assert.Empty(t, colors)

	press(keysTable, keys.Down)
	assert.Equal(t, EntryMode, b.Entry())

	press(keysTable, keys.Right)
	assert.Equal(t, config.BacklightManual, b.Mode())
	ambient, colors = ctl.state()
	assert.False(t, ambient)
	assert.Equal(t, []raster.Color{palette[0].Color()}, colors)

	press(keysTable, keys.Down)
	assert.Equal(t, EntryColor, b.Entry())
	press(keysTable, keys.Right)
	assert.Equal(t, palette[1].Color(), b.Color())
	press(keysTable, keys.Left)
	press(keysTable, keys.Left)
	assert.Equal(t, palette[len(palette)-1].Color(), b.Color())

	press(keysTable, keys.Up)
	assert.Equal(t, EntryMode, b.Entry())
	press(keysTable, keys.Left)
	assert.Equal(t, config.BacklightAmbient, b.Mode())
	ambient, colors = ctl.state()
	assert.True(t, ambient)
	assert.Len(t, colors, 4)
}

func TestBacklightRender(t *testing.T) {
	ctl := newFakeController()
	cfg := config.DefaultConfig().Backlight
	cfg.Mode = config.BacklightManual
	b := NewBacklight(ctl, cfg)
	c := testCanvas()

	b.Setup(c)
	assert.False(t, b.Render(c))
	assert.Equal(t, selectionColor.RGB565(), c.At(265, 90))
	assert.Equal(t, cfg.Palette[0].Color().RGB565(), c.At(205, 120))

	b.MoveEntry()
	assert.True(t, b.Render(c))
	assert.Equal(t, selectionColor.RGB565(), c.At(265, 120))
	assert.Equal(t, raster.Black.RGB565(), c.At(265, 90))
}

type countingChime struct {
	mu    sync.Mutex
	plays int
}

func (c *countingChime) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plays++
	return nil
}

func (c *countingChime) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

func TestNotificationLifecycle(t *testing.T) {
	ctl := newFakeController()
	cfg := config.DefaultConfig().Notifications
	cfg.Alpha = 1
	chime := &countingChime{}
	n := NewNotification(ctl, cfg, chime, nil)

	expire := make(chan time.Time)
	timeouts := make(chan time.Duration, 4)
	n.after = func(d time.Duration) <-chan time.Time {
		timeouts <- d
		return expire
	}

	a := applet.New(n, testCanvas(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go n.Run(ctx)

	rec, err := notify.FromBody([]any{
		"mail", uint32(0), "", "Hello", "world", []string{},
		map[string]dbus.Variant{}, int32(6000),
	}, time.Now())
	require.NoError(t, err)
	require.True(t, n.Enqueue(rec))

	assert.Equal(t, "irq:notification", ctl.next(t))
	assert.Equal(t, 6*time.Second, <-timeouts)
	shown, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "Hello", shown.Summary)
	assert.Equal(t, cfg.Color.Color().RGB565(), pixel(a.Snapshot(), 300, 100))
	assert.Equal(t, 1, chime.count())

	expire <- time.Now()
	assert.Equal(t, "unirq", ctl.next(t))

	rec.ExpireTimeout = 100
	rec.Hints = map[string]dbus.Variant{
		"bgcolor":        dbus.MakeVariant("#336699"),
		"suppress-sound": dbus.MakeVariant(true),
	}
	require.True(t, n.Enqueue(rec))
	assert.Equal(t, "irq:notification", ctl.next(t))
	assert.Equal(t, 4*time.Second, <-timeouts)
	assert.Equal(t, raster.Color{R: 0x33, G: 0x66, B: 0x99}.RGB565(), pixel(a.Snapshot(), 300, 100))
	assert.Equal(t, 1, chime.count())

	press(n.Bindings(), keys.Back)
	assert.Equal(t, "unirq", ctl.next(t))
	require.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNotificationLayerColor(t *testing.T) {
	cfg := config.DefaultConfig().Notifications
	urgency := func(u byte) map[string]dbus.Variant {
		return map[string]dbus.Variant{"urgency": dbus.MakeVariant(u)}
	}

	tests := []struct {
		name string
		rec  *notify.Record
		want raster.Color
	}{
		{name: "no record", rec: nil, want: cfg.Color.Color()},
		{name: "no hints", rec: &notify.Record{}, want: cfg.Color.Color()},
		{name: "low", rec: &notify.Record{Hints: urgency(0)}, want: cfg.LowColor.Color()},
		{name: "normal", rec: &notify.Record{Hints: urgency(1)}, want: cfg.Color.Color()},
		{name: "critical", rec: &notify.Record{Hints: urgency(2)}, want: cfg.CriticalColor.Color()},
		{
			name: "bgcolor wins over urgency",
			rec: &notify.Record{Hints: map[string]dbus.Variant{
				"urgency": dbus.MakeVariant(byte(2)),
				"bgcolor": dbus.MakeVariant("#102030"),
			}},
			want: raster.Color{R: 0x10, G: 0x20, B: 0x30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, layerColor(tt.rec, cfg))
		})
	}
}

func TestNotificationQueueFull(t *testing.T) {
	cfg := config.DefaultConfig().Notifications
	cfg.QueueSize = 1
	n := NewNotification(newFakeController(), cfg, nil, nil)

	assert.True(t, n.Enqueue(notify.Record{Summary: "one"}))
	assert.False(t, n.Enqueue(notify.Record{Summary: "two"}))
}
