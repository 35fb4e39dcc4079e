package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ table Table }

func (s *staticSource) ActiveBindings() Table { return s.table }

type recordingLEDs struct {
	masks []byte
	err   error
}

func (r *recordingLEDs) SetModeLEDs(mask byte) error {
	r.masks = append(r.masks, mask)
	return r.err
}

func display(mask byte) Report { return Report{Source: DisplaySource, Data: []byte{mask, 0x80}} }

func gkeys(lo, hi, flags byte) Report {
	return Report{Source: GKeySource, Data: []byte{0x02, lo, hi, flags}}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		report   Report
		wantBits uint32
		wantOK   bool
	}{
		{"menu", display(0x04), Menu.Bit(), true},
		{"up and ok", display(0x88), Up.Bit() | OK.Bit(), true},
		{"g1", gkeys(0x01, 0, 0), G1.Bit(), true},
		{"g12", gkeys(0, 0x08, 0), G12.Bit(), true},
		{"m1 and mr", gkeys(0, 0x90, 0), M1.Bit() | MR.Bit(), true},
		{"light", gkeys(0, 0, 0x08), Light.Bit(), true},
		{"short display", Report{Source: DisplaySource, Data: []byte{0x04}}, 0, false},
		{"bad trailer", Report{Source: DisplaySource, Data: []byte{0x04, 0x00}}, 0, false},
		{"bad report id", Report{Source: GKeySource, Data: []byte{0x01, 1, 0, 0}}, 0, false},
		{"long gkeys", Report{Source: GKeySource, Data: []byte{0x02, 1, 0, 0, 0}}, 0, false},
		{"unknown source", Report{Source: Source(9), Data: []byte{0x04, 0x80}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits, _, ok := Decode(tt.report)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantBits, bits)
		})
	}
}

func TestRouterEdgeDetection(t *testing.T) {
	var got []Event
	rec := HandlerFunc(func(ev Event) { got = append(got, ev) })
	r := NewRouter(&staticSource{table: Table{}}, rec, nil, nil)

	r.Process(display(0x88))
	assert.Equal(t, []Event{{OK, true}, {Up, true}}, got)

	got = nil
	r.Process(display(0x80))
	assert.Equal(t, []Event{{OK, false}}, got)

	// repeated state emits nothing
	got = nil
	assert.Empty(t, r.Process(display(0x80)))
	assert.Empty(t, got)
}

func TestRouterSourcesOwnTheirBits(t *testing.T) {
	var got []Event
	rec := HandlerFunc(func(ev Event) { got = append(got, ev) })
	r := NewRouter(&staticSource{}, rec, nil, nil)

	r.Process(display(0x04))
	r.Process(gkeys(0x01, 0, 0))
	// the G-key report must not release the display key
	assert.Equal(t, []Event{{Menu, true}, {G1, true}}, got)

	got = nil
	r.Process(display(0x00))
	assert.Equal(t, []Event{{Menu, false}}, got)
}

func TestRouterTableAndFallback(t *testing.T) {
	var bound, fallback []Event
	table := Table{
		Press(OK): HandlerFunc(func(ev Event) { bound = append(bound, ev) }),
	}
	r := NewRouter(&staticSource{table: table}, HandlerFunc(func(ev Event) {
		fallback = append(fallback, ev)
	}), nil, nil)

	r.Process(display(0x08))
	r.Process(display(0x00))

	assert.Equal(t, []Event{{OK, true}}, bound)
	assert.Equal(t, []Event{{OK, false}}, fallback)
}

func TestRouterTableSwitchWithinReport(t *testing.T) {
	var dispatched []string
	src := &staticSource{}
	second := Table{
		Press(Menu): HandlerFunc(func(Event) { dispatched = append(dispatched, "second-menu") }),
	}
	src.table = Table{
		Press(Back): HandlerFunc(func(Event) {
			dispatched = append(dispatched, "first-back")
			src.table = second
		}),
		Press(Menu): HandlerFunc(func(Event) { dispatched = append(dispatched, "first-menu") }),
	}
	r := NewRouter(src, nil, nil, nil)

	events := r.Process(display(byte(Back.Bit() | Menu.Bit())))

	assert.Equal(t, []Event{{Back, true}, {Menu, true}}, events)
	assert.Equal(t, []string{"first-back", "second-menu"}, dispatched)
}

func TestRouterModeKeys(t *testing.T) {
	leds := &recordingLEDs{}
	var dispatched []Event
	table := Table{Press(M2): HandlerFunc(func(ev Event) { dispatched = append(dispatched, ev) })}
	r := NewRouter(&staticSource{table: table}, HandlerFunc(func(ev Event) {
		dispatched = append(dispatched, ev)
	}), leds, nil)
	assert.Equal(t, M1, r.Mode())

	r.Process(gkeys(0, 0x40, 0)) // M2 down
	r.Process(gkeys(0, 0x00, 0)) // M2 up
	r.Process(gkeys(0, 0x40, 0)) // M2 again
	r.Process(gkeys(0, 0x20, 0)) // M2 up, M3 down

	assert.Equal(t, M3, r.Mode())
	assert.Equal(t, []byte{0x40, 0x40, 0x20}, leds.masks)
	assert.Empty(t, dispatched, "mode keys never reach the table")
}

func TestRouterLEDErrorDoesNotStopRouting(t *testing.T) {
	leds := &recordingLEDs{err: errors.New("usb timeout")}
	var got []Event
	r := NewRouter(&staticSource{}, HandlerFunc(func(ev Event) { got = append(got, ev) }), leds, nil)

	r.Process(gkeys(0x02, 0x80, 0)) // G2 and M1
	assert.Equal(t, []Event{{G2, true}}, got)
	assert.Len(t, leds.masks, 1)
}

func TestMerge(t *testing.T) {
	a := HandlerFunc(func(Event) {})
	b := HandlerFunc(func(Event) {})
	base := Table{Press(OK): a, Press(Up): a}
	over := Table{Press(OK): b}

	m := Merge(base, over)
	require.Len(t, m, 2)
	assert.Len(t, base, 2, "inputs are not mutated")
	_, ok := m[Press(Up)]
	assert.True(t, ok)
}

func TestForwarder(t *testing.T) {
	var calls [][]string
	run := func(_ context.Context, args ...string) error {
		calls = append(calls, args)
		return nil
	}
	f := NewForwarder(nil, run, nil)

	f.HandleKey(Event{G3, true})
	f.HandleKey(Event{G3, false})
	f.HandleKey(Event{Menu, true})
	f.HandleKey(Event{Key(200), true})

	assert.Equal(t, [][]string{{"keydown", "F3"}, {"keyup", "F3"}}, calls)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("G12")
	require.NoError(t, err)
	assert.Equal(t, G12, k)
	assert.Equal(t, "g12", k.String())

	_, err = ParseKey("g13")
	assert.Error(t, err)
}
