package keys

import (
	"log/slog"
	"maps"
	"sync/atomic"
)

// Handler reacts to a key transition.
type Handler interface {
	HandleKey(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

// HandleKey calls f(ev).
func (f HandlerFunc) HandleKey(ev Event) { f(ev) }

// Binding selects one transition of one key.
type Binding struct {
	Key     Key
	Pressed bool
}

// Press and Release build bindings.
func Press(k Key) Binding   { return Binding{Key: k, Pressed: true} }
func Release(k Key) Binding { return Binding{Key: k, Pressed: false} }

// Table maps transitions to handlers. Tables are never mutated once
// installed; switching applets installs a new one.
type Table map[Binding]Handler

// Merge returns a new table with the entries of every table, later tables
// overriding earlier ones.
func Merge(tables ...Table) Table {
	out := make(Table)
	for _, t := range tables {
		maps.Copy(out, t)
	}
	return out
}

// BindingSource provides the currently active table.
type BindingSource interface {
	ActiveBindings() Table
}

// LEDSetter lights the mode LEDs.
type LEDSetter interface {
	SetModeLEDs(mask byte) error
}

// Router turns reports into events and dispatches them. Process must be
// called from a single goroutine.
type Router struct {
	source   BindingSource
	fallback Handler
	leds     LEDSetter
	logger   *slog.Logger

	state uint32
	mode  atomic.Uint32
}

// NewRouter creates a router dispatching against source. Unbound events go
// to fallback, which may be nil.
func NewRouter(source BindingSource, fallback Handler, leds LEDSetter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		source:   source,
		fallback: fallback,
		leds:     leds,
		logger:   logger,
	}
	r.mode.Store(uint32(M1))
	return r
}

// Mode returns the selected mode key.
func (r *Router) Mode() Key {
	return Key(r.mode.Load())
}

// ModeLEDs returns the LED mask of the selected mode.
func (r *Router) ModeLEDs() byte {
	return r.Mode().LED()
}

// Process applies one report and dispatches an event for every bit of its
// source that changed, in bit order. Malformed reports are dropped.
func (r *Router) Process(rep Report) []Event {
	bits, mask, ok := Decode(rep)
	if !ok {
		r.logger.Debug("dropping malformed key report", "source", rep.Source, "len", len(rep.Data))
		return nil
	}
	next := r.state&^mask | bits
	changed := r.state ^ next
	r.state = next
	if changed == 0 {
		return nil
	}

	// A handler may switch applets, so each event sees the table active
	// when it is dispatched.
	var events []Event
	for k := Key(0); k < numKeys; k++ {
		if changed&k.Bit() == 0 {
			continue
		}
		ev := Event{Key: k, Pressed: next&k.Bit() != 0}
		events = append(events, ev)
		r.dispatch(r.source.ActiveBindings(), ev)
	}
	return events
}

func (r *Router) dispatch(table Table, ev Event) {
	if ev.Key.IsMode() {
		if ev.Pressed {
			r.mode.Store(uint32(ev.Key))
			r.RefreshLEDs()
		}
		return
	}
	if h, ok := table[Binding(ev)]; ok && h != nil {
		h.HandleKey(ev)
		return
	}
	if r.fallback != nil {
		r.fallback.HandleKey(ev)
	}
}

// RefreshLEDs pushes the current mode to the hardware.
func (r *Router) RefreshLEDs() {
	if r.leds == nil {
		return
	}
	if err := r.leds.SetModeLEDs(r.ModeLEDs()); err != nil {
		r.logger.Warn("failed to set mode LEDs", "mode", r.Mode(), "error", err)
	}
}
