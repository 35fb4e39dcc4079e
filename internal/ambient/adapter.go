// Package ambient receives screen-colour samples over TCP and feeds them to
// the backlight and applets.
package ambient

import (
	"log/slog"
	"sync"

	"github.com/jmylchreest/g19d/internal/raster"
)

// SampleSize is the length of one colour sample on the wire: R, G, B.
const SampleSize = 3

// Adapter turns raw samples into colour updates, dropping malformed payloads
// and repeats of the previous colour.
type Adapter struct {
	mu     sync.Mutex
	apply  func(raster.Color)
	last   raster.Color
	seen   bool
	logger *slog.Logger
}

// NewAdapter creates an adapter calling apply for every new colour.
func NewAdapter(apply func(raster.Color), logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{apply: apply, logger: logger}
}

// Apply handles one payload and reports whether it produced an update.
func (a *Adapter) Apply(payload []byte) bool {
	if len(payload) != SampleSize {
		a.logger.Debug("dropping ambient sample", "length", len(payload))
		return false
	}
	c := raster.Color{R: payload[0], G: payload[1], B: payload[2]}

	a.mu.Lock()
	if a.seen && c == a.last {
		a.mu.Unlock()
		return false
	}
	a.last, a.seen = c, true
	a.mu.Unlock()

	if a.apply != nil {
		a.apply(c)
	}
	return true
}

// Last returns the most recently applied colour.
func (a *Adapter) Last() (raster.Color, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.seen
}
