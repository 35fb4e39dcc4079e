package daemon

import (
	"context"
	"time"
)

const (
	// idlePoll paces the loop when the device returns without data.
	idlePoll = 5 * time.Millisecond
	// errorBackoff paces the loop after a failed read.
	errorBackoff = 250 * time.Millisecond
)

// inputLoop polls the key endpoints and feeds every report to the router.
func (d *Daemon) inputLoop(ctx context.Context) {
	d.logger.Debug("input loop started")
	defer d.logger.Debug("input loop stopped")

	for ctx.Err() == nil {
		reports, err := d.dev.Poll(ctx)
		for _, rep := range reports {
			for _, ev := range d.router.Process(rep) {
				d.logger.Debug("key", "event", ev)
			}
		}

		wait := time.Duration(0)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("failed to read keys", "error", err)
			wait = errorBackoff
		case len(reports) == 0:
			wait = idlePoll
		}
		if wait == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
