// Package notify captures desktop notifications from the session bus so they
// can be shown on the keyboard display.
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/oklog/ulid/v2"
)

// Urgency levels from the notification specification.
const (
	UrgencyLow      = 0
	UrgencyNormal   = 1
	UrgencyCritical = 2
)

// ErrMalformed is returned for Notify calls that do not carry the eight
// expected arguments.
var ErrMalformed = errors.New("malformed Notify call")

// Record is one captured Notify call.
type Record struct {
	ID       ulid.ULID
	Received time.Time

	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // milliseconds, -1 = server default, 0 = never
}

// FromBody parses the arguments of
// Notify(app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout).
func FromBody(body []any, now time.Time) (Record, error) {
	if len(body) != 8 {
		return Record{}, fmt.Errorf("%w: %d arguments", ErrMalformed, len(body))
	}

	r := Record{Received: now}
	var ok bool
	if r.AppName, ok = body[0].(string); !ok {
		return Record{}, fmt.Errorf("%w: invalid app_name type %T", ErrMalformed, body[0])
	}
	if r.ReplacesID, ok = body[1].(uint32); !ok {
		return Record{}, fmt.Errorf("%w: invalid replaces_id type %T", ErrMalformed, body[1])
	}
	if r.AppIcon, ok = body[2].(string); !ok {
		return Record{}, fmt.Errorf("%w: invalid app_icon type %T", ErrMalformed, body[2])
	}
	if r.Summary, ok = body[3].(string); !ok {
		return Record{}, fmt.Errorf("%w: invalid summary type %T", ErrMalformed, body[3])
	}
	if r.Body, ok = body[4].(string); !ok {
		return Record{}, fmt.Errorf("%w: invalid body type %T", ErrMalformed, body[4])
	}
	if actions, ok := body[5].([]string); ok {
		r.Actions = actions
	}
	if hints, ok := body[6].(map[string]dbus.Variant); ok {
		r.Hints = hints
	}
	if r.ExpireTimeout, ok = body[7].(int32); !ok {
		return Record{}, fmt.Errorf("%w: invalid expire_timeout type %T", ErrMalformed, body[7])
	}

	r.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return r, nil
}

// ExpireDuration returns how long the record should stay on screen: the
// sender's timeout when it lies within [min, max], def otherwise.
func (r Record) ExpireDuration(min, max, def time.Duration) time.Duration {
	d := time.Duration(r.ExpireTimeout) * time.Millisecond
	if d >= min && d <= max {
		return d
	}
	return def
}

// Urgency extracts the urgency hint. Returns UrgencyNormal if not specified.
func (r Record) Urgency() int {
	if v, ok := r.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return int(b)
		}
	}
	return UrgencyNormal
}

// BackgroundColor extracts the bgcolor hint (dunstify -h string:bgcolor:#RRGGBB).
func (r Record) BackgroundColor() string {
	return r.stringHint("bgcolor")
}

// SuppressSound returns true if the suppress-sound hint is set.
func (r Record) SuppressSound() bool {
	if v, ok := r.Hints["suppress-sound"]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func (r Record) stringHint(name string) string {
	if v, ok := r.Hints[name]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}
