package daemon

import (
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/g19d/internal/notify"
)

// NoticeLevel indicates the severity of a daemon notice.
type NoticeLevel int

const (
	// NoticeInfo is for informational messages (low urgency).
	NoticeInfo NoticeLevel = iota
	// NoticeWarning is for warning messages (normal urgency).
	NoticeWarning
	// NoticeError is for error messages (critical urgency).
	NoticeError
)

// noticeTimeout is how long a notice stays on the display, in milliseconds.
const noticeTimeout = 5000

// Notifier shows messages about the daemon itself on the display through the
// notification overlay. The same key is not shown again within minInterval.
type Notifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	enqueue func(notify.Record) bool
	now     func() time.Time

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration
}

// NewNotifier creates a notifier delivering records to enqueue, which may be
// nil when the overlay is disabled.
func NewNotifier(enqueue func(notify.Record) bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:         logger,
		enqueue:        enqueue,
		now:            time.Now,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second,
	}
}

// Notify queues a notice unless one with the same key was shown recently.
// It reports whether the notice was queued.
func (n *Notifier) Notify(key, summary, body string, level NoticeLevel) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.enqueue == nil {
		n.logger.Debug("notice skipped: overlay disabled", "summary", summary)
		return false
	}

	now := n.now()
	if last, ok := n.lastNotifyTime[key]; ok && now.Sub(last) < n.minInterval {
		n.logger.Debug("notice rate-limited", "key", key, "summary", summary)
		return false
	}
	n.lastNotifyTime[key] = now

	urgency := byte(notify.UrgencyNormal)
	switch level {
	case NoticeInfo:
		urgency = notify.UrgencyLow
	case NoticeError:
		urgency = notify.UrgencyCritical
	}

	rec := notify.Record{
		ID:       ulid.Make(),
		Received: now,
		AppName:  "g19d",
		Summary:  summary,
		Body:     body,
		Hints: map[string]godbus.Variant{
			"urgency":        godbus.MakeVariant(urgency),
			"suppress-sound": godbus.MakeVariant(level == NoticeInfo),
		},
		ExpireTimeout: noticeTimeout,
	}
	n.logger.Debug("queueing notice", "key", key, "summary", summary, "level", level)
	return n.enqueue(rec)
}

// NotifyConfigReloaded reports a successful configuration reload.
func (n *Notifier) NotifyConfigReloaded() {
	n.Notify("config-reload", "Configuration reloaded", "g19d configuration has been reloaded.", NoticeInfo)
}

// NotifyConfigError reports a configuration file that failed to load.
func (n *Notifier) NotifyConfigError(err error) {
	n.Notify("config-error", "Configuration error", "Failed to reload configuration: "+err.Error(), NoticeWarning)
}

// NotifyAmbientError reports that the ambient colour socket is unavailable.
func (n *Notifier) NotifyAmbientError(err error) {
	n.Notify("ambient-error", "Ambient light unavailable", err.Error(), NoticeWarning)
}

// NotifyFeedError reports that desktop notifications cannot be captured.
func (n *Notifier) NotifyFeedError(err error) {
	n.Notify("feed-error", "Notifications unavailable", err.Error(), NoticeWarning)
}
