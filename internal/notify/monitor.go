package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyInterface = "org.freedesktop.Notifications"
	notifyMember    = "Notify"
)

// Monitor passively observes Notify calls on the session bus without owning
// the notification service, so it runs alongside any notification daemon.
type Monitor struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	logger  *slog.Logger
	handler func(Record)
	now     func() time.Time
	doneCh  chan struct{}
}

// NewMonitor creates a monitor delivering every captured record to handler.
func NewMonitor(handler func(Record), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger:  logger,
		handler: handler,
		now:     time.Now,
	}
}

// Start connects to the session bus and begins monitoring until ctx is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	rule := fmt.Sprintf("type='method_call',interface='%s',member='%s'", notifyInterface, notifyMember)
	err = conn.BusObject().Call(
		"org.freedesktop.DBus.Monitoring.BecomeMonitor",
		0,
		[]string{rule},
		uint32(0),
	).Err
	if err != nil {
		m.logger.Warn("BecomeMonitor not available, trying AddMatch", "error", err)
		err = conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule+",eavesdrop='true'").Err
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to add match rule (eavesdrop may require permissions): %w", err)
		}
		m.logger.Info("started D-Bus monitor using AddMatch with eavesdrop")
	} else {
		m.logger.Info("started D-Bus monitor using BecomeMonitor")
	}

	ch := make(chan *dbus.Message, 100)
	conn.Eavesdrop(ch)

	m.mu.Lock()
	m.conn = conn
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.processMessages(ctx, ch)
	return nil
}

func (m *Monitor) processMessages(ctx context.Context, ch <-chan *dbus.Message) {
	defer close(m.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.HandleMessage(msg)
		}
	}
}

// HandleMessage processes one bus message, ignoring anything but Notify calls.
func (m *Monitor) HandleMessage(msg *dbus.Message) {
	if msg.Type != dbus.TypeMethodCall {
		return
	}
	if headerString(msg, dbus.FieldInterface) != notifyInterface ||
		headerString(msg, dbus.FieldMember) != notifyMember {
		return
	}

	rec, err := FromBody(msg.Body, m.now())
	if err != nil {
		m.logger.Warn("dropping notification", "error", err)
		return
	}

	m.logger.Debug("captured notification",
		"id", rec.ID,
		"app", rec.AppName,
		"summary", rec.Summary,
		"expire_timeout", rec.ExpireTimeout)

	if m.handler != nil {
		m.handler(rec)
	}
}

func headerString(msg *dbus.Message, field dbus.HeaderField) string {
	v, ok := msg.Headers[field]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

// Stop closes the bus connection and waits for the processing loop to end.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	conn, done := m.conn, m.doneCh
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	m.logger.Debug("D-Bus monitor stopped")
	return err
}
