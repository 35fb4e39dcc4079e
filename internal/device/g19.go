// Package device speaks the Logitech G19 USB protocol: frames to the LCD,
// backlight and mode-LED control messages, and interrupt key reports.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

// USB identity of the G19.
const (
	VendorID  = 0x046d
	ProductID = 0xc229
)

// Endpoint addresses.
const (
	EndpointLCD         uint8 = 0x02
	EndpointDisplayKeys uint8 = 0x81
	EndpointGKeys       uint8 = 0x83
)

// Control request parameters.
const (
	requestTypeClassInterface  uint8 = 0x21 // host-to-device | class | interface
	requestTypeVendorInterface uint8 = 0x41 // host-to-device | vendor | interface

	requestSetReport  uint8 = 0x09
	requestBrightness uint8 = 0x0a

	valueModeLEDs         uint16 = 0x305
	valueBacklight        uint16 = 0x307
	valueDefaultBacklight uint16 = 0x308

	keyboardInterface uint16 = 0x01
)

// PreambleSize is the length of the header sent before every frame.
const PreambleSize = 512

var (
	// ErrDeviceNotFound is returned when no G19 is attached.
	ErrDeviceNotFound = errors.New("G19 keyboard not found")
	// ErrSizeMismatch is returned for frames that are not exactly raster.FrameSize bytes.
	ErrSizeMismatch = errors.New("frame size mismatch")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("device closed")
)

// HardwareError wraps a failed USB transfer.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("usb %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Transport performs raw USB transfers.
type Transport interface {
	BulkWrite(endpoint uint8, data []byte) error
	Control(requestType, request uint8, value, index uint16, data []byte) error
	// InterruptRead returns 0 bytes and no error when nothing arrived before
	// the read timeout.
	InterruptRead(ctx context.Context, endpoint uint8, buf []byte) (int, error)
	Reset() error
	Close() error
}

var preamble = buildPreamble()

// buildPreamble returns the 16-byte command header followed by the two
// index blocks the LCD expects before pixel data.
func buildPreamble() []byte {
	p := []byte{
		0x10, 0x0F, 0x00, 0x58, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x3F, 0x01, 0xEF, 0x00, 0x0F,
	}
	for i := 16; i < 256; i++ {
		p = append(p, byte(i))
	}
	for i := 0; i < 256; i++ {
		p = append(p, byte(i))
	}
	return p
}

// Preamble returns a copy of the frame header.
func Preamble() []byte {
	return append([]byte(nil), preamble...)
}

// G19 is the hardware boundary. Every method is safe for concurrent use; the
// device lock is held for exactly one transfer.
type G19 struct {
	mu        sync.Mutex
	transport Transport
	logger    *slog.Logger
	buf       []byte
	closed    bool
}

// New wraps an open transport.
func New(t Transport, logger *slog.Logger) *G19 {
	if logger == nil {
		logger = slog.Default()
	}
	return &G19{
		transport: t,
		logger:    logger,
		buf:       make([]byte, 0, PreambleSize+raster.FrameSize),
	}
}

// SendFrame writes one RGB565 frame to the LCD.
func (g *G19) SendFrame(frame []byte) error {
	if len(frame) != raster.FrameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(frame), raster.FrameSize)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.buf = append(append(g.buf[:0], preamble...), frame...)
	if err := g.transport.BulkWrite(EndpointLCD, g.buf); err != nil {
		return &HardwareError{Op: "send frame", Err: err}
	}
	return nil
}

// SetBacklight sets the keyboard backlight colour.
func (g *G19) SetBacklight(r, gr, b uint8) error {
	return g.control("set backlight", requestTypeClassInterface, requestSetReport,
		valueBacklight, keyboardInterface, []byte{0x07, r, gr, b})
}

// SaveDefaultBacklight stores the colour the keyboard uses after a reset.
func (g *G19) SaveDefaultBacklight(r, gr, b uint8) error {
	return g.control("save backlight", requestTypeClassInterface, requestSetReport,
		valueDefaultBacklight, keyboardInterface, []byte{0x07, r, gr, b})
}

// SetModeLEDs lights the M1-M3/MR LEDs given as an OR of keys.Key.LED masks.
func (g *G19) SetModeLEDs(mask byte) error {
	return g.control("set mode leds", requestTypeClassInterface, requestSetReport,
		valueModeLEDs, keyboardInterface, []byte{0x05, mask})
}

// SetBrightness sets the LCD brightness, 0 (off) to 100.
func (g *G19) SetBrightness(level int) error {
	level = min(max(level, 0), 100)
	data := []byte{byte(level), 0xe2, 0x12, 0x00, 0x8c, 0x11, 0x00, 0x10, 0x00}
	return g.control("set brightness", requestTypeVendorInterface, requestBrightness, 0, 0, data)
}

func (g *G19) control(op string, requestType, request uint8, value, index uint16, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if err := g.transport.Control(requestType, request, value, index, data); err != nil {
		return &HardwareError{Op: op, Err: err}
	}
	return nil
}

// Poll reads both key endpoints once and returns the reports that arrived.
func (g *G19) Poll(ctx context.Context) ([]keys.Report, error) {
	var reports []keys.Report
	var errs []error
	for _, src := range []struct {
		ep     uint8
		source keys.Source
	}{
		{EndpointDisplayKeys, keys.DisplaySource},
		{EndpointGKeys, keys.GKeySource},
	} {
		data, err := g.read(ctx, src.ep)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(data) > 0 {
			reports = append(reports, keys.Report{Source: src.source, Data: data})
		}
	}
	return reports, errors.Join(errs...)
}

func (g *G19) read(ctx context.Context, ep uint8) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	buf := make([]byte, 64)
	n, err := g.transport.InterruptRead(ctx, ep, buf)
	if err != nil {
		return nil, &HardwareError{Op: fmt.Sprintf("read endpoint %#02x", ep), Err: err}
	}
	return buf[:n], nil
}

// Reset issues a USB bus reset.
func (g *G19) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if err := g.transport.Reset(); err != nil {
		return &HardwareError{Op: "reset", Err: err}
	}
	return nil
}

// Close releases the device. Later calls return ErrClosed.
func (g *G19) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.transport.Close(); err != nil {
		return &HardwareError{Op: "close", Err: err}
	}
	g.logger.Debug("device closed")
	return nil
}
