package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"
)

const (
	bulkTimeout    = time.Second
	controlTimeout = time.Second
	readTimeout    = 10 * time.Millisecond
)

// usbTransport talks to the keyboard through libusb.
type usbTransport struct {
	ctx *gousb.Context
	dev *gousb.Device
	cfg *gousb.Config

	lcdIface  *gousb.Interface
	keysIface *gousb.Interface

	lcd         *gousb.OutEndpoint
	displayKeys *gousb.InEndpoint
	gkeys       *gousb.InEndpoint
}

// Open finds the G19, claims its LCD and key interfaces and returns the
// device. reset issues a bus reset before claiming.
func Open(reset bool, logger *slog.Logger) (*G19, error) {
	t, err := openUSB(reset)
	if err != nil {
		return nil, err
	}
	return New(t, logger), nil
}

func openUSB(reset bool) (t *usbTransport, err error) {
	t = &usbTransport{ctx: gousb.NewContext()}
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	t.dev, err = t.ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		return nil, &HardwareError{Op: "open", Err: err}
	}
	if t.dev == nil {
		return nil, ErrDeviceNotFound
	}
	t.dev.ControlTimeout = controlTimeout

	if err := t.dev.SetAutoDetach(true); err != nil {
		return nil, &HardwareError{Op: "auto detach", Err: err}
	}
	if reset {
		if err := t.dev.Reset(); err != nil {
			return nil, &HardwareError{Op: "reset", Err: err}
		}
	}

	if t.cfg, err = t.dev.Config(1); err != nil {
		return nil, &HardwareError{Op: "set config", Err: err}
	}
	if t.lcdIface, err = t.cfg.Interface(0, 0); err != nil {
		return nil, &HardwareError{Op: "claim interface 0", Err: err}
	}
	if t.keysIface, err = t.cfg.Interface(1, 0); err != nil {
		return nil, &HardwareError{Op: "claim interface 1", Err: err}
	}
	if t.lcd, err = t.lcdIface.OutEndpoint(int(EndpointLCD)); err != nil {
		return nil, &HardwareError{Op: "lcd endpoint", Err: err}
	}
	if t.displayKeys, err = t.lcdIface.InEndpoint(int(EndpointDisplayKeys & 0x0f)); err != nil {
		return nil, &HardwareError{Op: "display key endpoint", Err: err}
	}
	if t.gkeys, err = t.keysIface.InEndpoint(int(EndpointGKeys & 0x0f)); err != nil {
		return nil, &HardwareError{Op: "g-key endpoint", Err: err}
	}
	return t, nil
}

func (t *usbTransport) BulkWrite(endpoint uint8, data []byte) error {
	if endpoint != EndpointLCD {
		return fmt.Errorf("no out endpoint %#02x", endpoint)
	}
	ctx, cancel := context.WithTimeout(context.Background(), bulkTimeout)
	defer cancel()
	_, err := t.lcd.WriteContext(ctx, data)
	return err
}

func (t *usbTransport) Control(requestType, request uint8, value, index uint16, data []byte) error {
	_, err := t.dev.Control(requestType, request, value, index, data)
	return err
}

func (t *usbTransport) InterruptRead(ctx context.Context, endpoint uint8, buf []byte) (int, error) {
	var ep *gousb.InEndpoint
	switch endpoint {
	case EndpointDisplayKeys:
		ep = t.displayKeys
	case EndpointGKeys:
		ep = t.gkeys
	default:
		return 0, fmt.Errorf("no in endpoint %#02x", endpoint)
	}

	rctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	n, err := ep.ReadContext(rctx, buf)
	if err != nil {
		if rctx.Err() != nil || errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.TransferCancelled) {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (t *usbTransport) Reset() error {
	return t.dev.Reset()
}

func (t *usbTransport) Close() error {
	if t.keysIface != nil {
		t.keysIface.Close()
	}
	if t.lcdIface != nil {
		t.lcdIface.Close()
	}
	var errs []error
	if t.cfg != nil {
		errs = append(errs, t.cfg.Close())
	}
	if t.dev != nil {
		errs = append(errs, t.dev.Close())
	}
	if t.ctx != nil {
		errs = append(errs, t.ctx.Close())
	}
	return errors.Join(errs...)
}
