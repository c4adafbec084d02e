package link

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// directUSBRecvTimeout is the short timeout used for non-blocking recv
// on a direct USB target, per spec.md §4.4.
const directUSBRecvTimeout = 100 * time.Millisecond

// directUSBTarget is a Crazyflie reachable directly over USB, bypassing
// the radio dongle entirely. It is not multiplexed: one goroutine's
// Send/Recv talks straight to the USB endpoints.
type directUSBTarget struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint
}

func openDirectUSBTarget(index int) (*directUSBTarget, error) {
	ctx := gousb.NewContext()

	var found *gousb.Device
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == targetVendorID && desc.Product == targetProductID
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: enumerate usb targets: %v", ErrUSBTransport, err)
	}
	for i, d := range devices {
		if i == index {
			found = d
			continue
		}
		d.Close()
	}
	if found == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: no USB target at index %d", ErrDeviceNotPresent, index)
	}

	cfg, err := found.Config(1)
	if err != nil {
		found.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: set config: %v", ErrUSBTransport, err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		found.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: claim interface: %v", ErrUSBTransport, err)
	}
	epOut, err := intf.OutEndpoint(1)
	if err != nil {
		intf.Close()
		cfg.Close()
		found.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: open OUT endpoint: %v", ErrUSBTransport, err)
	}
	epIn, err := intf.InEndpoint(0x81)
	if err != nil {
		intf.Close()
		cfg.Close()
		found.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: open IN endpoint: %v", ErrUSBTransport, err)
	}

	return &directUSBTarget{ctx: ctx, dev: found, cfg: cfg, intf: intf, epOut: epOut, epIn: epIn}, nil
}

// send writes a frame synchronously; it does not enqueue or block on
// any worker, matching the non-multiplexed nature of a direct target.
func (t *directUSBTarget) send(raw []byte) error {
	if _, err := t.epOut.Write(raw); err != nil {
		return fmt.Errorf("%w: bulk write: %v", ErrUSBTransport, err)
	}
	return nil
}

// recv reads one frame, blocking indefinitely or for a short fixed
// timeout depending on blocking, per spec.md §4.4.
func (t *directUSBTarget) recv(blocking bool) (Packet, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if !blocking {
		ctx, cancel = context.WithTimeout(ctx, directUSBRecvTimeout)
		defer cancel()
	}

	type result struct {
		n   int
		err error
	}
	buf := make([]byte, 1+maxPayloadBytes+2)
	done := make(chan result, 1)
	go func() {
		n, err := t.epIn.Read(buf)
		done <- result{n: n, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if !blocking {
				return Packet{}, nil
			}
			return Packet{}, fmt.Errorf("%w: bulk read: %v", ErrUSBTransport, res.err)
		}
		return parsePacket(buf[:res.n])
	case <-ctx.Done():
		return Packet{}, nil
	}
}

func (t *directUSBTarget) close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		t.cfg.Close()
	}
	if t.dev != nil {
		t.dev.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}
