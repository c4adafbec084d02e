package link

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Crazyradio dongle and Crazyflie-over-USB vendor/product identifiers.
const (
	radioVendorID  = gousb.ID(0x1915)
	radioProductID = gousb.ID(0x7777)

	targetVendorID  = gousb.ID(0x0483)
	targetProductID = gousb.ID(0x5740)
)

// Crazyradio vendor control requests, issued over the default control
// pipe to reconfigure the dongle between passes.
const (
	reqSetRadioChannel = 0x01
	reqSetRadioAddress = 0x02
	reqSetDataRate     = 0x03
	reqSetRadioArd     = 0x05
	reqSetRadioArc     = 0x06
	reqSetContCarrier  = 0x20
	reqAckEnable       = 0x10
)

const usbControlTimeout = 500 * time.Millisecond
const usbBulkTimeout = 100 * time.Millisecond

// usbRadio drives one Crazyradio dongle over USB, backed by
// github.com/google/gousb. Configuration changes go out as control
// transfers; packet send/ack round-trips go out as a bulk OUT write on
// endpoint 0x01 followed by a bulk IN read on endpoint 0x81, mirroring
// the dongle's piggy-backed nRF24 auto-ack.
type usbRadio struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	channel    int
	datarate   DataRate
	address    Address
	ackEnabled bool
}

// openUSBRadio opens the index-th Crazyradio dongle found on the bus.
func openUSBRadio(index int) (*usbRadio, error) {
	ctx := gousb.NewContext()

	var found *gousb.Device
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == radioVendorID && desc.Product == radioProductID
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: enumerate dongles: %v", ErrUSBTransport, err)
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
		return nil, fmt.Errorf("%w: no Crazyradio dongle at index %d", ErrDeviceNotPresent, index)
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

	return &usbRadio{
		ctx:   ctx,
		dev:   found,
		cfg:   cfg,
		intf:  intf,
		epOut: epOut,
		epIn:  epIn,
	}, nil
}

func (r *usbRadio) control(request uint8, value, index uint16, data []byte) error {
	_, err := r.dev.Control(0x40, request, value, index, data)
	if err != nil {
		return fmt.Errorf("%w: control request 0x%02X: %v", ErrUSBTransport, request, err)
	}
	return nil
}

func (r *usbRadio) SetChannel(channel int) error {
	if err := r.control(reqSetRadioChannel, uint16(channel), 0, nil); err != nil {
		return err
	}
	r.channel = channel
	return nil
}

func (r *usbRadio) Channel() int { return r.channel }

func (r *usbRadio) SetDatarate(rate DataRate) error {
	if err := r.control(reqSetDataRate, uint16(rate), 0, nil); err != nil {
		return err
	}
	r.datarate = rate
	return nil
}

func (r *usbRadio) Datarate() DataRate { return r.datarate }

func (r *usbRadio) SetAddress(addr Address) error {
	raw := make([]byte, 5)
	a := uint64(addr)
	for i := 0; i < 5; i++ {
		raw[i] = byte(a >> (8 * i))
	}
	if err := r.control(reqSetRadioAddress, 0, 0, raw); err != nil {
		return err
	}
	r.address = addr
	return nil
}

func (r *usbRadio) TargetAddress() Address { return r.address }

func (r *usbRadio) SetAckEnabled(enabled bool) error {
	v := uint16(0)
	if enabled {
		v = 1
	}
	if err := r.control(reqAckEnable, v, 0, nil); err != nil {
		return err
	}
	r.ackEnabled = enabled
	return nil
}

func (r *usbRadio) AckEnabled() bool { return r.ackEnabled }

func (r *usbRadio) SendPacket(ctx context.Context, raw []byte) (Ack, error) {
	type result struct {
		ack Ack
		err error
	}
	done := make(chan result, 1)

	go func() {
		if _, err := r.epOut.Write(raw); err != nil {
			done <- result{err: fmt.Errorf("%w: bulk write: %v", ErrUSBTransport, err)}
			return
		}
		buf := make([]byte, 32)
		n, err := r.epIn.Read(buf)
		if err != nil {
			// No-ack and transport timeout are indistinguishable at this
			// layer; treat both as "no ack received", not an error.
			done <- result{ack: Ack{ok: false}}
			return
		}
		done <- result{ack: Ack{ok: true, data: append([]byte(nil), buf[:n]...)}}
	}()

	select {
	case res := <-done:
		return res.ack, res.err
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

func (r *usbRadio) Close() error {
	if r.intf != nil {
		r.intf.Close()
	}
	if r.cfg != nil {
		r.cfg.Close()
	}
	if r.dev != nil {
		r.dev.Close()
	}
	if r.ctx != nil {
		r.ctx.Close()
	}
	return nil
}
