package link

import "errors"

// ErrPkg is wrapped by the errors that packet construction and parsing
// (NewPacket, parsePacket) return. The sentinels below are not wrapped
// in ErrPkg; check for them with errors.Is individually.
var ErrPkg = errors.New("link")

var (
	// ErrURIMalformed is returned when a Connection is constructed from
	// a URI that does not match the usb:// or radio:// grammar.
	ErrURIMalformed = errors.New("malformed uri")
	// ErrDeviceNotPresent is returned when a URI names a USB or dongle
	// index that has no matching enumerated device.
	ErrDeviceNotPresent = errors.New("device not present")
	// ErrUSBTransport marks a USB bulk/control transfer failure. A
	// DongleWorker absorbs these, and after repeated failures its
	// connections report ErrDeviceLost instead. Opening a device and
	// direct-USB Send/Recv return it to the caller.
	ErrUSBTransport = errors.New("usb transport error")
	// ErrDeviceLost is surfaced to a caller's Send/Recv once the
	// DongleWorker backing a connection has exited after persistent
	// transport failure or a hot-unplug.
	ErrDeviceLost = errors.New("device lost")
	// ErrQueueFull is returned by Send when the limit set with
	// WithSendQueueLimit is positive and the send queue is already at
	// capacity.
	ErrQueueFull = errors.New("send queue full")
)
