package link

import (
	"context"
	"fmt"
)

// Address is the 40-bit target address used to address a logical
// connection on the air, written as 10 hex digits in a radio:// URI.
type Address uint64

const addressMask = 0xFFFFFFFFFF // 40 bits

func (a Address) String() string {
	return fmt.Sprintf("%010X", uint64(a)&addressMask)
}

// DataRate is the over-the-air bit rate of a radio connection.
type DataRate byte

const (
	// DataRate250K is 250 kb/s.
	DataRate250K DataRate = iota
	// DataRate1M is 1 Mb/s.
	DataRate1M
	// DataRate2M is 2 Mb/s.
	DataRate2M
)

func (d DataRate) String() string {
	switch d {
	case DataRate250K:
		return "250K"
	case DataRate1M:
		return "1M"
	case DataRate2M:
		return "2M"
	default:
		return "unknown"
	}
}

// Ack is the result of one SendPacket call. It is truthy (OK() returns
// true) iff the target acknowledged the frame; Data() is the ack
// payload, which may be empty.
type Ack struct {
	ok   bool
	data []byte
}

// OK reports whether an acknowledgement was received.
func (a Ack) OK() bool { return a.ok }

// Data returns the ack payload bytes, possibly empty.
func (a Ack) Data() []byte { return a.data }

// Radio is a single physical USB radio dongle, used exclusively by one
// DongleWorker at a time. Implementations must make SetChannel,
// SetDatarate, SetAddress and SetAckEnabled idempotent: the read-back
// accessors let a DongleWorker skip redundant USB control transfers
// when a value hasn't changed, per spec.md §4.2.
type Radio interface {
	SetChannel(channel int) error
	Channel() int

	SetDatarate(rate DataRate) error
	Datarate() DataRate

	SetAddress(addr Address) error
	TargetAddress() Address

	SetAckEnabled(enabled bool) error
	AckEnabled() bool

	// SendPacket transmits one frame and blocks for at most one USB
	// bulk transfer, returning the ack (or a false Ack on timeout/no-ack).
	// A non-nil error indicates a transport failure, not a missing ack.
	SendPacket(ctx context.Context, raw []byte) (Ack, error)

	// Close releases the underlying USB device.
	Close() error
}
