package link

import "fmt"

// maxPayloadBytes is the largest payload a single frame can carry on
// the wire after its one header byte.
const maxPayloadBytes = 30

// PriorityDefault is the priority assigned to a Packet when the caller
// does not set one explicitly.
const PriorityDefault = 0

// Packet is a single CRTP frame: a header byte (port/channel/safelink
// bits) followed by up to 30 payload bytes. It is a value type so
// send/recv queues can hold it without an extra heap indirection, the
// same reasoning behind the teacher's fixed-size nrf24.Packet [32]byte.
type Packet struct {
	header   byte
	payload  [maxPayloadBytes]byte
	size     int
	seq      uint64
	priority int
}

// NewPacket builds a Packet from a port, CRTP channel and payload.
// It returns an error if port, channel or the payload length are out
// of range.
func NewPacket(port, channel int, payload []byte) (Packet, error) {
	var p Packet
	if port < 0 || port > 15 {
		return p, fmt.Errorf("%w: port %d out of range [0,15]", ErrPkg, port)
	}
	if channel < 0 || channel > 3 {
		return p, fmt.Errorf("%w: channel %d out of range [0,3]", ErrPkg, channel)
	}
	if len(payload) > maxPayloadBytes {
		return p, fmt.Errorf("%w: payload length %d exceeds %d", ErrPkg, len(payload), maxPayloadBytes)
	}
	p.header = byte(port<<4) | byte(channel&0x03)
	p.size = copy(p.payload[:], payload)
	p.priority = PriorityDefault
	return p, nil
}

// parsePacket reconstructs a Packet from a raw wire frame: header byte
// followed by the payload. It is the inverse of Packet.Raw.
func parsePacket(raw []byte) (Packet, error) {
	var p Packet
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: empty frame", ErrPkg)
	}
	if len(raw)-1 > maxPayloadBytes {
		return p, fmt.Errorf("%w: payload length %d exceeds %d", ErrPkg, len(raw)-1, maxPayloadBytes)
	}
	p.header = raw[0]
	p.size = copy(p.payload[:], raw[1:])
	p.priority = PriorityDefault
	return p, nil
}

// Port returns the 4-bit port field of the header byte (bits [7:4]).
func (p Packet) Port() int { return int(p.header >> 4) }

// Channel returns the 2-bit CRTP channel field (bits [1:0]). In
// safelink mode this field is overwritten by the up/down parity bits
// before transmission, per the wire frame layout.
func (p Packet) Channel() int { return int(p.header & 0x03) }

// Safelink returns the 2-bit safelink field, packed the same way
// Channel is: the two fields share the header's low bits.
func (p Packet) Safelink() int { return int(p.header & 0x03) }

// SetSafelink overwrites the header's low 2 bits with (up<<1)|down.
// Used only by the DongleWorker while driving the safelink protocol.
func (p *Packet) SetSafelink(up, down bool) {
	p.header &^= 0x03
	if up {
		p.header |= 0x02
	}
	if down {
		p.header |= 0x01
	}
}

// Payload returns the packet's data bytes.
func (p Packet) Payload() []byte { return p.payload[:p.size] }

// Header returns the raw header byte.
func (p Packet) Header() byte { return p.header }

// Seq returns the monotonic enqueue sequence number assigned by the
// queue that first accepted this packet.
func (p Packet) Seq() uint64 { return p.seq }

// Priority returns the caller-assigned priority rank.
func (p Packet) Priority() int { return p.priority }

// SetPriority overrides the default priority rank.
func (p *Packet) SetPriority(priority int) { p.priority = priority }

// Raw serializes the packet as header byte followed by payload bytes,
// suitable for a single radio transmission.
func (p Packet) Raw() []byte {
	out := make([]byte, 1+p.size)
	out[0] = p.header
	copy(out[1:], p.payload[:p.size])
	return out
}

// isRSSIFrame reports whether this packet is the reserved port-15/
// channel-3 link-control ack carrying an RSSI sample in payload byte 0.
func (p Packet) isRSSIFrame() bool {
	return p.Port() == 15 && p.Channel() == 3
}

// less implements the queue ordering from spec.md §4.1: a packet is
// "less" (dequeued later) than another if its priority is lower, or
// priorities are equal and its seq is higher (later enqueue loses the
// tiebreak). The greatest element (highest priority, then lowest seq)
// is dequeued first.
func (p Packet) less(other Packet) bool {
	if p.priority != other.priority {
		return p.priority < other.priority
	}
	return p.seq > other.seq
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet(port=%d, channel=%d, size=%d, seq=%d, priority=%d)",
		p.Port(), p.Channel(), p.size, p.seq, p.priority)
}
