package link

import "sync/atomic"

// Statistics holds the monotonic counters spec.md §3 requires for a
// ConnectionState. Readers observe monotonic values but are not
// guaranteed to see every mutation atomically with one another; each
// field is updated independently with atomic operations, word-sized
// tearing across fields is tolerated.
type Statistics struct {
	enqueuedCount atomic.Uint64
	sentCount     atomic.Uint64
	ackCount      atomic.Uint64
	receiveCount  atomic.Uint64
	rssiLatest    atomic.Uint32
}

// EnqueuedCount is the number of packets ever accepted by the send queue.
func (s *Statistics) EnqueuedCount() uint64 { return s.enqueuedCount.Load() }

// SentCount is the number of transmit attempts made by the DongleWorker.
func (s *Statistics) SentCount() uint64 { return s.sentCount.Load() }

// AckCount is the number of transmit attempts that received an ack.
func (s *Statistics) AckCount() uint64 { return s.ackCount.Load() }

// ReceiveCount is the number of non-RSSI acks pushed onto the recv queue.
func (s *Statistics) ReceiveCount() uint64 { return s.receiveCount.Load() }

// RSSILatest is the most recent RSSI sample reported by the target.
func (s *Statistics) RSSILatest() byte { return byte(s.rssiLatest.Load()) }

// connectionState is the per-logical-connection state shared between a
// Connection façade and, for radio connections, the owning
// DongleWorker. address, channel and datarate are fixed at
// construction; useSafelink is fixed; the safelink bits are mutated
// exclusively by the worker goroutine that owns this connection.
type connectionState struct {
	uri string

	address  Address
	channel  int
	datarate DataRate

	useSafelink         bool
	safelinkInitialized bool
	safelinkUp          bool
	safelinkDown        bool

	send    *sendQueue
	recv    *recvQueue
	sendSeq atomic.Uint64

	// dead is set by the owning DongleWorker when it exits after
	// persistent transport failure; Connection.Send/Recv consult it to
	// surface ErrDeviceLost, per spec.md §7.
	dead atomic.Bool

	stats Statistics
}

func newConnectionState(uri string, addr Address, channel int, rate DataRate, useSafelink bool, sendLimit int) *connectionState {
	return &connectionState{
		uri:         uri,
		address:     addr,
		channel:     channel,
		datarate:    rate,
		useSafelink: useSafelink,
		send:        newSendQueue(sendLimit),
		recv:        newRecvQueue(),
	}
}
