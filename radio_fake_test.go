package link

import (
	"context"
	"sync"
)

// fakeRadio is a Radio test double, in the same spirit as the teacher's
// mockSPIConn: it records every frame sent and lets a test script
// canned responses (including silence, to simulate a dropped ack).
type fakeRadio struct {
	mu sync.Mutex

	channel    int
	datarate   DataRate
	address    Address
	ackEnabled bool

	sent      [][]byte
	replies   []fakeReply
	alwaysAck *Ack
	closed    bool
}

type fakeReply struct {
	ack Ack
	err error
}

func (r *fakeRadio) SetChannel(c int) error       { r.channel = c; return nil }
func (r *fakeRadio) Channel() int                 { return r.channel }
func (r *fakeRadio) SetDatarate(d DataRate) error  { r.datarate = d; return nil }
func (r *fakeRadio) Datarate() DataRate           { return r.datarate }
func (r *fakeRadio) SetAddress(a Address) error    { r.address = a; return nil }
func (r *fakeRadio) TargetAddress() Address       { return r.address }
func (r *fakeRadio) SetAckEnabled(e bool) error    { r.ackEnabled = e; return nil }
func (r *fakeRadio) AckEnabled() bool             { return r.ackEnabled }

// queueReply appends a canned SendPacket response, consumed FIFO.
func (r *fakeRadio) queueReply(ack Ack, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, fakeReply{ack: ack, err: err})
}

// queueAckAlways makes every future SendPacket return an ok ack with
// the given payload, once the explicitly queued replies are drained.
func (r *fakeRadio) queueAckAlways(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ack := Ack{ok: true, data: data}
	r.alwaysAck = &ack
}

func (r *fakeRadio) SendPacket(ctx context.Context, raw []byte) (Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]byte(nil), raw...))
	if len(r.replies) > 0 {
		reply := r.replies[0]
		r.replies = r.replies[1:]
		return reply.ack, reply.err
	}
	if r.alwaysAck != nil {
		return *r.alwaysAck, nil
	}
	return Ack{}, nil
}

func (r *fakeRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
