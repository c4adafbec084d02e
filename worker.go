package link

import (
	"context"
	"sync"
	"time"
)

// workerQuantum is the fixed sleep between passes, small enough to
// avoid busy-spinning while all queues are empty, per spec.md §4.3.
const workerQuantum = time.Millisecond

// sendPacketTimeout bounds a single transmit-and-ack cycle so a wedged
// USB transfer cannot stall the worker forever; a real timeout/no-ack
// is reported by Radio.SendPacket well before this fires.
const sendPacketTimeout = 250 * time.Millisecond

// maxConsecutiveTransportErrors bounds how many back-to-back transport
// failures (across any of its connections) a worker absorbs before
// giving up on its Radio. Past this point spec.md §7 calls for the
// worker to exit and subsequent Send/Recv on its connections to
// surface ErrDeviceLost.
const maxConsecutiveTransportErrors = 5

var (
	enableSafelinkFrame = []byte{0xFF, 0x05, 0x01}
	pingFrame           = []byte{0xFF}
)

// pingPacket builds the single-byte link-control ping frame (header
// 0xFF, no payload), matching original_source/src/CrazyradioThread.cpp's
// ping[] = {0xFF}. Building it via parsePacket rather than NewPacket
// keeps header bits [3:2] set, so a safelink SetSafelink call that
// follows only overwrites bits [1:0] and leaves the rest of 0xFF intact.
func pingPacket() Packet {
	p, _ := parsePacket(pingFrame)
	return p
}

// downParityMask returns the bit a target's ack is expected to carry
// in byte 0 to echo our last-received down parity. This mask (0x04,
// header bit 2) is deliberately a different bit than the one
// SetSafelink writes into an outgoing frame (bits [1:0]). See
// spec.md §9's open question on the firmware's asymmetric bit layout.
func downParityMask(down bool) byte {
	if down {
		return 0x04
	}
	return 0x00
}

// dongleWorker owns one Radio and time-division-multiplexes every
// attached connectionState across it: one transmit-and-ack cycle per
// connection per pass, driving the safelink state machine and mediating
// the send/recv queues against the application goroutines that own
// them. This is the core of the link layer (spec.md §4.3).
type dongleWorker struct {
	id    int
	radio Radio

	mu          sync.Mutex
	connections map[*connectionState]struct{}
	updated     bool
	updatedCond *sync.Cond
	ending      bool

	consecutiveErrors int

	exited chan struct{}
}

func newDongleWorker(id int, radio Radio) *dongleWorker {
	w := &dongleWorker{
		id:          id,
		radio:       radio,
		connections: make(map[*connectionState]struct{}),
		exited:      make(chan struct{}),
	}
	w.updatedCond = sync.NewCond(&w.mu)
	return w
}

func (w *dongleWorker) start() {
	go w.run()
}

// attach adds cs to the worker's connection set. Mutated only by the
// DeviceManager, read as a snapshot by the worker goroutine.
func (w *dongleWorker) attach(cs *connectionState) {
	w.mu.Lock()
	w.connections[cs] = struct{}{}
	w.mu.Unlock()
}

// detach removes cs and blocks until the worker's next pass has
// observed the removal, guaranteeing that once detach returns no
// further worker pass will touch cs (spec.md §4.4/§4.5/§8 invariant 4).
func (w *dongleWorker) detach(cs *connectionState) {
	w.mu.Lock()
	w.updated = false
	delete(w.connections, cs)
	for !w.updated {
		w.updatedCond.Wait()
	}
	w.mu.Unlock()
}

func (w *dongleWorker) connectionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.connections)
}

// requestStop flips the termination flag; the worker exits at the top
// of its next iteration, per spec.md §4.3's Termination paragraph.
func (w *dongleWorker) requestStop() {
	w.mu.Lock()
	w.ending = true
	w.mu.Unlock()
}

// join blocks until the worker goroutine has returned and released
// its Radio.
func (w *dongleWorker) join() {
	<-w.exited
}

func (w *dongleWorker) run() {
	defer close(w.exited)
	defer w.radio.Close()

	for {
		time.Sleep(workerQuantum)

		w.mu.Lock()
		snapshot := make([]*connectionState, 0, len(w.connections))
		for cs := range w.connections {
			snapshot = append(snapshot, cs)
		}
		w.updated = true
		ending := w.ending
		w.mu.Unlock()
		w.updatedCond.Broadcast()

		if ending {
			return
		}

		for _, cs := range snapshot {
			if err := w.servicePass(cs); err != nil {
				globalLogger.Warn("send failed", "dongle", w.id, "uri", cs.uri, "err", err)
				w.consecutiveErrors++
				if w.consecutiveErrors >= maxConsecutiveTransportErrors {
					globalLogger.Error("dongle unresponsive, giving up", "dongle", w.id, "err", err)
					w.markDead(snapshot)
					return
				}
				continue
			}
			w.consecutiveErrors = 0
		}
	}
}

// markDead flags every connection in snapshot as lost, so a subsequent
// Connection.Send/Recv surfaces ErrDeviceLost instead of silently
// enqueuing into a worker that no longer runs.
func (w *dongleWorker) markDead(snapshot []*connectionState) {
	for _, cs := range snapshot {
		cs.dead.Store(true)
	}
}

// reconfigure applies any of address/channel/datarate that differ from
// the radio's last-applied values, and ensures ack mode is enabled.
// Reading back the radio's cached values avoids a redundant USB
// control transfer when nothing changed, per spec.md §4.2/§4.3.
func (w *dongleWorker) reconfigure(cs *connectionState) {
	if w.radio.TargetAddress() != cs.address {
		if err := w.radio.SetAddress(cs.address); err != nil {
			globalLogger.Warn("set address failed", "dongle", w.id, "err", err)
		}
	}
	if w.radio.Channel() != cs.channel {
		if err := w.radio.SetChannel(cs.channel); err != nil {
			globalLogger.Warn("set channel failed", "dongle", w.id, "err", err)
		}
	}
	if w.radio.Datarate() != cs.datarate {
		if err := w.radio.SetDatarate(cs.datarate); err != nil {
			globalLogger.Warn("set datarate failed", "dongle", w.id, "err", err)
		}
	}
	if !w.radio.AckEnabled() {
		if err := w.radio.SetAckEnabled(true); err != nil {
			globalLogger.Warn("enable ack failed", "dongle", w.id, "err", err)
		}
	}
}

// servicePass performs one transmit-and-ack cycle for cs, implementing
// the send-selection rule and safelink transitions of spec.md §4.3. A
// non-nil return is a transport failure on this pass; it is always
// logged by the caller, never returned to the application.
func (w *dongleWorker) servicePass(cs *connectionState) error {
	w.reconfigure(cs)

	ctx, cancel := context.WithTimeout(context.Background(), sendPacketTimeout)
	defer cancel()

	var raw []byte
	sentFromQueue := false

	switch {
	case cs.useSafelink && !cs.safelinkInitialized:
		raw = enableSafelinkFrame

	case cs.useSafelink:
		p, hasHead := cs.send.peek()
		if !hasHead {
			p = pingPacket()
		}
		p.SetSafelink(cs.safelinkUp, cs.safelinkDown)
		raw = p.Raw()
		sentFromQueue = hasHead

	default:
		if p, hasHead := cs.send.peek(); hasHead {
			raw = p.Raw()
			sentFromQueue = true
		} else {
			raw = pingPacket().Raw()
		}
	}

	ack, err := w.radio.SendPacket(ctx, raw)
	cs.stats.sentCount.Add(1)
	if err != nil {
		return err
	}

	switch {
	case cs.useSafelink && !cs.safelinkInitialized:
		if ack.OK() {
			cs.safelinkInitialized = true
		}

	case cs.useSafelink:
		if ack.OK() {
			if data := ack.Data(); len(data) > 0 && (data[0]&0x04) == downParityMask(cs.safelinkDown) {
				cs.safelinkDown = !cs.safelinkDown
			}
			cs.safelinkUp = !cs.safelinkUp
			if sentFromQueue {
				cs.send.pop()
			}
		}

	default:
		if ack.OK() && sentFromQueue {
			cs.send.pop()
		}
	}

	if ack.OK() {
		cs.stats.ackCount.Add(1)
		w.deliverAck(cs, ack)
	}
	return nil
}

// deliverAck interprets an ack payload: an RSSI frame updates
// rssiLatest only, anything else is assigned the next receive
// sequence number and pushed onto the recv queue.
func (w *dongleWorker) deliverAck(cs *connectionState, ack Ack) {
	data := ack.Data()
	if len(data) == 0 {
		return
	}
	p, err := parsePacket(data)
	if err != nil {
		return
	}
	if p.isRSSIFrame() {
		if payload := p.Payload(); len(payload) > 0 {
			cs.stats.rssiLatest.Store(uint32(payload[0]))
		}
		return
	}
	p.seq = cs.stats.receiveCount.Load()
	cs.recv.push(p)
	cs.stats.receiveCount.Add(1)
}
