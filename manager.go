package link

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Enumerator discovers direct-USB targets and radio dongles present on
// the host and opens them on demand. usbEnumerator is the real,
// gousb-backed implementation; tests substitute a fake one, the same
// seam the teacher draws between its Pin/SPI interfaces and the
// concrete periph.io adapter.
type Enumerator interface {
	NumDirectUSBTargets() int
	OpenDirectUSBTarget(index int) (*directUSBTarget, error)
	NumDongles() int
	OpenDongle(index int) (Radio, error)
}

// DeviceManager is the process-wide registry of physical dongles and
// direct-USB targets. It routes a new radio connection to the dongle
// named by its URI (or auto-picks one), and starts/stops DongleWorkers
// on demand as connections attach and detach, per spec.md §4.5.
type DeviceManager struct {
	enum Enumerator

	mu      sync.Mutex
	workers map[int]*dongleWorker

	roundRobin atomic.Uint64
}

// NewManager builds a DeviceManager over the given Enumerator. Most
// callers should use DefaultManager instead; NewManager exists so
// tests can supply an isolated fake registry.
func NewManager(enum Enumerator) *DeviceManager {
	return &DeviceManager{enum: enum, workers: make(map[int]*dongleWorker)}
}

var (
	defaultManager     *DeviceManager
	defaultManagerOnce sync.Once
)

// DefaultManager returns the process-wide DeviceManager singleton,
// backed by the real USB enumerator, constructing it on first use.
func DefaultManager() *DeviceManager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(&usbEnumerator{})
	})
	return defaultManager
}

// DirectUSBTargets returns the usb://i URIs of every direct-USB target
// currently enumerated, per spec.md §4.6.
func (m *DeviceManager) DirectUSBTargets() []string {
	n := m.enum.NumDirectUSBTargets()
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("usb://%d", i)
	}
	return out
}

// pickDongle resolves a dongle index, round-robining across attached
// dongles when the caller asked for "*". This is the documented
// auto-pick policy from spec.md §9.
func (m *DeviceManager) pickDongle(requested int) (int, error) {
	n := m.enum.NumDongles()
	if n == 0 {
		return 0, fmt.Errorf("%w: no radio dongles present", ErrDeviceNotPresent)
	}
	if requested >= 0 {
		if requested >= n {
			return 0, fmt.Errorf("%w: dongle index %d", ErrDeviceNotPresent, requested)
		}
		return requested, nil
	}
	idx := int(m.roundRobin.Add(1)-1) % n
	return idx, nil
}

// attachRadio selects the dongle for cs (resolving "*" via round
// robin), lazily opens and starts its DongleWorker if needed, and adds
// cs to that worker's connection set.
func (m *DeviceManager) attachRadio(cs *connectionState, requestedDongle int) (*dongleWorker, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.pickDongle(requestedDongle)
	if err != nil {
		return nil, 0, err
	}

	w, ok := m.workers[idx]
	if !ok {
		radio, err := m.enum.OpenDongle(idx)
		if err != nil {
			return nil, 0, err
		}
		w = newDongleWorker(idx, radio)
		m.workers[idx] = w
		w.start()
	}

	w.attach(cs)
	return w, idx, nil
}

// detachRadio removes cs from its worker's connection set. If that was
// the worker's last connection, the worker is stopped, joined, and its
// Radio released, per spec.md §4.3/§4.5's Termination paragraphs. The
// manager mutex is held for the whole handshake: both the cond-var
// wait inside detach and the goroutine join are bounded by one or two
// worker passes (a quantum plus one transmit-and-ack cycle, capped by
// sendPacketTimeout, per attached connection), so other attach/detach
// calls are serialized behind it rather than using a fine-grained
// per-dongle lock.
func (m *DeviceManager) detachRadio(cs *connectionState, dongleIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[dongleIndex]
	if !ok {
		return
	}
	w.detach(cs)
	if w.connectionCount() == 0 {
		w.requestStop()
		w.join()
		delete(m.workers, dongleIndex)
	}
}
