package link

import (
	"errors"
	"sync"
)

// fakeEnumerator stands in for usbEnumerator in tests: it hands out
// fakeRadio instances instead of opening real USB devices. Direct-USB
// targets are out of scope for these fakes (there is no dummy
// *directUSBTarget that doesn't touch a real gousb handle), so
// OpenDirectUSBTarget always errors; tests exercising the manager/
// connection radio path never call it.
type fakeEnumerator struct {
	mu      sync.Mutex
	dongles []*fakeRadio
}

func newFakeEnumerator(numDongles int) *fakeEnumerator {
	e := &fakeEnumerator{}
	for i := 0; i < numDongles; i++ {
		e.dongles = append(e.dongles, &fakeRadio{})
	}
	return e
}

func (e *fakeEnumerator) NumDirectUSBTargets() int { return 0 }

func (e *fakeEnumerator) OpenDirectUSBTarget(index int) (*directUSBTarget, error) {
	return nil, errors.New("fakeEnumerator: direct USB targets not supported")
}

func (e *fakeEnumerator) NumDongles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dongles)
}

func (e *fakeEnumerator) OpenDongle(index int) (Radio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.dongles) {
		return nil, ErrDeviceNotPresent
	}
	d := e.dongles[index]
	d.queueAckAlways(nil)
	return d, nil
}
