package link

import "github.com/google/gousb"

// usbEnumerator is the real Enumerator, backed by github.com/google/gousb.
// Counting devices means briefly opening and closing each match (gousb
// has no "list without opening" call), which is cheap next to the
// control/bulk transfers the resulting Radio will issue.
type usbEnumerator struct{}

func countMatches(vendor, product gousb.ID) int {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendor && desc.Product == product
	})
	if err != nil {
		return 0
	}
	for _, d := range devices {
		d.Close()
	}
	return len(devices)
}

func (usbEnumerator) NumDirectUSBTargets() int {
	return countMatches(targetVendorID, targetProductID)
}

func (usbEnumerator) OpenDirectUSBTarget(index int) (*directUSBTarget, error) {
	return openDirectUSBTarget(index)
}

func (usbEnumerator) NumDongles() int {
	return countMatches(radioVendorID, radioProductID)
}

func (usbEnumerator) OpenDongle(index int) (Radio, error) {
	return openUSBRadio(index)
}
