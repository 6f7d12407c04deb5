//go:build !darwin && !linux

package transport

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: BLE on %s", ErrUnsupported, runtime.GOOS)
}
