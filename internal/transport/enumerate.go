package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Sentinel entries returned by enumeration so a picker always has something to show.
// Open rejects every one of them.
const (
	NoPortsAvailable     = "No ports available"
	NoBluetoothDevices   = "No paired Bluetooth devices"
	BluetoothUnavailable = "Bluetooth not available"
	SerialUnsupported    = "Serial ports not supported on this platform"
	BluetoothDisabled    = "Bluetooth is disabled"
	NoBluetoothFound     = "No Bluetooth devices found"

	errorSentinelPrefix = "Error: "
)

// ErrorSentinel formats an enumeration failure as a selectable entry.
func ErrorSentinel(err error) string {
	return errorSentinelPrefix + err.Error()
}

// IsSentinel reports whether id is a placeholder or error entry rather than a device.
func IsSentinel(id string) bool {
	switch strings.TrimSpace(id) {
	case NoPortsAvailable, NoBluetoothDevices, BluetoothUnavailable, SerialUnsupported,
		BluetoothDisabled, NoBluetoothFound:
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(id), strings.TrimSpace(errorSentinelPrefix))
}

// Descriptor formats a Bluetooth device as "<name> (<address>)".
func Descriptor(name, address string) string {
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf("%s (%s)", name, address)
}

// AddressFromDescriptor extracts the address from a "<name> (<address>)" descriptor.
// Identifiers without a parenthesised suffix are returned trimmed and unchanged.
func AddressFromDescriptor(id string) string {
	id = strings.TrimSpace(id)
	open := strings.LastIndex(id, "(")
	if open < 0 || !strings.HasSuffix(id, ")") {
		return id
	}
	return strings.TrimSpace(id[open+1 : len(id)-1])
}

// PortLister returns serial port names.
type PortLister func() ([]string, error)

// ListSerialPorts enumerates the system's serial ports.
func ListSerialPorts() []string {
	return ListSerialPortsWith(serial.GetPortsList)
}

// ListSerialPortsWith enumerates ports with lister, substituting sentinel entries for an
// empty result or a failure.
func ListSerialPortsWith(lister PortLister) []string {
	ports, err := lister()
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.FunctionNotImplemented {
			return []string{SerialUnsupported}
		}
		return []string{ErrorSentinel(err)}
	}
	if len(ports) == 0 {
		return []string{NoPortsAvailable}
	}

	sort.Strings(ports)
	return ports
}

// ScanFunc reports every advertisement seen until ctx is done.
type ScanFunc func(ctx context.Context, handler func(name, address string)) error

// bleScan scans with the process-wide BLE device.
func bleScan(ctx context.Context, handler func(name, address string)) error {
	dev, err := defaultDevice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return dev.Scan(ctx, false, func(adv ble.Advertisement) {
		handler(adv.LocalName(), adv.Addr().String())
	})
}

// Discoverer collects nearby Bluetooth devices into descriptors.
type Discoverer struct {
	scan   ScanFunc
	logger *logrus.Logger
}

// NewDiscoverer creates a discoverer backed by the platform BLE device.
func NewDiscoverer(logger *logrus.Logger) *Discoverer {
	return NewDiscovererWith(bleScan, logger)
}

// NewDiscovererWith creates a discoverer backed by scan.
func NewDiscovererWith(scan ScanFunc, logger *logrus.Logger) *Discoverer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Discoverer{scan: scan, logger: logger}
}

// Discover scans for duration and returns sorted "<name> (<address>)" descriptors, or a
// single sentinel entry when nothing was found or scanning failed.
func (d *Discoverer) Discover(ctx context.Context, duration time.Duration) []string {
	devices := hashmap.New[string, string]()

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	d.logger.WithField("duration", duration).Info("Starting Bluetooth discovery...")

	err := d.scan(scanCtx, func(name, address string) {
		current, existing := devices.GetOrInsert(address, name)
		if !existing {
			d.logger.WithFields(logrus.Fields{
				"device":  name,
				"address": address,
			}).Info("Discovered new device")
			return
		}
		// keep the first non-empty name
		if current == "" && name != "" {
			devices.Set(address, name)
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, ErrUnsupported) {
			d.logger.WithError(err).Warn("Bluetooth is not available")
			return []string{BluetoothUnavailable}
		}
		return []string{ErrorSentinel(err)}
	}

	d.logger.WithField("device_count", devices.Len()).Info("Bluetooth discovery completed")

	if devices.Len() == 0 {
		return []string{NoBluetoothDevices}
	}

	out := make([]string, 0, devices.Len())
	devices.Range(func(address, name string) bool {
		out = append(out, Descriptor(name, address))
		return true
	})
	sort.Strings(out)
	return out
}

// DiscoverBluetooth scans with the platform BLE device.
func DiscoverBluetooth(ctx context.Context, duration time.Duration, logger *logrus.Logger) []string {
	return NewDiscoverer(logger).Discover(ctx, duration)
}
