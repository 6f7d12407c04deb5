package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// SerialPortProfileUUID is the Bluetooth Serial Port Profile service class.
const SerialPortProfileUUID = "00001101-0000-1000-8000-00805F9B34FB"

// ParseMAC parses "AA:BB:CC:DD:EE:FF" (or '-' separated) into its six bytes, most
// significant first.
func ParseMAC(address string) ([6]byte, error) {
	var mac [6]byte

	s := strings.ReplaceAll(strings.TrimSpace(address), "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return mac, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return mac, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		mac[i] = byte(v)
	}
	return mac, nil
}
