// Package transport is a byte-stream connection to a device: a serial port, a Bluetooth
// RFCOMM channel, or a BLE UART service.
//
// All backends implement Transport. Receive never blocks: a background reader started by
// Connect fills a byte ring that Receive drains.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Transport is one byte-stream connection. Implementations are safe for one concurrent
// reader plus one concurrent writer.
type Transport interface {
	Kind() Kind
	Connect(ctx context.Context, identifier string, params Params) error
	Disconnect() error
	Send(data []byte) error
	// Receive returns the bytes that arrived since the last call, or an empty slice.
	Receive() ([]byte, error)
	IsConnected() bool
}

// Kind selects a transport backend.
type Kind int

const (
	KindSerial Kind = iota
	KindRFCOMM
	KindBLE
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindRFCOMM:
		return "rfcomm"
	case KindBLE:
		return "ble"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a backend name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "":
		return KindSerial, nil
	case "rfcomm", "bluetooth", "bt":
		return KindRFCOMM, nil
	case "ble":
		return KindBLE, nil
	default:
		return 0, fmt.Errorf("unknown transport %q (must be serial, rfcomm or ble)", s)
	}
}

// Params are the connection parameters. Zero-valued fields are filled from the
// default tags by Normalize.
type Params struct {
	BaudRate       int           `yaml:"baud_rate"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"500ms"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"500ms"`
	Channel        uint8         `yaml:"channel" default:"1"`
	BufferSize     int           `yaml:"buffer_size" default:"65536"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
}

// DefaultParams returns default parameters at the given baud rate.
func DefaultParams(baudRate int) Params {
	p := Params{BaudRate: baudRate}
	defaults.SetDefaults(&p)
	return p
}

// Normalize fills unset fields with their defaults.
func (p Params) Normalize() Params {
	defaults.SetDefaults(&p)
	return p
}

// Validate checks the parameters required by kind.
func (p Params) Validate(kind Kind) error {
	if kind == KindSerial && p.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate is required for serial ports", ErrInvalidParams)
	}
	if p.BaudRate < 0 {
		return fmt.Errorf("%w: negative baud rate %d", ErrInvalidParams, p.BaudRate)
	}
	if p.ReadTimeout < 0 || p.WriteTimeout < 0 || p.ConnectTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidParams)
	}
	if p.BufferSize < 0 {
		return fmt.Errorf("%w: negative buffer size %d", ErrInvalidParams, p.BufferSize)
	}
	if kind == KindRFCOMM && p.Channel > 30 {
		return fmt.Errorf("%w: rfcomm channel %d out of range 1-30", ErrInvalidParams, p.Channel)
	}
	return nil
}

// New creates a disconnected transport of the given kind.
func New(kind Kind, logger *logrus.Logger) (Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch kind {
	case KindSerial:
		return NewSerial(logger), nil
	case KindRFCOMM:
		return NewRFCOMM(logger), nil
	case KindBLE:
		return NewBLE(logger), nil
	default:
		return nil, fmt.Errorf("%w: transport %s", ErrUnsupported, kind)
	}
}
