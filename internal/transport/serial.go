package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// PortOpener opens a serial port. It is serial.Open in production.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// Serial is the serial-port backend: 8 data bits, no parity, one stop bit, no handshake.
//
// go.bug.st/serial has no write timeout, so Params.WriteTimeout is not applied; writes
// block until the driver accepts the data.
type Serial struct {
	logger *logrus.Logger
	open   PortOpener

	connMutex sync.RWMutex
	port      serial.Port
	name      string
	rx        *rxPump

	writeMutex sync.Mutex
}

// NewSerial creates a disconnected serial transport.
func NewSerial(logger *logrus.Logger) *Serial {
	return NewSerialWithOpener(serial.Open, logger)
}

// NewSerialWithOpener creates a serial transport that opens ports with opener.
func NewSerialWithOpener(opener PortOpener, logger *logrus.Logger) *Serial {
	if logger == nil {
		logger = logrus.New()
	}
	return &Serial{logger: logger, open: opener}
}

func (s *Serial) Kind() Kind {
	return KindSerial
}

func (s *Serial) Connect(ctx context.Context, name string, params Params) error {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.port != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, s.name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params = params.Normalize()
	if err := params.Validate(KindSerial); err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: params.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	s.logger.WithFields(logrus.Fields{
		"port": name,
		"baud": params.BaudRate,
	}).Debug("Opening serial port")

	port, err := s.open(name, mode)
	if err != nil {
		return &ConnectionError{Op: "open", ID: name, Err: NormalizeError(err)}
	}

	if err := port.SetReadTimeout(params.ReadTimeout); err != nil {
		_ = port.Close()
		return &ConnectionError{Op: "configure", ID: name, Err: err}
	}

	s.port = port
	s.name = name
	s.rx = newRxPump(params.BufferSize, s.logger)
	s.rx.start("serial-rx:"+name, port.Read, params.ReadTimeout)

	return nil
}

func (s *Serial) Disconnect() error {
	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	if s.port == nil {
		return ErrNotConnected
	}

	s.rx.cancelOnly()
	err := s.port.Close()
	s.rx.stop()

	s.logger.WithField("port", s.name).Debug("Serial port closed")
	s.port = nil
	s.name = ""
	s.rx = nil

	if err != nil {
		return fmt.Errorf("failed to close port: %w", err)
	}
	return nil
}

func (s *Serial) Send(data []byte) error {
	s.connMutex.RLock()
	port := s.port
	s.connMutex.RUnlock()

	if port == nil {
		return ErrNotConnected
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	for len(data) > 0 {
		n, err := port.Write(data)
		if err != nil {
			return fmt.Errorf("write failed: %w", NormalizeError(err))
		}
		if n == 0 {
			return fmt.Errorf("write failed: %w: port accepted no data", ErrTimeout)
		}
		data = data[n:]
	}
	return nil
}

func (s *Serial) Receive() ([]byte, error) {
	s.connMutex.RLock()
	rx := s.rx
	s.connMutex.RUnlock()

	if rx == nil {
		return nil, ErrNotConnected
	}
	return rx.drain()
}

func (s *Serial) IsConnected() bool {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()
	return s.port != nil && !s.rx.exited()
}
