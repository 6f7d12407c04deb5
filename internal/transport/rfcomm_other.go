//go:build !linux

package transport

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

// RFCOMM is unavailable on this platform: it never connects and every operation fails
// with ErrUnsupported, so sessions can still be built unconditionally.
type RFCOMM struct {
	logger *logrus.Logger
}

// NewRFCOMM creates the unsupported RFCOMM stub.
func NewRFCOMM(logger *logrus.Logger) *RFCOMM {
	if logger == nil {
		logger = logrus.New()
	}
	return &RFCOMM{logger: logger}
}

func (r *RFCOMM) Kind() Kind {
	return KindRFCOMM
}

func (r *RFCOMM) Connect(_ context.Context, address string, _ Params) error {
	return &ConnectionError{Op: "connect", ID: address, Err: fmt.Errorf("%w: rfcomm on %s", ErrUnsupported, runtime.GOOS)}
}

func (r *RFCOMM) Disconnect() error {
	return fmt.Errorf("%w: rfcomm on %s", ErrUnsupported, runtime.GOOS)
}

func (r *RFCOMM) Send([]byte) error {
	return fmt.Errorf("%w: rfcomm on %s", ErrUnsupported, runtime.GOOS)
}

func (r *RFCOMM) Receive() ([]byte, error) {
	return nil, fmt.Errorf("%w: rfcomm on %s", ErrUnsupported, runtime.GOOS)
}

func (r *RFCOMM) IsConnected() bool {
	return false
}
