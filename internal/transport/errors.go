package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.bug.st/serial"
)

// ConnectionState is the specific kind of connection state failure.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// StateError is returned when an operation does not fit the transport's connection state.
type StateError struct {
	State ConnectionState
	Msg   string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare StateError values by State.
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &StateError{State: NotConnected}
	ErrAlreadyConnected = &StateError{State: AlreadyConnected}
)

// Operation errors
var (
	ErrTimeout        = errors.New("timeout")
	ErrUnsupported    = errors.New("unsupported")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidParams  = errors.New("invalid parameters")
)

// ConnectionError wraps a failure to open a transport.
type ConnectionError struct {
	Op  string
	ID  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NormalizeError maps backend-specific errors onto the package sentinels while keeping
// the original error in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortClosed:
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		case serial.FunctionNotImplemented:
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNotConnected):
		return err
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case containsIgnoreCase(err.Error(), "timed out"), containsIgnoreCase(err.Error(), "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case containsIgnoreCase(err.Error(), "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
