package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/qlink/internal/decode"
	"github.com/srg/qlink/internal/session"
	"github.com/srg/qlink/internal/transport"
)

// Command-level errors
var (
	// ErrInvalidBaudRate is returned when --baud is not a positive integer.
	ErrInvalidBaudRate = errors.New("invalid baud rate")

	// ErrNothingToPlot means the input decoded to zero samples.
	ErrNothingToPlot = errors.New("no samples decoded")
)

// FormatUserError turns an error chain into a one-line message with a hint for the
// failures an operator can fix.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var luaErr *decode.LuaError
	switch {
	case errors.Is(err, session.ErrInvalidIdentifier):
		return fmt.Sprintf("%v (run 'qlink ports' to list devices)", err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("%v (check that your user may access the port, e.g. the dialout group)", err)
	case errors.Is(err, transport.ErrUnsupported):
		return fmt.Sprintf("%v (this transport is not available on this platform)", err)
	case errors.Is(err, transport.ErrTimeout):
		return fmt.Sprintf("%v (is the device powered and in range?)", err)
	case errors.As(err, &luaErr):
		return fmt.Sprintf("decode script: %v", luaErr)
	default:
		return err.Error()
	}
}
