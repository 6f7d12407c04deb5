//go:build linux

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestReverseMAC(t *testing.T) {
	got := reverseMAC([6]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, [6]uint8{6, 5, 4, 3, 2, 1}, got)
}

func TestSocketError(t *testing.T) {
	assert.ErrorIs(t, socketError(unix.EAGAIN), ErrTimeout)
	assert.ErrorIs(t, socketError(unix.ECONNRESET), ErrNotConnected)
	assert.ErrorIs(t, socketError(unix.EACCES), unix.EACCES)
}
