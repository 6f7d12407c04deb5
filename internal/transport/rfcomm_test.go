package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("98:D3:31:F5:2A:11")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x98, 0xD3, 0x31, 0xF5, 0x2A, 0x11}, mac)

	mac, err = ParseMAC("aa-bb-cc-dd-ee-ff")
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), mac[5])

	for _, bad := range []string{"", "COM3", "AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:GG", "AAA:BB:CC:DD:EE:F"} {
		_, err := ParseMAC(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestRFCOMM_NotConnectedOperations(t *testing.T) {
	r := NewRFCOMM(quietLogger())

	assert.Equal(t, KindRFCOMM, r.Kind())
	assert.False(t, r.IsConnected())
	assert.Error(t, r.Send([]byte("x")))
	_, err := r.Receive()
	assert.Error(t, err)
	assert.Error(t, r.Disconnect())
}

func TestRFCOMM_ConnectRejectsBadAddress(t *testing.T) {
	r := NewRFCOMM(quietLogger())

	err := r.Connect(context.Background(), "not-a-mac", DefaultParams(0))
	assert.Error(t, err)
	assert.False(t, r.IsConnected())
}
