//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// RFCOMM is the Bluetooth classic serial backend over a kernel RFCOMM socket.
// The channel comes from Params.Channel; SDP lookup of the SPP channel is not performed.
type RFCOMM struct {
	logger *logrus.Logger

	connMutex sync.RWMutex
	fd        int
	address   string
	rx        *rxPump

	writeMutex sync.Mutex
}

// NewRFCOMM creates a disconnected RFCOMM transport.
func NewRFCOMM(logger *logrus.Logger) *RFCOMM {
	if logger == nil {
		logger = logrus.New()
	}
	return &RFCOMM{logger: logger, fd: -1}
}

func (r *RFCOMM) Kind() Kind {
	return KindRFCOMM
}

func (r *RFCOMM) Connect(ctx context.Context, address string, params Params) error {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()

	if r.fd >= 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, r.address)
	}

	params = params.Normalize()
	if err := params.Validate(KindRFCOMM); err != nil {
		return err
	}

	mac, err := ParseMAC(address)
	if err != nil {
		return &ConnectionError{Op: "connect", ID: address, Err: err}
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return &ConnectionError{Op: "socket", ID: address, Err: err}
	}

	// connect() honours the send timeout on blocking sockets
	if err := setSocketTimeout(fd, unix.SO_SNDTIMEO, params.ConnectTimeout); err != nil {
		_ = unix.Close(fd)
		return &ConnectionError{Op: "configure", ID: address, Err: err}
	}

	r.logger.WithFields(logrus.Fields{
		"address": address,
		"channel": params.Channel,
		"uuid":    SerialPortProfileUUID,
	}).Debug("Connecting RFCOMM socket")

	stop := context.AfterFunc(ctx, func() { _ = unix.Shutdown(fd, unix.SHUT_RDWR) })
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: reverseMAC(mac), Channel: params.Channel})
	stop()
	if err != nil {
		_ = unix.Close(fd)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionError{Op: "connect", ID: address, Err: NormalizeError(err)}
	}

	if err := setSocketTimeout(fd, unix.SO_RCVTIMEO, params.ReadTimeout); err != nil {
		_ = unix.Close(fd)
		return &ConnectionError{Op: "configure", ID: address, Err: err}
	}
	if err := setSocketTimeout(fd, unix.SO_SNDTIMEO, params.WriteTimeout); err != nil {
		_ = unix.Close(fd)
		return &ConnectionError{Op: "configure", ID: address, Err: err}
	}

	r.fd = fd
	r.address = address
	r.rx = newRxPump(params.BufferSize, r.logger)
	r.rx.start("rfcomm-rx:"+address, func(p []byte) (int, error) { return socketRead(fd, p) }, params.ReadTimeout)

	return nil
}

func (r *RFCOMM) Disconnect() error {
	r.connMutex.Lock()
	defer r.connMutex.Unlock()

	if r.fd < 0 {
		return ErrNotConnected
	}

	r.rx.cancelOnly()
	_ = unix.Shutdown(r.fd, unix.SHUT_RDWR)
	r.rx.stop()
	err := unix.Close(r.fd)

	r.logger.WithField("address", r.address).Debug("RFCOMM socket closed")
	r.fd = -1
	r.address = ""
	r.rx = nil

	if err != nil {
		return fmt.Errorf("failed to close socket: %w", err)
	}
	return nil
}

func (r *RFCOMM) Send(data []byte) error {
	r.connMutex.RLock()
	fd := r.fd
	r.connMutex.RUnlock()

	if fd < 0 {
		return ErrNotConnected
	}

	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("write failed: %w", socketError(err))
		}
		data = data[n:]
	}
	return nil
}

func (r *RFCOMM) Receive() ([]byte, error) {
	r.connMutex.RLock()
	rx := r.rx
	r.connMutex.RUnlock()

	if rx == nil {
		return nil, ErrNotConnected
	}
	return rx.drain()
}

func (r *RFCOMM) IsConnected() bool {
	r.connMutex.RLock()
	defer r.connMutex.RUnlock()
	return r.fd >= 0 && !r.rx.exited()
}

func socketRead(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	switch {
	case err != nil:
		return 0, socketError(err)
	case n == 0:
		return 0, fmt.Errorf("%w: connection closed by peer", ErrNotConnected)
	default:
		return n, nil
	}
}

func socketError(err error) error {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR), errors.Is(err, unix.ETIMEDOUT):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, unix.ENOTCONN), errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EBADF), errors.Is(err, unix.EPIPE):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

func setSocketTimeout(fd, opt int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

// reverseMAC converts to the kernel's little-endian bdaddr order.
func reverseMAC(mac [6]byte) [6]uint8 {
	var out [6]uint8
	for i := range mac {
		out[i] = mac[5-i]
	}
	return out
}
