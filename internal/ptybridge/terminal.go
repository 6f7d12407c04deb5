//go:build !windows

// Package ptybridge exposes an open session as a pseudo-terminal, so tools that only
// speak to serial devices (screen, minicom, vendor utilities) can reach a device over
// any transport.
//
// Bytes the device sends are queued to the terminal; bytes a tool writes to the
// terminal are forwarded to the device.
package ptybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/qlink/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// TerminalStats are runtime counters of a Terminal.
type TerminalStats struct {
	QueuedOut    int
	QueueCap     int
	DroppedOut   uint64
	BytesOut     uint64
	BytesIn      uint64
	InputErrors  uint64
	LoopsRunning int32
}

// Terminal is a raw-mode PTY pair. Output written with Write is queued in a byte ring
// and copied to the master by a background loop; input typed on the slave is handed to
// the input callback.
type Terminal struct {
	logger      *logrus.Logger
	master      *os.File
	slave       *os.File
	name        string
	pollTimeout time.Duration

	out     *ringbuffer.RingBuffer
	onInput func([]byte)

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	loops  atomic.Int32

	droppedOut  atomic.Uint64
	bytesOut    atomic.Uint64
	bytesIn     atomic.Uint64
	inputErrors atomic.Uint64
}

// openTerminal creates the PTY pair and starts its loops. onInput is called from the
// read loop and must not block for long.
func openTerminal(bufferSize int, pollTimeout time.Duration, onInput func([]byte), logger *logrus.Logger) (*Terminal, error) {
	master, slave, err := openRawPTY()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Terminal{
		logger:      logger,
		master:      master,
		slave:       slave,
		name:        slave.Name(),
		pollTimeout: pollTimeout,
		out:         ringbuffer.New(bufferSize),
		onInput:     onInput,
		cancel:      cancel,
	}

	t.wg.Add(2)
	groutine.Go(ctx, "pty-input-loop", t.inputLoop)
	groutine.Go(ctx, "pty-output-loop", t.outputLoop)

	logger.WithField("tty", t.name).Info("PTY opened")
	return t, nil
}

// openRawPTY opens a pair, puts the slave into raw mode and the master into
// non-blocking mode.
func openRawPTY() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	fail := func(step string, err error) (*os.File, *os.File, error) {
		cleanup := errors.Join(master.Close(), slave.Close())
		if cleanup != nil {
			return nil, nil, fmt.Errorf("failed to %s for %s: %w (cleanup: %v)", step, slave.Name(), err, cleanup)
		}
		return nil, nil, fmt.Errorf("failed to %s for %s: %w", step, slave.Name(), err)
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("set raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("set non-blocking mode", err)
	}
	return master, slave, nil
}

// Name returns the slave device path, e.g. /dev/pts/5.
func (t *Terminal) Name() string {
	return t.name
}

// Write queues data for the slave. It never blocks: when the ring is full the excess
// is dropped and the short count returned.
func (t *Terminal) Write(data []byte) (int, error) {
	if t.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := t.out.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return n, err
	}
	if n < len(data) {
		dropped := len(data) - n
		t.droppedOut.Add(uint64(dropped))
		t.logger.Warnf("PTY output buffer full: dropped %d of %d bytes", dropped, len(data))
	}
	return n, nil
}

func (t *Terminal) inputLoop(ctx context.Context) {
	defer t.wg.Done()
	t.loops.Add(1)
	defer t.loops.Add(-1)

	fds := []unix.PollFd{{Fd: int32(t.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 4096)
	timeout := int(t.pollTimeout / time.Millisecond)

	for ctx.Err() == nil {
		ready, err := unix.Poll(fds, timeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			t.logger.Warnf("PTY input poll error: %v", err)
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := t.master.Read(buf)
		if n > 0 {
			t.bytesIn.Add(uint64(n))
			if t.onInput != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				t.onInput(chunk)
			}
		}

		switch {
		case err == nil,
			errors.Is(err, syscall.EAGAIN),
			errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EIO):
			// no process has the slave open; wait for one
			if !sleep(ctx, t.pollTimeout) {
				return
			}
		case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF), errors.Is(err, io.EOF):
			t.logger.Debugf("PTY input loop exiting: %v", err)
			return
		default:
			t.inputErrors.Add(1)
			t.logger.Warnf("PTY input loop exiting on error: %v", err)
			return
		}
	}
}

func (t *Terminal) outputLoop(ctx context.Context) {
	defer t.wg.Done()
	t.loops.Add(1)
	defer t.loops.Add(-1)

	fds := []unix.PollFd{{Fd: int32(t.master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)
	timeout := int(t.pollTimeout / time.Millisecond)

	for ctx.Err() == nil {
		n, err := t.out.TryRead(buf)
		if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
			if !sleep(ctx, t.pollTimeout/5+time.Millisecond) {
				return
			}
			continue
		}

		for off := 0; off < n && ctx.Err() == nil; {
			written, err := t.master.Write(buf[off:n])
			off += written
			t.bytesOut.Add(uint64(written))

			switch {
			case err == nil, errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if _, perr := unix.Poll(fds, timeout); perr != nil && !errors.Is(perr, syscall.EINTR) {
					t.logger.Warnf("PTY output poll error: %v", perr)
				}
			case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF):
				t.logger.Debug("PTY output loop exiting: master closed")
				return
			default:
				t.logger.Warnf("PTY output loop exiting on error: %v", err)
				return
			}
		}
	}
}

// Stats returns a snapshot of the counters.
func (t *Terminal) Stats() TerminalStats {
	return TerminalStats{
		QueuedOut:    t.out.Length(),
		QueueCap:     t.out.Capacity(),
		DroppedOut:   t.droppedOut.Load(),
		BytesOut:     t.bytesOut.Load(),
		BytesIn:      t.bytesIn.Load(),
		InputErrors:  t.inputErrors.Load(),
		LoopsRunning: t.loops.Load(),
	}
}

// Close stops both loops and closes the pair. It waits at most a few poll intervals.
func (t *Terminal) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.cancel()
	err := errors.Join(t.master.Close(), t.slave.Close())

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	wait := 3*t.pollTimeout + time.Second
	select {
	case <-done:
	case <-time.After(wait):
		t.logger.Errorf("PTY %s loops did not exit within %v", t.name, wait)
	}

	if err != nil {
		return fmt.Errorf("failed to close PTY %s: %w", t.name, err)
	}
	t.logger.WithField("tty", t.name).Info("PTY closed")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
