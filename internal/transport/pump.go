package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/qlink/internal/groutine"
)

const readChunkSize = 4096

// rxPump buffers inbound bytes between a blocking source and the non-blocking Receive.
// Sources either push (BLE notifications) or are read by a pump goroutine (serial, RFCOMM).
type rxPump struct {
	ring    *ringbuffer.RingBuffer
	dropped atomic.Int64
	logger  *logrus.Logger

	mu  sync.Mutex
	err error

	cancel context.CancelFunc
	done   <-chan struct{}
}

func newRxPump(size int, logger *logrus.Logger) *rxPump {
	if size <= 0 {
		size = 64 * 1024
	}
	return &rxPump{ring: ringbuffer.New(size), logger: logger}
}

// start runs read in a named goroutine until stop is called or read reports that the
// connection is gone. idle is the pause after a non-timeout read error.
func (p *rxPump) start(name string, read func([]byte) (int, error), idle time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = groutine.Go(ctx, name, func(ctx context.Context) {
		buf := make([]byte, readChunkSize)
		for {
			if ctx.Err() != nil {
				return
			}

			n, err := read(buf)
			if n > 0 {
				p.push(buf[:n])
			}
			if err == nil {
				continue
			}

			if ctx.Err() != nil {
				return
			}
			err = NormalizeError(err)
			if errors.Is(err, ErrTimeout) {
				continue
			}

			p.setErr(err)
			if errors.Is(err, ErrNotConnected) {
				p.logger.WithError(err).Debug("Reader stopped: connection closed")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
		}
	})
}

// stop cancels the pump goroutine and waits for it. The caller must unblock any
// in-flight read (typically by closing the port) for stop to return promptly.
func (p *rxPump) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// cancelOnly signals the pump without waiting.
func (p *rxPump) cancelOnly() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *rxPump) push(data []byte) {
	n, err := p.ring.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		p.logger.WithError(err).Warn("Failed to buffer received data")
	}
	if n < len(data) {
		lost := len(data) - n
		p.dropped.Add(int64(lost))
		p.logger.WithField("bytes", lost).Warn("Receive buffer full, dropping data")
	}
}

func (p *rxPump) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// drain returns all buffered bytes. With nothing buffered it returns the last read
// error, if any. Transient errors are cleared once reported; ErrNotConnected stays
// until the transport is disconnected.
func (p *rxPump) drain() ([]byte, error) {
	if n := p.ring.Length(); n > 0 {
		buf := make([]byte, n)
		read, err := p.ring.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return nil, err
		}
		return buf[:read], nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	if !errors.Is(err, ErrNotConnected) {
		p.err = nil
	}
	return nil, err
}

// exited reports whether the pump goroutine has returned on its own.
func (p *rxPump) exited() bool {
	if p == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Dropped returns the number of bytes discarded because the buffer was full.
func (p *rxPump) Dropped() int64 {
	return p.dropped.Load()
}
