package session

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/srg/qlink/internal/logsink"
	"github.com/srg/qlink/internal/transport"
)

func (m *Manager) poll(ctx context.Context) {
	defer m.pollers.Add(-1)

	var pending []byte
	defer func() {
		if len(pending) > 0 {
			m.sink.Append(logsink.KindReceived, string(pending))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		data, err := m.transport.Receive()
		switch {
		case err != nil && errors.Is(err, transport.ErrTimeout):
			if !sleep(ctx, m.opts.PollInterval) {
				return
			}

		case err != nil:
			m.sink.Appendf(logsink.KindError, "Read error: %v", err)
			m.logger.WithError(err).Warn("Receive failed, backing off")
			if !sleep(ctx, m.opts.ErrorBackoff) {
				return
			}

		case len(data) == 0:
			if !sleep(ctx, m.opts.PollInterval) {
				return
			}

		default:
			m.callTap(data)
			if m.opts.Framing == FramingLines {
				pending = m.emitLines(append(pending, data...))
			} else {
				m.sink.Append(logsink.KindReceived, string(data))
			}
		}
	}
}

// emitLines appends one event per complete line and returns the unterminated remainder.
func (m *Manager) emitLines(buf []byte) []byte {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		m.sink.Append(logsink.KindReceived, string(bytes.TrimRight(buf[:i], "\r")))
		buf = buf[i+1:]
	}

	if m.opts.MaxLineLength > 0 && len(buf) >= m.opts.MaxLineLength {
		m.sink.Append(logsink.KindReceived, string(buf))
		return nil
	}
	// copy so the retained remainder does not pin the whole receive buffer
	return append([]byte(nil), buf...)
}

func (m *Manager) callTap(data []byte) {
	m.tapMu.RLock()
	tap := m.tap
	m.tapMu.RUnlock()

	if tap != nil {
		tap(data)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
