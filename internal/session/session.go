// Package session owns the lifecycle of one transport connection.
//
// A Manager moves through Closed → Opening → Open → Closing → Closed. While Open, a
// single background poll loop drains the transport and appends what it receives to a
// log sink. Sends are serialised with each other but may overlap the poll loop's
// Receive: transports are safe for one reader plus one writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/groutine"
	"github.com/srg/qlink/internal/logsink"
	"github.com/srg/qlink/internal/transport"
)

// State is the session lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Framing controls how received bytes become log events.
type Framing int

const (
	// FramingChunks emits one event per non-empty receive.
	FramingChunks Framing = iota
	// FramingLines emits one event per complete line; a trailing partial line is
	// emitted when the session closes.
	FramingLines
)

// ParseFraming parses "chunks" or "lines".
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chunks", "chunk", "":
		return FramingChunks, nil
	case "lines", "line":
		return FramingLines, nil
	default:
		return 0, fmt.Errorf("unknown framing %q (must be chunks or lines)", s)
	}
}

// Options tune the poll loop.
type Options struct {
	// PollInterval is the pause when nothing was received.
	PollInterval time.Duration `yaml:"poll_interval" default:"50ms"`
	// ErrorBackoff is the pause after a non-timeout receive error.
	ErrorBackoff time.Duration `yaml:"error_backoff" default:"1s"`
	Framing      Framing       `yaml:"-"`
	// MaxLineLength bounds a partial line in FramingLines mode before it is emitted as is.
	MaxLineLength int `yaml:"max_line_length" default:"4096"`
}

// DefaultOptions returns chunk framing with the stock poll timings.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

var (
	ErrInvalidState      = errors.New("invalid session state")
	ErrInvalidIdentifier = errors.New("invalid device identifier")
	ErrInvalidParams     = errors.New("invalid connection parameters")
	ErrNotOpen           = errors.New("session is not open")
)

// Manager is a connection session over one transport.
type Manager struct {
	transport transport.Transport
	sink      *logsink.Sink
	logger    *logrus.Logger
	opts      Options

	// lifecycleMu serialises Open and Close.
	lifecycleMu sync.Mutex
	state       atomic.Int32
	identifier  atomic.Value

	cancel context.CancelFunc
	done   <-chan struct{}

	pollers atomic.Int32
	sendMu  sync.Mutex

	tapMu sync.RWMutex
	tap   func([]byte)
}

// New creates a closed session. Zero-valued options are replaced with defaults.
func New(t transport.Transport, sink *logsink.Sink, logger *logrus.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = logsink.MustNew(logsink.DefaultCapacity)
	}
	defaults.SetDefaults(&opts)

	m := &Manager{
		transport: t,
		sink:      sink,
		logger:    logger,
		opts:      opts,
	}
	m.identifier.Store("")
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Identifier returns the identifier of the open connection, or "".
func (m *Manager) Identifier() string {
	return m.identifier.Load().(string)
}

// PollerCount returns the number of running poll loops: 1 while open, otherwise 0.
func (m *Manager) PollerCount() int {
	return int(m.pollers.Load())
}

// Sink returns the log sink events are appended to.
func (m *Manager) Sink() *logsink.Sink {
	return m.sink
}

// Transport returns the underlying transport.
func (m *Manager) Transport() transport.Transport {
	return m.transport
}

// SetReceiveTap registers fn to be called from the poll loop with every received chunk,
// before framing. Pass nil to remove it. fn must not block.
func (m *Manager) SetReceiveTap(fn func([]byte)) {
	m.tapMu.Lock()
	defer m.tapMu.Unlock()
	m.tap = fn
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.WithFields(logrus.Fields{
			"from": old,
			"to":   s,
		}).Debug("Session state changed")
	}
}

// Open connects to identifier and starts the poll loop. It is only valid while Closed.
// Invalid identifiers (empty, placeholder or error entries) and invalid parameters are
// rejected before the transport is touched.
func (m *Manager) Open(ctx context.Context, identifier string, params transport.Params) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if st := m.State(); st != StateClosed {
		return fmt.Errorf("%w: cannot open while %s", ErrInvalidState, st)
	}

	id := strings.TrimSpace(identifier)
	if id == "" || transport.IsSentinel(id) {
		m.logger.WithField("identifier", identifier).Warn("Rejected invalid identifier")
		m.sink.Appendf(logsink.KindError, "Invalid port selection: %q", identifier)
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	params = params.Normalize()
	if err := params.Validate(m.transport.Kind()); err != nil {
		m.logger.WithError(err).Warn("Rejected invalid connection parameters")
		m.sink.Appendf(logsink.KindError, "Invalid connection parameters: %v", err)
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	address := id
	if m.transport.Kind() != transport.KindSerial {
		address = transport.AddressFromDescriptor(id)
	}

	m.setState(StateOpening)
	m.sink.Appendf(logsink.KindStatus, "Opening port: %s at %d baud", id, params.BaudRate)
	m.logger.WithFields(logrus.Fields{
		"identifier": id,
		"transport":  m.transport.Kind(),
		"baud":       params.BaudRate,
	}).Info("Opening connection")

	if err := m.transport.Connect(ctx, address, params); err != nil {
		m.setState(StateClosed)
		m.sink.Appendf(logsink.KindError, "Failed to open %s: %v", id, err)
		m.logger.WithError(err).WithField("identifier", id).Error("Failed to open connection")
		return fmt.Errorf("failed to open %s: %w", id, err)
	}

	m.identifier.Store(id)
	m.setState(StateOpen)
	m.sink.Appendf(logsink.KindStatus, "Successfully opened %s at %d baud", id, params.BaudRate)

	pollCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.pollers.Add(1)
	m.done = groutine.Go(pollCtx, "session-poll:"+id, m.poll)

	return nil
}

// Close stops the poll loop, waits for it to exit and releases the transport.
// Closing a closed session is a no-op.
func (m *Manager) Close() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.State() == StateClosed {
		return nil
	}

	id := m.Identifier()
	m.setState(StateClosing)
	m.sink.Appendf(logsink.KindStatus, "Closing port: %s", id)

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	// wait for an in-flight send before pulling the transport away
	m.sendMu.Lock()
	err := m.transport.Disconnect()
	m.sendMu.Unlock()

	m.identifier.Store("")
	m.setState(StateClosed)

	if err != nil && !errors.Is(err, transport.ErrNotConnected) {
		m.sink.Appendf(logsink.KindError, "Error closing port: %v", err)
		m.logger.WithError(err).WithField("identifier", id).Warn("Error while closing connection")
		return fmt.Errorf("failed to close %s: %w", id, err)
	}

	m.sink.Appendf(logsink.KindStatus, "Successfully closed %s", id)
	m.logger.WithField("identifier", id).Info("Connection closed")
	return nil
}

// Send writes data to the open connection. It fails immediately, without touching
// the transport, unless the session is Open. Failures are not retried.
func (m *Manager) Send(data []byte) error {
	if m.State() != StateOpen {
		return ErrNotOpen
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	// Close may have started while waiting for the lock
	if m.State() != StateOpen {
		return ErrNotOpen
	}

	if err := m.transport.Send(data); err != nil {
		m.sink.Appendf(logsink.KindError, "Send error: %v", err)
		m.logger.WithError(err).Warn("Send failed")
		return fmt.Errorf("send failed: %w", err)
	}

	m.sink.Appendf(logsink.KindSent, "TX: %s", strings.TrimRight(string(data), "\r\n"))
	m.logger.WithField("bytes", len(data)).Debug("Sent data")
	return nil
}

// SendString sends s followed by eol.
func (m *Manager) SendString(s, eol string) error {
	return m.Send([]byte(s + eol))
}
