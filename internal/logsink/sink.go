// Package logsink holds the operator-facing log of a connection: received data,
// sent-data echoes and status/error lines.
//
// The sink is append-only and safe for concurrent producers (the session poll loop
// and the control plane). Producers never block on consumers: retained history is a
// bounded overlapped ring (oldest events are dropped and counted) and every live
// subscriber gets its own overwrite-oldest RingChannel.
package logsink

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Kind classifies a log event.
type Kind int

const (
	KindStatus Kind = iota
	KindReceived
	KindSent
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindReceived:
		return "rx"
	case KindSent:
		return "tx"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one timestamped line shown to the operator.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Timestamp.Format("15:04:05.000"), e.Kind, e.Text)
}

const (
	// DefaultCapacity is the number of events retained for Drain.
	DefaultCapacity uint32 = 4096

	// MaxCapacity guards against accidental misconfiguration.
	MaxCapacity uint32 = 1024 * 1024
)

// Metrics are sink-wide counters.
type Metrics struct {
	Appended    int64
	Overwritten int64
	Errors      int64
}

// Sink is the append-only event log. All methods are thread-safe.
type Sink struct {
	history mpmc.RichOverlappedRingBuffer[Event]
	seq     uint64

	subsMu sync.RWMutex
	subs   []*RingChannel[Event]

	appended    int64
	overwritten int64
	errors      int64

	now func() time.Time
}

// New creates a sink retaining up to capacity events.
func New(capacity uint32) (*Sink, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("log capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("log capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	return &Sink{
		history: mpmc.NewOverlappedRingBuffer[Event](capacity),
		now:     time.Now,
	}, nil
}

// MustNew is New for callers with a known-good capacity.
func MustNew(capacity uint32) *Sink {
	s, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return s
}

// Append records text as a new event and fans it out to subscribers.
// A single trailing line break is trimmed; the text is otherwise kept as received.
func (s *Sink) Append(kind Kind, text string) Event {
	ev := Event{
		Seq:       atomic.AddUint64(&s.seq, 1),
		Kind:      kind,
		Text:      strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r"),
		Timestamp: s.now(),
	}

	if overwrites, err := s.history.EnqueueM(ev); err != nil {
		atomic.AddInt64(&s.errors, 1)
	} else {
		atomic.AddInt64(&s.overwritten, int64(overwrites))
	}
	atomic.AddInt64(&s.appended, 1)

	s.subsMu.RLock()
	for _, sub := range s.subs {
		sub.Send(ev)
	}
	s.subsMu.RUnlock()

	return ev
}

// Appendf is Append with fmt.Sprintf formatting.
func (s *Sink) Appendf(kind Kind, format string, args ...any) Event {
	return s.Append(kind, fmt.Sprintf(format, args...))
}

// Subscribe returns a live tail of future events. Slow readers lose the oldest
// events instead of stalling producers.
func (s *Sink) Subscribe(capacity int) *RingChannel[Event] {
	sub := NewRingChannel[Event](capacity)
	s.subsMu.Lock()
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()
	return sub
}

// Unsubscribe detaches and closes sub.
func (s *Sink) Unsubscribe(sub *RingChannel[Event]) {
	s.subsMu.Lock()
	for i, existing := range s.subs {
		if existing == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.subsMu.Unlock()
	sub.Close()
}

// Drain hands retained events to fn in append order, removing them from the sink.
// Returning false from fn stops early; remaining events stay retained.
func (s *Sink) Drain(fn func(Event) bool) error {
	for !s.history.IsEmpty() {
		ev, err := s.history.Dequeue()
		if err != nil {
			atomic.AddInt64(&s.errors, 1)
			return fmt.Errorf("log dequeue failed: %w", err)
		}
		if !fn(ev) {
			return nil
		}
	}
	return nil
}

// Events drains all retained events into a slice.
func (s *Sink) Events() ([]Event, error) {
	var out []Event
	err := s.Drain(func(ev Event) bool {
		out = append(out, ev)
		return true
	})
	return out, err
}

// Metrics returns a snapshot of the sink counters.
func (s *Sink) Metrics() Metrics {
	return Metrics{
		Appended:    atomic.LoadInt64(&s.appended),
		Overwritten: atomic.LoadInt64(&s.overwritten),
		Errors:      atomic.LoadInt64(&s.errors),
	}
}
