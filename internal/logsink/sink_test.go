package logsink

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidCapacity(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(MaxCapacity + 1)
	assert.Error(t, err)
}

func TestSink_AppendAndDrainInOrder(t *testing.T) {
	s := MustNew(16)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Append(KindStatus, "Opening port: COM3 at 9600 baud")
	s.Append(KindReceived, "hello\r\n")
	s.Appendf(KindSent, "TX: %s", "ping")

	events, err := s.Events()
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindStatus, events[0].Kind)
	assert.Equal(t, "hello", events[1].Text, "trailing line break MUST be trimmed")
	assert.Equal(t, "TX: ping", events[2].Text)
	assert.Equal(t, fixed, events[2].Timestamp)
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Less(t, events[1].Seq, events[2].Seq)

	again, err := s.Events()
	require.NoError(t, err)
	assert.Empty(t, again, "drained events MUST NOT be returned twice")
}

func TestSink_DrainStopsEarly(t *testing.T) {
	s := MustNew(16)
	for i := 0; i < 5; i++ {
		s.Append(KindReceived, "x")
	}

	count := 0
	require.NoError(t, s.Drain(func(Event) bool {
		count++
		return count < 2
	}))
	assert.Equal(t, 2, count)

	rest, err := s.Events()
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestSink_BoundedRetentionDropsOldest(t *testing.T) {
	s := MustNew(8)
	for i := 0; i < 20; i++ {
		s.Append(KindReceived, "line")
	}

	events, err := s.Events()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), 8)
	assert.Equal(t, uint64(20), events[len(events)-1].Seq, "newest event MUST survive")

	assert.Equal(t, int64(20), s.Metrics().Appended)
}

func TestSink_SubscribeReceivesLiveEvents(t *testing.T) {
	s := MustNew(16)
	sub := s.Subscribe(4)
	defer s.Unsubscribe(sub)

	s.Append(KindError, "Read error: boom")

	select {
	case ev := <-sub.C():
		assert.Equal(t, KindError, ev.Kind)
		assert.Equal(t, "Read error: boom", ev.Text)
	case <-time.After(time.Second):
		require.FailNow(t, "subscriber MUST receive appended event")
	}
}

func TestSink_SlowSubscriberNeverBlocksProducer(t *testing.T) {
	s := MustNew(1024)
	sub := s.Subscribe(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Append(KindReceived, "data")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Append MUST NOT block on a full subscriber")
	}

	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, int64(98), sub.Metrics().Overwritten)

	s.Unsubscribe(sub)
	_, ok := <-sub.C()
	assert.False(t, ok, "unsubscribed channel MUST be closed")
}

func TestSink_ConcurrentAppend(t *testing.T) {
	s := MustNew(4096)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				s.Append(KindReceived, "x")
			}
		}()
	}
	wg.Wait()

	events, err := s.Events()
	require.NoError(t, err)
	assert.Len(t, events, 1000)
	assert.Equal(t, int64(1000), s.Metrics().Appended)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "status", KindStatus.String())
	assert.Equal(t, "rx", KindReceived.String())
	assert.Equal(t, "tx", KindSent.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
