package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
	}
}

// TestHubFlushBySize verifies the hub flushes as soon as the batch size
// limit is reached.
func TestHubFlushBySize(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatch: 2, MaxWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageBatchStart))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubFlushByTimer verifies the periodic flush delivers small batches.
func TestHubFlushByTimer(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatch: 10, MaxWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubCloseDrainsAndClosesSinks checks pending events are flushed and
// sinks closed on shutdown.
func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 16, MaxBatch: 100, MaxWait: time.Minute}, sink)

	for i := 0; i < 5; i++ {
		hub.Emit(sampleEvent(StageBatchDone))
	}
	require.NoError(t, hub.Close(context.Background()))

	total := 0
	for _, b := range sink.Batches() {
		total += len(b)
	}
	require.Equal(t, 5, total)
	require.True(t, sink.Closed())

	// Emits after close are discarded.
	hub.Emit(sampleEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
}

// TestHubDiscardsInvalidEvents checks validation happens at the Emit edge.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageRunStart}) // missing run id and timestamp
	hub.Emit(Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: "BOGUS"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestEventValidate covers the per-stage payload requirements.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := sampleEvent(StageCreatorDone)
	require.Error(t, base.Validate())

	base.UserID = "u1"
	require.Error(t, base.Validate())

	base.Status = "completed"
	require.NoError(t, base.Validate())

	base.Dur = -time.Second
	require.Error(t, base.Validate())
}

// TestNilHubIsInert allows callers to skip wiring a hub entirely.
func TestNilHubIsInert(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
}
