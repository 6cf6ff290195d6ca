package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/redlens/collector/internal/progress"
)

// TestPrometheusSinkConsume verifies the collectors track run, batch and
// creator milestones.
func TestPrometheusSinkConsume(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	events := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageBatchDone, Dur: 90 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageCreatorDone, UserID: "u1", Status: "completed", Notes: 40},
		{RunID: runID, TS: now, Stage: progress.StageCreatorDone, UserID: "u2", Status: "partial", Notes: 7},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: 2 * time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), events))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.creatorsCompleted.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.creatorsCompleted.WithLabelValues("partial")))
	require.Equal(t, 47.0, testutil.ToFloat64(sink.notesIngested))
	require.Equal(t, 1, testutil.CollectAndCount(sink.batchRuntime, "collector_batch_runtime_seconds"))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
