// Package sinks provides the built-in progress sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/redlens/collector/internal/progress"
)

// LogSink emits structured logs for each progress event. It is the default
// sink for operators watching a run from the terminal.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("collection progress",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("batch", evt.Batch),
			zap.String("user_id", evt.UserID),
			zap.String("status", evt.Status),
			zap.Int64("notes", evt.Notes),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
