// Package progress defines the milestone events emitted while a collection
// run works through its batches, plus a hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageBatchStart  Stage = "BATCH_START"
	StageBatchDone   Stage = "BATCH_DONE"
	StageCreatorDone Stage = "CREATOR_DONE"
)

// Event captures a single milestone of a collection run.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage names the milestone.
	Stage Stage
	// Batch is the zero-based batch index for batch and creator events.
	Batch int
	// UserID scopes creator events to one creator.
	UserID string
	// Status is the creator's terminal status for CREATOR_DONE events.
	Status string
	// Notes is the number of new notes ingested by the event's scope.
	Notes int64
	// Dur captures wall time for completed batches and runs.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageBatchStart, StageBatchDone:
	case StageCreatorDone:
		if e.UserID == "" {
			return errors.New("creator done requires user id")
		}
		if e.Status == "" {
			return errors.New("creator done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
