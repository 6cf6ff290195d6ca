// Package planner partitions collection targets into bounded batches and
// computes a wall-clock timeout per batch. Crawler throughput is roughly
// linear in the requested note count, so fixed timeouts systematically kill
// realistic batches; the planner sizes the deadline from the workload
// instead.
package planner

import (
	"fmt"
	"math"
	"time"
)

// Defaults mirror the operational constants the timeout model was tuned
// with: about four seconds per note plus a per-creator minute of login and
// pagination overhead, padded by half again.
const (
	DefaultPerNoteCost  = 4 * time.Second
	DefaultOverhead     = 60 * time.Second
	DefaultSafetyFactor = 1.5
	DefaultMinTimeout   = 5 * time.Minute
	DefaultMaxTimeout   = 2 * time.Hour
	DefaultBatchSize    = 5

	maxBatchSize = 20
)

// Options tunes batch partitioning and the timeout model. Zero values fall
// back to the defaults above.
type Options struct {
	BatchSize    int
	PerNoteCost  time.Duration
	Overhead     time.Duration
	SafetyFactor float64
	MinTimeout   time.Duration
	MaxTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PerNoteCost <= 0 {
		o.PerNoteCost = DefaultPerNoteCost
	}
	if o.Overhead <= 0 {
		o.Overhead = DefaultOverhead
	}
	if o.SafetyFactor < 1 {
		o.SafetyFactor = DefaultSafetyFactor
	}
	if o.MinTimeout <= 0 {
		o.MinTimeout = DefaultMinTimeout
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = DefaultMaxTimeout
	}
	return o
}

// Target is one creator scheduled for collection. Remaining is how many
// notes are still wanted; the planner floors the request ceiling at 1 so a
// nearly complete creator still issues a minimal fetch.
type Target struct {
	UserID    string
	Remaining int
}

// Ceiling is the per-creator note request the batch will carry.
func (t Target) Ceiling() int {
	if t.Remaining < 1 {
		return 1
	}
	return t.Remaining
}

// Batch is one crawler invocation's worth of targets plus its computed
// deadline.
type Batch struct {
	Targets []Target
	Timeout time.Duration
}

// UserIDs returns the creator identifiers in batch order.
func (b Batch) UserIDs() []string {
	ids := make([]string, len(b.Targets))
	for i, t := range b.Targets {
		ids[i] = t.UserID
	}
	return ids
}

// Plan is an ordered sequence of batches. It is ephemeral: built per run,
// never persisted.
type Plan struct {
	Batches []Batch
}

// TotalTargets returns how many creators the plan covers.
func (p Plan) TotalTargets() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Targets)
	}
	return n
}

// Build partitions targets into consecutive batches of at most
// opts.BatchSize, preserving input order so retries and logs are
// reproducible, and computes each batch's timeout.
func Build(targets []Target, opts Options) (Plan, error) {
	opts = opts.withDefaults()
	if opts.BatchSize > maxBatchSize {
		return Plan{}, fmt.Errorf("batch size %d exceeds maximum %d", opts.BatchSize, maxBatchSize)
	}
	if opts.MaxTimeout < opts.MinTimeout {
		return Plan{}, fmt.Errorf("max timeout %v below min timeout %v", opts.MaxTimeout, opts.MinTimeout)
	}

	var plan Plan
	for start := 0; start < len(targets); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := Batch{Targets: append([]Target(nil), targets[start:end]...)}
		batch.Timeout = timeoutFor(batch.Targets, opts)
		plan.Batches = append(plan.Batches, batch)
	}
	return plan, nil
}

// timeoutFor estimates the batch runtime and pads it by the safety factor.
// The estimate is monotonic in both target count and per-creator ceiling.
func timeoutFor(targets []Target, opts Options) time.Duration {
	var estimate time.Duration
	for _, t := range targets {
		estimate += time.Duration(t.Ceiling())*opts.PerNoteCost + opts.Overhead
	}
	padded := time.Duration(math.Ceil(float64(estimate) * opts.SafetyFactor / float64(time.Second)))
	padded *= time.Second

	if padded < opts.MinTimeout {
		return opts.MinTimeout
	}
	if padded > opts.MaxTimeout {
		return opts.MaxTimeout
	}
	return padded
}
