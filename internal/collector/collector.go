// Package collector orchestrates collection runs: it selects creators,
// plans batches, patches the crawler configuration, supervises the crawler
// subprocess, ingests its output artifacts and keeps per-creator progress
// in the store. The crawler itself is an external black box.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redlens/collector/internal/artifact"
	"github.com/redlens/collector/internal/config"
	"github.com/redlens/collector/internal/metrics"
	"github.com/redlens/collector/internal/patcher"
	"github.com/redlens/collector/internal/planner"
	"github.com/redlens/collector/internal/progress"
	"github.com/redlens/collector/internal/runner"
	"github.com/redlens/collector/internal/store"
)

// Configuration artifact fields rewritten per batch.
const (
	fieldCrawlerType    = "CRAWLER_TYPE"
	fieldMaxNotesCount  = "CRAWLER_MAX_NOTES_COUNT"
	fieldEnableComments = "ENABLE_GET_COMMENTS"
	fieldCreatorIDList  = "XHS_CREATOR_ID_LIST"
	fieldExcludeNoteIDs = "XHS_EXCLUDE_NOTE_IDS"
)

// Options tunes a single run. Zero values fall back to configuration
// defaults.
type Options struct {
	// Resume selects partial and stale in-progress creators instead of
	// fresh ones.
	Resume bool
	// Keyword restricts fresh runs to creators discovered under it.
	Keyword string
	// Limit caps how many creators the run covers. Zero means no cap.
	Limit int
	// MaxNotes overrides the per-creator note target for fresh runs.
	MaxNotes int
	// MinFans skips creators whose known follower count is below it.
	MinFans int
	// BatchSize overrides the configured creators-per-invocation.
	BatchSize int
}

// Summary reports one finished run.
type Summary struct {
	RunID      uuid.UUID
	Creators   int
	Batches    int
	Completed  int
	Partial    int
	Failed     int
	Skipped    int
	NotesAdded int
	Duration   time.Duration
}

// Orchestrator drives collection runs end to end.
type Orchestrator struct {
	store   *store.Store
	patcher *patcher.Patcher
	runner  runner.Runner
	emitter progress.Emitter
	cfg     config.Config
	logger  *zap.Logger
}

// New wires an Orchestrator. A nil emitter disables progress events.
func New(st *store.Store, p *patcher.Patcher, r runner.Runner, emitter progress.Emitter, cfg config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = (*progress.Hub)(nil)
	}
	metrics.Init()
	return &Orchestrator{
		store:   st,
		patcher: p,
		runner:  r,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes one collection run. Creator-scoped failures are recorded
// and the run continues; configuration mutate/restore failures and
// subprocess start failures abort the run, since every later batch would
// hit the same wall.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.New()}
	log := o.logger.With(zap.String("run_id", sum.RunID.String()))

	release, err := acquireLock(o.cfg.DB.Path + ".lock")
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("releasing run lock failed", zap.Error(err))
		}
	}()

	// A snapshot left by a crashed run means the crawler config is still
	// mutated; put it back before planning anything.
	if err := o.patcher.RecoverStale(); err != nil {
		metrics.ObserveConfigPatchFailure()
		return sum, fmt.Errorf("recovering stale configuration snapshot: %w", err)
	}

	creators, skipped, err := o.selectCreators(ctx, opts)
	if err != nil {
		return sum, err
	}
	sum.Skipped = skipped
	sum.Creators = len(creators)
	if len(creators) == 0 {
		log.Info("no creators eligible for collection",
			zap.Bool("resume", opts.Resume),
			zap.Int("skipped", skipped),
		)
		sum.Duration = time.Since(start)
		return sum, nil
	}

	maxNotes := opts.MaxNotes
	if maxNotes <= 0 {
		maxNotes = o.cfg.Collect.MaxNotes
	}
	byID := make(map[string]store.Creator, len(creators))
	targets := make([]planner.Target, 0, len(creators))
	for _, c := range creators {
		byID[c.UserID] = c
		remaining := maxNotes
		if opts.Resume {
			remaining = c.Remaining()
		}
		targets = append(targets, planner.Target{UserID: c.UserID, Remaining: remaining})
	}

	plan, err := planner.Build(targets, o.plannerOptions(opts))
	if err != nil {
		return sum, fmt.Errorf("planning batches: %w", err)
	}
	sum.Batches = len(plan.Batches)

	log.Info("collection run starting",
		zap.Int("creators", len(creators)),
		zap.Int("batches", len(plan.Batches)),
		zap.Bool("resume", opts.Resume),
	)
	o.emit(progress.Event{RunID: progress.UUIDToBytes(sum.RunID), TS: time.Now().UTC(), Stage: progress.StageRunStart})

	for i, batch := range plan.Batches {
		if err := ctx.Err(); err != nil {
			o.emitRunError(sum.RunID, err)
			sum.Duration = time.Since(start)
			return sum, fmt.Errorf("run canceled before batch %d: %w", i+1, err)
		}
		if err := o.runBatch(ctx, log, &sum, opts, i, batch, byID, maxNotes); err != nil {
			o.emitRunError(sum.RunID, err)
			sum.Duration = time.Since(start)
			return sum, err
		}
	}

	sum.Duration = time.Since(start)
	o.emit(progress.Event{
		RunID: progress.UUIDToBytes(sum.RunID),
		TS:    time.Now().UTC(),
		Stage: progress.StageRunDone,
		Notes: int64(sum.NotesAdded),
		Dur:   sum.Duration,
	})
	log.Info("collection run finished",
		zap.Int("completed", sum.Completed),
		zap.Int("partial", sum.Partial),
		zap.Int("failed", sum.Failed),
		zap.Int("notes_added", sum.NotesAdded),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// selectCreators picks the run's creators and applies the follower-count
// precondition. Unknown follower counts pass the filter; they are only
// learned during collection.
func (o *Orchestrator) selectCreators(ctx context.Context, opts Options) ([]store.Creator, int, error) {
	var (
		creators []store.Creator
		err      error
	)
	if opts.Resume {
		creators, err = o.store.ResumableCreators(ctx, opts.Limit)
	} else {
		creators, err = o.store.PendingCreators(ctx, opts.Limit, opts.Keyword)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("selecting creators: %w", err)
	}

	minFans := opts.MinFans
	if minFans <= 0 {
		minFans = o.cfg.Collect.MinFans
	}
	if minFans <= 0 {
		return creators, 0, nil
	}
	kept := creators[:0]
	skipped := 0
	for _, c := range creators {
		if c.CurrentFans > 0 && c.CurrentFans < minFans {
			skipped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, skipped, nil
}

func (o *Orchestrator) plannerOptions(opts Options) planner.Options {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = o.cfg.Collect.BatchSize
	}
	return planner.Options{
		BatchSize:    batchSize,
		PerNoteCost:  time.Duration(o.cfg.Collect.PerNoteSeconds) * time.Second,
		Overhead:     time.Duration(o.cfg.Collect.OverheadSeconds) * time.Second,
		SafetyFactor: o.cfg.Collect.SafetyFactor,
		MinTimeout:   o.cfg.Collect.MinTimeout(),
		MaxTimeout:   o.cfg.Collect.MaxTimeout(),
	}
}

// runBatch drives one crawler invocation: mark creators in progress, patch
// the configuration, run the subprocess, restore the configuration, then
// ingest whatever the crawler produced.
func (o *Orchestrator) runBatch(ctx context.Context, log *zap.Logger, sum *Summary, opts Options, index int, batch planner.Batch, byID map[string]store.Creator, maxNotes int) error {
	batchStart := time.Now()
	ids := batch.UserIDs()
	log.Info("batch starting",
		zap.Int("batch", index+1),
		zap.Int("of", sum.Batches),
		zap.Strings("creators", ids),
		zap.Duration("timeout", batch.Timeout),
	)
	o.emit(progress.Event{
		RunID: progress.UUIDToBytes(sum.RunID),
		TS:    time.Now().UTC(),
		Stage: progress.StageBatchStart,
		Batch: index,
	})

	// The ceiling is a single global knob in the crawler config, so a
	// mixed batch requests the largest per-creator remainder.
	requestCeiling := 1
	for _, t := range batch.Targets {
		if c := t.Ceiling(); c > requestCeiling {
			requestCeiling = c
		}
	}

	for _, id := range ids {
		target := maxNotes
		if opts.Resume {
			target = byID[id].NotesTarget
		}
		if err := o.store.MarkInProgress(ctx, []string{id}, target); err != nil {
			return fmt.Errorf("marking batch %d in progress: %w", index+1, err)
		}
	}

	excludes, err := buildExcludes(ctx, o.store, ids)
	if err != nil {
		return err
	}

	handle, err := o.patcher.Apply([]patcher.Mutation{
		{Field: fieldCrawlerType, Value: patcher.String("creator")},
		{Field: fieldMaxNotesCount, Value: patcher.Int(requestCeiling)},
		{Field: fieldEnableComments, Value: patcher.Bool(false)},
		{Field: fieldCreatorIDList, Value: patcher.StringList(ids)},
		{Field: fieldExcludeNoteIDs, Value: patcher.StringListMap(excludes)},
	})
	if err != nil {
		metrics.ObserveConfigPatchFailure()
		return fmt.Errorf("patching crawler configuration for batch %d: %w", index+1, err)
	}

	outcome, runErr := o.runner.Run(ctx, runner.Command{
		Binary: o.cfg.Crawler.Binary,
		Args:   o.crawlerArgs("creator"),
		Dir:    o.cfg.Crawler.WorkDir,
	}, batch.Timeout)

	// The configuration goes back before anything else; a restore failure
	// outranks whatever the subprocess did.
	if err := o.patcher.Restore(handle); err != nil {
		metrics.ObserveConfigPatchFailure()
		return err
	}
	if runErr != nil {
		return fmt.Errorf("launching crawler for batch %d: %w", index+1, runErr)
	}
	metrics.ObserveCrawlerRun(outcomeLabel(outcome), outcome.Duration)

	grouped := o.loadBatchArtifacts(log)

	// Timeouts and unreadable artifacts leave creators partial and
	// resumable; only an abnormal exit marks them failed.
	failureReason := ""
	if !outcome.TimedOut && outcome.ExitCode != 0 {
		failureReason = fmt.Sprintf("crawler exited with code %d", outcome.ExitCode)
	}

	batchNotes := 0
	for _, id := range ids {
		added, c, err := o.ingestCreator(ctx, id, grouped[id], failureReason)
		if err != nil {
			return err
		}
		batchNotes += added
		switch c.Status {
		case store.StatusCompleted:
			sum.Completed++
		case store.StatusPartial:
			sum.Partial++
		case store.StatusFailed:
			sum.Failed++
		}
		o.emit(progress.Event{
			RunID:  progress.UUIDToBytes(sum.RunID),
			TS:     time.Now().UTC(),
			Stage:  progress.StageCreatorDone,
			Batch:  index,
			UserID: id,
			Status: string(c.Status),
			Notes:  int64(added),
		})
		log.Info("creator processed",
			zap.String("user_id", id),
			zap.String("status", string(c.Status)),
			zap.Int("notes_added", added),
			zap.Int("collected", c.NotesCollected),
			zap.Int("target", c.NotesTarget),
		)
	}
	sum.NotesAdded += batchNotes

	o.emit(progress.Event{
		RunID: progress.UUIDToBytes(sum.RunID),
		TS:    time.Now().UTC(),
		Stage: progress.StageBatchDone,
		Batch: index,
		Notes: int64(batchNotes),
		Dur:   time.Since(batchStart),
	})
	return nil
}

// loadBatchArtifacts reads the newest creator output file. Absent or
// malformed artifacts yield an empty grouping; the crawler may still have
// partially succeeded, so the batch is recorded from whatever is readable.
func (o *Orchestrator) loadBatchArtifacts(log *zap.Logger) map[string][]artifact.RawNote {
	notes, err := artifact.LoadLatest(o.cfg.Crawler.OutputDir, artifact.CreatorPattern)
	if err != nil {
		metrics.ObserveArtifact("malformed")
		log.Warn("crawler output artifact unreadable", zap.Error(err))
		return map[string][]artifact.RawNote{}
	}
	metrics.ObserveArtifact("ok")
	return artifact.GroupByUser(notes)
}

// ingestCreator persists one creator's notes and derives its new status.
func (o *Orchestrator) ingestCreator(ctx context.Context, userID string, raw []artifact.RawNote, failureReason string) (int, store.Creator, error) {
	cleaned := make([]store.Note, 0, len(raw))
	for _, r := range raw {
		cleaned = append(cleaned, artifact.Clean(r))
	}
	added, err := o.store.InsertNotes(ctx, cleaned)
	if err != nil {
		return 0, store.Creator{}, fmt.Errorf("persisting notes for %s: %w", userID, err)
	}
	c, err := o.store.RecordResult(ctx, userID, added, failureReason)
	if err != nil {
		return 0, store.Creator{}, fmt.Errorf("recording result for %s: %w", userID, err)
	}
	return added, c, nil
}

func (o *Orchestrator) crawlerArgs(runType string) []string {
	args := append([]string(nil), o.cfg.Crawler.Args...)
	return append(args, "--platform", o.cfg.Crawler.Platform, "--lt", "qrcode", "--type", runType)
}

func (o *Orchestrator) emit(evt progress.Event) {
	o.emitter.Emit(evt)
}

func (o *Orchestrator) emitRunError(runID uuid.UUID, err error) {
	o.emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    time.Now().UTC(),
		Stage: progress.StageRunError,
		Note:  err.Error(),
	})
}

func outcomeLabel(o runner.Outcome) string {
	switch {
	case o.TimedOut:
		return "timeout"
	case o.ExitCode != 0:
		return "failure"
	}
	return "success"
}
