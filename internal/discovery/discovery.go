// Package discovery finds new creators by driving the external crawler in
// keyword-search mode and harvesting creator identities from the search
// output. Discovered creators start not_started; collection fills in their
// notes later.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redlens/collector/internal/artifact"
	"github.com/redlens/collector/internal/config"
	"github.com/redlens/collector/internal/metrics"
	"github.com/redlens/collector/internal/patcher"
	"github.com/redlens/collector/internal/runner"
	"github.com/redlens/collector/internal/store"
)

const (
	// DefaultMinLikes filters out creators whose sampled note has too
	// little engagement to bother collecting.
	DefaultMinLikes = 200

	// Search runs are short; one fixed deadline covers them.
	searchTimeout = 10 * time.Minute
)

// ErrNoKeywords means a discovery run was requested without search terms.
var ErrNoKeywords = errors.New("discovery requires at least one keyword")

// Options tunes one discovery run.
type Options struct {
	Keywords []string
	// MinLikes is the per-note engagement floor. Zero means DefaultMinLikes.
	MinLikes int
	// MaxNotes caps how many search results the crawler fetches per keyword.
	MaxNotes int
	// UseExisting skips the crawler and parses the newest search artifact
	// already on disk.
	UseExisting bool
}

// Result reports one discovery run.
type Result struct {
	// Found is the number of distinct creators passing the filter.
	Found int
	// Added is how many of them were new to the store.
	Added int
}

// Discoverer runs keyword searches and persists the creators they surface.
type Discoverer struct {
	store   *store.Store
	patcher *patcher.Patcher
	runner  runner.Runner
	cfg     config.Config
	logger  *zap.Logger
}

// New wires a Discoverer.
func New(st *store.Store, p *patcher.Patcher, r runner.Runner, cfg config.Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Discoverer{store: st, patcher: p, runner: r, cfg: cfg, logger: logger}
}

// Run performs one discovery pass. The crawler configuration is mutated
// for search mode and restored on every exit path; a failed search falls
// back to whatever artifact is already on disk.
func (d *Discoverer) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.MinLikes <= 0 {
		opts.MinLikes = DefaultMinLikes
	}
	if opts.MaxNotes <= 0 {
		opts.MaxNotes = d.cfg.Collect.MaxNotes
	}

	if !opts.UseExisting {
		if len(opts.Keywords) == 0 {
			return Result{}, ErrNoKeywords
		}
		if err := d.patcher.RecoverStale(); err != nil {
			metrics.ObserveConfigPatchFailure()
			return Result{}, fmt.Errorf("recovering stale configuration snapshot: %w", err)
		}
		if err := d.search(ctx, opts); err != nil {
			return Result{}, err
		}
	}

	notes, err := artifact.LoadLatest(d.cfg.Crawler.OutputDir, artifact.SearchPattern)
	if err != nil {
		metrics.ObserveArtifact("malformed")
		return Result{}, fmt.Errorf("reading search results: %w", err)
	}
	metrics.ObserveArtifact("ok")

	creators := Extract(notes, opts.MinLikes)
	res := Result{Found: len(creators)}
	for _, c := range creators {
		isNew, err := d.store.UpsertCreator(ctx, c)
		if err != nil {
			return res, fmt.Errorf("saving creator %s: %w", c.UserID, err)
		}
		if isNew {
			res.Added++
		}
	}
	d.logger.Info("discovery finished",
		zap.Strings("keywords", opts.Keywords),
		zap.Int("found", res.Found),
		zap.Int("added", res.Added),
	)
	return res, nil
}

// search patches the crawler into search mode and runs it once.
func (d *Discoverer) search(ctx context.Context, opts Options) error {
	handle, err := d.patcher.Apply([]patcher.Mutation{
		{Field: "KEYWORDS", Value: patcher.String(strings.Join(opts.Keywords, ","))},
		{Field: "CRAWLER_TYPE", Value: patcher.String("search")},
		{Field: "CRAWLER_MAX_NOTES_COUNT", Value: patcher.Int(opts.MaxNotes)},
		{Field: "ENABLE_GET_COMMENTS", Value: patcher.Bool(false)},
	})
	if err != nil {
		metrics.ObserveConfigPatchFailure()
		return fmt.Errorf("patching crawler configuration for search: %w", err)
	}

	outcome, runErr := d.runner.Run(ctx, runner.Command{
		Binary: d.cfg.Crawler.Binary,
		Args:   append(append([]string(nil), d.cfg.Crawler.Args...), "--platform", d.cfg.Crawler.Platform, "--lt", "qrcode", "--type", "search"),
		Dir:    d.cfg.Crawler.WorkDir,
	}, searchTimeout)

	if err := d.patcher.Restore(handle); err != nil {
		metrics.ObserveConfigPatchFailure()
		return err
	}
	if runErr != nil {
		return fmt.Errorf("launching crawler for search: %w", runErr)
	}
	metrics.ObserveCrawlerRun(outcomeLabel(outcome), outcome.Duration)
	if !outcome.Succeeded() {
		// Fall back to whatever search data already exists.
		d.logger.Warn("search crawler did not finish cleanly, using existing artifacts",
			zap.Int("exit_code", outcome.ExitCode),
			zap.Bool("timed_out", outcome.TimedOut),
		)
	}
	return nil
}

// Extract deduplicates creators from raw search notes, keeping the first
// sighting of each user whose sampled note clears the likes floor.
func Extract(notes []artifact.RawNote, minLikes int) []store.Creator {
	var creators []store.Creator
	seen := make(map[string]bool)
	for _, n := range notes {
		if n.UserID == "" || seen[n.UserID] {
			continue
		}
		if artifact.ParseCount(n.LikedCount) < minLikes {
			continue
		}
		seen[n.UserID] = true
		nickname := n.Nickname
		if nickname == "" {
			nickname = "Unknown"
		}
		creators = append(creators, store.Creator{
			UserID:        n.UserID,
			Nickname:      nickname,
			AvatarURL:     n.Avatar,
			SourceKeyword: n.SourceKeyword,
		})
	}
	return creators
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
