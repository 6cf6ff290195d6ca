package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redlens/collector/internal/collector"
	"github.com/redlens/collector/internal/progress"
	"github.com/redlens/collector/internal/progress/sinks"
)

// newCollectCmd creates the 'collect' subcommand: one full collection run
// over pending (or resumable) creators.
func newCollectCmd() *cobra.Command {
	var opts collector.Options

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs the crawler over tracked creators in planned batches",
		Long: `Selects creators awaiting collection, partitions them into batches,
and drives the external crawler once per batch. Progress is recorded
per creator so an interrupted run can be continued with --resume.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := container.Logger()

			hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger))
			defer func() {
				if cerr := hub.Close(cmd.Context()); cerr != nil {
					logger.Warn("closing progress hub failed", zap.Error(cerr))
				}
			}()

			orch := collector.New(
				container.Store(),
				container.Patcher(),
				container.Runner(),
				hub,
				container.Config(),
				logger,
			)
			sum, err := orch.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("collection run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: %d creators in %d batches: %d completed, %d partial, %d failed, %d skipped, %d notes added (%s)\n",
				sum.RunID, sum.Creators, sum.Batches,
				sum.Completed, sum.Partial, sum.Failed, sum.Skipped,
				sum.NotesAdded, sum.Duration.Round(time.Second),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "continue partial and interrupted creators instead of fresh ones")
	cmd.Flags().StringVar(&opts.Keyword, "keyword", "", "only collect creators discovered under this keyword")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of creators this run covers (0 = no cap)")
	cmd.Flags().IntVar(&opts.MaxNotes, "max-notes", 0, "per-creator note target for fresh runs (0 = configured default)")
	cmd.Flags().IntVar(&opts.MinFans, "min-fans", 0, "skip creators with fewer known followers (0 = configured default)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "creators per crawler invocation (0 = configured default)")

	return cmd
}
