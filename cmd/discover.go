package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redlens/collector/internal/discovery"
)

// newDiscoverCmd creates the 'discover' subcommand: find new creators via
// keyword search.
func newDiscoverCmd() *cobra.Command {
	var opts discovery.Options

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Searches for new creators by keyword",
		Long: `Runs the external crawler in search mode for the given keywords and
saves every sufficiently popular creator it surfaces. Newly discovered
creators start not_started and are picked up by the next collect run.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			d := discovery.New(
				container.Store(),
				container.Patcher(),
				container.Runner(),
				container.Config(),
				container.Logger(),
			)
			res, err := d.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("discovery run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "discovery: %d creators found, %d new\n", res.Found, res.Added)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.Keywords, "keywords", nil, "search keywords (comma separated or repeated)")
	cmd.Flags().IntVar(&opts.MinLikes, "min-likes", 0, "minimum sampled note likes to keep a creator (0 = default)")
	cmd.Flags().IntVar(&opts.MaxNotes, "max-notes", 0, "search results to fetch per keyword (0 = configured default)")
	cmd.Flags().BoolVar(&opts.UseExisting, "use-existing", false, "parse the newest search artifact instead of running the crawler")

	return cmd
}
