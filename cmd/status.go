package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/redlens/collector/internal/store"
)

// newStatusCmd creates the 'status' subcommand: a quick progress summary
// on the terminal.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints creator progress counts",

		RunE: func(cmd *cobra.Command, _ []string) error {
			container, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			st := container.Store()
			ctx := cmd.Context()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			total := 0
			for _, status := range []store.ScrapeStatus{
				store.StatusNotStarted,
				store.StatusInProgress,
				store.StatusPartial,
				store.StatusCompleted,
				store.StatusFailed,
			} {
				n, err := st.CountByStatus(ctx, status)
				if err != nil {
					return fmt.Errorf("counting %s creators: %w", status, err)
				}
				total += n
				fmt.Fprintf(w, "%s\t%d\n", status, n)
			}
			fmt.Fprintf(w, "total\t%d\n", total)
			return w.Flush()
		},
	}
}
