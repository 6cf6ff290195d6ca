package collector

import (
	"context"
	"fmt"

	"github.com/redlens/collector/internal/store"
)

// buildExcludes assembles the per-creator sets of already collected note
// IDs that the crawler must not refetch. Creators with nothing collected
// yet are omitted so the rendered configuration stays minimal.
func buildExcludes(ctx context.Context, st *store.Store, userIDs []string) (map[string][]string, error) {
	excludes := make(map[string][]string)
	for _, id := range userIDs {
		noteIDs, err := st.CollectedNoteIDs(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading collected note ids for %s: %w", id, err)
		}
		if len(noteIDs) > 0 {
			excludes[id] = noteIDs
		}
	}
	return excludes, nil
}
