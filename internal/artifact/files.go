package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Patterns for the crawler's two output families.
const (
	SearchPattern  = "search_contents_*.json"
	CreatorPattern = "creator_contents_*.json"
)

// Latest returns the most recently modified file in dir matching pattern,
// or "" when none exists.
func Latest(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("globbing %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return mtime(matches[i]).Before(mtime(matches[j]))
	})
	return matches[len(matches)-1], nil
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Load reads one output file into raw notes. A missing file yields an
// empty slice; malformed JSON is an error the caller downgrades to a
// zero-note result.
func Load(path string) ([]RawNote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	var notes []RawNote
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	return notes, nil
}

// LoadLatest combines Latest and Load: it reads the newest file matching
// pattern, returning no notes when the directory holds none.
func LoadLatest(dir, pattern string) ([]RawNote, error) {
	path, err := Latest(dir, pattern)
	if err != nil || path == "" {
		return nil, err
	}
	return Load(path)
}

// GroupByUser buckets cleaned-input raw notes by their creator, dropping
// entries without both identifiers.
func GroupByUser(notes []RawNote) map[string][]RawNote {
	byUser := make(map[string][]RawNote)
	for _, n := range notes {
		if n.UserID == "" || n.NoteID == "" {
			continue
		}
		byUser[n.UserID] = append(byUser[n.UserID], n)
	}
	return byUser
}
