// Package patcher mutates the external crawler's configuration artifact for
// one run and guarantees restoration afterwards. The artifact is a
// Python-style assignments file the crawler reads at startup; the patcher
// rewrites individual fields by structural text substitution, keeping an
// unmodified snapshot on disk until Restore puts it back. A restore failure
// corrupts configuration for every later run, so restore errors carry their
// own type and callers are expected to halt on them.
package patcher

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SnapshotSuffix names the on-disk backup written next to the artifact
// while a mutation is active.
const SnapshotSuffix = ".collector_backup"

// ErrSnapshotExists means a snapshot from a previous run is still on disk:
// either a mutation is in flight or an earlier process died before
// restoring. Mutation is not reentrant; callers must recover first.
var ErrSnapshotExists = errors.New("configuration snapshot already exists")

// ErrFieldNotFound means a requested field has no assignment in the
// artifact.
var ErrFieldNotFound = errors.New("field not found in configuration artifact")

// RestoreError wraps any failure to put the original artifact back. It is
// resource-scoped and fatal: configuration integrity cannot be assumed
// until the artifact is manually verified.
type RestoreError struct {
	Artifact string
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore configuration %s: %v", e.Artifact, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// Mutation assigns a rendered literal to one field of the artifact.
type Mutation struct {
	Field string
	Value string
}

// String renders a quoted string literal.
func String(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

// Int renders an integer literal.
func Int(v int) string { return fmt.Sprintf("%d", v) }

// Bool renders a Python boolean literal.
func Bool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// StringList renders a list-of-strings literal.
func StringList(vs []string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = String(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// StringListMap renders a dict mapping strings to string lists, with keys
// sorted so repeated runs produce identical artifacts.
func StringListMap(m map[string][]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = String(k) + ": " + StringList(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Handle references an active snapshot. It is returned by Apply and
// consumed exactly once by Restore.
type Handle struct {
	artifact string
	snapshot string
}

// Patcher serializes mutations of one configuration artifact.
type Patcher struct {
	artifact string
	logger   *zap.Logger

	mu sync.Mutex
}

// New constructs a Patcher for the artifact at path.
func New(artifact string, logger *zap.Logger) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{artifact: artifact, logger: logger}
}

// Apply snapshots the artifact and rewrites the requested fields. On any
// error the artifact is left untouched (the snapshot, if written, is
// removed). The returned handle must be passed to Restore on every exit
// path, including timeout and crash of the protected call.
func (p *Patcher) Apply(mutations []Mutation) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := p.artifact + SnapshotSuffix
	if _, err := os.Stat(snapshot); err == nil {
		return Handle{}, fmt.Errorf("apply mutations to %s: %w", p.artifact, ErrSnapshotExists)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Handle{}, fmt.Errorf("checking snapshot %s: %w", snapshot, err)
	}

	original, err := os.ReadFile(p.artifact)
	if err != nil {
		return Handle{}, fmt.Errorf("reading configuration artifact: %w", err)
	}

	content := string(original)
	for _, m := range mutations {
		content, err = substitute(content, m)
		if err != nil {
			return Handle{}, fmt.Errorf("mutating field %s: %w", m.Field, err)
		}
	}

	if err := os.WriteFile(snapshot, original, 0o644); err != nil {
		return Handle{}, fmt.Errorf("writing snapshot %s: %w", snapshot, err)
	}
	if err := os.WriteFile(p.artifact, []byte(content), 0o644); err != nil {
		os.Remove(snapshot)
		return Handle{}, fmt.Errorf("writing mutated artifact: %w", err)
	}

	p.logger.Debug("configuration artifact patched",
		zap.String("artifact", p.artifact),
		zap.Int("mutations", len(mutations)),
	)
	return Handle{artifact: p.artifact, snapshot: snapshot}, nil
}

// Restore writes the snapshot back over the artifact and removes it. It is
// safe to call with the zero Handle (no-op) so callers can defer it
// unconditionally.
func (p *Patcher) Restore(h Handle) error {
	if h.snapshot == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	original, err := os.ReadFile(h.snapshot)
	if err != nil {
		return &RestoreError{Artifact: h.artifact, Err: err}
	}
	if err := os.WriteFile(h.artifact, original, 0o644); err != nil {
		return &RestoreError{Artifact: h.artifact, Err: err}
	}
	if err := os.Remove(h.snapshot); err != nil {
		return &RestoreError{Artifact: h.artifact, Err: err}
	}
	p.logger.Debug("configuration artifact restored", zap.String("artifact", h.artifact))
	return nil
}

// StaleSnapshot reports whether an unrestored snapshot from a previous
// abnormal termination is on disk.
func (p *Patcher) StaleSnapshot() bool {
	_, err := os.Stat(p.artifact + SnapshotSuffix)
	return err == nil
}

// RecoverStale restores a leftover snapshot before any new run proceeds.
// It is a no-op when no snapshot exists.
func (p *Patcher) RecoverStale() error {
	snapshot := p.artifact + SnapshotSuffix
	if _, err := os.Stat(snapshot); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	p.logger.Warn("recovering stale configuration snapshot",
		zap.String("artifact", p.artifact),
	)
	return p.Restore(Handle{artifact: p.artifact, snapshot: snapshot})
}

// substitute rewrites one `FIELD = value` assignment. The value may be a
// single-line scalar or a bracketed list/dict spanning multiple lines.
func substitute(content string, m Mutation) (string, error) {
	re, err := fieldPattern(m.Field)
	if err != nil {
		return "", err
	}
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", ErrFieldNotFound
	}
	// Replace only the value capture group, keeping the assignment prefix.
	return content[:loc[2]] + m.Value + content[loc[3]:], nil
}

func fieldPattern(field string) (*regexp.Regexp, error) {
	if !regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`).MatchString(field) {
		return nil, fmt.Errorf("invalid field name %q", field)
	}
	// Bracketed values match lazily across lines; anything else stops at
	// end of line.
	pattern := `(?ms)^` + regexp.QuoteMeta(field) + `\s*=\s*(\[.*?\]|\{.*?\}|\(.*?\)|[^\n]*)`
	return regexp.Compile(pattern)
}
