package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleArtifact = `# crawler configuration
PLATFORM = "xhs"
KEYWORDS = "default,keywords"
LOGIN_TYPE = "qrcode"
CRAWLER_TYPE = "search"

# how many notes to fetch per run
CRAWLER_MAX_NOTES_COUNT = 200
ENABLE_GET_COMMENTS = True

XHS_CREATOR_ID_LIST = [
    "old-creator-1",
    "old-creator-2",
]

XHS_EXCLUDE_NOTE_IDS = {}
`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "base_config.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestApplyRewritesSingleLineFields covers string, integer and boolean
// assignments on one line.
func TestApplyRewritesSingleLineFields(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)

	h, err := p.Apply([]Mutation{
		{Field: "CRAWLER_TYPE", Value: String("creator")},
		{Field: "CRAWLER_MAX_NOTES_COUNT", Value: Int(42)},
		{Field: "ENABLE_GET_COMMENTS", Value: Bool(false)},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(got), `CRAWLER_TYPE = "creator"`)
	require.Contains(t, string(got), "CRAWLER_MAX_NOTES_COUNT = 42")
	require.Contains(t, string(got), "ENABLE_GET_COMMENTS = False")
	// Untouched fields survive verbatim.
	require.Contains(t, string(got), `PLATFORM = "xhs"`)

	require.NoError(t, p.Restore(h))
}

// TestApplyRewritesMultiLineList collapses a bracketed list spanning
// several lines into the new value.
func TestApplyRewritesMultiLineList(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)

	h, err := p.Apply([]Mutation{
		{Field: "XHS_CREATOR_ID_LIST", Value: StringList([]string{"u1", "u2"})},
		{Field: "XHS_EXCLUDE_NOTE_IDS", Value: StringListMap(map[string][]string{
			"u2": {"n9", "n3"},
			"u1": {"n1"},
		})},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(got), `XHS_CREATOR_ID_LIST = ["u1", "u2"]`)
	require.NotContains(t, string(got), "old-creator-1")
	// Map keys render sorted for stable output.
	require.Contains(t, string(got), `XHS_EXCLUDE_NOTE_IDS = {"u1": ["n1"], "u2": ["n9", "n3"]}`)

	require.NoError(t, p.Restore(h))
}

// TestRestoreIsByteIdentical verifies the round trip leaves the artifact
// exactly as it was, including comments and whitespace.
func TestRestoreIsByteIdentical(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)

	h, err := p.Apply([]Mutation{
		{Field: "KEYWORDS", Value: String("patched")},
		{Field: "XHS_CREATOR_ID_LIST", Value: StringList(nil)},
	})
	require.NoError(t, err)
	require.NoError(t, p.Restore(h))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleArtifact, string(got))

	// Snapshot is gone once restored.
	_, err = os.Stat(path + SnapshotSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestApplyUnknownFieldLeavesArtifactUntouched checks that a failed
// mutation neither modifies the artifact nor leaves a snapshot behind.
func TestApplyUnknownFieldLeavesArtifactUntouched(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)

	_, err := p.Apply([]Mutation{{Field: "NO_SUCH_FIELD", Value: Int(1)}})
	require.ErrorIs(t, err, ErrFieldNotFound)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleArtifact, string(got))
	_, err = os.Stat(path + SnapshotSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestApplyRefusesWhileSnapshotExists enforces non-reentrancy.
func TestApplyRefusesWhileSnapshotExists(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)

	h, err := p.Apply([]Mutation{{Field: "KEYWORDS", Value: String("first")}})
	require.NoError(t, err)

	_, err = p.Apply([]Mutation{{Field: "KEYWORDS", Value: String("second")}})
	require.ErrorIs(t, err, ErrSnapshotExists)

	require.NoError(t, p.Restore(h))
}

// TestRecoverStale restores a snapshot left behind by a crashed run.
func TestRecoverStale(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, "KEYWORDS = \"mutated\"\n")
	require.NoError(t, os.WriteFile(path+SnapshotSuffix, []byte("KEYWORDS = \"pristine\"\n"), 0o644))

	p := New(path, nil)
	require.True(t, p.StaleSnapshot())
	require.NoError(t, p.RecoverStale())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "KEYWORDS = \"pristine\"\n", string(got))
	require.False(t, p.StaleSnapshot())

	// A second recovery is a no-op.
	require.NoError(t, p.RecoverStale())
}

// TestRestoreZeroHandleIsNoop lets callers defer Restore unconditionally.
func TestRestoreZeroHandleIsNoop(t *testing.T) {
	t.Parallel()
	require.NoError(t, New("irrelevant", nil).Restore(Handle{}))
}

// TestRestoreMissingSnapshotIsRestoreError classifies restore failures.
func TestRestoreMissingSnapshotIsRestoreError(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, sampleArtifact)
	p := New(path, nil)
	err := p.Restore(Handle{artifact: path, snapshot: path + SnapshotSuffix})
	var restoreErr *RestoreError
	require.ErrorAs(t, err, &restoreErr)
	require.Equal(t, path, restoreErr.Artifact)
}

// TestLiteralRendering pins the Python literal forms the crawler expects.
func TestLiteralRendering(t *testing.T) {
	t.Parallel()

	require.Equal(t, `"a \"b\" c"`, String(`a "b" c`))
	require.Equal(t, "True", Bool(true))
	require.Equal(t, "[]", StringList(nil))
	require.Equal(t, "{}", StringListMap(nil))
}
