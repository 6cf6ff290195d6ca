package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunSuccess exercises a clean zero-exit subprocess.
func TestRunSuccess(t *testing.T) {
	t.Parallel()

	out, err := New(nil).Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo one; echo two"},
	}, 10*time.Second)
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	require.Equal(t, 0, out.ExitCode)
	require.False(t, out.TimedOut)
	require.Equal(t, []string{"one", "two"}, out.Tail)
}

// TestRunNonZeroExit reports the exit code without returning an error.
func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()

	out, err := New(nil).Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo failing; exit 3"},
	}, 10*time.Second)
	require.NoError(t, err)
	require.False(t, out.Succeeded())
	require.Equal(t, 3, out.ExitCode)
	require.Contains(t, out.Tail, "failing")
}

// TestRunTimeoutKillsProcessGroup verifies the deadline fires and the run
// is classified as timed out rather than failed.
func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()

	start := time.Now()
	out, err := New(nil).Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "sleep 30"},
	}, 300*time.Millisecond)
	require.NoError(t, err)
	require.True(t, out.TimedOut)
	require.False(t, out.Succeeded())
	require.Less(t, time.Since(start), 5*time.Second)
}

// TestRunMissingBinary is a startup failure, not an outcome.
func TestRunMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Run(context.Background(), Command{
		Binary: "definitely-not-a-real-binary-7351",
	}, time.Second)
	require.Error(t, err)
}

// TestRunTailBounded keeps only the most recent output lines.
func TestRunTailBounded(t *testing.T) {
	t.Parallel()

	out, err := New(nil).Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "i=0; while [ $i -lt 100 ]; do echo line$i; i=$((i+1)); done"},
	}, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, out.Tail, tailLines)
	require.Equal(t, "line99", out.Tail[len(out.Tail)-1])
}
