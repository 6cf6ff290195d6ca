package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func makeTargets(n, remaining int) []Target {
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{UserID: fmt.Sprintf("u%d", i), Remaining: remaining}
	}
	return targets
}

// TestBuildBatchCount verifies the planner produces ceil(N/B) batches of at
// most B targets each, in input order.
func TestBuildBatchCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		targets   int
		batchSize int
		want      int
	}{
		{"exact multiple", 10, 5, 2},
		{"remainder batch", 11, 5, 3},
		{"single undersized", 2, 5, 1},
		{"batch size one", 4, 1, 4},
		{"empty input", 0, 5, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := Build(makeTargets(tt.targets, 100), Options{BatchSize: tt.batchSize})
			require.NoError(t, err)
			require.Len(t, plan.Batches, tt.want)
			require.Equal(t, tt.targets, plan.TotalTargets())

			seen := 0
			for _, b := range plan.Batches {
				require.LessOrEqual(t, len(b.Targets), tt.batchSize)
				for _, target := range b.Targets {
					require.Equal(t, fmt.Sprintf("u%d", seen), target.UserID)
					seen++
				}
			}
		})
	}
}

// TestTimeoutFormula pins the operational constants: 5 creators at 100
// notes each estimate to 5*(100*4s+60s) = 2300s, padded by 1.5 to 3450s.
func TestTimeoutFormula(t *testing.T) {
	t.Parallel()

	plan, err := Build(makeTargets(5, 100), Options{BatchSize: 5})
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)
	require.Equal(t, 3450*time.Second, plan.Batches[0].Timeout)
}

// TestTimeoutClamping exercises both clamp bounds.
func TestTimeoutClamping(t *testing.T) {
	t.Parallel()

	// One creator, one note: raw estimate 64s * 1.5 = 96s, below the floor.
	plan, err := Build(makeTargets(1, 1), Options{BatchSize: 5})
	require.NoError(t, err)
	require.Equal(t, DefaultMinTimeout, plan.Batches[0].Timeout)

	// Twenty creators at 200 notes: raw estimate far above the two-hour cap.
	plan, err = Build(makeTargets(20, 200), Options{BatchSize: 20})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxTimeout, plan.Batches[0].Timeout)
}

// TestTimeoutMonotonic checks the timeout never decreases when either the
// target count or the per-creator ceiling grows.
func TestTimeoutMonotonic(t *testing.T) {
	t.Parallel()

	opts := Options{BatchSize: 20}

	var prev time.Duration
	for n := 1; n <= 20; n++ {
		plan, err := Build(makeTargets(n, 100), opts)
		require.NoError(t, err)
		require.GreaterOrEqual(t, plan.Batches[0].Timeout, prev)
		prev = plan.Batches[0].Timeout
	}

	prev = 0
	for remaining := 1; remaining <= 200; remaining += 20 {
		plan, err := Build(makeTargets(5, remaining), opts)
		require.NoError(t, err)
		require.GreaterOrEqual(t, plan.Batches[0].Timeout, prev)
		prev = plan.Batches[0].Timeout
	}
}

// TestCeilingFloor: a creator with nothing left still requests one note,
// never zero and never the full original target.
func TestCeilingFloor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, Target{Remaining: 0}.Ceiling())
	require.Equal(t, 1, Target{Remaining: -3}.Ceiling())
	require.Equal(t, 1, Target{Remaining: 1}.Ceiling())
	require.Equal(t, 80, Target{Remaining: 80}.Ceiling())
}

// TestBuildRejectsBadOptions covers option validation.
func TestBuildRejectsBadOptions(t *testing.T) {
	t.Parallel()

	_, err := Build(makeTargets(3, 10), Options{BatchSize: 50})
	require.Error(t, err)

	_, err = Build(makeTargets(3, 10), Options{
		MinTimeout: time.Hour,
		MaxTimeout: time.Minute,
	})
	require.Error(t, err)
}
