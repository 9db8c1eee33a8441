package transition_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/ambient-brightness-daemon/internal/transition"
)

// recorder collects applied values and sleeps without blocking.
type recorder struct {
	applied []int
	sleeps  []time.Duration
}

func (r *recorder) apply(v int) {
	r.applied = append(r.applied, v)
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func newEngine(r *recorder, cfg transition.Config) *transition.Engine {
	return transition.NewEngine(cfg, transition.WithSleep(r.sleep))
}

func TestNewPlan(t *testing.T) {
	cfg := transition.Config{Duration: 5 * time.Second, StepSize: 2}

	tests := []struct {
		name          string
		current       int
		target        int
		expectedSteps int
		expectedDelay time.Duration
		expectedDir   int
	}{
		{
			name:          "brightening 30 to 80",
			current:       30,
			target:        80,
			expectedSteps: 25,
			expectedDelay: 200 * time.Millisecond,
			expectedDir:   1,
		},
		{
			name:          "dimming 80 to 30",
			current:       80,
			target:        30,
			expectedSteps: 25,
			expectedDelay: 200 * time.Millisecond,
			expectedDir:   -1,
		},
		{
			name:          "distance below one step still takes one step",
			current:       50,
			target:        51,
			expectedSteps: 1,
			expectedDelay: 5 * time.Second,
			expectedDir:   1,
		},
		{
			name:          "odd distance uses integer division",
			current:       10,
			target:        15,
			expectedSteps: 2,
			expectedDelay: 2500 * time.Millisecond,
			expectedDir:   1,
		},
		{
			name:          "equal values is a no-op",
			current:       50,
			target:        50,
			expectedSteps: 0,
			expectedDelay: 0,
			expectedDir:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := transition.NewPlan(tt.current, tt.target, cfg)
			assert.Equal(t, tt.expectedSteps, plan.Steps)
			assert.Equal(t, tt.expectedDelay, plan.StepDelay)
			assert.Equal(t, tt.expectedDir, plan.Direction)
		})
	}
}

func TestNewPlan_NonPositiveStepSize(t *testing.T) {
	plan := transition.NewPlan(20, 30, transition.Config{Duration: time.Second, StepSize: 0})
	assert.Equal(t, 10, plan.Steps)
	assert.Equal(t, 100*time.Millisecond, plan.StepDelay)
}

func TestPlan_Values(t *testing.T) {
	plan := transition.NewPlan(30, 80, transition.Config{Duration: 5 * time.Second, StepSize: 2})
	values := plan.Values()

	require.Len(t, values, 26)
	assert.Equal(t, 30, values[0], "first step starts at the current value")
	assert.Equal(t, 80, values[len(values)-1], "last value is the target")
	// p = 1/25 -> 1 - 0.96^3 = 0.115264 -> 30 + 5.76
	assert.Equal(t, 35, values[1])
}

func TestEngine_Run_NoOp(t *testing.T) {
	r := &recorder{}
	engine := newEngine(r, transition.DefaultConfig())

	err := engine.Run(context.Background(), 50, 50, r.apply, nil)
	require.NoError(t, err)
	assert.Empty(t, r.applied)
	assert.Empty(t, r.sleeps)
}

func TestEngine_Run_Scenario(t *testing.T) {
	r := &recorder{}
	cfg := transition.DefaultConfig()
	cfg.Duration = 5 * time.Second
	cfg.StepSize = 2
	engine := newEngine(r, cfg)

	err := engine.Run(context.Background(), 30, 80, r.apply, nil)
	require.NoError(t, err)

	require.Len(t, r.applied, 26, "25 steps plus the final correction")
	assert.Equal(t, 80, r.applied[len(r.applied)-1])

	require.Len(t, r.sleeps, 25)
	for _, d := range r.sleeps {
		assert.Equal(t, 200*time.Millisecond, d)
	}
}

func TestEngine_Run_EndpointExact(t *testing.T) {
	for current := 5; current <= 100; current += 7 {
		for target := 5; target <= 100; target += 9 {
			if current == target {
				continue
			}
			r := &recorder{}
			engine := newEngine(r, transition.DefaultConfig())

			require.NoError(t, engine.Run(context.Background(), current, target, r.apply, nil))
			require.NotEmpty(t, r.applied)
			assert.Equal(t, target, r.applied[len(r.applied)-1], "current=%d target=%d", current, target)
		}
	}
}

func TestEngine_Run_MonotonicApproach(t *testing.T) {
	for current := 5; current <= 100; current += 5 {
		for target := 5; target <= 100; target += 5 {
			if current == target {
				continue
			}
			r := &recorder{}
			engine := newEngine(r, transition.DefaultConfig())
			require.NoError(t, engine.Run(context.Background(), current, target, r.apply, nil))

			for i := 1; i < len(r.applied); i++ {
				if target > current {
					assert.GreaterOrEqual(t, r.applied[i], r.applied[i-1])
					assert.LessOrEqual(t, r.applied[i], target)
				} else {
					assert.LessOrEqual(t, r.applied[i], r.applied[i-1])
					assert.GreaterOrEqual(t, r.applied[i], target)
				}
			}
		}
	}
}

func TestEngine_Run_EaseOutFrontLoadsChange(t *testing.T) {
	r := &recorder{}
	engine := newEngine(r, transition.Config{Duration: time.Second, StepSize: 1})
	require.NoError(t, engine.Run(context.Background(), 10, 90, r.apply, nil))

	half := r.applied[len(r.applied)/2]
	assert.Greater(t, half, 50, "more than half of the change happens in the first half of the steps")
}

func TestEngine_Run_WaitsForFeedback(t *testing.T) {
	r := &recorder{}
	cfg := transition.DefaultConfig()
	cfg.StepSize = 10
	cfg.PollInterval = 50 * time.Millisecond
	engine := newEngine(r, cfg)

	// The device lags: it reports the commanded value only on the third read.
	var lastCommanded, reads int
	apply := func(v int) {
		r.apply(v)
		lastCommanded = v
		reads = 0
	}
	readActual := func() int {
		reads++
		if reads < 3 {
			return lastCommanded - 10
		}
		return lastCommanded
	}

	require.NoError(t, engine.Run(context.Background(), 20, 40, apply, readActual))

	assert.Equal(t, []int{20, 37, 40}, r.applied)

	polls := 0
	for _, d := range r.sleeps {
		if d == cfg.PollInterval {
			polls++
		}
	}
	assert.Equal(t, 4, polls, "two polls per step")
}

func TestEngine_Run_FeedbackToleranceAcceptsNeighbour(t *testing.T) {
	r := &recorder{}
	engine := newEngine(r, transition.DefaultConfig())

	var last int
	apply := func(v int) {
		r.apply(v)
		last = v
	}
	calls := 0
	readActual := func() int {
		calls++
		return last - 1
	}

	require.NoError(t, engine.Run(context.Background(), 40, 44, apply, readActual))
	assert.Equal(t, 2, calls, "one read per step, no polling")
}

func TestEngine_Run_FeedbackTimeoutProceeds(t *testing.T) {
	r := &recorder{}
	cfg := transition.Config{
		Duration:      time.Second,
		StepSize:      10,
		PollInterval:  50 * time.Millisecond,
		SyncTolerance: 1,
		SyncTimeout:   200 * time.Millisecond,
	}
	engine := newEngine(r, cfg)

	stuck := func() int { return 0 }

	require.NoError(t, engine.Run(context.Background(), 20, 40, r.apply, stuck))
	assert.Equal(t, 40, r.applied[len(r.applied)-1])

	polls := 0
	for _, d := range r.sleeps {
		if d == cfg.PollInterval {
			polls++
		}
	}
	assert.Equal(t, 8, polls, "four polls per step before giving up")
}

func TestEngine_Run_CancelledDuringFeedback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := transition.DefaultConfig()
	cfg.SyncTimeout = 0

	polls := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 5 {
			cancel()
		}
		return ctx.Err()
	}
	engine := transition.NewEngine(cfg, transition.WithSleep(sleep))

	var applied []int
	err := engine.Run(ctx, 20, 60, func(v int) { applied = append(applied, v) }, func() int { return 0 })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{20}, applied, "no final correction after cancellation")
}

func TestEngine_Run_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &recorder{}
	engine := newEngine(r, transition.DefaultConfig())

	err := engine.Run(ctx, 20, 60, r.apply, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.applied)
}

func TestEngine_Config(t *testing.T) {
	cfg := transition.DefaultConfig()
	assert.Equal(t, cfg, transition.NewEngine(cfg).Config())
}
