// SPDX-License-Identifier: GPL-3.0-only

// Package transition moves a display from one brightness percentage to
// another along an eased curve, optionally waiting for the device to report
// each commanded step before moving on.
package transition

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ambient-brightness-daemon/internal/brightness"
	"github.com/shini4i/ambient-brightness-daemon/internal/timeutil"
)

// Config holds the tunables of a transition.
type Config struct {
	// Duration is the nominal wall-clock time of a whole transition,
	// independent of the distance travelled.
	Duration time.Duration

	// StepSize is the number of percent points covered per step on average.
	StepSize int

	// PollInterval is the delay between feedback reads while waiting for the
	// device to reach a commanded value.
	PollInterval time.Duration

	// SyncTolerance is the maximum accepted distance between the commanded
	// and the observed value.
	SyncTolerance int

	// SyncTimeout bounds the feedback wait of a single step. Zero waits
	// until the device converges, however long that takes.
	SyncTimeout time.Duration
}

// DefaultConfig returns the default transition configuration.
func DefaultConfig() Config {
	return Config{
		Duration:      5 * time.Second,
		StepSize:      2,
		PollInterval:  50 * time.Millisecond,
		SyncTolerance: 1,
		SyncTimeout:   2 * time.Second,
	}
}

// Plan describes how a transition walks from Current to Target.
type Plan struct {
	Current   int
	Target    int
	Steps     int
	StepDelay time.Duration
	// Direction is +1 when brightening, -1 when dimming and 0 when there is
	// nothing to do.
	Direction int
}

// NewPlan derives the step schedule for moving from current to target.
// The step count is the integer quotient of the distance and the step size
// but never less than one, so the total duration stays constant and only
// the step size varies.
func NewPlan(current, target int, cfg Config) Plan {
	p := Plan{Current: current, Target: target}
	if current == target {
		return p
	}

	p.Direction = 1
	if target < current {
		p.Direction = -1
	}

	stepSize := cfg.StepSize
	if stepSize < 1 {
		stepSize = 1
	}

	p.Steps = max(p.distance()/stepSize, 1)
	p.StepDelay = cfg.Duration / time.Duration(p.Steps)
	return p
}

func (p Plan) distance() int {
	if p.Target > p.Current {
		return p.Target - p.Current
	}
	return p.Current - p.Target
}

// Value returns the eased, clamped brightness commanded at the given step.
func (p Plan) Value(step int) int {
	if p.Steps == 0 {
		return p.Target
	}
	progress := brightness.EaseOutCubic(float64(step) / float64(p.Steps))
	v := float64(p.Current) + float64(p.distance())*progress*float64(p.Direction)
	return brightness.ClampPercent(v)
}

// Values returns every intermediate value of the plan followed by the final
// correction to Target. It returns nil for a no-op plan.
func (p Plan) Values() []int {
	if p.Direction == 0 {
		return nil
	}
	values := make([]int, 0, p.Steps+1)
	for step := 0; step < p.Steps; step++ {
		values = append(values, p.Value(step))
	}
	return append(values, p.Target)
}

// Engine executes transition plans.
type Engine struct {
	cfg   Config
	sleep timeutil.SleepFunc
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSleep replaces the sleep used between steps and feedback polls.
func WithSleep(fn timeutil.SleepFunc) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// NewEngine creates a transition engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		sleep: timeutil.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run walks the display from current to target. apply is called with every
// intermediate value and finally with target itself. When readActual is not
// nil, each step waits until the observed brightness is within tolerance of
// the commanded value (bounded by SyncTimeout).
//
// Run returns ctx.Err() if the context is cancelled; the final correction is
// skipped in that case.
func (e *Engine) Run(ctx context.Context, current, target int, apply func(int), readActual func() int) error {
	plan := NewPlan(current, target, e.cfg)
	if plan.Direction == 0 {
		return nil
	}

	log.Debug().
		Int("from", current).
		Int("to", target).
		Int("steps", plan.Steps).
		Dur("stepDelay", plan.StepDelay).
		Msg("Starting brightness transition")

	for step := 0; step < plan.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		value := plan.Value(step)
		apply(value)

		if readActual != nil {
			if err := e.waitFor(ctx, value, readActual); err != nil {
				return err
			}
		}

		if err := e.sleep(ctx, plan.StepDelay); err != nil {
			return err
		}
	}

	apply(target)
	return nil
}

// waitFor polls readActual until it reports a value within tolerance of want.
func (e *Engine) waitFor(ctx context.Context, want int, readActual func() int) error {
	maxPolls := -1
	if e.cfg.SyncTimeout > 0 {
		maxPolls = 1
		if e.cfg.PollInterval > 0 {
			maxPolls = int((e.cfg.SyncTimeout + e.cfg.PollInterval - 1) / e.cfg.PollInterval)
		}
	}

	for polls := 0; ; polls++ {
		if abs(readActual()-want) <= e.cfg.SyncTolerance {
			return nil
		}
		if maxPolls >= 0 && polls >= maxPolls {
			log.Warn().
				Int("commanded", want).
				Dur("timeout", e.cfg.SyncTimeout).
				Msg("Display did not reach commanded brightness, continuing")
			return nil
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
