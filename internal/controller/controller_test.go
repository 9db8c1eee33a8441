package controller_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shini4i/ambient-brightness-daemon/internal/backlight"
	"github.com/shini4i/ambient-brightness-daemon/internal/backlight/mocks"
	"github.com/shini4i/ambient-brightness-daemon/internal/controller"
	"github.com/shini4i/ambient-brightness-daemon/internal/profile"
	"github.com/shini4i/ambient-brightness-daemon/internal/sampler"
	"github.com/shini4i/ambient-brightness-daemon/internal/transition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeSampler struct {
	ambient float64
	stats   sampler.Stats
	err     error
	bursts  []sampler.Burst
}

func (f *fakeSampler) Sample(_ context.Context, b sampler.Burst) (float64, error) {
	f.bursts = append(f.bursts, b)
	return f.ambient, f.err
}

func (f *fakeSampler) Calibrate(_ context.Context, b sampler.Burst) (sampler.Stats, error) {
	f.bursts = append(f.bursts, b)
	return f.stats, f.err
}

type fixedProvider struct {
	resolved profile.Resolved
	err      error
}

func (p fixedProvider) Resolve(context.Context) (profile.Resolved, error) {
	return p.resolved, p.err
}

type recorder struct {
	mu           sync.Mutex
	cycles       []controller.Result
	calibrations []profile.Profile
	done         chan struct{}
}

func (r *recorder) CycleCompleted(res controller.Result) {
	r.mu.Lock()
	r.cycles = append(r.cycles, res)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
}

func (r *recorder) CalibrationChanged(p profile.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calibrations = append(r.calibrations, p)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newEngine(cfg transition.Config) *transition.Engine {
	return transition.NewEngine(cfg, transition.WithSleep(noSleep))
}

func defaultProvider() profile.Provider {
	return fixedProvider{resolved: profile.Resolved{Profile: profile.Default(), Source: profile.SourceDefault}}
}

func TestRunCycle_MapsAndTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)

	var applied []int
	dev.EXPECT().Read().Return(30, nil)
	dev.EXPECT().Apply(gomock.Any()).DoAndReturn(func(p int) error {
		applied = append(applied, p)
		return nil
	}).AnyTimes()

	s := &fakeSampler{ambient: 105}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := controller.New(
		controller.Config{Burst: sampler.DefaultConfig().Burst()},
		s, defaultProvider(), backlight.NewDegrading(dev), newEngine(transition.DefaultConfig()),
		controller.WithClock(func() time.Time { return now }),
	)

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, controller.Result{
		Time:     now,
		Ambient:  105,
		Previous: 30,
		Target:   55,
		Source:   profile.SourceDefault,
		DeviceOK: true,
	}, res)

	require.NotEmpty(t, applied)
	assert.Equal(t, 55, applied[len(applied)-1])
	for i := 1; i < len(applied); i++ {
		assert.GreaterOrEqual(t, applied[i], applied[i-1])
	}

	last, err := c.LastResult()
	require.NoError(t, err)
	assert.Equal(t, res, last)

	require.Len(t, s.bursts, 1)
	assert.Equal(t, sampler.Resolution{Width: 320, Height: 240}, s.bursts[0].Resolution)
}

func TestRunCycle_SamplingFailureSkipsCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)

	s := &fakeSampler{err: sampler.ErrNoUsableFrames}
	c := controller.New(controller.Config{}, s, defaultProvider(), backlight.NewDegrading(dev), newEngine(transition.DefaultConfig()))

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, sampler.ErrNoUsableFrames)

	_, err = c.LastResult()
	assert.ErrorIs(t, err, controller.ErrNoCycle)
}

func TestRunCycle_UnreadableDeviceStillApplies(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)

	dev.EXPECT().Read().Return(0, backlight.ErrUnavailable).Times(1)
	var applied []int
	dev.EXPECT().Apply(gomock.Any()).DoAndReturn(func(p int) error {
		applied = append(applied, p)
		return nil
	}).AnyTimes()

	cfg := controller.Config{FeedbackSync: true}
	c := controller.New(cfg, &fakeSampler{ambient: 170}, defaultProvider(), backlight.NewDegrading(dev), newEngine(transition.DefaultConfig()))

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.DeviceOK)
	assert.Equal(t, backlight.NeutralPercent, res.Previous)
	assert.Equal(t, 100, res.Target)
	assert.Equal(t, 100, applied[len(applied)-1])
}

func TestRunCycle_FeedbackSync(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)

	actual := 40
	dev.EXPECT().Read().DoAndReturn(func() (int, error) { return actual, nil }).AnyTimes()
	dev.EXPECT().Apply(gomock.Any()).DoAndReturn(func(p int) error {
		actual = p
		return nil
	}).AnyTimes()

	tcfg := transition.DefaultConfig()
	tcfg.StepSize = 10
	c := controller.New(controller.Config{FeedbackSync: true}, &fakeSampler{ambient: 40}, defaultProvider(), backlight.NewDegrading(dev), newEngine(tcfg))

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Target)
	assert.Equal(t, 10, actual)
}

func TestRunCycle_DegenerateProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := mocks.NewMockDevice(ctrl)
	dev.EXPECT().Read().Return(55, nil)

	provider := fixedProvider{resolved: profile.Resolved{
		Profile: profile.Profile{AmbientMin: 120, AmbientMax: 120},
		Source:  profile.SourceDisk,
	}}
	c := controller.New(controller.Config{}, &fakeSampler{ambient: 10}, provider, backlight.NewDegrading(dev), newEngine(transition.DefaultConfig()))

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, res.Target)
}

func TestRunCycle_ProviderError(t *testing.T) {
	provider := fixedProvider{err: context.Canceled}
	c := controller.New(controller.Config{}, &fakeSampler{}, provider, backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()))

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCycle_NotifiesObservers(t *testing.T) {
	rec := &recorder{}
	c := controller.New(controller.Config{}, &fakeSampler{ambient: 170}, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithObserver(rec))

	_, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.cycles, 1)
	assert.Equal(t, 100, rec.cycles[0].Target)
}

func TestRecalibrate(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	rec := &recorder{}
	s := &fakeSampler{stats: sampler.Stats{Min: 20, Max: 180, Median: 90, Count: 10}}

	c := controller.New(controller.Config{Burst: sampler.DefaultConfig().Burst()}, s, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithStore(store), controller.WithObserver(rec))

	p, err := c.Recalibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20.0, p.AmbientMin)
	assert.Equal(t, 180.0, p.AmbientMax)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, p.AmbientMin, saved.AmbientMin)
	require.Len(t, rec.calibrations, 1)
}

func TestRecalibrate_UsesCalibrationBurst(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	s := &fakeSampler{stats: sampler.Stats{Min: 20, Max: 180, Median: 90, Count: 10}}
	sc := sampler.DefaultConfig()

	c := controller.New(controller.Config{Burst: sc.Burst(), CalibrationBurst: sc.CalibrationBurst()}, s, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithStore(store))

	_, err := c.Recalibrate(context.Background())
	require.NoError(t, err)
	require.Len(t, s.bursts, 1)
	require.NotNil(t, s.bursts[0].Controls)
	assert.Equal(t, -6.0, s.bursts[0].Controls.Exposure)
}

func TestAddObserver_WhileRecalibrating(t *testing.T) {
	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	s := &fakeSampler{stats: sampler.Stats{Min: 20, Max: 180, Median: 90, Count: 10}}
	c := controller.New(controller.Config{Burst: sampler.DefaultConfig().Burst()}, s, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithStore(store))

	recs := make([]*recorder, 8)
	var wg sync.WaitGroup
	for i := range recs {
		recs[i] = &recorder{}
		wg.Add(2)
		go func(r *recorder) {
			defer wg.Done()
			c.AddObserver(r)
		}(recs[i])
		go func() {
			defer wg.Done()
			_, _ = c.Recalibrate(context.Background())
		}()
	}
	wg.Wait()

	_, err := c.Recalibrate(context.Background())
	require.NoError(t, err)
	for _, r := range recs {
		r.mu.Lock()
		assert.NotEmpty(t, r.calibrations)
		r.mu.Unlock()
	}
}

func TestRecalibrate_Errors(t *testing.T) {
	c := controller.New(controller.Config{}, &fakeSampler{}, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()))
	_, err := c.Recalibrate(context.Background())
	assert.Error(t, err)

	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	c = controller.New(controller.Config{}, &fakeSampler{err: sampler.ErrDeviceUnavailable}, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithStore(store))
	_, err = c.Recalibrate(context.Background())
	assert.ErrorIs(t, err, sampler.ErrDeviceUnavailable)

	_, err = store.Load()
	assert.ErrorIs(t, err, profile.ErrProfileMissing)
}

func TestRun_TriggersAndStops(t *testing.T) {
	rec := &recorder{done: make(chan struct{}, 4)}
	c := controller.New(controller.Config{}, &fakeSampler{ambient: 100}, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()),
		controller.WithObserver(rec))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, 0) }()

	waitCycle(t, rec.done)
	c.Trigger()
	waitCycle(t, rec.done)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestTrigger_Coalesces(t *testing.T) {
	c := controller.New(controller.Config{}, &fakeSampler{}, defaultProvider(), backlight.NewDegrading(nil), newEngine(transition.DefaultConfig()))
	c.Trigger()
	c.Trigger()
	c.Trigger()
}

func waitCycle(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a control cycle")
	}
}
