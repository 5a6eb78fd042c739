package mapping

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/analog"
	"analogpad/internal/curve"
	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
	"analogpad/internal/profile"
)

// recordingSink counts sends and keeps the last report.
type recordingSink struct {
	mu      sync.Mutex
	last    gamepad.Report
	sends   atomic.Uint64
	notRdy  bool
	failing error
}

func (s *recordingSink) Ready() bool { return !s.notRdy }

func (s *recordingSink) Send(r gamepad.Report) error {
	s.sends.Add(1)
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return s.failing
}

func (s *recordingSink) Last() gamepad.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func linear(key string, c gamepad.Control) profile.KeyMapping {
	return profile.KeyMapping{
		KeyName:       key,
		Control:       c,
		Curve:         curve.Curve{Kind: curve.Linear},
		DeadZoneInner: 0.05,
		DeadZoneOuter: 0.95,
	}
}

func compiled(t *testing.T, mappings ...profile.KeyMapping) *profile.Compiled {
	t.Helper()
	p := profile.Profile{
		Name:        "Test",
		SubProfiles: []profile.SubProfile{{Name: "Main", Mappings: mappings}},
	}
	c := profile.Compile(&p, "Main")
	require.NotNil(t, c)
	return c
}

func newTestEngine(rate int) (*Engine, *analog.Simulated, *recordingSink, *gamepad.SharedState) {
	src := analog.NewSimulated()
	sink := &recordingSink{}
	state := gamepad.NewSharedState()
	cfg := DefaultConfig()
	cfg.RateHz = rate
	return New(src, sink, state, cfg, nil), src, sink, state
}

// =============================================================================
// Single ticks
// =============================================================================

func TestTickScenarioLeftStickUp(t *testing.T) {
	e, src, sink, _ := newTestEngine(120)
	e.SetProfile(compiled(t, linear("W", gamepad.LeftStickUp)))

	src.Press(keys.VKW, 0.5)
	e.tick()

	r := sink.Last()
	assert.InDelta(t, 16383, int(r.LeftY), 1)
	assert.Zero(t, r.LeftX)
	assert.Zero(t, r.RightY)
	assert.Equal(t, uint64(1), e.hits.Load())
	assert.Zero(t, e.misses.Load())
}

func TestTickMaxAggregation(t *testing.T) {
	e, src, sink, _ := newTestEngine(120)
	noDeadZone := func(key string) profile.KeyMapping {
		m := linear(key, gamepad.LeftStickUp)
		m.DeadZoneInner, m.DeadZoneOuter = 0, 1
		return m
	}
	e.SetProfile(compiled(t, noDeadZone("W"), noDeadZone("Up")))

	src.Press(keys.VKW, 0.3)
	src.Press(keys.Code("Up"), 0.7)
	e.tick()

	assert.InDelta(t, 0.7*32767, float64(sink.Last().LeftY), 2)
}

func TestTickOpposingHalfAxes(t *testing.T) {
	e, src, sink, _ := newTestEngine(120)
	e.SetProfile(compiled(t,
		linear("A", gamepad.LeftStickLeft),
		linear("D", gamepad.LeftStickRight),
		linear("Q", gamepad.LeftTrigger),
	))

	src.Press(keys.VKA, 1)
	src.Press(keys.VKD, 1)
	src.Press(keys.Code("Q"), 1)
	e.tick()

	r := sink.Last()
	assert.Zero(t, r.LeftX)
	assert.Equal(t, uint8(255), r.LeftTrigger)

	src.Release(keys.VKD)
	e.tick()
	assert.Equal(t, int16(-32767), sink.Last().LeftX)
}

func TestTickCountsMissesAndSkipsButtons(t *testing.T) {
	e, src, sink, state := newTestEngine(120)
	e.SetProfile(compiled(t, linear("W", gamepad.LeftStickUp), linear("Enter", gamepad.ButtonA)))
	state.SetButton(gamepad.ButtonY, true)

	src.Press(keys.VKW, 1)
	src.Press(keys.VKEnter, 1)
	src.Press(keys.Code("K"), 1)
	e.tick()

	r := sink.Last()
	assert.Equal(t, uint64(2), e.hits.Load())
	assert.Equal(t, uint64(1), e.misses.Load())
	assert.False(t, r.Pressed(gamepad.ButtonA), "analog depth never writes buttons")
	assert.True(t, r.Pressed(gamepad.ButtonY), "buttons from the shared state are transmitted")
}

func TestTickWithoutProfile(t *testing.T) {
	e, src, sink, state := newTestEngine(120)
	state.SetSticks(1, 1, 1, 1)
	state.SetButton(gamepad.ButtonB, true)

	src.Press(keys.VKW, 1)
	e.tick()

	r := sink.Last()
	assert.Equal(t, gamepad.Report{Buttons: gamepad.BitB}, r)
	assert.Zero(t, e.hits.Load())
	assert.Zero(t, e.misses.Load())
	assert.Equal(t, uint64(1), sink.sends.Load())
}

func TestTickPollFailureIsEmptyFrame(t *testing.T) {
	e, src, sink, _ := newTestEngine(120)
	e.SetProfile(compiled(t, linear("W", gamepad.LeftStickUp)))

	src.Press(keys.VKW, 1)
	e.tick()
	require.Equal(t, int16(32767), sink.Last().LeftY)

	src.FailWith(analog.ErrDeviceDisconnected)
	e.tick()
	e.tick()
	assert.Zero(t, sink.Last().LeftY)
	assert.Equal(t, uint64(2), e.pollErrors.Load())
	assert.Equal(t, uint64(3), sink.sends.Load())

	src.FailWith(nil)
	e.tick()
	assert.Equal(t, int16(32767), sink.Last().LeftY)
	assert.Zero(t, e.pollStreak)
}

func TestTickSendFailureIsCounted(t *testing.T) {
	e, _, sink, _ := newTestEngine(120)
	sink.failing = errors.New("device gone")

	e.tick()
	e.tick()
	assert.Equal(t, uint64(2), e.sendErrors.Load())
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartRequiresReadyCollaborators(t *testing.T) {
	e, src, sink, _ := newTestEngine(500)

	src.SetReady(false)
	assert.ErrorIs(t, e.Start(), ErrSourceNotReady)
	assert.False(t, e.IsActive())

	src.SetReady(true)
	sink.notRdy = true
	assert.ErrorIs(t, e.Start(), ErrSinkNotReady)
	assert.False(t, e.IsActive())

	sink.notRdy = false
	require.NoError(t, e.Start())
	assert.True(t, e.IsActive())
	e.Stop()
}

func TestStopThenJoin(t *testing.T) {
	e, _, sink, _ := newTestEngine(1000)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool { return sink.sends.Load() >= 5 }, 2*time.Second, time.Millisecond)
	e.Stop()
	assert.False(t, e.IsActive())

	after := sink.sends.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, sink.sends.Load())

	e.Stop()
}

func TestMetricsFrozenAfterStop(t *testing.T) {
	e, _, sink, _ := newTestEngine(1000)
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return sink.sends.Load() >= 5 }, 2*time.Second, time.Millisecond)
	e.Stop()

	first := e.Metrics()
	assert.False(t, first.Active)
	assert.Positive(t, first.MeasuredHz)
	time.Sleep(30 * time.Millisecond)

	second := e.Metrics()
	assert.Equal(t, first.Uptime, second.Uptime)
	assert.Equal(t, first.MeasuredHz, second.MeasuredHz)
}

func TestRunningLoopDrivesSink(t *testing.T) {
	e, src, sink, _ := newTestEngine(1000)
	e.SetProfile(compiled(t, linear("W", gamepad.LeftStickUp)))
	src.Press(keys.VKW, 0.5)

	require.NoError(t, e.Start())
	defer e.Stop()

	require.Eventually(t, func() bool {
		return sink.Last().LeftY > 16000
	}, 2*time.Second, time.Millisecond)

	m := e.Metrics()
	assert.True(t, m.Active)
	assert.Equal(t, 1000, m.TargetHz)
	assert.NotZero(t, m.Frames)
	assert.NotZero(t, m.Hits)
	assert.GreaterOrEqual(t, m.MaxTick, m.AvgTick)
}

func TestHotSwapWhileRunning(t *testing.T) {
	e, src, sink, _ := newTestEngine(1000)
	up := compiled(t, linear("W", gamepad.LeftStickUp))
	down := compiled(t, linear("W", gamepad.LeftStickDown))
	e.SetProfile(up)
	src.Press(keys.VKW, 1)

	require.NoError(t, e.Start())
	defer e.Stop()

	require.Eventually(t, func() bool { return sink.Last().LeftY == 32767 }, 2*time.Second, time.Millisecond)

	var torn atomic.Bool
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if y := sink.Last().LeftY; y != 32767 && y != -32767 && y != 0 {
				torn.Store(true)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			e.SetProfile(down)
		} else {
			e.SetProfile(up)
		}
		time.Sleep(100 * time.Microsecond)
	}
	e.SetProfile(down)
	close(stop)
	wg.Wait()

	assert.False(t, torn.Load())
	require.Eventually(t, func() bool { return sink.Last().LeftY == -32767 }, 2*time.Second, time.Millisecond)
	assert.Same(t, down, e.Profile())
}

func TestStartWhileRunningRestartsAndResetsCounters(t *testing.T) {
	e, _, sink, _ := newTestEngine(1000)
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return e.Metrics().Frames >= 20 }, 2*time.Second, time.Millisecond)

	require.NoError(t, e.Start())
	defer e.Stop()
	assert.True(t, e.IsActive())
	assert.Less(t, e.Metrics().Frames, uint64(20))
	require.Eventually(t, func() bool { return sink.sends.Load() > 20 }, 2*time.Second, time.Millisecond)
}

func TestReconfigure(t *testing.T) {
	e, _, _, _ := newTestEngine(1000)

	cfg := DefaultConfig()
	cfg.RateHz = 250
	require.NoError(t, e.Reconfigure(cfg))
	assert.False(t, e.IsActive(), "a stopped engine stays stopped")
	assert.Equal(t, 250, e.Config().RateHz)

	require.NoError(t, e.Start())
	cfg.RateHz = 500
	require.NoError(t, e.Reconfigure(cfg))
	assert.True(t, e.IsActive())
	assert.Equal(t, 500, e.Metrics().TargetHz)
	e.Stop()
}

func TestConfigPeriodAndBudget(t *testing.T) {
	cfg := Config{RateHz: 100}
	assert.Equal(t, 10*time.Millisecond, cfg.Period())
	assert.Equal(t, 10*time.Millisecond, cfg.budget())

	cfg.WarnBudget = 3 * time.Millisecond
	assert.Equal(t, 3*time.Millisecond, cfg.budget())

	assert.Equal(t, time.Second/120, Config{}.Period())
}

func TestMetricsHitRate(t *testing.T) {
	assert.Zero(t, Metrics{}.HitRate())
	assert.InDelta(t, 0.75, Metrics{Hits: 3, Misses: 1}.HitRate(), 1e-9)
}
