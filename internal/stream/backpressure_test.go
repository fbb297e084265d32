package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ey-asu-rnd/streamguard/internal/config"
)

func TestMonitor_Watermarks(t *testing.T) {
	m := NewMonitor(config.ChannelBlock, 100)

	m.UpdateFill(50)
	assert.False(t, m.ShouldApplyBackpressure())

	m.UpdateFill(80)
	assert.True(t, m.ShouldApplyBackpressure())

	m.UpdateFill(40)
	assert.True(t, m.HasRecovered())

	m.RecordDropped(3)
	m.RecordBlocked(2 * time.Millisecond)
	stats := m.Stats()
	assert.Equal(t, int64(3), stats.ItemsDropped)
	assert.Equal(t, 2*time.Millisecond, stats.BlockedTime)
	assert.False(t, stats.UnderPressure)
}

func TestMonitor_WithWatermarksClamps(t *testing.T) {
	m := NewMonitor(config.ChannelBlock, 10).WithWatermarks(1.5, 2.0)
	assert.Equal(t, 1.0, m.high)
	assert.Equal(t, 1.0, m.low)
}

type steppedClock struct{ now time.Time }

func (c *steppedClock) Now() time.Time { return c.now }

func TestAdaptive_Adjust(t *testing.T) {
	clock := &steppedClock{now: time.Unix(0, 0)}
	a := newAdaptive(clock.Now)

	a.Adjust(0.9)
	assert.Zero(t, a.CurrentDelay(), "adjustments within the interval are ignored")

	clock.now = clock.now.Add(100 * time.Millisecond)
	a.Adjust(0.9)
	// From zero: step = max/10 = 1ms, scaled by error*2 = 0.4.
	assert.InDelta(t, float64(400*time.Microsecond), float64(a.CurrentDelay()), 10)

	clock.now = clock.now.Add(100 * time.Millisecond)
	a.Adjust(0.9)
	assert.InDelta(t, float64(440*time.Microsecond), float64(a.CurrentDelay()), 10)

	clock.now = clock.now.Add(100 * time.Millisecond)
	a.Adjust(0.2)
	assert.InDelta(t, float64(330*time.Microsecond), float64(a.CurrentDelay()), 10)

	a.Reset()
	assert.Zero(t, a.CurrentDelay())
}

func TestAdaptive_ClampsToMax(t *testing.T) {
	clock := &steppedClock{now: time.Unix(0, 0)}
	a := newAdaptive(clock.Now).WithDelayBounds(0, time.Millisecond)

	for i := 0; i < 50; i++ {
		clock.now = clock.now.Add(time.Second)
		a.Adjust(1.0)
	}
	assert.Equal(t, time.Millisecond, a.CurrentDelay())
}

func TestAwareProducer_States(t *testing.T) {
	p := NewAwareProducer(config.ChannelBlock, 100)

	tests := []struct {
		fill  int
		state PressureState
		delay time.Duration
	}{
		{50, PressureNormal, 0},
		{85, PressureSlowingDown, 100 * time.Microsecond},
		{60, PressureRecovering, 100 * time.Microsecond},
		{85, PressureSlowingDown, 100 * time.Microsecond},
		{100, PressureBlocked, time.Millisecond},
		{40, PressureNormal, 0},
	}

	for _, tt := range tests {
		if got := p.Update(tt.fill); got != tt.state {
			t.Errorf("Update(%d) = %s, want %s", tt.fill, got, tt.state)
		}
		if got := p.RecommendedDelay(); got != tt.delay {
			t.Errorf("fill %d: delay %v, want %v", tt.fill, got, tt.delay)
		}
	}

	// Only the transition out of Normal counts as a backpressure event.
	assert.Equal(t, int64(1), p.Stats().BackpressureEvents)
}

func TestAwareProducer_Adaptive(t *testing.T) {
	clock := &steppedClock{now: time.Unix(0, 0)}
	a := newAdaptive(clock.Now)
	p := NewAwareProducer(config.ChannelBlock, 10).WithAdaptive(a)

	clock.now = clock.now.Add(time.Second)
	assert.Equal(t, PressureSlowingDown, p.Update(9))
	assert.Equal(t, a.CurrentDelay(), p.RecommendedDelay())
	assert.Positive(t, p.RecommendedDelay())
}
