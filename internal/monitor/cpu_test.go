package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

func cpuConfig() config.CPUConfig {
	c := config.DefaultCPU()
	c.Enabled = true
	c.SampleInterval = 0
	c.WindowSize = 2
	c.ThrottleDelay = time.Millisecond
	return c
}

func TestCPU_FirstSampleIsZero(t *testing.T) {
	probe := &platform.Fake{}
	probe.AdvanceCPU(50, 50)

	c := NewCPU(cpuConfig(), probe)
	load, ok := c.Sample()
	require.True(t, ok)
	assert.Zero(t, load)
}

func TestCPU_LoadFromDeltas(t *testing.T) {
	probe := &platform.Fake{}
	c := NewCPU(cpuConfig(), probe)
	c.Sample()

	probe.AdvanceCPU(1, 1)
	load, _ := c.Sample()
	assert.InDelta(t, 0.5, load, 1e-9)

	probe.AdvanceCPU(2, 0)
	load, _ = c.Sample()
	assert.InDelta(t, 1.0, load, 1e-9)

	stats := c.Stats()
	assert.InDelta(t, 0.75, stats.AverageLoad, 1e-9, "window holds the last two samples")
	assert.InDelta(t, 1.0, stats.PeakLoad, 1e-9)
	assert.Equal(t, uint64(3), stats.SamplesCollected)
	assert.Greater(t, stats.P95Load, 0.9)
}

func TestCPU_ThrottleHysteresis(t *testing.T) {
	probe := &platform.Fake{}
	c := NewCPU(cpuConfig(), probe)
	c.Sample()

	probe.AdvanceCPU(9.6, 0.4) // 0.96
	c.Sample()
	assert.True(t, c.IsThrottling())
	assert.Equal(t, uint64(1), c.Stats().ThrottleCount)

	probe.AdvanceCPU(9, 1) // 0.90, between high and critical
	c.Sample()
	assert.True(t, c.IsThrottling())

	probe.AdvanceCPU(9.7, 0.3) // critical again while already throttling
	c.Sample()
	assert.Equal(t, uint64(1), c.Stats().ThrottleCount)

	probe.AdvanceCPU(5, 5) // 0.50
	c.Sample()
	assert.False(t, c.IsThrottling())
}

func TestCPU_NoThrottleWithoutAuto(t *testing.T) {
	probe := &platform.Fake{}
	cfg := cpuConfig()
	cfg.AutoThrottle = false
	c := NewCPU(cfg, probe)
	c.Sample()

	probe.AdvanceCPU(99, 1)
	c.Sample()
	assert.False(t, c.IsThrottling())
}

func TestCPU_CheckNowCritical(t *testing.T) {
	probe := &platform.Fake{}
	c := NewCPU(cpuConfig(), probe)
	require.NoError(t, c.CheckNow())

	probe.AdvanceCPU(97, 3)
	err := c.CheckNow()

	var overload *sgerrors.CPUOverloadError
	require.ErrorAs(t, err, &overload)
	assert.InDelta(t, 0.97, overload.Load, 1e-9)
	assert.Equal(t, 0.95, overload.Threshold)
	assert.True(t, sgerrors.IsRetriable(err))
}

func TestCPU_SampleIntervalCaches(t *testing.T) {
	probe := &platform.Fake{}
	cfg := cpuConfig()
	cfg.SampleInterval = time.Hour
	c := NewCPU(cfg, probe)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Sample()
	probe.AdvanceCPU(10, 0)
	load, ok := c.Sample()
	assert.True(t, ok)
	assert.Zero(t, load)
	assert.Equal(t, 1, probe.CPUCalls())

	now = now.Add(time.Hour)
	load, _ = c.Sample()
	assert.InDelta(t, 1.0, load, 1e-9)
	assert.Equal(t, 2, probe.CPUCalls())
}

func TestCPU_MaybeThrottle(t *testing.T) {
	probe := &platform.Fake{}
	cfg := cpuConfig()
	cfg.ThrottleDelay = time.Hour
	c := NewCPU(cfg, probe)

	// Not throttling: returns immediately.
	require.NoError(t, c.MaybeThrottleContext(context.Background()))

	c.Sample()
	probe.AdvanceCPU(99, 1)
	c.Sample()
	require.True(t, c.IsThrottling())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.MaybeThrottleContext(ctx), context.Canceled)
}

func TestCPU_DisabledAndUnsupported(t *testing.T) {
	c := NewCPU(config.DefaultCPU(), &platform.Fake{})
	_, ok := c.Sample()
	assert.False(t, ok)
	assert.NoError(t, c.CheckNow())

	n := NewCPU(cpuConfig(), platform.Null{})
	_, ok = n.Sample()
	assert.False(t, ok)
	assert.NoError(t, n.CheckNow())
	assert.False(t, n.IsAvailable())
}

func TestCPU_ResetStats(t *testing.T) {
	probe := &platform.Fake{}
	c := NewCPU(cpuConfig(), probe)
	c.Sample()
	probe.AdvanceCPU(99, 1)
	c.Sample()

	c.ResetStats()
	stats := c.Stats()
	assert.Zero(t, stats.SamplesCollected)
	assert.Zero(t, stats.PeakLoad)
	assert.Zero(t, stats.AverageLoad)
	assert.False(t, stats.IsThrottling)

	// Baseline kept: next sample measures a delta.
	probe.AdvanceCPU(1, 1)
	load, _ := c.Sample()
	assert.InDelta(t, 0.5, load, 1e-9)
}
