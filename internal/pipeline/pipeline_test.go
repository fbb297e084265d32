package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/degradation"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/governor"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
	"github.com/ey-asu-rnd/streamguard/internal/ratelimit"
	"github.com/ey-asu-rnd/streamguard/internal/record"
	"github.com/ey-asu-rnd/streamguard/internal/sink"
	"github.com/ey-asu-rnd/streamguard/internal/stream"
	"github.com/ey-asu-rnd/streamguard/internal/testutil"
)

const runTimeout = 10 * time.Second

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitDisabled()
	cfg.Channel.Capacity = 64
	cfg.Guard.CheckInterval = 1
	cfg.Pipeline.Producers = 3
	cfg.Pipeline.TotalRecords = 500
	cfg.Pipeline.BatchSize = 50
	cfg.Pipeline.ProgressInterval = 100
	cfg.Pipeline.AnomalyRate = 0
	return cfg
}

func testGovernor(probe platform.Probe) *governor.Governor {
	return governor.NewBuilder().Probe(probe).CheckInterval(1).MustBuild()
}

type fixture struct {
	cfg    *config.Config
	probe  *platform.Fake
	gov    *governor.Governor
	mem    *sink.Memory
	events *testutil.Recorder[record.Record]
}

func newFixture() *fixture {
	probe := platform.NewFake(100000, 50000)
	return &fixture{
		cfg:    testConfig(),
		probe:  probe,
		gov:    testGovernor(probe),
		mem:    sink.NewMemory(),
		events: &testutil.Recorder[record.Record]{},
	}
}

func (f *fixture) pipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()
	if deps.Governor == nil {
		deps.Governor = f.gov
	}
	if deps.Sink == nil {
		deps.Sink = f.mem
	}
	if deps.OnEvent == nil {
		deps.OnEvent = f.events.Record
	}
	p, err := New(f.cfg, deps)
	require.NoError(t, err)
	return p
}

// run calls Run with a deadline so a stuck pipeline fails instead of hanging.
func run(t *testing.T, ctx context.Context, p *Pipeline) (stream.Summary, error) {
	t.Helper()
	var (
		summary stream.Summary
		runErr  error
	)
	err := testutil.WithTimeout(runTimeout, func() error {
		summary, runErr = p.Run(ctx)
		return nil
	})
	require.NoError(t, err)
	return summary, runErr
}

func TestPipeline_RunToCompletion(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, Deps{})

	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), summary.TotalItems)
	assert.Equal(t, []string{"generation"}, summary.PhasesCompleted)
	assert.Zero(t, summary.ErrorCount)
	assert.Zero(t, summary.DroppedCount)

	records := f.mem.Records()
	require.Len(t, records, 500)
	seen := make(map[uint64]bool, len(records))
	for _, r := range records {
		assert.False(t, seen[r.Seq], "duplicate seq %d", r.Seq)
		seen[r.Seq] = true
		assert.Less(t, r.Seq, uint64(500))
		assert.True(t, r.Balanced())
	}

	assert.True(t, f.mem.Closed())
	assert.Equal(t, 1, f.mem.Flushes())

	stats := p.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, int64(500), stats.Generated)
	assert.Equal(t, int64(500), stats.Sent)
	assert.Equal(t, int64(500), stats.Written)
	assert.Equal(t, int64(10), stats.Batches)
	assert.Equal(t, int64(1), stats.Flushes)
	assert.Equal(t, degradation.LevelNormal, stats.Level)
	assert.Equal(t, uint64(record.SizeHint(records)), f.gov.Disk().Stats().EstimatedBytesWritten)
}

func TestPipeline_Events(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, Deps{})

	_, err := run(t, context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 10, f.events.Count(stream.EventBatchComplete))
	assert.Equal(t, 5, f.events.Count(stream.EventProgress))
	assert.Zero(t, f.events.Count(stream.EventError))
	assert.Zero(t, f.events.Count(stream.EventData))

	progress, ok := f.events.Last(stream.EventProgress)
	require.True(t, ok)
	assert.Equal(t, uint64(500), progress.Progress.ItemsGenerated)
	assert.Equal(t, int64(0), progress.Progress.ItemsRemaining)
	assert.Equal(t, "generation", progress.Progress.Phase)

	events := f.events.Events()
	last := events[len(events)-1]
	require.True(t, last.IsComplete())
	assert.Equal(t, uint64(500), last.Summary.TotalItems)

	var ids []uint64
	for _, ev := range events {
		if ev.Kind == stream.EventBatchComplete {
			ids = append(ids, ev.Batch.ID)
			assert.Equal(t, 50, ev.Batch.Count)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids)
}

func TestPipeline_RunsOnce(t *testing.T) {
	f := newFixture()

	var p *Pipeline
	nested := make(chan error, 1)
	f.events.OnRecord = func(ev stream.Event[record.Record]) {
		if ev.Kind == stream.EventBatchComplete && ev.Batch.ID == 1 {
			_, err := p.Run(context.Background())
			nested <- err
		}
	}
	p = f.pipeline(t, Deps{})

	_, err := run(t, context.Background(), p)
	require.NoError(t, err)
	assert.ErrorIs(t, <-nested, sgerrors.ErrAlreadyRunning)
}

func TestPipeline_UnevenBatch(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 120
	f.cfg.Pipeline.Producers = 1
	p := f.pipeline(t, Deps{})

	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), summary.TotalItems)

	var counts []int
	for _, ev := range f.events.Events() {
		if ev.Kind == stream.EventBatchComplete {
			counts = append(counts, ev.Batch.Count)
		}
	}
	assert.Equal(t, []int{50, 50, 20}, counts)
}

// =============================================================================
// Governor interaction
// =============================================================================

func TestPipeline_DiskExhaustedStops(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 0
	f.events.OnRecord = func(ev stream.Event[record.Record]) {
		if ev.Kind == stream.EventBatchComplete && ev.Batch.ID == 1 {
			f.probe.SetDiskMB(100000, 120)
		}
	}
	p := f.pipeline(t, Deps{})

	summary, err := run(t, context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, sgerrors.ErrDiskExhausted)
	assert.True(t, sgerrors.IsTerminal(err))

	assert.Equal(t, uint64(50), summary.TotalItems)
	assert.Empty(t, summary.PhasesCompleted)
	assert.Equal(t, uint64(1), summary.ErrorCount)
	assert.Len(t, f.mem.Records(), 50)
	assert.True(t, f.mem.Closed())

	errEv, ok := f.events.Last(stream.EventError)
	require.True(t, ok)
	assert.Equal(t, stream.CategoryResource, errEv.Err.Category)
	assert.False(t, errEv.Err.Recoverable)
	assert.Equal(t, 50, errEv.Err.ItemsAffected)
}

func TestPipeline_EmergencyAbortsProducers(t *testing.T) {
	f := newFixture()
	f.probe.SetResidentMB(990)
	f.gov = governor.NewBuilder().
		Probe(f.probe).
		MemoryLimit(1000).
		CheckInterval(1).
		MustBuild()

	level, err := f.gov.CheckNow()
	require.Error(t, err)
	require.Equal(t, degradation.LevelEmergency, level)

	p := f.pipeline(t, Deps{})
	summary, err := run(t, context.Background(), p)
	assert.ErrorIs(t, err, sgerrors.ErrAborted)

	assert.Zero(t, summary.TotalItems)
	assert.Empty(t, f.mem.Records())
	assert.True(t, f.mem.Closed())
	assert.Equal(t, uint64(990), summary.PeakMemoryMB)
}

func TestPipeline_CriticalLevelShapesOutput(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 200
	f.cfg.Pipeline.BatchSize = 100
	f.cfg.Pipeline.AnomalyRate = 1
	f.probe.SetDiskMB(100000, 400)

	level, err := f.gov.CheckNow()
	require.NoError(t, err)
	require.Equal(t, degradation.LevelCritical, level)

	p := f.pipeline(t, Deps{})
	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), summary.TotalItems)

	for _, r := range f.mem.Records() {
		assert.False(t, r.IsAnomaly)
		assert.Empty(t, r.QualityIssue)
		assert.Empty(t, r.HeaderText)
		assert.Empty(t, r.Reference)
		for _, l := range r.Lines {
			assert.Empty(t, l.Text)
		}
	}

	stats := p.Stats()
	assert.Equal(t, int64(8), stats.Batches, "batch size scaled to a quarter")
	assert.Equal(t, int64(9), stats.Flushes, "flush after every batch plus the final flush")
	assert.Equal(t, 9, f.mem.Flushes())
	assert.Equal(t, degradation.LevelCritical, stats.Level)
}

func TestPipeline_WarningHalvesAnomalies(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 2000
	f.cfg.Pipeline.AnomalyRate = 0.4
	f.probe.SetDiskMB(100000, 800)

	level, err := f.gov.CheckNow()
	require.NoError(t, err)
	require.Equal(t, degradation.LevelWarning, level)

	p := f.pipeline(t, Deps{})
	_, err = run(t, context.Background(), p)
	require.NoError(t, err)

	anomalies := 0
	for _, r := range f.mem.Records() {
		if r.IsAnomaly {
			anomalies++
		}
		assert.Empty(t, r.QualityIssue)
		assert.Empty(t, r.HeaderText)
	}
	rate := float64(anomalies) / 2000
	assert.InDelta(t, 0.2, rate, 0.05)
	assert.Equal(t, int64(80), p.Stats().Batches, "batch size halved")
}

// =============================================================================
// Rate limiting
// =============================================================================

func TestPipeline_DropStrategyCountsRateLimited(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 100

	rl := config.RateLimitPerSecond(1)
	rl.BurstSize = 10
	rl.Strategy = config.RateLimitDrop
	limiter, err := ratelimit.New(rl)
	require.NoError(t, err)

	p := f.pipeline(t, Deps{Limiter: limiter})
	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, int64(100), stats.Written+stats.RateLimited)
	assert.GreaterOrEqual(t, stats.RateLimited, int64(80))
	assert.GreaterOrEqual(t, stats.Written, int64(10))
	assert.Equal(t, uint64(stats.RateLimited), summary.DroppedCount)
	assert.Same(t, limiter, p.Limiter())
}

func TestPipeline_BufferStrategyReleasesMarkers(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 300
	f.cfg.Pipeline.Producers = 4

	rl := config.RateLimitPerSecond(2000)
	rl.BurstSize = 1
	rl.Strategy = config.RateLimitBuffer
	rl.MaxBuffered = 2
	limiter, err := ratelimit.New(rl)
	require.NoError(t, err)

	p := f.pipeline(t, Deps{Limiter: limiter})
	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, int64(300), stats.Written)
	assert.Zero(t, stats.RateLimited, "buffered items are delayed, never dropped")
	assert.Zero(t, summary.DroppedCount)
	assert.Positive(t, limiter.Stats().Buffered)
}

func TestPipeline_BlockStrategyPaces(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 60

	rl := config.RateLimitPerSecond(500)
	rl.BurstSize = 10
	limiter, err := ratelimit.New(rl)
	require.NoError(t, err)

	p := f.pipeline(t, Deps{Limiter: limiter})
	start := time.Now()
	summary, err := run(t, context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, uint64(60), summary.TotalItems)
	// 50 tokens beyond the burst at 500/s.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Positive(t, limiter.Stats().Waits)
}

// =============================================================================
// Cancellation
// =============================================================================

func TestPipeline_ContextCancel(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.events.OnRecord = func(ev stream.Event[record.Record]) {
		if ev.Kind == stream.EventBatchComplete && ev.Batch.ID == 3 {
			cancel()
		}
	}
	p := f.pipeline(t, Deps{})

	summary, err := run(t, ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, summary.TotalItems, uint64(150))
	assert.Len(t, f.mem.Records(), int(summary.TotalItems))
	assert.True(t, f.mem.Closed())
}

func TestPipeline_ControlCancel(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 0
	control := stream.NewControl()
	f.events.OnRecord = func(ev stream.Event[record.Record]) {
		if ev.Kind == stream.EventBatchComplete && ev.Batch.ID == 2 {
			control.Cancel()
		}
	}
	p := f.pipeline(t, Deps{Control: control})
	assert.Same(t, control, p.Control())

	summary, err := run(t, context.Background(), p)
	assert.ErrorIs(t, err, sgerrors.ErrAborted)
	assert.GreaterOrEqual(t, summary.TotalItems, uint64(100))
	assert.Len(t, f.mem.Records(), int(summary.TotalItems), "drained records are written")
	assert.True(t, f.mem.Closed())
}

func TestPipeline_PauseResume(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, Deps{})
	p.Control().Pause()

	gt := testutil.NewGoroutineTest(t)
	gt.Go(func() error {
		summary, err := p.Run(context.Background())
		if err != nil {
			return err
		}
		if summary.TotalItems != 500 {
			return fmt.Errorf("total items = %d, want 500", summary.TotalItems)
		}
		return nil
	})

	require.NoError(t, testutil.Eventually(time.Second, time.Millisecond, p.IsRunning))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, p.Stats().Generated, "paused producers generate nothing")

	p.Control().Resume()
	gt.Wait()
	assert.Len(t, f.mem.Records(), 500)
}

func TestPipeline_StatsWhileRunning(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 5000
	p := f.pipeline(t, Deps{})

	gt := testutil.NewGoroutineTestWithTimeout(t, runTimeout)
	done := make(chan struct{})
	gt.Go(func() error {
		defer close(done)
		_, err := p.Run(gt.Context())
		return err
	})
	gt.Go(func() error {
		var last int64
		for {
			select {
			case <-done:
				return nil
			default:
			}
			s := p.Stats()
			if s.Written < last {
				return fmt.Errorf("written went backwards: %d < %d", s.Written, last)
			}
			last = s.Written
			time.Sleep(100 * time.Microsecond)
		}
	})
	gt.Wait()

	assert.Equal(t, int64(5000), p.Stats().Written)
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	require.Error(t, err)
	assert.True(t, sgerrors.IsValidation(err))

	cfg := testConfig()
	cfg.Pipeline.Producers = 0
	_, err = New(cfg, Deps{Sink: sink.NewMemory()})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Pipeline.AnomalyRate = 2
	_, err = New(cfg, Deps{Sink: sink.NewMemory()})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.RateLimit = config.RateLimitPerSecond(0)
	_, err = New(cfg, Deps{Sink: sink.NewMemory()})
	assert.True(t, sgerrors.IsValidation(err))
}

func TestNew_DefaultsFromConfig(t *testing.T) {
	cfg := testConfig()
	p, err := New(cfg, Deps{Sink: sink.NewMemory()})
	require.NoError(t, err)

	assert.NotNil(t, p.Governor())
	assert.NotNil(t, p.Limiter())
	assert.False(t, p.Limiter().Enabled())
	assert.NotNil(t, p.Control())
	assert.False(t, p.IsRunning())
}

func TestPipeline_SinkErrorIsFatal(t *testing.T) {
	f := newFixture()
	f.cfg.Pipeline.TotalRecords = 0
	failing := &failingSink{Memory: sink.NewMemory(), failAfter: 2}
	p := f.pipeline(t, Deps{Sink: failing})

	summary, err := run(t, context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, uint64(100), summary.TotalItems)

	errEv, ok := f.events.Last(stream.EventError)
	require.True(t, ok)
	assert.Equal(t, stream.CategoryOutput, errEv.Err.Category)
	assert.True(t, failing.Closed())
}

var errDiskFull = errors.New("no space left on device")

type failingSink struct {
	*sink.Memory
	writes    int
	failAfter int
}

func (s *failingSink) Write(records []record.Record) (int64, error) {
	s.writes++
	if s.writes > s.failAfter {
		return 0, errDiskFull
	}
	return s.Memory.Write(records)
}
