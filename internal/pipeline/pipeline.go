// Package pipeline runs producers and a consumer over a bounded stream,
// pacing producers with the rate limiter and shaping output with the
// resource governor's degradation actions.
//
// Flow: Generator → Limiter → Channel → Batch → Governor.Check → Sink
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/degradation"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/governor"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/ratelimit"
	"github.com/ey-asu-rnd/streamguard/internal/record"
	"github.com/ey-asu-rnd/streamguard/internal/sink"
	"github.com/ey-asu-rnd/streamguard/internal/stream"
)

const phaseGeneration = "generation"

// Deps are the components a Pipeline drives. Sink is required; nil
// Governor and Limiter are built from the configuration.
type Deps struct {
	Governor *governor.Governor
	Limiter  *ratelimit.Limiter
	Sink     sink.Sink

	// Control pauses or cancels producers. Optional.
	Control *stream.Control

	// OnEvent receives progress, batch, error and completion events from
	// the consumer goroutine. Optional; it must not block.
	OnEvent func(stream.Event[record.Record])
}

// Pipeline orchestrates record generation and output.
type Pipeline struct {
	cfg       config.PipelineConfig
	chCfg     config.ChannelConfig
	governor  *governor.Governor
	limiter   *ratelimit.Limiter
	sink      sink.Sink
	control   *stream.Control
	onEvent   func(stream.Event[record.Record])
	pressure  *stream.AwareProducer
	log       *slog.Logger
	startTime time.Time

	// State
	running  atomic.Bool
	claimed  atomic.Int64
	aborted  atomic.Bool
	batchSeq atomic.Uint64
	receiver atomic.Pointer[stream.Receiver[record.Record]]

	// Statistics
	stats counters
}

type counters struct {
	Generated   atomic.Int64
	Sent        atomic.Int64
	Written     atomic.Int64
	RateLimited atomic.Int64
	Batches     atomic.Int64
	Flushes     atomic.Int64
	Errors      atomic.Int64
}

// Stats is a snapshot of pipeline statistics.
type Stats struct {
	Running        bool
	Generated      int64
	Sent           int64
	Written        int64
	RateLimited    int64
	ChannelDropped int64
	Batches        int64
	Flushes        int64
	Errors         int64
	Level          degradation.Level
	Channel        stream.ChannelStats
	Pressure       stream.MonitorStats
}

// New creates a pipeline. The sink is wrapped so every batch is checked
// against free disk space before it is written.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if err := cfg.Channel.Validate(); err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	if deps.Sink == nil {
		return nil, sgerrors.NewMissingField("sink")
	}

	if deps.Governor == nil {
		deps.Governor = governor.FromConfig(cfg, nil)
	}
	if deps.Limiter == nil {
		l, err := ratelimit.New(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		deps.Limiter = l
	}
	if deps.Control == nil {
		deps.Control = stream.NewControl()
	}

	return &Pipeline{
		cfg:      cfg.Pipeline,
		chCfg:    cfg.Channel,
		governor: deps.Governor,
		limiter:  deps.Limiter,
		sink:     sink.NewGuarded(deps.Sink, deps.Governor),
		control:  deps.Control,
		onEvent:  deps.OnEvent,
		pressure: stream.NewAwareProducer(cfg.Channel.Strategy, cfg.Channel.Capacity).
			WithAdaptive(stream.NewAdaptive()),
		log: logging.Component("pipeline"),
	}, nil
}

// Run generates records until TotalRecords are claimed, ctx is cancelled,
// the control is cancelled or the governor reports a terminal condition.
// The sink is flushed and closed before Run returns. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) (stream.Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return stream.Summary{}, sgerrors.ErrAlreadyRunning
	}
	defer p.running.Store(false)

	sender, receiver, err := stream.NewStream[record.Record](p.chCfg)
	if err != nil {
		return stream.Summary{}, err
	}
	p.receiver.Store(receiver)
	p.startTime = time.Now()

	p.log.Info("pipeline starting",
		"producers", p.cfg.Producers,
		"total_records", p.cfg.TotalRecords,
		"batch_size", p.cfg.BatchSize,
		"channel_strategy", p.chCfg.Strategy,
		"rate_limited", p.limiter.Enabled())

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Producers; i++ {
		out := sender.Clone()
		g.Go(func() error {
			defer out.Release()
			return p.produce(gctx, i, out)
		})
	}
	sender.Release()

	g.Go(func() error {
		return p.consume(gctx, receiver)
	})

	runErr := g.Wait()
	switch {
	case runErr != nil:
	case ctx.Err() != nil:
		runErr = ctx.Err()
	case p.aborted.Load():
		runErr = fmt.Errorf("producers stopped by pre-check: %w", sgerrors.ErrAborted)
	case p.control.IsCancelled():
		runErr = fmt.Errorf("cancelled: %w", sgerrors.ErrAborted)
	}

	summary := p.summary(runErr)
	p.emit(stream.CompleteEvent[record.Record](summary))

	if runErr != nil {
		p.log.Warn("pipeline stopped", "error", runErr, "written", summary.TotalItems)
	} else {
		p.log.Info("pipeline complete",
			"written", summary.TotalItems,
			"elapsed", summary.TotalTime,
			"records_per_sec", summary.AvgItemsPerSecond)
	}
	return summary, runErr
}

// =============================================================================
// Producers
// =============================================================================

func (p *Pipeline) produce(ctx context.Context, id int, out *stream.Sender[record.Record]) error {
	gen := record.NewGenerator(p.cfg.Seed+uint64(id), record.GeneratorOptions{
		LinesPerEntry: p.cfg.LinesPerEntry,
	})
	log := p.log.With("producer", id)

	for {
		if ctx.Err() != nil || p.control.IsCancelled() {
			return nil
		}
		if p.control.IsPaused() {
			if err := p.control.WaitWhilePaused(ctx); err != nil {
				return nil
			}
		}

		if !p.governor.PreCheck().ShouldProceed() {
			if !p.aborted.Swap(true) {
				log.Warn("pre-check aborted production", "level", p.governor.Level())
			}
			return nil
		}

		seq, ok := p.claim()
		if !ok {
			return nil
		}

		allowed, err := p.acquire(ctx)
		if err != nil {
			return nil
		}
		if !allowed {
			p.stats.RateLimited.Add(1)
			continue
		}

		rec := gen.Next(seq, p.shape())
		p.stats.Generated.Add(1)

		p.pressure.Update(out.Len())
		if d := p.pressure.RecommendedDelay(); d > 0 {
			if err := sleepContext(ctx, d); err != nil {
				return nil
			}
		}

		sent, err := out.SendDataContext(ctx, rec)
		if err != nil {
			if !errors.Is(err, sgerrors.ErrChannelClosed) && ctx.Err() == nil {
				log.Debug("send failed", "error", err)
			}
			return nil
		}
		if sent {
			p.stats.Sent.Add(1)
		} else {
			p.pressure.RecordDropped(1)
		}

		if err := p.governor.MaybeThrottleContext(ctx); err != nil {
			return nil
		}
	}
}

// claim reserves the next sequence number. It fails once TotalRecords
// have been claimed; zero means unbounded.
func (p *Pipeline) claim() (uint64, bool) {
	n := p.claimed.Add(1)
	if p.cfg.TotalRecords > 0 && n > p.cfg.TotalRecords {
		return 0, false
	}
	return uint64(n - 1), true
}

// acquire takes a limiter token. Buffered acquisitions wait until the
// limiter has released queued markers.
func (p *Pipeline) acquire(ctx context.Context) (bool, error) {
	action, err := p.limiter.AcquireContext(ctx)
	if err != nil {
		return false, err
	}

	switch action.Kind {
	case ratelimit.Dropped:
		return false, nil
	case ratelimit.Buffered:
		for p.limiter.BufferLen() > 0 && len(p.limiter.ProcessBuffer()) == 0 {
			if err := sleepContext(ctx, time.Millisecond); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// shape maps the current degradation actions onto record content.
func (p *Pipeline) shape() record.Shape {
	actions := p.governor.Actions()
	s := record.Shape{
		QualityIssues: !actions.SkipDataQuality,
		Compact:       actions.UseCompactOutput || actions.SkipOptionalFields,
	}
	if !actions.SkipAnomalyInjection {
		s.AnomalyRate = p.cfg.AnomalyRate * actions.AnomalyRateFactor
	}
	return s
}

// =============================================================================
// Consumer
// =============================================================================

func (p *Pipeline) consume(ctx context.Context, in *stream.Receiver[record.Record]) (err error) {
	defer func() {
		err = errors.Join(err, p.finish())
	}()

	batch := make([]record.Record, 0, p.cfg.BatchSize)
	nextProgress := p.cfg.ProgressInterval

	for {
		ev, ok, recvErr := in.RecvContext(ctx)
		if recvErr != nil {
			return errors.Join(recvErr, p.writeBatch(batch))
		}
		if !ok {
			break
		}
		if !ev.IsData() {
			continue
		}

		batch = append(batch, ev.Data)
		if len(batch) < p.batchTarget() {
			continue
		}

		if err := p.writeBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]

		if nextProgress > 0 && p.stats.Written.Load() >= nextProgress {
			p.emit(stream.ProgressEvent[record.Record](p.progress(in)))
			nextProgress += p.cfg.ProgressInterval
		}
	}

	return p.writeBatch(batch)
}

// batchTarget scales the configured batch size by the current level.
func (p *Pipeline) batchTarget() int {
	n := p.governor.Actions().ScaleBatch(p.cfg.BatchSize)
	if n < 1 {
		return 1
	}
	return n
}

// writeBatch checks resources and writes one batch.
func (p *Pipeline) writeBatch(batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}

	level, err := p.governor.Check()
	if err == nil && degradation.ActionsFor(level).Terminate {
		err = &sgerrors.EmergencyError{Level: level.String(), Message: "emergency level active"}
	}
	if err != nil {
		p.fail(err, len(batch))
		return err
	}

	if _, err := p.sink.Write(batch); err != nil {
		p.fail(err, len(batch))
		return fmt.Errorf("write batch: %w", err)
	}

	p.stats.Written.Add(int64(len(batch)))
	p.stats.Batches.Add(1)
	p.emit(stream.BatchEvent[record.Record](p.batchSeq.Add(1), len(batch)))

	if degradation.ActionsFor(level).ImmediateFlush {
		if err := p.sink.Flush(); err != nil {
			p.fail(err, 0)
			return fmt.Errorf("flush: %w", err)
		}
		p.stats.Flushes.Add(1)
	}
	return nil
}

func (p *Pipeline) finish() error {
	var errs []error
	if err := p.sink.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush sink: %w", err))
	} else {
		p.stats.Flushes.Add(1)
	}
	if err := p.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}
	return errors.Join(errs...)
}

func (p *Pipeline) fail(err error, items int) {
	p.stats.Errors.Add(1)

	category := stream.CategoryOutput
	if sgerrors.IsResourceError(err) || errors.Is(err, sgerrors.ErrDegradationEmergency) {
		category = stream.CategoryResource
	}
	p.log.Error("batch failed", "error", err, "records", items, "category", category)

	p.emit(stream.ErrorEvent[record.Record](&stream.StreamError{
		Message:       err.Error(),
		Category:      category,
		Recoverable:   false,
		ItemsAffected: items,
	}))
}

func (p *Pipeline) emit(ev stream.Event[record.Record]) {
	if p.onEvent != nil {
		p.onEvent(ev)
	}
}

func (p *Pipeline) progress(in *stream.Receiver[record.Record]) stream.Progress {
	pr := stream.NewProgress(phaseGeneration)
	pr.Update(uint64(p.stats.Written.Load()), time.Since(p.startTime))
	pr.MemoryUsageMB = p.governor.CurrentMemoryMB()
	pr.BufferFillRatio = in.FillRatio()
	if total := p.cfg.TotalRecords; total > 0 {
		pr.ItemsRemaining = max(total-p.stats.Written.Load(), 0)
	}
	return pr
}

func (p *Pipeline) summary(runErr error) stream.Summary {
	s := stream.NewSummary(uint64(p.stats.Written.Load()), time.Since(p.startTime))
	s.ErrorCount = uint64(p.stats.Errors.Load())
	s.DroppedCount = uint64(p.stats.RateLimited.Load() + p.channelDropped())
	s.PeakMemoryMB = p.governor.Memory().PeakUsageMB()
	if runErr == nil {
		s.PhasesCompleted = []string{phaseGeneration}
	}
	return s
}

// =============================================================================
// Accessors
// =============================================================================

// Control returns the pause/cancel handle shared with producers.
func (p *Pipeline) Control() *stream.Control { return p.control }

// Governor returns the resource governor.
func (p *Pipeline) Governor() *governor.Governor { return p.governor }

// Limiter returns the rate limiter.
func (p *Pipeline) Limiter() *ratelimit.Limiter { return p.limiter }

// IsRunning returns whether Run is in progress.
func (p *Pipeline) IsRunning() bool { return p.running.Load() }

// Stats returns current statistics.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Running:        p.running.Load(),
		Generated:      p.stats.Generated.Load(),
		Sent:           p.stats.Sent.Load(),
		Written:        p.stats.Written.Load(),
		RateLimited:    p.stats.RateLimited.Load(),
		ChannelDropped: p.channelDropped(),
		Batches:        p.stats.Batches.Load(),
		Flushes:        p.stats.Flushes.Load(),
		Errors:         p.stats.Errors.Load(),
		Level:          p.governor.Level(),
		Pressure:       p.pressure.Stats(),
	}
	if r := p.receiver.Load(); r != nil {
		s.Channel = r.Stats()
	}
	return s
}

// channelDropped counts items discarded by the channel's drop strategies,
// both rejected sends and evicted queue heads.
func (p *Pipeline) channelDropped() int64 {
	if r := p.receiver.Load(); r != nil {
		return r.Stats().ItemsDropped
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
