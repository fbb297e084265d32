package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	defaults "github.com/ey-asu-rnd/streamguard/config"
	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/degradation"
	"github.com/ey-asu-rnd/streamguard/internal/governor"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
	"github.com/ey-asu-rnd/streamguard/internal/metrics"
	"github.com/ey-asu-rnd/streamguard/internal/pipeline"
	"github.com/ey-asu-rnd/streamguard/internal/ratelimit"
	"github.com/ey-asu-rnd/streamguard/internal/record"
	"github.com/ey-asu-rnd/streamguard/internal/retention"
	"github.com/ey-asu-rnd/streamguard/internal/server"
	"github.com/ey-asu-rnd/streamguard/internal/sink"
	"github.com/ey-asu-rnd/streamguard/internal/stream"
)

type runFlags struct {
	records       int64
	rate          float64
	output        string
	format        string
	compression   string
	producers     int
	seed          uint64
	metricsListen string
	preset        string
	retainFiles   int
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate records and write them to the configured sink",
		Example: `  streamguard run --records 1000000 --rate 50000 --output ./out
  streamguard run --format parquet --preset conservative --metrics-listen 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg); err != nil {
				return err
			}

			closer := setupLogging(cfg.Logging, os.Stderr)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPipeline(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64VarP(&f.records, "records", "n", 0, "records to generate (0 = unbounded)")
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "records per second (0 = unlimited)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory")
	cmd.Flags().StringVar(&f.format, "format", "", "sink format (segment, parquet)")
	cmd.Flags().StringVar(&f.compression, "compression", "", "sink compression")
	cmd.Flags().IntVar(&f.producers, "producers", 0, "producer goroutines")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "generator seed")
	cmd.Flags().StringVar(&f.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&f.preset, "preset", "", "degradation preset (conservative, default, aggressive)")
	cmd.Flags().IntVar(&f.retainFiles, "retain-files", 0, "keep at most this many sink files (0 = keep all)")
	return cmd
}

// apply copies the flags the user set onto cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("records") {
		cfg.Pipeline.TotalRecords = f.records
	}
	if flags.Changed("rate") {
		if f.rate > 0 {
			cfg.RateLimit = config.RateLimitPerSecond(f.rate)
		} else {
			cfg.RateLimit = config.RateLimitDisabled()
		}
	}
	if flags.Changed("output") {
		cfg.Sink.Dir = f.output
	}
	if flags.Changed("format") {
		cfg.Sink.Format = f.format
	}
	if flags.Changed("compression") {
		cfg.Sink.Compression = f.compression
	}
	if flags.Changed("producers") {
		cfg.Pipeline.Producers = f.producers
	}
	if flags.Changed("seed") {
		cfg.Pipeline.Seed = f.seed
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = f.metricsListen
	}
	if flags.Changed("retain-files") {
		cfg.Sink.Retention.MaxFiles = f.retainFiles
	}
	if flags.Changed("preset") {
		cfg.Degradation.Preset = f.preset
		if err := cfg.Degradation.ApplyPreset(); err != nil {
			return err
		}
	}
	if cfg.Guard.Disk.Path == "" || cfg.Guard.Disk.Path == defaults.DefaultDiskPath {
		cfg.Guard.Disk.Path = cfg.Sink.Dir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runPipeline(ctx context.Context, cfg *config.Config, out io.Writer) error {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.WithContext(ctx).With("component", "main")
	log.Info("streamguard starting", "version", Version)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	gov := governor.FromConfig(cfg, nil)
	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return err
	}
	s, err := sink.New(cfg.Sink)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}

	gov.SetOnLevelChange(func(from, to degradation.Level) {
		log.Warn("degradation level changed", "from", from, "to", to)
	})

	p, err := pipeline.New(cfg, pipeline.Deps{
		Governor: gov,
		Limiter:  limiter,
		Sink:     s,
		OnEvent:  logEvents(log),
	})
	if err != nil {
		s.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			metrics.NewCollector(p, gov, limiter),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv := server.New(&server.Config{
			Listen:      cfg.Metrics.Listen,
			TLSCertFile: cfg.Metrics.TLSCertFile,
			TLSKeyFile:  cfg.Metrics.TLSKeyFile,
			Registry:    reg,
			Healthy:     func() bool { return !gov.Actions().Terminate },
		})
		g.Go(func() error { return srv.Run(serveCtx) })
	}

	if cfg.Sink.Retention.Enabled() {
		mgr := retention.New(cfg.Sink.Dir, cfg.Sink.Retention)
		g.Go(func() error { return mgr.Run(serveCtx) })
	}

	var summary stream.Summary
	g.Go(func() error {
		defer stopServing()
		var runErr error
		summary, runErr = p.Run(gctx)
		return runErr
	})

	runErr := g.Wait()
	printSummary(out, runID, summary, p.Stats(), cfg)

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		log.Info("interrupted")
		return nil
	}
	return runErr
}

// logEvents logs progress and errors reported by the pipeline.
func logEvents(log *slog.Logger) func(stream.Event[record.Record]) {
	return func(ev stream.Event[record.Record]) {
		switch ev.Kind {
		case stream.EventProgress:
			pr := ev.Progress
			args := []any{
				"written", pr.ItemsGenerated,
				"records_per_sec", int64(pr.ItemsPerSecond),
				"buffer_fill", fmt.Sprintf("%.0f%%", pr.BufferFillRatio*100),
			}
			if pr.MemoryUsageMB > 0 {
				args = append(args, "memory_mb", pr.MemoryUsageMB)
			}
			if eta, ok := pr.ETA(); ok {
				args = append(args, "eta", eta.Round(time.Second))
			}
			log.Info("progress", args...)
		case stream.EventError:
			log.Error("pipeline error",
				"category", ev.Err.Category,
				"records", ev.Err.ItemsAffected,
				"error", ev.Err.Message)
		}
	}
}

func printSummary(out io.Writer, runID string, s stream.Summary, stats pipeline.Stats, cfg *config.Config) {
	status := "complete"
	if len(s.PhasesCompleted) == 0 {
		status = "stopped"
	}

	fmt.Fprintf(out, `Run Summary
===========
  Run ID:            %s
  Status:            %s
  Records Written:   %d
  Elapsed:           %s
  Records/sec:       %.0f
  Rate Limited:      %d
  Channel Dropped:   %d
  Batches:           %d
  Errors:            %d
  Final Level:       %s
  Peak Memory:       %d MB
  Output:            %s (%s)
`,
		runID,
		status,
		s.TotalItems,
		s.TotalTime.Round(time.Millisecond),
		s.AvgItemsPerSecond,
		stats.RateLimited,
		stats.ChannelDropped,
		stats.Batches,
		s.ErrorCount,
		stats.Level,
		s.PeakMemoryMB,
		cfg.Sink.Dir,
		cfg.Sink.Format,
	)
}
