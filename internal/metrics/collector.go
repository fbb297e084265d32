// Package metrics exports pipeline, governor and limiter statistics in the
// Prometheus exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ey-asu-rnd/streamguard/internal/governor"
	"github.com/ey-asu-rnd/streamguard/internal/pipeline"
	"github.com/ey-asu-rnd/streamguard/internal/ratelimit"
)

const namespace = "streamguard"

// PipelineSource is implemented by *pipeline.Pipeline.
type PipelineSource interface {
	Stats() pipeline.Stats
}

// GovernorSource is implemented by *governor.Governor.
type GovernorSource interface {
	Stats() governor.Stats
}

// LimiterSource is implemented by *ratelimit.Limiter.
type LimiterSource interface {
	Stats() ratelimit.Stats
}

// Collector reads statistics snapshots at scrape time. Nil sources are
// skipped.
type Collector struct {
	pipeline PipelineSource
	governor GovernorSource
	limiter  LimiterSource

	// Pipeline
	running        *prometheus.Desc
	generated      *prometheus.Desc
	sent           *prometheus.Desc
	written        *prometheus.Desc
	rateLimited    *prometheus.Desc
	channelDropped *prometheus.Desc
	batches        *prometheus.Desc
	flushes        *prometheus.Desc
	errors         *prometheus.Desc
	bufferSize     *prometheus.Desc
	fillRatio      *prometheus.Desc
	pressureEvents *prometheus.Desc

	// Governor
	level          *prometheus.Desc
	levelChanges   *prometheus.Desc
	checks         *prometheus.Desc
	residentBytes  *prometheus.Desc
	peakBytes      *prometheus.Desc
	diskAvailable  *prometheus.Desc
	diskEstimated  *prometheus.Desc
	cpuLoad        *prometheus.Desc
	cpuThrottles   *prometheus.Desc
	hardExceeded   *prometheus.Desc

	// Limiter
	acquisitions *prometheus.Desc
	waitSeconds  *prometheus.Desc
	tokens       *prometheus.Desc
	waitP99      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over the given sources.
func NewCollector(p PipelineSource, g GovernorSource, l LimiterSource) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}

	return &Collector{
		pipeline: p,
		governor: g,
		limiter:  l,

		running:        desc("pipeline", "running", "Whether the pipeline is running (1) or not (0)."),
		generated:      desc("records", "generated_total", "Records generated by producers."),
		sent:           desc("records", "sent_total", "Records accepted by the channel."),
		written:        desc("records", "written_total", "Records written to the sink."),
		rateLimited:    desc("records", "rate_limited_total", "Records dropped by the rate limiter."),
		channelDropped: desc("records", "channel_dropped_total", "Records discarded by the channel's drop strategy."),
		batches:        desc("sink", "batches_total", "Batches written to the sink."),
		flushes:        desc("sink", "flushes_total", "Sink flushes."),
		errors:         desc("pipeline", "errors_total", "Fatal batch errors."),
		bufferSize:     desc("channel", "buffer_size", "Items queued in the channel."),
		fillRatio:      desc("channel", "fill_ratio", "Channel fill ratio seen by producers."),
		pressureEvents: desc("channel", "backpressure_events_total", "Times producers observed backpressure."),

		level:         desc("degradation", "level", "Current degradation level (0 normal to 3 emergency)."),
		levelChanges:  desc("degradation", "level_changes_total", "Degradation level transitions."),
		checks:        desc("governor", "checks_total", "Full resource checks performed."),
		residentBytes: desc("memory", "resident_bytes", "Resident memory at the last check."),
		peakBytes:     desc("memory", "peak_resident_bytes", "Peak resident memory."),
		diskAvailable: desc("disk", "available_bytes", "Available disk space at the last check."),
		diskEstimated: desc("disk", "estimated_written_bytes_total", "Bytes reported written through the disk monitor."),
		cpuLoad:       desc("cpu", "load", "CPU load at the last sample (0 to 1)."),
		cpuThrottles:  desc("cpu", "throttles_total", "Producer throttles applied for CPU load."),
		hardExceeded:  desc("governor", "hard_limit_exceeded", "Whether a hard limit was breached.", "resource"),

		acquisitions: desc("ratelimit", "acquisitions_total", "Rate limiter acquisitions by outcome.", "outcome"),
		waitSeconds:  desc("ratelimit", "wait_seconds_total", "Time spent waiting for tokens."),
		tokens:       desc("ratelimit", "tokens", "Tokens currently available."),
		waitP99:      desc("ratelimit", "wait_p99_seconds", "99th percentile token wait."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	if c.pipeline != nil {
		for _, d := range []*prometheus.Desc{
			c.running, c.generated, c.sent, c.written, c.rateLimited, c.channelDropped,
			c.batches, c.flushes, c.errors, c.bufferSize, c.fillRatio, c.pressureEvents,
		} {
			ch <- d
		}
	}
	if c.governor != nil {
		for _, d := range []*prometheus.Desc{
			c.level, c.levelChanges, c.checks, c.residentBytes, c.peakBytes,
			c.diskAvailable, c.diskEstimated, c.cpuLoad, c.cpuThrottles, c.hardExceeded,
		} {
			ch <- d
		}
	}
	if c.limiter != nil {
		for _, d := range []*prometheus.Desc{c.acquisitions, c.waitSeconds, c.tokens, c.waitP99} {
			ch <- d
		}
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pipeline != nil {
		c.collectPipeline(ch, c.pipeline.Stats())
	}
	if c.governor != nil {
		c.collectGovernor(ch, c.governor.Stats())
	}
	if c.limiter != nil {
		c.collectLimiter(ch, c.limiter.Stats())
	}
}

func (c *Collector) collectPipeline(ch chan<- prometheus.Metric, s pipeline.Stats) {
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	gauge(c.running, boolFloat(s.Running))
	counter(c.generated, s.Generated)
	counter(c.sent, s.Sent)
	counter(c.written, s.Written)
	counter(c.rateLimited, s.RateLimited)
	counter(c.channelDropped, s.ChannelDropped)
	counter(c.batches, s.Batches)
	counter(c.flushes, s.Flushes)
	counter(c.errors, s.Errors)
	gauge(c.bufferSize, float64(s.Channel.BufferSize))
	gauge(c.fillRatio, s.Pressure.FillRatio)
	counter(c.pressureEvents, s.Pressure.BackpressureEvents)
}

func (c *Collector) collectGovernor(ch chan<- prometheus.Metric, s governor.Stats) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.level, float64(s.Level))
	ch <- prometheus.MustNewConstMetric(c.levelChanges, prometheus.CounterValue, float64(s.Degradation.LevelChanges))
	ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(s.ChecksPerformed))
	gauge(c.residentBytes, float64(s.Memory.ResidentBytes))
	gauge(c.peakBytes, float64(s.Memory.PeakResidentBytes))
	gauge(c.diskAvailable, float64(s.Disk.AvailableBytes))
	ch <- prometheus.MustNewConstMetric(c.diskEstimated, prometheus.CounterValue, float64(s.Disk.EstimatedBytesWritten))
	gauge(c.cpuLoad, s.CPU.CurrentLoad)
	ch <- prometheus.MustNewConstMetric(c.cpuThrottles, prometheus.CounterValue, float64(s.CPU.ThrottleCount))
	gauge(c.hardExceeded, boolFloat(s.Memory.HardLimitExceeded), "memory")
	gauge(c.hardExceeded, boolFloat(s.Disk.HardLimitExceeded), "disk")
}

func (c *Collector) collectLimiter(ch chan<- prometheus.Metric, s ratelimit.Stats) {
	for _, o := range []struct {
		outcome string
		n       int64
	}{
		{"proceed", s.ImmediateProceeds},
		{"wait", s.Waits},
		{"drop", s.Drops},
		{"buffer", s.Buffered},
	} {
		ch <- prometheus.MustNewConstMetric(c.acquisitions, prometheus.CounterValue, float64(o.n), o.outcome)
	}
	ch <- prometheus.MustNewConstMetric(c.waitSeconds, prometheus.CounterValue, s.TotalWait.Seconds())
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, s.CurrentTokens)
	ch <- prometheus.MustNewConstMetric(c.waitP99, prometheus.GaugeValue, s.WaitP99.Seconds())
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
