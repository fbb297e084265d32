package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/ey-asu-rnd/streamguard/config"
)

// Config represents the complete pipeline configuration.
// It is immutable for the duration of a run; components copy the section
// they need at construction.
type Config struct {
	// RateLimit paces record emission.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Channel configures the producer/consumer queue.
	Channel ChannelConfig `yaml:"channel"`

	// Guard configures the resource monitors.
	Guard GuardConfig `yaml:"guard"`

	// Degradation configures the severity ladder.
	Degradation DegradationConfig `yaml:"degradation"`

	// Pipeline configures the orchestrator.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Sink configures the downstream writer.
	Sink SinkConfig `yaml:"sink"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// RateLimitStrategy selects what Acquire does when the bucket is empty.
type RateLimitStrategy string

const (
	RateLimitBlock  RateLimitStrategy = "block"
	RateLimitDrop   RateLimitStrategy = "drop"
	RateLimitBuffer RateLimitStrategy = "buffer"
)

// RateLimitConfig configures the token bucket.
type RateLimitConfig struct {
	// Enabled turns pacing on. A disabled limiter always proceeds.
	Enabled bool `yaml:"enabled"`

	// Rate is the refill rate in tokens per second. Must be positive.
	Rate float64 `yaml:"rate"`

	// BurstSize is the bucket capacity.
	BurstSize int `yaml:"burst_size"`

	// Strategy is one of: block, drop, buffer.
	Strategy RateLimitStrategy `yaml:"strategy"`

	// MaxBuffered caps the marker queue for the buffer strategy.
	MaxBuffered int `yaml:"max_buffered"`
}

// ChannelStrategy selects how a full channel treats a send.
type ChannelStrategy string

const (
	ChannelBlock      ChannelStrategy = "block"
	ChannelDropOldest ChannelStrategy = "drop_oldest"
	ChannelDropNewest ChannelStrategy = "drop_newest"
	ChannelBuffer     ChannelStrategy = "buffer"
)

// ChannelConfig configures the bounded channel.
type ChannelConfig struct {
	// Capacity is the nominal queue bound.
	Capacity int `yaml:"capacity"`

	// Strategy is one of: block, drop_oldest, drop_newest, buffer.
	Strategy ChannelStrategy `yaml:"strategy"`

	// MaxOverflow is the extra room allowed by the buffer strategy.
	MaxOverflow int `yaml:"max_overflow"`
}

// Bound returns the hard limit on queued items for this configuration.
func (c ChannelConfig) Bound() int {
	if c.Strategy == ChannelBuffer {
		return c.Capacity + c.MaxOverflow
	}
	return c.Capacity
}

// GuardConfig configures the resource monitors.
type GuardConfig struct {
	// CheckInterval is the number of governor checks between OS queries.
	CheckInterval int `yaml:"check_interval"`

	Disk   DiskConfig   `yaml:"disk"`
	Memory MemoryConfig `yaml:"memory"`
	CPU    CPUConfig    `yaml:"cpu"`
}

// DiskConfig configures the disk space monitor.
type DiskConfig struct {
	Enabled bool `yaml:"enabled"`

	// HardLimitMB is the minimum free space (plus reserve) required.
	HardLimitMB uint64 `yaml:"hard_limit_mb"`

	// SoftLimitMB produces warnings when free space drops below it.
	SoftLimitMB uint64 `yaml:"soft_limit_mb"`

	// ReserveMB is added to HardLimitMB for hard-limit comparison.
	ReserveMB uint64 `yaml:"reserve_mb"`

	// CheckInterval is the number of Check calls between queries.
	CheckInterval int `yaml:"check_interval"`

	// Path selects the filesystem to monitor.
	Path string `yaml:"path"`
}

// MemoryConfig configures the process memory monitor.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// HardLimitMB is the maximum resident memory.
	HardLimitMB uint64 `yaml:"hard_limit_mb"`

	// SoftLimitMB produces warnings. Zero disables soft warnings.
	SoftLimitMB uint64 `yaml:"soft_limit_mb"`

	// CheckInterval is the number of Check calls between queries.
	CheckInterval int `yaml:"check_interval"`

	// Aggressive divides CheckInterval by five.
	Aggressive bool `yaml:"aggressive"`

	// MaxGrowthRateMBPerSec logs growth faster than this.
	MaxGrowthRateMBPerSec float64 `yaml:"max_growth_rate_mb_per_sec"`
}

// EffectiveInterval returns the check interval after aggressive scaling.
func (c MemoryConfig) EffectiveInterval() int {
	if !c.Aggressive {
		return c.CheckInterval
	}
	n := c.CheckInterval / defaults.AggressiveIntervalDivisor
	if n < 1 {
		n = 1
	}
	return n
}

// CPUConfig configures the CPU load monitor.
type CPUConfig struct {
	Enabled bool `yaml:"enabled"`

	// HighThreshold stops throttling once load falls below it.
	HighThreshold float64 `yaml:"high_threshold"`

	// CriticalThreshold starts throttling and fails CheckNow.
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// SampleInterval is the minimum time between samples.
	SampleInterval time.Duration `yaml:"sample_interval"`

	// WindowSize is the number of samples averaged.
	WindowSize int `yaml:"window_size"`

	// AutoThrottle enables MaybeThrottle sleeps.
	AutoThrottle bool `yaml:"auto_throttle"`

	// ThrottleDelay is the sleep applied while throttling.
	ThrottleDelay time.Duration `yaml:"throttle_delay"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	// Producers is the number of producer goroutines.
	Producers int `yaml:"producers"`

	// TotalRecords is the number of records to generate. Zero runs until cancelled.
	TotalRecords int64 `yaml:"total_records"`

	// BatchSize is the consumer batch size at Normal level.
	BatchSize int `yaml:"batch_size"`

	// ProgressInterval emits a progress event every N records.
	ProgressInterval int64 `yaml:"progress_interval"`

	// Seed makes generation reproducible.
	Seed uint64 `yaml:"seed"`

	// LinesPerEntry is the average number of lines per journal entry.
	LinesPerEntry int `yaml:"lines_per_entry"`

	// AnomalyRate is the fraction of records flagged as anomalies at Normal level.
	AnomalyRate float64 `yaml:"anomaly_rate"`
}

// SinkConfig configures the downstream writer.
type SinkConfig struct {
	// Format is "segment" or "parquet".
	Format string `yaml:"format"`

	// Dir is the output directory.
	Dir string `yaml:"dir"`

	// Compression: zstd, snappy, lz4, gzip, none. Segment sinks support zstd and none.
	Compression string `yaml:"compression"`

	// MaxSegmentSize rotates segment files.
	MaxSegmentSize int64 `yaml:"max_segment_size"`

	// RowsPerFile rotates parquet files.
	RowsPerFile int64 `yaml:"rows_per_file"`

	// Fsync forces fsync on every flush.
	Fsync bool `yaml:"fsync"`

	// Retention prunes old output files during long runs.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig bounds the files kept in the sink directory. A zero limit
// is not enforced; with every limit zero retention is disabled.
type RetentionConfig struct {
	MaxFiles   int           `yaml:"max_files"`
	MaxTotalMB uint64        `yaml:"max_total_mb"`
	MaxAge     time.Duration `yaml:"max_age"`

	// Interval between cleanup passes.
	Interval time.Duration `yaml:"interval"`
}

// Enabled reports whether any limit is set.
func (r RetentionConfig) Enabled() bool {
	return r.MaxFiles > 0 || r.MaxTotalMB > 0 || r.MaxAge > 0
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`

	// TLS is enabled when both files are set.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`

	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `yaml:"format"`

	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of DefaultConfig, resolves the degradation
// preset and validates the result.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Degradation.ApplyPreset(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimit: DefaultRateLimit(),
		Channel: ChannelConfig{
			Capacity:    defaults.DefaultChannelCapacity,
			Strategy:    ChannelBlock,
			MaxOverflow: defaults.DefaultMaxOverflow,
		},
		Guard: GuardConfig{
			CheckInterval: defaults.DefaultCheckInterval,
			Disk:          DefaultDisk(),
			Memory:        DefaultMemory(),
			CPU:           DefaultCPU(),
		},
		Degradation: DefaultDegradation(),
		Pipeline: PipelineConfig{
			Producers:        defaults.DefaultProducers,
			TotalRecords:     10000,
			BatchSize:        defaults.DefaultBatchSize,
			ProgressInterval: defaults.DefaultProgressInterval,
			Seed:             42,
			LinesPerEntry:    4,
			AnomalyRate:      0.02,
		},
		Sink: SinkConfig{
			Format:         defaults.DefaultSinkFormat,
			Dir:            defaults.DefaultOutputDir,
			Compression:    "zstd",
			MaxSegmentSize: defaults.DefaultMaxSegmentSize,
			RowsPerFile:    defaults.DefaultRowsPerFile,
			Retention: RetentionConfig{
				Interval: defaults.DefaultRetentionInterval,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "auto",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// EnsureDirectories creates the sink output directory and the log file's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Sink.Dir}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
