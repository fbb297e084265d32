package config

import (
	"errors"
	"fmt"

	"github.com/ey-asu-rnd/streamguard/internal/constants"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limit: %w", err))
	}

	if err := c.Channel.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("channel: %w", err))
	}

	if err := c.Guard.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("guard: %w", err))
	}

	if err := c.Degradation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("degradation: %w", err))
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	if err := c.Sink.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sink: %w", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the rate limit configuration. A disabled limiter accepts any values.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Rate <= 0 {
		errs = append(errs, sgerrors.NewInvalidValue("rate", c.Rate, "must be positive when enabled"))
	}

	if c.BurstSize <= 0 {
		errs = append(errs, sgerrors.NewInvalidValue("burst_size", c.BurstSize, "must be positive"))
	}

	switch c.Strategy {
	case RateLimitBlock, RateLimitDrop:
	case RateLimitBuffer:
		if c.MaxBuffered <= 0 {
			errs = append(errs, sgerrors.NewValidation("max_buffered", "must be positive for buffer strategy"))
		}
	default:
		errs = append(errs, sgerrors.NewInvalidValue("strategy", c.Strategy, "must be one of: block, drop, buffer"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the channel configuration.
func (c *ChannelConfig) Validate() error {
	var errs []error

	if c.Capacity <= 0 {
		errs = append(errs, sgerrors.NewInvalidValue("capacity", c.Capacity, "must be positive"))
	}

	switch c.Strategy {
	case ChannelBlock, ChannelDropOldest, ChannelDropNewest:
	case ChannelBuffer:
		if c.MaxOverflow < 0 {
			errs = append(errs, sgerrors.NewValidation("max_overflow", "must be non-negative"))
		}
	default:
		errs = append(errs, sgerrors.NewInvalidValue("strategy", c.Strategy,
			"must be one of: block, drop_oldest, drop_newest, buffer"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks every guard section.
func (c *GuardConfig) Validate() error {
	var errs []error

	if c.CheckInterval <= 0 {
		errs = append(errs, sgerrors.NewValidation("check_interval", "must be positive"))
	}

	if c.Disk.Enabled {
		if c.Disk.CheckInterval <= 0 {
			errs = append(errs, sgerrors.NewValidation("disk.check_interval", "must be positive"))
		}
		if c.Disk.Path == "" {
			errs = append(errs, sgerrors.NewMissingField("disk.path"))
		}
		if c.Disk.SoftLimitMB != 0 && c.Disk.SoftLimitMB < c.Disk.HardLimitMB {
			errs = append(errs, sgerrors.NewValidation("disk.soft_limit_mb", "must be >= hard_limit_mb"))
		}
	}

	if c.Memory.Enabled {
		if c.Memory.HardLimitMB == 0 {
			errs = append(errs, sgerrors.NewValidation("memory.hard_limit_mb", "must be positive when enabled"))
		}
		if c.Memory.SoftLimitMB > c.Memory.HardLimitMB {
			errs = append(errs, sgerrors.NewValidation("memory.soft_limit_mb", "must be <= hard_limit_mb"))
		}
		if c.Memory.CheckInterval <= 0 {
			errs = append(errs, sgerrors.NewValidation("memory.check_interval", "must be positive"))
		}
	}

	if c.CPU.Enabled {
		if c.CPU.HighThreshold <= 0 || c.CPU.HighThreshold > 1 {
			errs = append(errs, sgerrors.NewValidation("cpu.high_threshold", "must be in (0, 1]"))
		}
		if c.CPU.CriticalThreshold < c.CPU.HighThreshold || c.CPU.CriticalThreshold > 1 {
			errs = append(errs, sgerrors.NewValidation("cpu.critical_threshold", "must be in [high_threshold, 1]"))
		}
		if c.CPU.WindowSize <= 0 {
			errs = append(errs, sgerrors.NewValidation("cpu.window_size", "must be positive"))
		}
		if c.CPU.SampleInterval < 0 || c.CPU.ThrottleDelay < 0 {
			errs = append(errs, sgerrors.NewValidation("cpu", "durations must be non-negative"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks threshold ordering. Memory and CPU thresholds must rise
// with severity; disk thresholds must fall.
func (c *DegradationConfig) Validate() error {
	var errs []error

	switch c.Preset {
	case "", PresetDefault, PresetConservative, PresetAggressive, PresetCustom:
	default:
		errs = append(errs, sgerrors.NewInvalidValue("preset", c.Preset,
			"must be one of: default, conservative, aggressive, custom"))
	}

	m := c.Thresholds.Memory
	if !(m.Warning <= m.Critical && m.Critical <= m.Emergency) {
		errs = append(errs, sgerrors.NewValidation("thresholds.memory", "must satisfy warning <= critical <= emergency"))
	}

	d := c.Thresholds.DiskMB
	if !(d.Warning >= d.Critical && d.Critical >= d.Emergency) {
		errs = append(errs, sgerrors.NewValidation("thresholds.disk_mb", "must satisfy warning >= critical >= emergency"))
	}

	cpu := c.Thresholds.CPU
	if cpu.Warning > cpu.Critical {
		errs = append(errs, sgerrors.NewValidation("thresholds.cpu", "must satisfy warning <= critical"))
	}

	if c.Recovery.Hysteresis < 0 || c.Recovery.Hysteresis >= 1 {
		errs = append(errs, sgerrors.NewValidation("recovery.hysteresis", "must be in [0, 1)"))
	}
	if c.Recovery.MinDwell < 0 {
		errs = append(errs, sgerrors.NewValidation("recovery.min_dwell", "must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	var errs []error

	if c.Producers <= 0 {
		errs = append(errs, errors.New("producers must be positive"))
	}
	if c.TotalRecords < 0 {
		errs = append(errs, errors.New("total_records must be non-negative"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, errors.New("progress_interval must be non-negative"))
	}
	if c.AnomalyRate < 0 || c.AnomalyRate > 1 {
		errs = append(errs, errors.New("anomaly_rate must be between 0 and 1"))
	}
	if c.LinesPerEntry <= 0 {
		errs = append(errs, errors.New("lines_per_entry must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the sink configuration.
func (c *SinkConfig) Validate() error {
	var errs []error

	if !constants.IsValidSinkFormat(c.Format) {
		errs = append(errs, errors.New("format must be one of: segment, parquet"))
	}

	if c.Dir == "" {
		errs = append(errs, errors.New("dir is required"))
	}

	switch {
	case !constants.IsValidCompression(constants.SinkFormatParquet, c.Compression):
		errs = append(errs, errors.New("compression must be one of: zstd, snappy, lz4, gzip, none"))
	case !constants.IsValidCompression(c.Format, c.Compression):
		errs = append(errs, errors.New("segment format supports only zstd or none compression"))
	}

	if c.MaxSegmentSize <= 0 {
		errs = append(errs, errors.New("max_segment_size must be positive"))
	}
	if c.RowsPerFile <= 0 {
		errs = append(errs, errors.New("rows_per_file must be positive"))
	}
	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	if !constants.IsValidLogFormat(c.Format) {
		return errors.New("format must be one of: auto, text, json")
	}
	return nil
}

// Validate validates retention limits.
func (r *RetentionConfig) Validate() error {
	var errs []error
	if r.MaxFiles < 0 {
		errs = append(errs, errors.New("max_files must not be negative"))
	}
	if r.MaxAge < 0 {
		errs = append(errs, errors.New("max_age must not be negative"))
	}
	if r.Enabled() && r.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive when a limit is set"))
	}
	return errors.Join(errs...)
}
