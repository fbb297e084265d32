// Package config provides configuration defaults for streamguard.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Rate Limiter Defaults
// =============================================================================

const (
	// DefaultRate is the sustained emission rate in records per second.
	// Override via config: rate_limit.rate
	DefaultRate = 1000.0

	// DefaultBurstSize is the token bucket capacity.
	// A full bucket lets this many records through without pacing.
	// Override via config: rate_limit.burst_size
	DefaultBurstSize = 100

	// DefaultMaxBuffered caps the marker queue of the buffer strategy.
	// Override via config: rate_limit.max_buffered
	DefaultMaxBuffered = 1000
)

// =============================================================================
// Channel Defaults
// =============================================================================

const (
	// DefaultChannelCapacity is the bounded queue size between producers and
	// the consumer.
	// Override via config: channel.capacity
	DefaultChannelCapacity = 1000

	// DefaultMaxOverflow is the extra room granted by the buffer strategy.
	// Override via config: channel.max_overflow
	DefaultMaxOverflow = 100
)

// =============================================================================
// Guard Defaults
// =============================================================================

const (
	// DefaultCheckInterval is the number of operations between OS queries.
	// Every monitor and the governor share this cadence.
	// Override via config: guard.check_interval
	DefaultCheckInterval = 500

	// DefaultDiskHardLimitMB is the minimum free space that must remain.
	// Override via config: guard.disk.hard_limit_mb
	DefaultDiskHardLimitMB = 100

	// DefaultDiskSoftLimitMB triggers warnings when free space drops below it.
	// Override via config: guard.disk.soft_limit_mb
	DefaultDiskSoftLimitMB = 500

	// DefaultDiskReserveMB is added to the hard limit for hard-limit checks.
	// Override via config: guard.disk.reserve_mb
	DefaultDiskReserveMB = 50

	// DefaultDiskPath is the path whose filesystem is monitored.
	// Override via config: guard.disk.path
	DefaultDiskPath = "."

	// DefaultMemorySoftLimitPercent derives the memory soft limit from the
	// hard limit when only the hard limit is given.
	DefaultMemorySoftLimitPercent = 80

	// DefaultMaxGrowthRateMBPerSec is the resident growth rate that gets logged.
	// Override via config: guard.memory.max_growth_rate_mb_per_sec
	DefaultMaxGrowthRateMBPerSec = 100.0

	// AggressiveIntervalDivisor shortens the memory check interval in
	// aggressive mode.
	AggressiveIntervalDivisor = 5
)

// =============================================================================
// CPU Defaults
// =============================================================================

const (
	// DefaultCPUHighThreshold stops throttling when load falls below it.
	// Override via config: guard.cpu.high_threshold
	DefaultCPUHighThreshold = 0.85

	// DefaultCPUCriticalThreshold starts throttling and fails CheckNow.
	// Override via config: guard.cpu.critical_threshold
	DefaultCPUCriticalThreshold = 0.95

	// DefaultCPUSampleInterval is the minimum time between CPU samples.
	// Override via config: guard.cpu.sample_interval
	DefaultCPUSampleInterval = time.Second

	// DefaultCPUWindowSize is the number of samples kept for averaging.
	// Override via config: guard.cpu.window_size
	DefaultCPUWindowSize = 10

	// DefaultThrottleDelay is the sleep applied by MaybeThrottle.
	// Override via config: guard.cpu.throttle_delay
	DefaultThrottleDelay = 50 * time.Millisecond
)

// =============================================================================
// Pipeline Defaults
// =============================================================================

const (
	// DefaultProducers is the number of producer goroutines.
	// Override via config: pipeline.producers
	DefaultProducers = 2

	// DefaultBatchSize is the consumer write batch at Normal level.
	// Degraded levels scale it down.
	// Override via config: pipeline.batch_size
	DefaultBatchSize = 100

	// DefaultProgressInterval emits a progress event every N records.
	// Override via config: pipeline.progress_interval
	DefaultProgressInterval = 1000

	// DefaultRecvTimeout bounds a single consumer wait so cancellation is
	// observed promptly.
	DefaultRecvTimeout = 100 * time.Millisecond
)

// =============================================================================
// Sink Defaults
// =============================================================================

const (
	// DefaultOutputDir is where sink files are written.
	// Override via config: sink.dir
	DefaultOutputDir = "./output"

	// DefaultSinkFormat selects the writer: "segment" or "parquet".
	// Override via config: sink.format
	DefaultSinkFormat = "segment"

	// DefaultMaxSegmentSize rotates segment files at this size.
	// Override via config: sink.max_segment_size
	DefaultMaxSegmentSize = 64 * 1024 * 1024

	// DefaultRowsPerFile rotates parquet files at this row count.
	// Override via config: sink.rows_per_file
	DefaultRowsPerFile = 500000

	// DefaultWriteBufferSize is the bufio size used by the segment sink.
	DefaultWriteBufferSize = 64 * 1024

	// DefaultRetentionInterval is the time between retention passes. Retention
	// only runs when sink.retention sets a limit.
	// Override via config: sink.retention.interval
	DefaultRetentionInterval = time.Minute
)
