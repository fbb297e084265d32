package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

// PlanInput describes a planned run.
type PlanInput struct {
	Entries    uint64
	Formats    []OutputFormat
	Compressed bool
	AvgLines   int

	// Rate is the limiter rate in records per second. Zero means unpaced.
	Rate float64

	// Path is where output will be written.
	Path string

	// MinFreeMB is the free space that must remain after the run.
	MinFreeMB uint64

	// MemoryLimitMB is the memory hard limit. Zero skips the memory check.
	MemoryLimitMB uint64
}

// Plan represents calculated resource requirements for a run.
type Plan struct {
	Input PlanInput

	// Output
	OutputMB        uint64
	RequiredDiskMB  uint64
	AvailableDiskMB uint64
	DiskKnown       bool
	DiskErr         error

	// Memory
	MemoryMB  uint64
	MemoryErr error

	// Throughput
	Duration    time.Duration
	BytesPerSec uint64
}

// Sufficient reports whether both the disk and memory checks passed.
func (p *Plan) Sufficient() bool {
	return p.DiskErr == nil && p.MemoryErr == nil
}

// CalculatePlan estimates output size, memory and duration for in and
// checks them against the filesystem reported by probe.
func CalculatePlan(in PlanInput, probe platform.Probe) Plan {
	if probe == nil {
		probe = platform.Default()
	}
	if in.Path == "" {
		in.Path = "."
	}

	p := Plan{Input: in}

	// -------------------------------------------------------------------------
	// Disk
	// -------------------------------------------------------------------------

	p.OutputMB = EstimateOutputSizeMB(in.Entries, in.Formats, in.Compressed)
	p.RequiredDiskMB = p.OutputMB + in.MinFreeMB
	if usage, err := probe.DiskUsage(in.Path); err == nil {
		p.AvailableDiskMB = usage.AvailableBytes / bytesPerMB
		p.DiskKnown = true
	}
	p.DiskErr = CheckSufficientDiskSpace(probe, in.Path, in.Entries, in.Formats, in.Compressed, in.MinFreeMB)

	// -------------------------------------------------------------------------
	// Memory
	// -------------------------------------------------------------------------

	p.MemoryMB = EstimateMemoryMB(in.Entries, in.AvgLines)
	p.MemoryErr = CheckSufficientMemory(in.Entries, in.AvgLines, in.MemoryLimitMB)

	// -------------------------------------------------------------------------
	// Throughput
	// -------------------------------------------------------------------------

	if in.Rate > 0 {
		seconds := float64(in.Entries) / in.Rate
		p.Duration = time.Duration(seconds * float64(time.Second))
		if seconds > 0 {
			p.BytesPerSec = uint64(float64(p.OutputMB*bytesPerMB) / seconds)
		}
	}

	return p
}

// Format returns a human-readable summary of the plan.
func (p *Plan) Format() string {
	formats := make([]string, len(p.Input.Formats))
	for i, f := range p.Input.Formats {
		formats[i] = string(f)
	}

	available := "unknown"
	if p.DiskKnown {
		available = formatBytes(p.AvailableDiskMB * bytesPerMB)
	}

	duration := "unpaced"
	if p.Duration > 0 {
		duration = p.Duration.Round(time.Second).String()
	}

	return fmt.Sprintf(`Capacity Plan
=============

Workload:
  Records:           %s
  Formats:           %s
  Compressed:        %t
  Lines/record:      %d

Disk:
  Estimated Output:  %s
  Required Free:     %s
  Available:         %s
  Status:            %s

Memory:
  Estimated Peak:    %s
  Status:            %s

Throughput:
  Duration:          %s
  Bytes/sec:         %s
`,
		formatNumber(p.Input.Entries),
		strings.Join(formats, ", "),
		p.Input.Compressed,
		p.Input.AvgLines,
		formatBytes(p.OutputMB*bytesPerMB),
		formatBytes(p.RequiredDiskMB*bytesPerMB),
		available,
		status(p.DiskErr),
		formatBytes(p.MemoryMB*bytesPerMB),
		status(p.MemoryErr),
		duration,
		formatBytes(p.BytesPerSec),
	)
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return "INSUFFICIENT: " + err.Error()
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with K/M/B suffixes.
func formatNumber(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
