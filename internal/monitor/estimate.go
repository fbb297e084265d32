package monitor

import (
	"fmt"
	"strings"

	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

// OutputFormat is an encoder whose output size can be estimated.
type OutputFormat string

const (
	FormatCSV     OutputFormat = "csv"
	FormatJSON    OutputFormat = "json"
	FormatParquet OutputFormat = "parquet"
	FormatSegment OutputFormat = "segment"
)

// Average encoded bytes per record.
const (
	csvBytesPerRecord     = 400
	jsonBytesPerRecord    = 800
	parquetBytesPerRecord = 200
	segmentBytesPerRecord = 600

	compressionRatio = 5
	outputOverhead   = 1.3
)

// Per-entry in-memory footprint used by EstimateMemoryMB.
const (
	entryHeaderBytes   = 500
	entryLineBytes     = 300
	entryOverheadBytes = 200
	allocationOverhead = 1.5
)

func (f OutputFormat) bytesPerRecord() uint64 {
	switch f {
	case FormatCSV:
		return csvBytesPerRecord
	case FormatJSON:
		return jsonBytesPerRecord
	case FormatParquet:
		return parquetBytesPerRecord
	case FormatSegment:
		return segmentBytesPerRecord
	default:
		return 0
	}
}

// ParseFormats parses a comma separated list such as "csv,parquet".
func ParseFormats(s string) ([]OutputFormat, error) {
	var out []OutputFormat
	for _, part := range strings.Split(s, ",") {
		f := OutputFormat(strings.ToLower(strings.TrimSpace(part)))
		if f == "" {
			continue
		}
		if f.bytesPerRecord() == 0 {
			return nil, sgerrors.NewInvalidValue("format", part, "must be one of: csv, json, parquet, segment")
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, sgerrors.NewMissingField("formats")
	}
	return out, nil
}

// EstimateOutputSizeMB estimates the on-disk size of entries records written
// in every format, divided by five when compressed, plus 30% overhead,
// rounded up to whole MB.
func EstimateOutputSizeMB(entries uint64, formats []OutputFormat, compressed bool) uint64 {
	var total uint64
	for _, f := range formats {
		total += entries * f.bytesPerRecord()
	}
	if compressed {
		total /= compressionRatio
	}
	withOverhead := uint64(float64(total) * outputOverhead)
	return ceilMB(withOverhead)
}

// EstimateMemoryMB estimates the peak memory needed to hold entries records
// averaging avgLines lines each, with 50% allocation overhead, rounded up.
func EstimateMemoryMB(entries uint64, avgLines int) uint64 {
	if avgLines < 0 {
		avgLines = 0
	}
	perEntry := uint64(entryHeaderBytes + avgLines*entryLineBytes + entryOverheadBytes)
	withOverhead := uint64(float64(entries*perEntry) * allocationOverhead)
	return ceilMB(withOverhead)
}

// CheckSufficientDiskSpace fails when the filesystem holding path cannot fit
// the estimated output plus minFreeMB.
func CheckSufficientDiskSpace(probe platform.Probe, path string, entries uint64,
	formats []OutputFormat, compressed bool, minFreeMB uint64) error {

	estimated := EstimateOutputSizeMB(entries, formats, compressed)
	usage, err := probe.DiskUsage(path)
	if err != nil {
		return sgerrors.Wrap(err, "unable to determine available disk space")
	}

	available := usage.AvailableBytes / bytesPerMB
	required := estimated + minFreeMB
	if available < required {
		e := sgerrors.NewDiskExhausted(available, required)
		e.Message = fmt.Sprintf("insufficient disk space: %d MB available, need %d MB "+
			"(estimated output: %d MB, minimum free: %d MB); reduce output volume or free up disk space",
			available, required, estimated, minFreeMB)
		return e
	}
	return nil
}

// CheckSufficientMemory fails when the memory estimate exceeds limitMB.
// A zero limit always passes. The error suggests a record count that fits.
func CheckSufficientMemory(entries uint64, avgLines int, limitMB uint64) error {
	estimated := EstimateMemoryMB(entries, avgLines)
	if limitMB == 0 || estimated <= limitMB {
		return nil
	}
	e := sgerrors.NewMemoryExhausted(estimated, limitMB)
	e.Message = fmt.Sprintf("estimated memory requirement (%d MB) exceeds limit (%d MB); "+
		"reduce record count from %d to approximately %d",
		estimated, limitMB, entries, entries*limitMB/estimated)
	return e
}

func ceilMB(bytes uint64) uint64 {
	return (bytes + bytesPerMB - 1) / bytesPerMB
}
