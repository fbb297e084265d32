// Package constants provides the names shared by configuration, sinks and
// the CLI.
package constants

import "slices"

// =============================================================================
// Sink Formats
// =============================================================================

const (
	// SinkFormatSegment writes length-prefixed protobuf frames to .seg files.
	SinkFormatSegment = "segment"

	// SinkFormatParquet writes columnar .parquet files.
	SinkFormatParquet = "parquet"
)

// ValidSinkFormats contains all valid sink formats
var ValidSinkFormats = []string{SinkFormatSegment, SinkFormatParquet}

// IsValidSinkFormat checks if a format is valid
func IsValidSinkFormat(format string) bool {
	return slices.Contains(ValidSinkFormats, format)
}

// =============================================================================
// Compression Codecs
// =============================================================================

const (
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
	CompressionGzip   = "gzip"
	CompressionNone   = "none"
)

// ValidCompressions contains all codecs accepted by the parquet sink. An
// empty name means none.
var ValidCompressions = []string{
	CompressionZstd,
	CompressionSnappy,
	CompressionLZ4,
	CompressionGzip,
	CompressionNone,
}

// SegmentCompressions contains the codecs the segment sink supports.
var SegmentCompressions = []string{CompressionZstd, CompressionNone}

// IsValidCompression checks if codec is valid for the given sink format
func IsValidCompression(format, codec string) bool {
	if codec == "" {
		return true
	}
	if format == SinkFormatSegment {
		return slices.Contains(SegmentCompressions, codec)
	}
	return slices.Contains(ValidCompressions, codec)
}

// =============================================================================
// Log Formats
// =============================================================================

const (
	// LogFormatAuto picks text on a terminal and JSON otherwise.
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ValidLogFormats contains all valid log formats
var ValidLogFormats = []string{LogFormatAuto, LogFormatText, LogFormatJSON}

// IsValidLogFormat checks if a log format is valid. Empty means auto.
func IsValidLogFormat(format string) bool {
	return format == "" || slices.Contains(ValidLogFormats, format)
}

// =============================================================================
// Output Files
// =============================================================================

const (
	// SegmentExt is the extension of segment files.
	SegmentExt = ".seg"

	// ParquetExt is the extension of parquet files.
	ParquetExt = ".parquet"
)

// SinkFileExts contains the extensions of every file a sink may create.
var SinkFileExts = []string{SegmentExt, ParquetExt}

// IsSinkFile checks if ext belongs to a sink output file
func IsSinkFile(ext string) bool {
	return slices.Contains(SinkFileExts, ext)
}
