// Package sink writes record batches to disk.
//
// Two formats are available:
//   - segment: length+CRC framed files holding protobuf-encoded batches,
//     optionally zstd-compressed, rotated by size
//   - parquet: columnar files rotated by row count
//
// Guarded wraps any Sink with disk space checks before each write.
package sink

import (
	"fmt"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/record"
)

// Sink consumes record batches. Implementations are safe for concurrent use.
type Sink interface {
	// Write appends records and returns the number of bytes they added to
	// the output. Formats that buffer internally return an estimate.
	Write(records []record.Record) (int64, error)

	// Flush pushes buffered data to the operating system.
	Flush() error

	// Close flushes and releases the sink. Writes after Close fail with
	// ErrSinkClosed.
	Close() error
}

// Stats holds common sink statistics.
type Stats struct {
	Files          int64
	RecordsWritten int64
	BytesWritten   int64
	Flushes        int64
	Errors         int64
}

// New creates the sink selected by cfg.Format.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Format {
	case constants.SinkFormatSegment:
		return NewSegmentSink(cfg.Dir, SegmentOptions{
			MaxSegmentSize: cfg.MaxSegmentSize,
			Compression:    cfg.Compression,
			Fsync:          cfg.Fsync,
		})
	case constants.SinkFormatParquet:
		return NewParquetSink(cfg.Dir, ParquetOptions{
			Compression: ParseCompressionType(cfg.Compression),
			RowsPerFile: cfg.RowsPerFile,
		})
	default:
		return nil, sgerrors.NewInvalidValue("sink.format", cfg.Format, "must be segment or parquet")
	}
}

func closedErr(kind string) error {
	return fmt.Errorf("%s sink: %w", kind, sgerrors.ErrSinkClosed)
}
