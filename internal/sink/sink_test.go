package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	sgerrors "github.com/ey-asu-rnd/streamguard/internal/errors"
	"github.com/ey-asu-rnd/streamguard/internal/monitor"
	"github.com/ey-asu-rnd/streamguard/internal/platform"
	"github.com/ey-asu-rnd/streamguard/internal/record"
)

func testRecords(n int, shape record.Shape) []record.Record {
	g := record.NewGenerator(99, record.GeneratorOptions{LinesPerEntry: 4})
	out := make([]record.Record, n)
	for i := range out {
		out[i] = g.Next(uint64(i), shape)
	}
	return out
}

// =============================================================================
// Segment
// =============================================================================

func TestSegmentSink_RoundTrip(t *testing.T) {
	for _, compression := range []string{"none", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewSegmentSink(dir, SegmentOptions{Compression: compression})
			require.NoError(t, err)

			written := testRecords(25, record.Shape{AnomalyRate: 0.3})
			n, err := s.Write(written[:10])
			require.NoError(t, err)
			assert.Positive(t, n)
			_, err = s.Write(written[10:])
			require.NoError(t, err)
			require.NoError(t, s.Close())

			stats := s.Stats()
			assert.Equal(t, int64(25), stats.RecordsWritten)
			assert.Equal(t, int64(1), stats.Files)

			read, err := ReadSegments(dir)
			require.NoError(t, err)
			assert.Equal(t, written, read)
		})
	}
}

func TestSegmentSink_ZstdShrinks(t *testing.T) {
	records := testRecords(200, record.Shape{})

	plain, err := NewSegmentSink(t.TempDir(), SegmentOptions{Compression: "none"})
	require.NoError(t, err)
	defer plain.Close()
	compressed, err := NewSegmentSink(t.TempDir(), SegmentOptions{Compression: "zstd"})
	require.NoError(t, err)
	defer compressed.Close()

	a, err := plain.Write(records)
	require.NoError(t, err)
	b, err := compressed.Write(records)
	require.NoError(t, err)

	assert.Less(t, b, a)
}

func TestSegmentSink_Rotation(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSegmentSink(dir, SegmentOptions{MaxSegmentSize: 2048})
	require.NoError(t, err)

	records := testRecords(60, record.Shape{})
	for i := 0; i < len(records); i += 3 {
		if _, err := s.Write(records[i : i+3]); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	require.NoError(t, s.Close())

	segments, err := ListSegments(dir)
	require.NoError(t, err)
	if len(segments) < 2 {
		t.Fatalf("expected rotation, got %d segments", len(segments))
	}
	assert.Equal(t, int64(len(segments)), s.Stats().Files)

	read, err := ReadSegments(dir)
	require.NoError(t, err)
	assert.Equal(t, records, read)
}

func TestSegmentSink_ContinuesNumbering(t *testing.T) {
	dir := t.TempDir()

	first, err := NewSegmentSink(dir, SegmentOptions{})
	require.NoError(t, err)
	firstPath := first.CurrentSegment()
	require.NoError(t, first.Close())

	second, err := NewSegmentSink(dir, SegmentOptions{})
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, firstPath, second.CurrentSegment())
	assert.Equal(t, "0000000000000001.seg", filepath.Base(second.CurrentSegment()))
}

func TestSegmentSink_Closed(t *testing.T) {
	s, err := NewSegmentSink(t.TempDir(), SegmentOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Write(testRecords(1, record.Shape{}))
	assert.ErrorIs(t, err, sgerrors.ErrSinkClosed)
	assert.ErrorIs(t, s.Flush(), sgerrors.ErrSinkClosed)
}

func TestSegmentSink_BadCompression(t *testing.T) {
	_, err := NewSegmentSink(t.TempDir(), SegmentOptions{Compression: "snappy"})
	assert.Error(t, err)
}

func TestSegmentReader_TornTail(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSegmentSink(dir, SegmentOptions{Fsync: true})
	require.NoError(t, err)

	records := testRecords(6, record.Shape{})
	_, err = s.Write(records[:3])
	require.NoError(t, err)
	_, err = s.Write(records[3:])
	require.NoError(t, err)
	path := s.CurrentSegment()
	require.NoError(t, s.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-5))

	r, err := NewSegmentReader(path)
	require.NoError(t, err)
	defer r.Close()

	read, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, records[:3], read)
	assert.Equal(t, int64(1), r.Stats().CorruptFrames)
	assert.Equal(t, int64(1), r.Stats().FramesRead)
}

func TestSegmentReader_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0000000000000000.seg")
	require.NoError(t, os.WriteFile(path, make([]byte, headerSize), 0644))

	_, err := NewSegmentReader(path)
	assert.Error(t, err)
}

// =============================================================================
// Parquet
// =============================================================================

func TestParquetSink_RoundTrip(t *testing.T) {
	for _, codec := range []string{"zstd", "snappy", "lz4", "gzip", "none"} {
		t.Run(codec, func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewParquetSink(dir, ParquetOptions{Compression: ParseCompressionType(codec)})
			require.NoError(t, err)

			written := testRecords(40, record.Shape{AnomalyRate: 0.5, QualityIssues: true})
			n, err := s.Write(written)
			require.NoError(t, err)
			assert.Equal(t, int64(record.SizeHint(written)), n)
			require.NoError(t, s.Flush())
			require.NoError(t, s.Close())

			read, err := ReadParquetDir(dir)
			require.NoError(t, err)
			assert.Equal(t, written, read)
		})
	}
}

func TestParquetSink_CompactRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewParquetSink(dir, ParquetOptions{})
	require.NoError(t, err)

	written := testRecords(5, record.Shape{Compact: true})
	_, err = s.Write(written)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	read, err := ReadParquetDir(dir)
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestParquetSink_Rotation(t *testing.T) {
	dir := t.TempDir()
	s, err := NewParquetSink(dir, ParquetOptions{RowsPerFile: 10})
	require.NoError(t, err)

	written := testRecords(25, record.Shape{})
	_, err = s.Write(written[:7])
	require.NoError(t, err)
	_, err = s.Write(written[7:])
	require.NoError(t, err)
	require.NoError(t, s.Close())

	files, err := ListParquetFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	counts := make([]int, len(files))
	for i, f := range files {
		records, err := ReadParquetFile(f)
		require.NoError(t, err)
		counts[i] = len(records)
	}
	assert.Equal(t, []int{10, 10, 5}, counts)

	read, err := ReadParquetDir(dir)
	require.NoError(t, err)
	assert.Equal(t, written, read)
}

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"unknown", CompressionZstd},
	}
	for _, tt := range tests {
		if got := ParseCompressionType(tt.in); got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Factory and decorators
// =============================================================================

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig().Sink
	cfg.Dir = t.TempDir()

	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SegmentSink{}, s)
	require.NoError(t, s.Close())

	cfg.Format = "parquet"
	cfg.Dir = t.TempDir()
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ParquetSink{}, s)
	require.NoError(t, s.Close())

	cfg.Format = "csv"
	_, err = New(cfg)
	assert.True(t, sgerrors.IsValidation(err))
}

func TestGuarded(t *testing.T) {
	probe := platform.NewFake(100000, 1000)
	disk := monitor.NewDisk(config.DefaultDisk(), probe)
	mem := NewMemory()
	g := NewGuarded(mem, disk)

	records := testRecords(10, record.Shape{})
	n, err := g.Write(records)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), disk.Stats().EstimatedBytesWritten)
	assert.Len(t, mem.Records(), 10)

	// Below the 100 MB hard limit plus 50 MB reserve.
	probe.SetDiskMB(100000, 149)
	_, err = g.Write(records)
	assert.ErrorIs(t, err, sgerrors.ErrDiskExhausted)
	assert.Len(t, mem.Records(), 10, "rejected batch must not reach the sink")

	n, err = g.Write(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, g.Flush())
	require.NoError(t, g.Close())
	assert.True(t, mem.Closed())
	assert.Same(t, mem, g.Unwrap())
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	_, err := m.Write(testRecords(3, record.Shape{}))
	require.NoError(t, err)
	require.NoError(t, m.Flush())
	assert.Equal(t, 1, m.Flushes())

	require.NoError(t, m.Close())
	_, err = m.Write(testRecords(1, record.Shape{}))
	assert.ErrorIs(t, err, sgerrors.ErrSinkClosed)
}
