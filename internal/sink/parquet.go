package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	defaults "github.com/ey-asu-rnd/streamguard/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	"github.com/ey-asu-rnd/streamguard/internal/record"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ParquetOptions configures the Parquet sink.
type ParquetOptions struct {
	Compression CompressionType

	// RowsPerFile rotates to a new file after this many records.
	// Default: 500000
	RowsPerFile int64
}

// RecordRow is a record in Parquet format.
type RecordRow struct {
	ID            string    `parquet:"id"`
	Seq           int64     `parquet:"seq"`
	CompanyCode   string    `parquet:"company_code,dict"`
	PostingDateMs int64     `parquet:"posting_date_ms"`
	DocumentType  string    `parquet:"document_type,dict"`
	Currency      string    `parquet:"currency,dict"`
	CreatedBy     string    `parquet:"created_by,dict"`
	HeaderText    string    `parquet:"header_text,optional"`
	Reference     string    `parquet:"reference,optional"`
	IsAnomaly     bool      `parquet:"is_anomaly"`
	AnomalyType   string    `parquet:"anomaly_type,optional"`
	QualityIssue  string    `parquet:"quality_issue,optional"`
	Lines         []LineRow `parquet:"lines"`
}

// LineRow is a posting line in Parquet format.
type LineRow struct {
	Number     int32   `parquet:"number"`
	Account    string  `parquet:"account"`
	Debit      float64 `parquet:"debit"`
	Credit     float64 `parquet:"credit"`
	CostCenter string  `parquet:"cost_center,optional"`
	Text       string  `parquet:"text,optional"`
}

// RecordToRow converts a Record to a RecordRow.
func RecordToRow(r *record.Record) RecordRow {
	row := RecordRow{
		ID:            r.ID.String(),
		Seq:           int64(r.Seq),
		CompanyCode:   r.CompanyCode,
		PostingDateMs: r.PostingDate.UnixMilli(),
		DocumentType:  r.DocumentType,
		Currency:      r.Currency,
		CreatedBy:     r.CreatedBy,
		HeaderText:    r.HeaderText,
		Reference:     r.Reference,
		IsAnomaly:     r.IsAnomaly,
		AnomalyType:   r.AnomalyType,
		QualityIssue:  r.QualityIssue,
		Lines:         make([]LineRow, len(r.Lines)),
	}
	for i, l := range r.Lines {
		row.Lines[i] = LineRow{
			Number:     int32(l.Number),
			Account:    l.Account,
			Debit:      l.Debit,
			Credit:     l.Credit,
			CostCenter: l.CostCenter,
			Text:       l.Text,
		}
	}
	return row
}

// RowToRecord converts a RecordRow to a Record.
func RowToRecord(row *RecordRow) (record.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return record.Record{}, fmt.Errorf("parse id: %w", err)
	}

	r := record.Record{
		ID:           id,
		Seq:          uint64(row.Seq),
		CompanyCode:  row.CompanyCode,
		PostingDate:  time.UnixMilli(row.PostingDateMs).UTC(),
		DocumentType: row.DocumentType,
		Currency:     row.Currency,
		CreatedBy:    row.CreatedBy,
		HeaderText:   row.HeaderText,
		Reference:    row.Reference,
		IsAnomaly:    row.IsAnomaly,
		AnomalyType:  row.AnomalyType,
		QualityIssue: row.QualityIssue,
		Lines:        make([]record.Line, len(row.Lines)),
	}
	for i, l := range row.Lines {
		r.Lines[i] = record.Line{
			Number:     int(l.Number),
			Account:    l.Account,
			Debit:      l.Debit,
			Credit:     l.Credit,
			CostCenter: l.CostCenter,
			Text:       l.Text,
		}
	}
	return r, nil
}

// ParquetSink writes records to numbered Parquet files, starting a new file
// every RowsPerFile records. A file is only readable after it is closed.
type ParquetSink struct {
	mu sync.Mutex

	dir      string
	opts     ParquetOptions
	file     *os.File
	writer   *parquet.GenericWriter[RecordRow]
	path     string
	fileSeq  int64
	fileRows int64
	closed   bool

	stats Stats
}

// NewParquetSink creates a Parquet sink in dir.
func NewParquetSink(dir string, opts ParquetOptions) (*ParquetSink, error) {
	if opts.RowsPerFile <= 0 {
		opts.RowsPerFile = defaults.DefaultRowsPerFile
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	existing, err := ListParquetFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list parquet files: %w", err)
	}

	s := &ParquetSink{
		dir:     dir,
		opts:    opts,
		fileSeq: int64(len(existing)),
	}
	if err := s.openUnlocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ParquetSink) openUnlocked() error {
	path := filepath.Join(s.dir, fmt.Sprintf("%016d%s", s.fileSeq, constants.ParquetExt))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	s.file = f
	s.path = path
	s.writer = parquet.NewGenericWriter[RecordRow](f,
		parquet.Compression(getCompression(s.opts.Compression)),
	)
	s.fileRows = 0
	s.fileSeq++
	s.stats.Files++
	return nil
}

func (s *ParquetSink) closeFileUnlocked() error {
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return s.file.Close()
}

// Write appends records, rotating files at RowsPerFile. The returned byte
// count is the records' size hint, since row groups are buffered in memory.
func (s *ParquetSink) Write(records []record.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, closedErr("parquet")
	}

	rows := make([]RecordRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}

	for len(rows) > 0 {
		room := s.opts.RowsPerFile - s.fileRows
		chunk := rows
		if int64(len(chunk)) > room {
			chunk = rows[:room]
		}

		n, err := s.writer.Write(chunk)
		s.fileRows += int64(n)
		s.stats.RecordsWritten += int64(n)
		if err != nil {
			s.stats.Errors++
			return 0, fmt.Errorf("write rows: %w", err)
		}
		rows = rows[n:]

		if s.fileRows >= s.opts.RowsPerFile {
			if err := s.closeFileUnlocked(); err != nil {
				s.stats.Errors++
				return 0, err
			}
			if err := s.openUnlocked(); err != nil {
				s.stats.Errors++
				return 0, err
			}
		}
	}

	n := int64(record.SizeHint(records))
	s.stats.BytesWritten += n
	return n, nil
}

// Flush ends the current row group and writes it to the file.
func (s *ParquetSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedErr("parquet")
	}
	if err := s.writer.Flush(); err != nil {
		s.stats.Errors++
		return fmt.Errorf("flush row group: %w", err)
	}
	s.stats.Flushes++
	return nil
}

// Close writes the footer of the current file and closes it.
func (s *ParquetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.closeFileUnlocked()
}

// Stats returns sink statistics.
func (s *ParquetSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CurrentFile returns the path of the file being written.
func (s *ParquetSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// ListParquetFiles returns the Parquet files in dir in write order.
func ListParquetFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+constants.ParquetExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadParquetFile reads every record from a closed Parquet file.
func ReadParquetFile(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[RecordRow](f)
	defer reader.Close()

	rows := make([]RecordRow, reader.NumRows())
	n := 0
	for n < len(rows) {
		k, err := reader.Read(rows[n:])
		n += k
		if errors.Is(err, io.EOF) || (err == nil && k == 0) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	records := make([]record.Record, n)
	for i := 0; i < n; i++ {
		rec, err := RowToRecord(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		records[i] = rec
	}
	return records, nil
}

// ReadParquetDir reads every record from the Parquet files in dir.
func ReadParquetDir(dir string) ([]record.Record, error) {
	paths, err := ListParquetFiles(dir)
	if err != nil {
		return nil, err
	}

	var all []record.Record
	for _, path := range paths {
		records, err := ReadParquetFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		all = append(all, records...)
	}
	return all, nil
}
