package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	defaults "github.com/ey-asu-rnd/streamguard/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	"github.com/ey-asu-rnd/streamguard/internal/record"
)

// SegmentSink writes record batches to rotating segment files.
//
// File format:
//   - Header: 8 bytes magic + 4 bytes version + 4 bytes flags
//   - Frames: [4 bytes length][4 bytes crc32][payload]
//
// Each payload is one batch: a protobuf ListValue of record Structs,
// zstd-compressed when the header's compression flag is set.
type SegmentSink struct {
	mu sync.Mutex

	dir            string
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	segmentSeq     int64

	writer  *bufio.Writer
	encoder *zstd.Encoder
	closed  bool

	opts SegmentOptions

	// Statistics
	stats Stats
}

// SegmentOptions configures the segment sink.
type SegmentOptions struct {
	// MaxSegmentSize is the maximum size of a segment file before rotation.
	// Default: 64MB
	MaxSegmentSize int64

	// Compression is "zstd" or "none".
	Compression string

	// Fsync forces an fsync on every Flush.
	Fsync bool

	// BufferSize is the size of the write buffer.
	// Default: 64KB
	BufferSize int
}

const (
	segmentMagic      = 0x5347534547000001 // "SGSEG" + version 1
	segmentVersion    = 1
	headerSize        = 16 // 8 bytes magic + 4 bytes version + 4 bytes flags
	frameHeaderSize   = 8  // 4 bytes length + 4 bytes crc
	flagZstd          = 1 << 0
	segmentExt        = constants.SegmentExt
	segmentNameLength = 16 + len(segmentExt)
)

// NewSegmentSink creates a segment sink in dir, continuing the numbering of
// any segments already there.
func NewSegmentSink(dir string, opts SegmentOptions) (*SegmentSink, error) {
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = defaults.DefaultMaxSegmentSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.DefaultWriteBufferSize
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	s := &SegmentSink{
		dir:  dir,
		opts: opts,
	}

	switch opts.Compression {
	case "", "none":
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.encoder = enc
	default:
		return nil, fmt.Errorf("segment sink: unsupported compression %q", opts.Compression)
	}

	segments, err := ListSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		s.segmentSeq = segmentSeq(segments[len(segments)-1]) + 1
	}

	if err := s.rotateUnlocked(); err != nil {
		return nil, fmt.Errorf("create initial segment: %w", err)
	}

	return s, nil
}

// Write encodes records as one frame.
func (s *SegmentSink) Write(records []record.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, closedErr("segment")
	}

	payload, err := s.encode(records)
	if err != nil {
		s.stats.Errors++
		return 0, fmt.Errorf("encode batch: %w", err)
	}

	frameSize := int64(frameHeaderSize + len(payload))
	if s.currentSize > headerSize && s.currentSize+frameSize > s.opts.MaxSegmentSize {
		if err := s.rotateUnlocked(); err != nil {
			s.stats.Errors++
			return 0, fmt.Errorf("rotate segment: %w", err)
		}
	}

	if err := s.writeFrame(payload); err != nil {
		s.stats.Errors++
		return 0, fmt.Errorf("write frame: %w", err)
	}

	s.stats.RecordsWritten += int64(len(records))
	s.stats.BytesWritten += frameSize
	return frameSize, nil
}

func (s *SegmentSink) encode(records []record.Record) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(records))}
	for i := range records {
		st, err := records[i].ToStruct()
		if err != nil {
			return nil, err
		}
		list.Values[i] = structpb.NewStructValue(st)
	}

	payload, err := proto.Marshal(list)
	if err != nil {
		return nil, err
	}
	if s.encoder != nil {
		payload = s.encoder.EncodeAll(payload, nil)
	}
	return payload, nil
}

func (s *SegmentSink) writeFrame(payload []byte) error {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := s.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := s.writer.Write(payload); err != nil {
		return err
	}

	s.currentSize += int64(frameHeaderSize + len(payload))
	return nil
}

// Flush flushes buffered frames, with an fsync when configured.
func (s *SegmentSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedErr("segment")
	}
	return s.flushUnlocked()
}

func (s *SegmentSink) flushUnlocked() error {
	if s.writer == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		s.stats.Errors++
		return err
	}

	if s.opts.Fsync {
		if err := s.currentSegment.Sync(); err != nil {
			s.stats.Errors++
			return err
		}
	}

	s.stats.Flushes++
	return nil
}

// Rotate closes the current segment and starts a new one.
func (s *SegmentSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedErr("segment")
	}
	return s.rotateUnlocked()
}

func (s *SegmentSink) rotateUnlocked() error {
	if s.currentSegment != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
		if err := s.currentSegment.Close(); err != nil {
			return err
		}
	}

	segmentPath := filepath.Join(s.dir, fmt.Sprintf("%016d%s", s.segmentSeq, segmentExt))

	f, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", segmentPath, err)
	}

	var flags uint32
	if s.encoder != nil {
		flags |= flagZstd
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], segmentMagic)
	binary.LittleEndian.PutUint32(header[8:12], segmentVersion)
	binary.LittleEndian.PutUint32(header[12:16], flags)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(segmentPath)
		return fmt.Errorf("write header: %w", err)
	}

	s.currentSegment = f
	s.currentPath = segmentPath
	s.currentSize = headerSize
	s.writer = bufio.NewWriterSize(f, s.opts.BufferSize)
	s.segmentSeq++
	s.stats.Files++
	s.stats.BytesWritten += headerSize

	return nil
}

// Close flushes and closes the current segment.
func (s *SegmentSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.encoder != nil {
		defer s.encoder.Close()
	}

	if err := s.flushUnlocked(); err != nil {
		s.currentSegment.Close()
		return fmt.Errorf("flush segment: %w", err)
	}
	return s.currentSegment.Close()
}

// Stats returns sink statistics.
func (s *SegmentSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CurrentSegment returns the path of the segment being written.
func (s *SegmentSink) CurrentSegment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// Dir returns the output directory.
func (s *SegmentSink) Dir() string {
	return s.dir
}

// ListSegments returns the segment files in dir in write order.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || len(name) != segmentNameLength || filepath.Ext(name) != segmentExt {
			continue
		}
		var seq int64
		if _, err := fmt.Sscanf(name, "%016d", &seq); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}

func segmentSeq(path string) int64 {
	var seq int64
	fmt.Sscanf(filepath.Base(path), "%016d", &seq)
	return seq
}
