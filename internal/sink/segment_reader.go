package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"os"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ey-asu-rnd/streamguard/internal/record"
)

// maxFrameSize bounds a single frame read back from disk.
const maxFrameSize = 256 * 1024 * 1024

// SegmentReader reads record batches from one segment file.
type SegmentReader struct {
	path    string
	file    *os.File
	r       *bufio.Reader
	decoder *zstd.Decoder

	// Statistics
	stats ReaderStats
}

// ReaderStats holds segment reader statistics.
type ReaderStats struct {
	FramesRead    int64
	RecordsRead   int64
	BytesRead     int64
	CorruptFrames int64
}

// NewSegmentReader opens a segment and verifies its header.
func NewSegmentReader(path string) (*SegmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != segmentMagic {
		f.Close()
		return nil, fmt.Errorf("invalid magic: expected %x, got %x", uint64(segmentMagic), magic)
	}

	version := binary.LittleEndian.Uint32(header[8:12])
	if version != segmentVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported version: %d", version)
	}

	r := &SegmentReader{
		path: path,
		file: f,
		r:    bufio.NewReader(f),
	}

	if binary.LittleEndian.Uint32(header[12:16])&flagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		r.decoder = dec
	}

	return r, nil
}

// ReadBatch reads the next frame. It returns io.EOF when no frames remain.
func (r *SegmentReader) ReadBatch() ([]record.Record, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if actualCRC := crc32.ChecksumIEEE(payload); actualCRC != expectedCRC {
		return nil, fmt.Errorf("CRC mismatch: expected %x, got %x", expectedCRC, actualCRC)
	}

	records, err := r.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	r.stats.FramesRead++
	r.stats.RecordsRead += int64(len(records))
	r.stats.BytesRead += int64(frameHeaderSize + len(payload))

	return records, nil
}

func (r *SegmentReader) decode(payload []byte) ([]record.Record, error) {
	if r.decoder != nil {
		var err error
		payload, err = r.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, err
		}
	}

	var list structpb.ListValue
	if err := proto.Unmarshal(payload, &list); err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		rec, err := record.FromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// All yields records until the end of the segment. A corrupt frame ends
// iteration; Err reports it.
func (r *SegmentReader) All() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		for {
			batch, err := r.ReadBatch()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					r.stats.CorruptFrames++
				}
				return
			}
			for _, rec := range batch {
				if !yield(rec) {
					return
				}
			}
		}
	}
}

// ReadAll reads every intact frame. A torn frame at the end of the file is
// counted as corrupt and ends the read without error.
func (r *SegmentReader) ReadAll() ([]record.Record, error) {
	var all []record.Record
	for rec := range r.All() {
		all = append(all, rec)
	}
	return all, nil
}

// Close closes the reader.
func (r *SegmentReader) Close() error {
	if r.decoder != nil {
		r.decoder.Close()
	}
	return r.file.Close()
}

// Stats returns reader statistics.
func (r *SegmentReader) Stats() ReaderStats {
	return r.stats
}

// Path returns the segment path.
func (r *SegmentReader) Path() string {
	return r.path
}

// ReadSegment reads all records from one segment file.
func ReadSegment(path string) ([]record.Record, error) {
	r, err := NewSegmentReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}

// ReadSegments reads all records from every segment in dir, in order.
func ReadSegments(dir string) ([]record.Record, error) {
	paths, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}

	var all []record.Record
	for _, path := range paths {
		records, err := ReadSegment(path)
		if err != nil {
			return nil, fmt.Errorf("read segment %s: %w", path, err)
		}
		all = append(all, records...)
	}
	return all, nil
}
