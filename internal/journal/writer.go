package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"marketsim/internal/schema"
)

var (
	ErrClosed          = errors.New("journal writer closed")
	ErrPayloadTooLarge = errors.New("journal payload too large")
	ErrSeqNotMonotone  = errors.New("journal sequence not monotone")
)

const maxPayloadLen = uint64(^uint32(0))

// Config controls the journal writer.
type Config struct {
	Dir             string
	SegmentMaxBytes int64
	BufferSize      int
	FilePrefix      string
}

const (
	defaultSegmentMaxBytes int64 = 1 << 30
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "journal"
)

// DefaultConfig returns a baseline configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		SegmentMaxBytes: defaultSegmentMaxBytes,
		BufferSize:      defaultBufferSize,
		FilePrefix:      defaultFilePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid journal config: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return fmt.Errorf("invalid journal config: SegmentMaxBytes must be > 0")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid journal config: BufferSize must be > 0")
	}
	return nil
}

// Writer appends records synchronously. Nothing is dropped under
// pressure, segment boundaries depend only on record sizes, and
// segment names carry an index rather than a wall-clock stamp.
type Writer struct {
	cfg Config

	file   *os.File
	buf    *bufio.Writer
	size   int64
	segID  uint64
	seq    uint64
	closed bool

	head    [headerSize]byte
	trailer [trailerSize]byte
}

// NewWriter creates the journal directory and opens the first segment.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	w := &Writer{cfg: cfg}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

// Append writes one record. The caller assigns sequence numbers; they
// must be strictly increasing.
func (w *Writer) Append(header schema.EventHeader, payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Seq <= w.seq {
		return fmt.Errorf("seq %d after %d: %w", header.Seq, w.seq, ErrSeqNotMonotone)
	}

	recordSize := int64(headerSize + len(payload) + trailerSize)
	if w.size+recordSize > w.cfg.SegmentMaxBytes && w.size > 0 {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	w.encodeHeader(header, len(payload))
	binary.LittleEndian.PutUint32(w.trailer[:], recordSum(w.head[:], payload))

	if _, err := w.buf.Write(w.head[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.buf.Write(payload); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(w.trailer[:]); err != nil {
		return err
	}
	w.size += recordSize
	w.seq = header.Seq
	return nil
}

// encodeHeader lays the header down per the format doc in format.go.
func (w *Writer) encodeHeader(h schema.EventHeader, payloadLen int) {
	buf := w.head[:]
	copy(buf[0:4], magic[:])
	version := h.Version
	if version == 0 {
		version = formatVersion
	}
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(payloadLen))
	binary.LittleEndian.PutUint64(buf[12:20], h.Seq)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(h.TsVisible))
	binary.LittleEndian.PutUint64(buf[36:44], h.TraceID)
	binary.LittleEndian.PutUint16(buf[44:46], h.Source)
	binary.LittleEndian.PutUint16(buf[46:48], h.Flags)
}

// LastSeq returns the last appended sequence number.
func (w *Writer) LastSeq() uint64 { return w.seq }

// Flush pushes buffered bytes to the file.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	return w.buf.Flush()
}

// Close flushes, syncs, and seals the journal. Further appends fail.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeSegment()
}

func (w *Writer) rotate() error {
	if err := w.closeSegment(); err != nil {
		return err
	}
	return w.openSegment()
}

func (w *Writer) openSegment() error {
	w.segID++
	name := fmt.Sprintf("%s-%06d.jnl", w.cfg.FilePrefix, w.segID)
	path := filepath.Join(w.cfg.Dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.file = file
	w.buf = bufio.NewWriterSize(file, w.cfg.BufferSize)
	w.size = 0
	return nil
}

func (w *Writer) closeSegment() error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}
