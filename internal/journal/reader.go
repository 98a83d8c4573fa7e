package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"marketsim/internal/schema"
)

var ErrChecksumMismatch = errors.New("journal checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r    *bufio.Reader
	opts ReaderOptions
	head [headerSize]byte
	body []byte
}

// NewReader wraps an io.Reader with journal decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{r: bufio.NewReader(r), opts: opts}
}

// Next returns the next record header and payload.
// The payload is only valid until the next call to Next.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	n, err := io.ReadFull(r.r, r.head[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.EventHeader{}, nil, io.EOF
		}
		return schema.EventHeader{}, nil, err
	}

	header, payloadLen, err := r.parseHeader()
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return header, nil, ErrPayloadTooLarge
	}

	// Payload and trailer arrive as one body read.
	need := int(payloadLen) + trailerSize
	if cap(r.body) < need {
		r.body = make([]byte, need)
	}
	r.body = r.body[:need]
	if _, err := io.ReadFull(r.r, r.body); err != nil {
		return header, nil, err
	}
	payload := r.body[:payloadLen]

	if !r.opts.DisableChecksum {
		want := binary.LittleEndian.Uint32(r.body[payloadLen:])
		if recordSum(r.head[:], payload) != want {
			return header, nil, ErrChecksumMismatch
		}
	}
	return header, payload, nil
}

// parseHeader lifts the header fields per the format doc in format.go.
func (r *Reader) parseHeader() (schema.EventHeader, uint32, error) {
	buf := r.head[:]
	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return schema.EventHeader{}, 0, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != formatVersion {
		return schema.EventHeader{}, 0, ErrBadVersion
	}
	header := schema.EventHeader{
		Version:   version,
		Type:      schema.EventType(binary.LittleEndian.Uint16(buf[6:8])),
		Seq:       binary.LittleEndian.Uint64(buf[12:20]),
		TsEvent:   int64(binary.LittleEndian.Uint64(buf[20:28])),
		TsVisible: int64(binary.LittleEndian.Uint64(buf[28:36])),
		TraceID:   binary.LittleEndian.Uint64(buf[36:44]),
		Source:    binary.LittleEndian.Uint16(buf[44:46]),
		Flags:     binary.LittleEndian.Uint16(buf[46:48]),
	}
	return header, binary.LittleEndian.Uint32(buf[8:12]), nil
}
