// Package journal is the append-only structured event log. Records are
// length-prefixed and checksummed; with identical inputs and seeds a
// run reproduces the log byte for byte, which is the replayability
// contract the tests pin down.
//
// Record layout, little-endian throughout:
//
//	magic "MSJ1" | version u16 | kind u16 | payload len u32
//	seq u64 | event ts i64 | visibility ts i64 | trace id u64
//	source u16 | flags u16
//	payload bytes | CRC32C u32 over header+payload
//
// The single version field covers both the record framing and the
// payload schema; they move together.
package journal

import (
	"errors"
	"hash/crc32"
)

const (
	formatVersion uint16 = 1
	headerSize           = 48
	trailerSize          = 4
)

var (
	magic    = [4]byte{'M', 'S', 'J', '1'}
	crcTable = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrBadMagic   = errors.New("journal bad magic")
	ErrBadVersion = errors.New("journal unsupported version")
	ErrBadHeader  = errors.New("journal truncated header")
)

// recordSum checksums a header and its payload as one stream.
func recordSum(header, payload []byte) uint32 {
	sum := crc32.Update(0, crcTable, header)
	return crc32.Update(sum, crcTable, payload)
}
