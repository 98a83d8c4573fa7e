package codec

import (
	"encoding/binary"

	"marketsim/internal/schema"
)

const CashPayloadSize = 40

// EncodeCash serializes a cash movement.
func EncodeCash(dst []byte, r schema.CashRecord) []byte {
	if cap(dst) < CashPayloadSize {
		dst = make([]byte, CashPayloadSize)
	} else {
		dst = dst[:CashPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(r.Kind))
	binary.LittleEndian.PutUint16(dst[2:4], 0)
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(r.Amount))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.EffectiveAt))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.SettledAfter))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(r.PendingAfter))

	return dst
}

// DecodeCash parses a cash movement payload.
func DecodeCash(src []byte) (schema.CashRecord, bool) {
	if len(src) < CashPayloadSize {
		return schema.CashRecord{}, false
	}
	return schema.CashRecord{
		Kind:         schema.CashKind(binary.LittleEndian.Uint16(src[0:2])),
		Amount:       schema.Cash(int64(binary.LittleEndian.Uint64(src[8:16]))),
		EffectiveAt:  int64(binary.LittleEndian.Uint64(src[16:24])),
		SettledAfter: schema.Cash(int64(binary.LittleEndian.Uint64(src[24:32]))),
		PendingAfter: schema.Cash(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const PositionPayloadSize = 40

// EncodePosition serializes a position update.
func EncodePosition(dst []byte, r schema.PositionRecord) []byte {
	if cap(dst) < PositionPayloadSize {
		dst = make([]byte, PositionPayloadSize)
	} else {
		dst = dst[:PositionPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(r.Qty))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.AvgEntry))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.Realized))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(r.MarkPrice))

	return dst
}

// DecodePosition parses a position update payload.
func DecodePosition(src []byte) (schema.PositionRecord, bool) {
	if len(src) < PositionPayloadSize {
		return schema.PositionRecord{}, false
	}
	return schema.PositionRecord{
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[0:4])),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		AvgEntry:     schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Realized:     schema.Cash(int64(binary.LittleEndian.Uint64(src[24:32]))),
		MarkPrice:    schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const SessionClosePayloadSize = 32

// EncodeSessionClose serializes a session close summary.
func EncodeSessionClose(dst []byte, r schema.SessionCloseRecord) []byte {
	if cap(dst) < SessionClosePayloadSize {
		dst = make([]byte, SessionClosePayloadSize)
	} else {
		dst = dst[:SessionClosePayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(r.SessionDate))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(r.Equity))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.SettledCash))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.PendingCash))

	return dst
}

// DecodeSessionClose parses a session close payload.
func DecodeSessionClose(src []byte) (schema.SessionCloseRecord, bool) {
	if len(src) < SessionClosePayloadSize {
		return schema.SessionCloseRecord{}, false
	}
	return schema.SessionCloseRecord{
		SessionDate: int64(binary.LittleEndian.Uint64(src[0:8])),
		Equity:      schema.Cash(int64(binary.LittleEndian.Uint64(src[8:16]))),
		SettledCash: schema.Cash(int64(binary.LittleEndian.Uint64(src[16:24]))),
		PendingCash: schema.Cash(int64(binary.LittleEndian.Uint64(src[24:32]))),
	}, true
}
