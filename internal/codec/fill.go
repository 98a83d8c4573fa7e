package codec

import (
	"encoding/binary"

	"marketsim/internal/schema"
)

const FillPayloadSize = 72

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, r schema.FillRecord) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], r.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(r.Side))
	binary.LittleEndian.PutUint16(dst[14:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.Price))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.Qty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(r.Commission))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(r.SlippageBps))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(r.Bid))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(r.Ask))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(r.Last))

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.FillRecord, bool) {
	if len(src) < FillPayloadSize {
		return schema.FillRecord{}, false
	}
	return schema.FillRecord{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[12:14])),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Commission:   schema.Cash(int64(binary.LittleEndian.Uint64(src[32:40]))),
		SlippageBps:  int64(binary.LittleEndian.Uint64(src[40:48])),
		Bid:          schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
		Ask:          schema.Price(int64(binary.LittleEndian.Uint64(src[56:64]))),
		Last:         schema.Price(int64(binary.LittleEndian.Uint64(src[64:72]))),
	}, true
}
