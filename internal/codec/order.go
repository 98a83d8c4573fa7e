// Package codec serializes journal payloads as fixed-offset
// little-endian records. Each payload has a constant size; Encode
// reuses dst when it is large enough and Decode reports truncated
// input with a false second return.
package codec

import (
	"encoding/binary"

	"marketsim/internal/schema"
)

const OrderSubmitPayloadSize = 64

// EncodeOrderSubmit serializes an order submission.
func EncodeOrderSubmit(dst []byte, r schema.OrderSubmitRecord) []byte {
	if cap(dst) < OrderSubmitPayloadSize {
		dst = make([]byte, OrderSubmitPayloadSize)
	} else {
		dst = dst[:OrderSubmitPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], r.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], r.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(r.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(r.Type))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(r.TimeInForce))
	binary.LittleEndian.PutUint16(dst[22:24], uint16(r.Link))
	binary.LittleEndian.PutUint64(dst[24:32], r.ParentID)
	binary.LittleEndian.PutUint64(dst[32:40], r.GroupID)
	binary.LittleEndian.PutUint64(dst[40:48], uint64(r.Qty))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(r.LimitPrice))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(r.StopPrice))

	return dst
}

// DecodeOrderSubmit parses an order submission payload.
func DecodeOrderSubmit(src []byte) (schema.OrderSubmitRecord, bool) {
	if len(src) < OrderSubmitPayloadSize {
		return schema.OrderSubmitRecord{}, false
	}
	return schema.OrderSubmitRecord{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[12:16])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:         schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		TimeInForce:  schema.TimeInForce(binary.LittleEndian.Uint16(src[20:22])),
		Link:         schema.LinkKind(binary.LittleEndian.Uint16(src[22:24])),
		ParentID:     binary.LittleEndian.Uint64(src[24:32]),
		GroupID:      binary.LittleEndian.Uint64(src[32:40]),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		LimitPrice:   schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
		StopPrice:    schema.Price(int64(binary.LittleEndian.Uint64(src[56:64]))),
	}, true
}

const OrderStatePayloadSize = 16

// EncodeOrderState serializes a state transition.
func EncodeOrderState(dst []byte, r schema.OrderStateRecord) []byte {
	if cap(dst) < OrderStatePayloadSize {
		dst = make([]byte, OrderStatePayloadSize)
	} else {
		dst = dst[:OrderStatePayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], r.OrderID)
	binary.LittleEndian.PutUint16(dst[8:10], uint16(r.From))
	binary.LittleEndian.PutUint16(dst[10:12], uint16(r.To))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(r.Reason))
	binary.LittleEndian.PutUint16(dst[14:16], 0)

	return dst
}

// DecodeOrderState parses a state transition payload.
func DecodeOrderState(src []byte) (schema.OrderStateRecord, bool) {
	if len(src) < OrderStatePayloadSize {
		return schema.OrderStateRecord{}, false
	}
	return schema.OrderStateRecord{
		OrderID: binary.LittleEndian.Uint64(src[0:8]),
		From:    schema.OrderState(binary.LittleEndian.Uint16(src[8:10])),
		To:      schema.OrderState(binary.LittleEndian.Uint16(src[10:12])),
		Reason:  schema.RejectReason(binary.LittleEndian.Uint16(src[12:14])),
	}, true
}
