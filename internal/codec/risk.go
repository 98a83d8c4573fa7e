package codec

import (
	"encoding/binary"

	"marketsim/internal/schema"
)

const RiskVetoPayloadSize = 32

// EncodeRiskVeto serializes a risk veto.
func EncodeRiskVeto(dst []byte, r schema.RiskVetoRecord) []byte {
	if cap(dst) < RiskVetoPayloadSize {
		dst = make([]byte, RiskVetoPayloadSize)
	} else {
		dst = dst[:RiskVetoPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], r.StrategyID)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(r.Reason))
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.TargetBps))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(r.AllowedBps))

	return dst
}

// DecodeRiskVeto parses a risk veto payload.
func DecodeRiskVeto(src []byte) (schema.RiskVetoRecord, bool) {
	if len(src) < RiskVetoPayloadSize {
		return schema.RiskVetoRecord{}, false
	}
	return schema.RiskVetoRecord{
		StrategyID:   binary.LittleEndian.Uint32(src[0:4]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[4:8])),
		Reason:       schema.RiskVetoReason(binary.LittleEndian.Uint16(src[8:10])),
		TargetBps:    int64(binary.LittleEndian.Uint64(src[16:24])),
		AllowedBps:   int64(binary.LittleEndian.Uint64(src[24:32])),
	}, true
}

const ViolationPayloadSize = 24

// EncodeViolation serializes a cash-account violation.
func EncodeViolation(dst []byte, r schema.ViolationRecord) []byte {
	if cap(dst) < ViolationPayloadSize {
		dst = make([]byte, ViolationPayloadSize)
	} else {
		dst = dst[:ViolationPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(r.Kind))
	binary.LittleEndian.PutUint16(dst[2:4], 0)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint64(dst[8:16], r.OrderID)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(r.Amount))

	return dst
}

// DecodeViolation parses a violation payload.
func DecodeViolation(src []byte) (schema.ViolationRecord, bool) {
	if len(src) < ViolationPayloadSize {
		return schema.ViolationRecord{}, false
	}
	return schema.ViolationRecord{
		Kind:         schema.ViolationKind(binary.LittleEndian.Uint16(src[0:2])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[4:8])),
		OrderID:      binary.LittleEndian.Uint64(src[8:16]),
		Amount:       schema.Cash(int64(binary.LittleEndian.Uint64(src[16:24]))),
	}, true
}

const StrategyFaultPayloadSize = 8

// EncodeStrategyFault serializes a strategy fault.
func EncodeStrategyFault(dst []byte, r schema.StrategyFaultRecord) []byte {
	if cap(dst) < StrategyFaultPayloadSize {
		dst = make([]byte, StrategyFaultPayloadSize)
	} else {
		dst = dst[:StrategyFaultPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], r.StrategyID)
	binary.LittleEndian.PutUint16(dst[4:6], r.Stage)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(r.Action))

	return dst
}

// DecodeStrategyFault parses a strategy fault payload.
func DecodeStrategyFault(src []byte) (schema.StrategyFaultRecord, bool) {
	if len(src) < StrategyFaultPayloadSize {
		return schema.StrategyFaultRecord{}, false
	}
	return schema.StrategyFaultRecord{
		StrategyID: binary.LittleEndian.Uint32(src[0:4]),
		Stage:      binary.LittleEndian.Uint16(src[4:6]),
		Action:     schema.FaultAction(binary.LittleEndian.Uint16(src[6:8])),
	}, true
}

const UniverseChangePayloadSize = 16

// EncodeUniverseChange serializes one universe membership change.
func EncodeUniverseChange(dst []byte, r schema.UniverseChangeRecord) []byte {
	if cap(dst) < UniverseChangePayloadSize {
		dst = make([]byte, UniverseChangePayloadSize)
	} else {
		dst = dst[:UniverseChangePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], r.StrategyID)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(r.InstrumentID))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(r.Action))
	binary.LittleEndian.PutUint16(dst[10:12], 0)
	binary.LittleEndian.PutUint32(dst[12:16], 0)

	return dst
}

// DecodeUniverseChange parses a universe change payload.
func DecodeUniverseChange(src []byte) (schema.UniverseChangeRecord, bool) {
	if len(src) < UniverseChangePayloadSize {
		return schema.UniverseChangeRecord{}, false
	}
	return schema.UniverseChangeRecord{
		StrategyID:   binary.LittleEndian.Uint32(src[0:4]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[4:8])),
		Action:       schema.UniverseAction(binary.LittleEndian.Uint16(src[8:10])),
	}, true
}
