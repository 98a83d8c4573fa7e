package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"marketsim/internal/codec"
	"marketsim/internal/journal"
	"marketsim/internal/ledger"
	"marketsim/internal/schema"
)

// replayState re-derives positions and realized P&L from journal
// position records, and cash balances from cash records, for snapshot
// verification. Fill records are only counted.
type replayState struct {
	records   int
	fills     int
	positions map[schema.InstrumentID]schema.PositionRecord
	settled   schema.Cash
	pending   schema.Cash
	lastSeq   uint64
}

func main() {
	dir := flag.String("dir", "out/journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: journal)")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	snapshot := flag.String("snapshot", "", "Snapshot to verify against (default: <dir>/portfolio.json)")
	verify := flag.Bool("verify", true, "Verify final state against snapshot")
	jsonOut := flag.String("json", "", "Export records as JSON lines to this file (- for stdout)")
	flag.Parse()

	var export *os.File
	if *jsonOut == "-" {
		export = os.Stdout
	} else if *jsonOut != "" {
		f, err := os.Create(*jsonOut)
		if err != nil {
			log.Fatalf("create export file: %v", err)
		}
		defer f.Close()
		export = f
	}

	state := &replayState{positions: make(map[schema.InstrumentID]schema.PositionRecord)}
	cfg := journal.ReplayConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}
	err := journal.Replay(cfg, func(header schema.EventHeader, payload []byte) error {
		state.apply(header, payload)
		if export != nil {
			return writeJSON(export, header, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	log.Printf("replay completed: records=%d fills=%d positions=%d lastSeq=%d",
		state.records, state.fills, len(state.positions), state.lastSeq)

	if !*verify {
		return
	}
	snapPath := *snapshot
	if snapPath == "" {
		snapPath = filepath.Join(*dir, "portfolio.json")
	}
	expected, err := ledger.ReadSnapshot(snapPath)
	if err != nil {
		log.Fatalf("snapshot read failed: %v", err)
	}
	if err := state.verify(expected); err != nil {
		log.Fatalf("snapshot verification failed: %v", err)
	}
	log.Printf("snapshot verified against %s", snapPath)
}

func (s *replayState) apply(header schema.EventHeader, payload []byte) {
	s.records++
	s.lastSeq = header.Seq
	switch header.Type {
	case schema.EventFill:
		if _, ok := codec.DecodeFill(payload); ok {
			s.fills++
		}
	case schema.EventPosition:
		if rec, ok := codec.DecodePosition(payload); ok {
			s.positions[rec.InstrumentID] = rec
		}
	case schema.EventCash:
		if rec, ok := codec.DecodeCash(payload); ok {
			s.settled = rec.SettledAfter
			s.pending = rec.PendingAfter
		}
	}
}

func (s *replayState) verify(expected ledger.Snapshot) error {
	actual := ledger.Snapshot{
		LastSeq:     s.lastSeq,
		SettledCash: s.settled,
		PendingCash: s.pending,
	}
	for _, want := range expected.Positions {
		rec, ok := s.positions[want.InstrumentID]
		if !ok {
			continue
		}
		actual.Positions = append(actual.Positions, ledger.PositionEntry{
			InstrumentID: rec.InstrumentID,
			Qty:          rec.Qty,
			AvgEntry:     rec.AvgEntry,
			Realized:     rec.Realized,
		})
	}
	return ledger.CompareSnapshots(expected, actual)
}

// jsonRecord is the export shape: header fields plus the decoded
// payload for the known kinds.
type jsonRecord struct {
	Seq       uint64           `json:"seq"`
	Type      schema.EventType `json:"type"`
	TsEvent   int64            `json:"tsEvent"`
	TsVisible int64            `json:"tsVisible"`
	TraceID   uint64           `json:"traceId"`
	Payload   any              `json:"payload,omitempty"`
}

func writeJSON(out *os.File, header schema.EventHeader, payload []byte) error {
	rec := jsonRecord{
		Seq:       header.Seq,
		Type:      header.Type,
		TsEvent:   header.TsEvent,
		TsVisible: header.TsVisible,
		TraceID:   header.TraceID,
	}
	switch header.Type {
	case schema.EventOrderSubmit:
		if p, ok := codec.DecodeOrderSubmit(payload); ok {
			rec.Payload = p
		}
	case schema.EventOrderState:
		if p, ok := codec.DecodeOrderState(payload); ok {
			rec.Payload = p
		}
	case schema.EventFill:
		if p, ok := codec.DecodeFill(payload); ok {
			rec.Payload = p
		}
	case schema.EventCash:
		if p, ok := codec.DecodeCash(payload); ok {
			rec.Payload = p
		}
	case schema.EventPosition:
		if p, ok := codec.DecodePosition(payload); ok {
			rec.Payload = p
		}
	case schema.EventRiskVeto:
		if p, ok := codec.DecodeRiskVeto(payload); ok {
			rec.Payload = p
		}
	case schema.EventViolation:
		if p, ok := codec.DecodeViolation(payload); ok {
			rec.Payload = p
		}
	case schema.EventStrategyFault:
		if p, ok := codec.DecodeStrategyFault(payload); ok {
			rec.Payload = p
		}
	case schema.EventSessionClose:
		if p, ok := codec.DecodeSessionClose(payload); ok {
			rec.Payload = p
		}
	case schema.EventUniverseChange:
		if p, ok := codec.DecodeUniverseChange(payload); ok {
			rec.Payload = p
		}
	}
	line, err := sonic.ConfigFastest.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := out.Write(line); err != nil {
		return err
	}
	_, err = out.Write([]byte("\n"))
	return err
}
