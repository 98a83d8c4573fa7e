package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"marketsim/internal/schema"
)

func writeRecords(t *testing.T, dir string, count int) {
	t.Helper()
	w, err := NewWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for i := 1; i <= count; i++ {
		header := schema.NewHeader(schema.EventFill, 1, uint64(i), int64(i*100), int64(i*100+5))
		header.TraceID = uint64(i)
		payload := []byte{byte(i), byte(i >> 8), 0xAB}
		if err := w.Append(header, payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWriteReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, 10)

	var seqs []uint64
	err := Replay(ReplayConfig{Dir: dir}, func(h schema.EventHeader, payload []byte) error {
		seqs = append(seqs, h.Seq)
		if h.Type != schema.EventFill {
			t.Fatalf("type mismatch: %d", h.Type)
		}
		if len(payload) != 3 || payload[2] != 0xAB {
			t.Fatalf("payload mismatch: %x", payload)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(seqs) != 10 {
		t.Fatalf("record count: got %d", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not strictly increasing at %d", i)
		}
	}
}

func TestWriterRejectsNonMonotoneSeq(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()
	h := schema.NewHeader(schema.EventFill, 1, 5, 1, 1)
	if err := w.Append(h, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(h, nil); err == nil {
		t.Fatalf("duplicate seq accepted")
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, dir, 1)

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("segments: %v %d", err, len(entries))
	}
	path := filepath.Join(dir, entries[0].Name())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[headerSize] ^= 0xFF // flip a payload byte
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err = Replay(ReplayConfig{Dir: dir}, func(schema.EventHeader, []byte) error { return nil })
	if err == nil {
		t.Fatalf("corruption not detected")
	}
}

func TestByteIdenticalAcrossRuns(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeRecords(t, dir1, 25)
	writeRecords(t, dir2, 25)

	read := func(dir string) []byte {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("readdir: %v", err)
		}
		var all []byte
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			all = append(all, data...)
		}
		return all
	}
	if !bytes.Equal(read(dir1), read(dir2)) {
		t.Fatalf("journals differ across identical runs")
	}
}

func TestSegmentRotationKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SegmentMaxBytes = 128 // force rotation every couple of records
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for i := 1; i <= 20; i++ {
		h := schema.NewHeader(schema.EventCash, 1, uint64(i), int64(i), int64(i))
		if err := w.Append(h, []byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) < 2 {
		t.Fatalf("expected rotation, got %d segments", len(entries))
	}
	var count int
	var last uint64
	err = Replay(ReplayConfig{Dir: dir}, func(h schema.EventHeader, _ []byte) error {
		if h.Seq <= last {
			t.Fatalf("order broken across segments")
		}
		last = h.Seq
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 20 {
		t.Fatalf("record count: %d", count)
	}
}
