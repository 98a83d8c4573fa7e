package sched

import (
	"testing"
	"time"

	"marketsim/internal/calendar"
)

func testCal(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Config{
		Name:        "TEST",
		OpenOffset:  9 * time.Hour,
		CloseOffset: 16 * time.Hour,
	})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	return cal
}

func TestFireDueOrder(t *testing.T) {
	s := New(testCal(t))
	var order []string
	if err := s.At(100, 2, func(int64) { order = append(order, "late-priority") }); err != nil {
		t.Fatalf("at: %v", err)
	}
	if err := s.At(100, 1, func(int64) { order = append(order, "early-priority") }); err != nil {
		t.Fatalf("at: %v", err)
	}
	if err := s.At(50, 9, func(int64) { order = append(order, "earlier-ts") }); err != nil {
		t.Fatalf("at: %v", err)
	}
	if n := s.FireDue(100); n != 3 {
		t.Fatalf("fired %d want 3", n)
	}
	want := []string{"earlier-ts", "early-priority", "late-priority"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: got %v want %v", order, want)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("entries remain: %d", s.Len())
	}
}

func TestIntervalRecurrence(t *testing.T) {
	s := New(testCal(t))
	var fires []int64
	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC).UnixNano()
	if err := s.Every(start, time.Hour, 0, false, func(ts int64) { fires = append(fires, ts) }); err != nil {
		t.Fatalf("every: %v", err)
	}
	s.FireDue(start + int64(2*time.Hour))
	if len(fires) != 3 {
		t.Fatalf("expected 3 fires, got %d", len(fires))
	}
	if fires[1]-fires[0] != int64(time.Hour) {
		t.Fatalf("interval wrong: %d", fires[1]-fires[0])
	}
}

func TestDailySessionBoundSkipsWeekend(t *testing.T) {
	s := New(testCal(t))
	var fires []int64
	// Friday 2024-01-12.
	start := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC).UnixNano()
	if err := s.DailyAt(start, 16*time.Hour, 0, true, func(ts int64) { fires = append(fires, ts) }); err != nil {
		t.Fatalf("daily: %v", err)
	}
	// Run through the following Tuesday.
	end := time.Date(2024, 1, 16, 23, 0, 0, 0, time.UTC).UnixNano()
	s.FireDue(end)
	want := []int64{
		time.Date(2024, 1, 12, 16, 0, 0, 0, time.UTC).UnixNano(),
		time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC).UnixNano(),
		time.Date(2024, 1, 16, 16, 0, 0, 0, time.UTC).UnixNano(),
	}
	if len(fires) != len(want) {
		t.Fatalf("fires: got %d want %d", len(fires), len(want))
	}
	for i := range want {
		if fires[i] != want[i] {
			t.Fatalf("fire %d: got %s want %s", i, time.Unix(0, fires[i]).UTC(), time.Unix(0, want[i]).UTC())
		}
	}
}
