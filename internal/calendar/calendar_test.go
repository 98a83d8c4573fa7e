package calendar

import (
	"testing"
	"time"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := New(Config{
		Name:        "TEST",
		OpenOffset:  9*time.Hour + 30*time.Minute,
		CloseOffset: 16 * time.Hour,
		Holidays:    []time.Time{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		EarlyCloses: map[string]time.Duration{"2024-01-12": 13 * time.Hour},
	})
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}
	return cal
}

func TestIsTrading(t *testing.T) {
	cal := testCalendar(t)
	// Wednesday 2024-01-10 10:00 UTC.
	inSession := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC).UnixNano()
	if !cal.IsTrading(inSession) {
		t.Fatalf("expected trading at mid-session")
	}
	preOpen := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC).UnixNano()
	if cal.IsTrading(preOpen) {
		t.Fatalf("trading before open")
	}
	saturday := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC).UnixNano()
	if cal.IsTrading(saturday) {
		t.Fatalf("trading on weekend")
	}
	holiday := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC).UnixNano()
	if cal.IsTrading(holiday) {
		t.Fatalf("trading on holiday")
	}
}

func TestEarlyClose(t *testing.T) {
	cal := testCalendar(t)
	ts := time.Date(2024, 1, 12, 14, 0, 0, 0, time.UTC).UnixNano()
	if cal.IsTrading(ts) {
		t.Fatalf("trading after early close")
	}
	closeTs, ok := cal.SessionClose(ts)
	if !ok {
		t.Fatalf("expected trading day")
	}
	want := time.Date(2024, 1, 12, 13, 0, 0, 0, time.UTC).UnixNano()
	if closeTs != want {
		t.Fatalf("early close: got %d want %d", closeTs, want)
	}
}

func TestNextSessionOpenSkipsWeekendAndHoliday(t *testing.T) {
	cal := testCalendar(t)
	// Friday 2024-01-12 15:00; Monday the 15th is a holiday, so the next
	// open is Tuesday the 16th.
	ts := time.Date(2024, 1, 12, 15, 0, 0, 0, time.UTC).UnixNano()
	got := cal.NextSessionOpen(ts)
	want := time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC).UnixNano()
	if got != want {
		t.Fatalf("next open: got %s want %s", time.Unix(0, got).UTC(), time.Unix(0, want).UTC())
	}
}

func TestAddBusinessDays(t *testing.T) {
	cal := testCalendar(t)
	// Thursday 2024-01-11 + 2 business days: Friday the 12th, then the
	// 15th is a holiday, landing on Tuesday the 16th.
	ts := time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC).UnixNano()
	got := cal.AddBusinessDays(ts, 2)
	want := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC).UnixNano()
	if got != want {
		t.Fatalf("add business days: got %s want %s", time.Unix(0, got).UTC(), time.Unix(0, want).UTC())
	}
	if cal.AddBusinessDays(ts, 0) != Midnight(ts) {
		t.Fatalf("zero days should return same date")
	}
}
