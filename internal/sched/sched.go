// Package sched fires time-based callbacks on the simulation clock,
// independent of data arrival. Due callbacks fire before the strategy
// pipeline at the same timestamp.
package sched

import (
	"container/heap"
	"fmt"
	"time"

	"marketsim/internal/calendar"
)

// Callback receives the scheduled fire time.
type Callback func(ts int64)

// Recurrence selects how an entry reschedules after firing.
type Recurrence uint16

const (
	OnceOnly Recurrence = iota
	Interval
	DailyAt
)

type entry struct {
	ts           int64
	priority     int
	seq          uint64
	recurrence   Recurrence
	interval     time.Duration
	timeOfDay    time.Duration
	sessionBound bool
	fn           Callback
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].ts != h[j].ts {
		return h[i].ts < h[j].ts
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler is a time-indexed priority queue of callbacks.
type Scheduler struct {
	cal  *calendar.Calendar
	h    entryHeap
	next uint64
}

// New creates a scheduler. The calendar is required for session-bound
// recurrences.
func New(cal *calendar.Calendar) *Scheduler {
	return &Scheduler{cal: cal}
}

// At registers a one-shot callback at ts with the given priority.
func (s *Scheduler) At(ts int64, priority int, fn Callback) error {
	if fn == nil {
		return fmt.Errorf("scheduler callback is nil")
	}
	s.push(&entry{ts: ts, priority: priority, recurrence: OnceOnly, fn: fn})
	return nil
}

// Every registers an interval recurrence starting at start. Session-bound
// entries skip occurrences on non-trading days.
func (s *Scheduler) Every(start int64, interval time.Duration, priority int, sessionBound bool, fn Callback) error {
	if fn == nil {
		return fmt.Errorf("scheduler callback is nil")
	}
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be > 0")
	}
	s.push(&entry{
		ts: start, priority: priority, recurrence: Interval,
		interval: interval, sessionBound: sessionBound, fn: fn,
	})
	return nil
}

// DailyAt registers a daily recurrence at the given offset from midnight
// UTC, starting on the date containing start. Session-bound entries skip
// non-trading days.
func (s *Scheduler) DailyAt(start int64, timeOfDay time.Duration, priority int, sessionBound bool, fn Callback) error {
	if fn == nil {
		return fmt.Errorf("scheduler callback is nil")
	}
	if timeOfDay < 0 || timeOfDay >= 24*time.Hour {
		return fmt.Errorf("scheduler time of day out of range")
	}
	first := calendar.Midnight(start) + int64(timeOfDay)
	for first < start || (sessionBound && !s.cal.IsTradingDay(first)) {
		first = calendar.Midnight(first) + int64(24*time.Hour) + int64(timeOfDay)
	}
	s.push(&entry{
		ts: first, priority: priority, recurrence: DailyAt,
		timeOfDay: timeOfDay, sessionBound: sessionBound, fn: fn,
	})
	return nil
}

// FireDue fires every callback with ts <= now in (timestamp, priority,
// registration) order and reschedules recurrences. It returns the number
// fired.
func (s *Scheduler) FireDue(now int64) int {
	fired := 0
	for len(s.h) > 0 && s.h[0].ts <= now {
		e := heap.Pop(&s.h).(*entry)
		e.fn(e.ts)
		fired++
		if next, ok := s.reschedule(e); ok {
			e.ts = next
			s.push(e)
		}
	}
	return fired
}

// NextDue returns the next scheduled timestamp, if any.
func (s *Scheduler) NextDue() (int64, bool) {
	if len(s.h) == 0 {
		return 0, false
	}
	return s.h[0].ts, true
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int { return len(s.h) }

func (s *Scheduler) reschedule(e *entry) (int64, bool) {
	switch e.recurrence {
	case Interval:
		next := e.ts + int64(e.interval)
		if e.sessionBound {
			for !s.cal.IsTradingDay(next) {
				next += int64(e.interval)
			}
		}
		return next, true
	case DailyAt:
		next := calendar.Midnight(e.ts) + int64(24*time.Hour) + int64(e.timeOfDay)
		if e.sessionBound {
			for !s.cal.IsTradingDay(next) {
				next = calendar.Midnight(next) + int64(24*time.Hour) + int64(e.timeOfDay)
			}
		}
		return next, true
	default:
		return 0, false
	}
}

func (s *Scheduler) push(e *entry) {
	s.next++
	e.seq = s.next
	heap.Push(&s.h, e)
}
