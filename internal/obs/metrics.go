// Package obs collects lightweight run metrics: event counters and
// stage latency stats, with no external registry.
package obs

import (
	"sync/atomic"
	"time"

	"marketsim/internal/schema"
)

const maxEventType = int(schema.EventUniverseChange)

// Stage indexes the pipeline latency buckets.
type Stage uint16

const (
	StageUniverse Stage = iota
	StageAlpha
	StageConstruction
	StageRisk
	StageExecution
	StageFills
	stageCount
)

// Metrics collects counters and latency stats for one run.
type Metrics struct {
	eventCounts  [maxEventType + 1]uint64
	ticks        uint64
	ordersPlaced uint64
	rejects      uint64

	stageLatency [stageCount]LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts  map[schema.EventType]uint64
	Ticks        uint64
	OrdersPlaced uint64
	Rejects      uint64
	StageLatency map[Stage]LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncEvent counts one journaled event.
func (m *Metrics) IncEvent(t schema.EventType) {
	if m == nil {
		return
	}
	idx := int(t)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncTick counts one clock tick.
func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ticks, 1)
}

// IncOrder counts one accepted order.
func (m *Metrics) IncOrder() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersPlaced, 1)
}

// IncReject counts one rejected order.
func (m *Metrics) IncReject() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rejects, 1)
}

// ObserveStage records a stage duration.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil || int(stage) >= int(stageCount) {
		return
	}
	m.stageLatency[stage].Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	stages := make(map[Stage]LatencySnapshot)
	for i := range m.stageLatency {
		snap := m.stageLatency[i].Snapshot()
		if snap.Count > 0 {
			stages[Stage(i)] = snap
		}
	}
	return Snapshot{
		EventCounts:  eventCounts,
		Ticks:        atomic.LoadUint64(&m.ticks),
		OrdersPlaced: atomic.LoadUint64(&m.ordersPlaced),
		Rejects:      atomic.LoadUint64(&m.rejects),
		StageLatency: stages,
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
