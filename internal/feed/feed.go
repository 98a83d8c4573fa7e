// Package feed implements the data-provider boundary: file and
// in-memory sources that enumerate market events in chronological
// order, plus warm-up queries. The engine does not care which
// implementation feeds it.
package feed

import (
	"marketsim/internal/schema"
)

// Provider is the read-only data boundary. Enumerate streams the
// events of the run range; Warmup returns bars strictly before start
// for indicator seeding.
type Provider interface {
	Enumerate() []schema.MarketEvent
	Warmup(id schema.InstrumentID, res schema.Resolution, start int64, count int) []schema.Bar
}

// SliceFeed serves a pre-built event slice. Test and composition
// helper.
type SliceFeed struct {
	events []schema.MarketEvent
	i      int
}

// NewSliceFeed wraps events; the caller supplies them in order.
func NewSliceFeed(events []schema.MarketEvent) *SliceFeed {
	return &SliceFeed{events: events}
}

// Next implements stream.Source.
func (f *SliceFeed) Next() (schema.MarketEvent, bool) {
	if f.i >= len(f.events) {
		return schema.MarketEvent{}, false
	}
	ev := f.events[f.i]
	f.i++
	return ev, true
}

// Enumerate implements Provider.
func (f *SliceFeed) Enumerate() []schema.MarketEvent {
	return f.events
}

// Warmup implements Provider.
func (f *SliceFeed) Warmup(id schema.InstrumentID, res schema.Resolution, start int64, count int) []schema.Bar {
	var out []schema.Bar
	for _, ev := range f.events {
		if ev.Kind != schema.PayloadBar || ev.InstrumentID != id || ev.Resolution != res {
			continue
		}
		if ev.Bar.EffectiveAt() > start {
			break
		}
		out = append(out, ev.Bar)
	}
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out
}
