package market

import (
	"sort"

	"marketsim/internal/schema"
)

// StrategyID identifies a strategy within a run.
type StrategyID uint32

type pairKey struct {
	id  schema.InstrumentID
	res schema.Resolution
}

// Filter routes market events to the strategies subscribed to the
// event's (instrument, resolution) pair. Changes take effect for the
// next event.
type Filter struct {
	byPair map[pairKey][]StrategyID
}

// NewFilter creates an empty subscription filter.
func NewFilter() *Filter {
	return &Filter{byPair: make(map[pairKey][]StrategyID)}
}

// Subscribe adds a subscription. Duplicate subscriptions are ignored.
func (f *Filter) Subscribe(sid StrategyID, id schema.InstrumentID, res schema.Resolution) {
	key := pairKey{id, res}
	subs := f.byPair[key]
	for _, s := range subs {
		if s == sid {
			return
		}
	}
	subs = append(subs, sid)
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	f.byPair[key] = subs
}

// Unsubscribe removes a subscription if present.
func (f *Filter) Unsubscribe(sid StrategyID, id schema.InstrumentID, res schema.Resolution) {
	key := pairKey{id, res}
	subs := f.byPair[key]
	for i, s := range subs {
		if s == sid {
			f.byPair[key] = append(subs[:i], subs[i+1:]...)
			if len(f.byPair[key]) == 0 {
				delete(f.byPair, key)
			}
			return
		}
	}
}

// Recipients returns the strategies subscribed to the event's pair, in
// ascending strategy order. The returned slice must not be mutated.
func (f *Filter) Recipients(id schema.InstrumentID, res schema.Resolution) []StrategyID {
	return f.byPair[pairKey{id, res}]
}

// Subscribed reports whether the strategy holds the subscription.
func (f *Filter) Subscribed(sid StrategyID, id schema.InstrumentID, res schema.Resolution) bool {
	for _, s := range f.byPair[pairKey{id, res}] {
		if s == sid {
			return true
		}
	}
	return false
}
