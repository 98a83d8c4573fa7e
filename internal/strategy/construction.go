package strategy

import (
	"sort"

	"marketsim/internal/schema"
)

// EqualWeight allocates the leverage budget evenly across signaled
// instruments, signed by signal direction.
type EqualWeight struct {
	LeverageBps int64
}

// Targets implements Construction.
func (c *EqualWeight) Targets(ctx *Context, signals []Signal) TargetPortfolio {
	leverage := c.LeverageBps
	if leverage <= 0 {
		leverage = 10_000
	}
	out := make(TargetPortfolio)
	var active []Signal
	for _, s := range signals {
		if s.Valid() && s.StrengthBps != 0 {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return out
	}
	per := leverage / int64(len(active))
	for _, s := range active {
		w := per
		if s.StrengthBps < 0 {
			w = -per
		}
		out[s.InstrumentID] += w
	}
	return out
}

// SignalWeight allocates proportionally to strength times confidence,
// normalized onto the leverage budget.
type SignalWeight struct {
	LeverageBps int64
}

// Targets implements Construction.
func (c *SignalWeight) Targets(ctx *Context, signals []Signal) TargetPortfolio {
	leverage := c.LeverageBps
	if leverage <= 0 {
		leverage = 10_000
	}
	raw := make(map[schema.InstrumentID]int64)
	for _, s := range signals {
		if !s.Valid() || s.StrengthBps == 0 {
			continue
		}
		raw[s.InstrumentID] += s.StrengthBps * s.ConfidenceBps / 10_000
	}
	var gross int64
	for _, w := range raw {
		if w < 0 {
			w = -w
		}
		gross += w
	}
	out := make(TargetPortfolio)
	if gross == 0 {
		return out
	}
	// Walk instruments in a fixed order so rounding is reproducible.
	ids := make([]schema.InstrumentID, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out[id] = raw[id] * leverage / gross
	}
	return out
}
