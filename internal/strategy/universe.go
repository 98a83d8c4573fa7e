package strategy

import "marketsim/internal/schema"

// StaticUniverse always returns the same instrument set.
type StaticUniverse struct {
	Instruments []schema.InstrumentID
}

// SelectUniverse implements UniverseSelection.
func (u *StaticUniverse) SelectUniverse(ctx *Context) []schema.InstrumentID {
	out := make([]schema.InstrumentID, 0, len(u.Instruments))
	for _, id := range u.Instruments {
		if ctx.Data.Registry().Tradable(id, ctx.Now) {
			out = append(out, id)
		}
	}
	return out
}

// Membership is one point-in-time composition window. Zero From/Until
// mean unbounded.
type Membership struct {
	InstrumentID schema.InstrumentID
	From         int64
	Until        int64
}

// CompositionUniverse selects from a dated membership list, the
// point-in-time composition source for dynamic universes. Instruments
// outside their window, or outside their listing window, are never
// returned.
type CompositionUniverse struct {
	Members []Membership
}

// SelectUniverse implements UniverseSelection.
func (u *CompositionUniverse) SelectUniverse(ctx *Context) []schema.InstrumentID {
	reg := ctx.Data.Registry()
	out := make([]schema.InstrumentID, 0, len(u.Members))
	seen := make(map[schema.InstrumentID]struct{}, len(u.Members))
	for _, m := range u.Members {
		if m.From != 0 && ctx.Now < m.From {
			continue
		}
		if m.Until != 0 && ctx.Now >= m.Until {
			continue
		}
		if !reg.Tradable(m.InstrumentID, ctx.Now) {
			continue
		}
		if _, dup := seen[m.InstrumentID]; dup {
			continue
		}
		seen[m.InstrumentID] = struct{}{}
		out = append(out, m.InstrumentID)
	}
	return out
}
