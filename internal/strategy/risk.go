package strategy

import (
	"sort"

	"marketsim/internal/schema"
)

// Caps applies per-instrument weight caps, sector concentration
// limits, a gross leverage cap, and a drawdown halt. A halted
// portfolio is the empty mapping: every position flattens through the
// normal execution path.
type Caps struct {
	MaxWeightBps   int64
	MaxLeverageBps int64
	// MaxSectorBps bounds the gross weight of any one sector; SectorCaps
	// overrides it per sector name. Instruments without a sector are
	// outside concentration scope.
	MaxSectorBps int64
	SectorCaps   map[string]int64
	// MaxDrawdownBps halts when equity falls this far below the high
	// water mark. Zero disables the halt.
	MaxDrawdownBps int64

	highWater schema.Cash
	halted    bool
}

// Apply implements Risk.
func (r *Caps) Apply(ctx *Context, targets TargetPortfolio) (TargetPortfolio, []schema.RiskVetoRecord) {
	var vetoes []schema.RiskVetoRecord

	if r.MaxDrawdownBps > 0 {
		equity := ctx.Account.Equity()
		if equity > r.highWater {
			r.highWater = equity
		}
		if r.highWater > 0 {
			drawdown := r.highWater - equity
			if schema.PortionCash(r.highWater, r.MaxDrawdownBps, 10_000) < drawdown {
				r.halted = true
			}
		}
	}
	if r.halted {
		for _, id := range sortedIDs(targets) {
			vetoes = append(vetoes, schema.RiskVetoRecord{
				InstrumentID: id,
				Reason:       schema.RiskVetoDrawdownHalt,
				TargetBps:    targets[id],
				AllowedBps:   0,
			})
		}
		return TargetPortfolio{}, vetoes
	}

	out := make(TargetPortfolio, len(targets))
	for id, w := range targets {
		out[id] = w
	}

	if r.MaxWeightBps > 0 {
		for _, id := range sortedIDs(out) {
			w := out[id]
			capped := w
			if capped > r.MaxWeightBps {
				capped = r.MaxWeightBps
			}
			if capped < -r.MaxWeightBps {
				capped = -r.MaxWeightBps
			}
			if capped != w {
				vetoes = append(vetoes, schema.RiskVetoRecord{
					InstrumentID: id,
					Reason:       schema.RiskVetoPositionCap,
					TargetBps:    w,
					AllowedBps:   capped,
				})
				out[id] = capped
			}
		}
	}

	if r.MaxSectorBps > 0 || len(r.SectorCaps) > 0 {
		vetoes = append(vetoes, r.applySectorCaps(ctx, out)...)
	}

	if r.MaxLeverageBps > 0 {
		gross := out.GrossBps()
		if gross > r.MaxLeverageBps {
			for _, id := range sortedIDs(out) {
				w := out[id]
				scaled := w * r.MaxLeverageBps / gross
				if scaled != w {
					vetoes = append(vetoes, schema.RiskVetoRecord{
						InstrumentID: id,
						Reason:       schema.RiskVetoLeverageCap,
						TargetBps:    w,
						AllowedBps:   scaled,
					})
					out[id] = scaled
				}
			}
		}
	}

	return out, vetoes
}

// applySectorCaps scales down every member of a sector whose gross
// weight exceeds its limit, proportionally, and reports one veto per
// adjusted instrument.
func (r *Caps) applySectorCaps(ctx *Context, out TargetPortfolio) []schema.RiskVetoRecord {
	reg := ctx.Data.Registry()
	gross := make(map[string]int64)
	for id, w := range out {
		meta, ok := reg.Meta(id)
		if !ok || meta.Sector == "" {
			continue
		}
		if w < 0 {
			w = -w
		}
		gross[meta.Sector] += w
	}
	sectors := make([]string, 0, len(gross))
	for s := range gross {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	var vetoes []schema.RiskVetoRecord
	for _, sector := range sectors {
		limit := r.MaxSectorBps
		if override, ok := r.SectorCaps[sector]; ok {
			limit = override
		}
		if limit <= 0 || gross[sector] <= limit {
			continue
		}
		for _, id := range sortedIDs(out) {
			meta, ok := reg.Meta(id)
			if !ok || meta.Sector != sector {
				continue
			}
			w := out[id]
			scaled := w * limit / gross[sector]
			if scaled == w {
				continue
			}
			vetoes = append(vetoes, schema.RiskVetoRecord{
				InstrumentID: id,
				Reason:       schema.RiskVetoConcentration,
				TargetBps:    w,
				AllowedBps:   scaled,
			})
			out[id] = scaled
		}
	}
	return vetoes
}

// Halted reports whether the drawdown halt has latched.
func (r *Caps) Halted() bool { return r.halted }

// Passthrough applies no limits.
type Passthrough struct{}

// Apply implements Risk.
func (Passthrough) Apply(_ *Context, targets TargetPortfolio) (TargetPortfolio, []schema.RiskVetoRecord) {
	return targets, nil
}

func sortedIDs(t TargetPortfolio) []schema.InstrumentID {
	ids := make([]schema.InstrumentID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
