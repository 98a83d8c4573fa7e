package feed

import (
	"math/rand/v2"

	"marketsim/internal/calendar"
	"marketsim/internal/rng"
	"marketsim/internal/schema"
)

// Generator emits a synthetic seeded bar walk for every instrument in
// the registry, one bar per instrument per session day. Deterministic
// for a given seed, which makes it the fixture for reproducibility
// runs.
type Generator struct {
	cal       *calendar.Calendar
	res       schema.Resolution
	r         *rand.Rand
	prices    map[schema.InstrumentID]schema.Price
	ids       []schema.InstrumentID
	day       int64
	end       int64
	idx       int
	driftBps  int64
	jitterBps int64
}

// NewGenerator builds a walk over [start, end] session days. The
// stream's seed derives as rng.Child(seed, "feed/generator").
func NewGenerator(reg *schema.Registry, cal *calendar.Calendar, res schema.Resolution, start, end int64, base schema.Price, seed uint64) *Generator {
	g := &Generator{
		cal:       cal,
		res:       res,
		r:         rng.New(rng.Child(seed, "feed/generator")),
		prices:    make(map[schema.InstrumentID]schema.Price),
		day:       calendar.Midnight(start),
		end:       end,
		driftBps:  2,
		jitterBps: 80,
	}
	for i := 0; i < reg.Count(); i++ {
		id, _, ok := reg.At(i)
		if !ok {
			continue
		}
		g.ids = append(g.ids, id)
		g.prices[id] = base
	}
	return g
}

// Next implements stream.Source.
func (g *Generator) Next() (schema.MarketEvent, bool) {
	for {
		if g.day > g.end || len(g.ids) == 0 {
			return schema.MarketEvent{}, false
		}
		if !g.cal.IsTradingDay(g.day) {
			g.day += int64(24 * 60 * 60 * 1e9)
			continue
		}
		if g.idx >= len(g.ids) {
			g.idx = 0
			g.day += int64(24 * 60 * 60 * 1e9)
			continue
		}
		id := g.ids[g.idx]
		g.idx++

		prev := g.prices[id]
		move := g.driftBps + g.r.Int64N(2*g.jitterBps+1) - g.jitterBps
		close := schema.ApplyBps(prev, move)
		if close <= 0 {
			close = prev
		}
		g.prices[id] = close

		high := prev
		low := prev
		if close > high {
			high = close
		}
		if close < low {
			low = close
		}
		bar := schema.Bar{
			Start:        g.day,
			InstrumentID: id,
			Resolution:   g.res,
			Kind:         schema.BarTrade,
			Open:         prev,
			High:         high,
			Low:          low,
			Close:        close,
			Volume:       10_000 * 10_000,
		}
		return schema.MarketEvent{
			Ts:           bar.EffectiveAt(),
			InstrumentID: id,
			Resolution:   g.res,
			Kind:         schema.PayloadBar,
			Bar:          bar,
		}, true
	}
}
