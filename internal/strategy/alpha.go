package strategy

import "marketsim/internal/schema"

// MACross emits a long signal while the fast moving average is above
// the slow one and a short signal while below. Indicator state lives on
// the model, keyed per instrument.
type MACross struct {
	Fast       int
	Slow       int
	Resolution schema.Resolution

	series map[schema.InstrumentID]*maPair
}

type maPair struct {
	fast *SMA
	slow *SMA
}

// NewMACross builds the crossover alpha.
func NewMACross(fast, slow int, res schema.Resolution) *MACross {
	if fast < 1 {
		fast = 1
	}
	if slow <= fast {
		slow = fast + 1
	}
	return &MACross{
		Fast: fast, Slow: slow, Resolution: res,
		series: make(map[schema.InstrumentID]*maPair),
	}
}

// OnEvent implements Alpha.
func (a *MACross) OnEvent(ctx *DataContext, ev schema.MarketEvent, universe []schema.InstrumentID) []Signal {
	if ev.Kind != schema.PayloadBar || ev.Resolution != a.Resolution {
		return nil
	}
	if !inUniverse(universe, ev.InstrumentID) {
		return nil
	}
	pair, ok := a.series[ev.InstrumentID]
	if !ok {
		pair = &maPair{fast: NewSMA(a.Fast), slow: NewSMA(a.Slow)}
		a.series[ev.InstrumentID] = pair
	}
	fast, fastReady := pair.fast.Update(ev.Bar.Close)
	slow, slowReady := pair.slow.Update(ev.Bar.Close)
	if !fastReady || !slowReady {
		return nil
	}
	strength := int64(10_000)
	if fast < slow {
		strength = -10_000
	}
	if fast == slow {
		return nil
	}
	return []Signal{{
		InstrumentID:  ev.InstrumentID,
		StrengthBps:   strength,
		ConfidenceBps: 10_000,
		Ts:            ctx.Now,
	}}
}

// ConstAlpha emits a fixed signal for every bar of its instrument.
// Test and scaffolding model.
type ConstAlpha struct {
	InstrumentID schema.InstrumentID
	StrengthBps  int64
}

// OnEvent implements Alpha.
func (a *ConstAlpha) OnEvent(ctx *DataContext, ev schema.MarketEvent, universe []schema.InstrumentID) []Signal {
	if ev.InstrumentID != a.InstrumentID {
		return nil
	}
	if !inUniverse(universe, ev.InstrumentID) {
		return nil
	}
	return []Signal{{
		InstrumentID:  a.InstrumentID,
		StrengthBps:   a.StrengthBps,
		ConfidenceBps: 10_000,
		Ts:            ctx.Now,
	}}
}

func inUniverse(universe []schema.InstrumentID, id schema.InstrumentID) bool {
	for _, u := range universe {
		if u == id {
			return true
		}
	}
	return false
}
