package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketsim/internal/market"
	"marketsim/internal/schema"
)

type stubPositions map[schema.InstrumentID]schema.Quantity

func (p stubPositions) PositionQty(id schema.InstrumentID) schema.Quantity { return p[id] }
func (p stubPositions) AvgEntry(schema.InstrumentID) schema.Price          { return 0 }
func (p stubPositions) MarkPrice(schema.InstrumentID) schema.Price         { return 0 }

type stubAccount struct {
	equity schema.Cash
}

func (a stubAccount) Equity() schema.Cash      { return a.equity }
func (a stubAccount) Settled() schema.Cash     { return a.equity }
func (a stubAccount) BuyingPower() schema.Cash { return a.equity }

func price(t *testing.T, s string) schema.Price {
	t.Helper()
	p, err := schema.ParsePrice(s)
	require.NoError(t, err)
	return p
}

func cash(t *testing.T, s string) schema.Cash {
	t.Helper()
	c, err := schema.ParseCash(s)
	require.NoError(t, err)
	return c
}

func qty(t *testing.T, s string) schema.Quantity {
	t.Helper()
	q, err := schema.ParseQuantity(s)
	require.NoError(t, err)
	return q
}

func testContext(t *testing.T, equity string, positions stubPositions) (*Context, schema.InstrumentID) {
	t.Helper()
	reg := schema.NewRegistry()
	id, err := reg.Add(schema.Instrument{Symbol: "ACME", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{QuotePrecision: 2})
	require.NoError(t, err)
	data := market.NewContext(reg, 16)
	if positions == nil {
		positions = stubPositions{}
	}
	return &Context{
		Now:       time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC).UnixNano(),
		Data:      data,
		Positions: positions,
		Account:   stubAccount{equity: cash(t, equity)},
	}, id
}

func barEvent(t *testing.T, id schema.InstrumentID, start int64, close string) schema.MarketEvent {
	px := price(t, close)
	bar := schema.Bar{
		Start: start, InstrumentID: id, Resolution: schema.ResDay, Kind: schema.BarTrade,
		Open: px, High: px, Low: px, Close: px, Volume: 1,
	}
	return schema.MarketEvent{Ts: bar.EffectiveAt(), InstrumentID: id, Resolution: schema.ResDay, Kind: schema.PayloadBar, Bar: bar}
}

func TestSMAWindow(t *testing.T) {
	s := NewSMA(3)
	if _, ok := s.Value(); ok {
		t.Fatalf("value before window filled")
	}
	s.Update(price(t, "10"))
	s.Update(price(t, "20"))
	avg, ok := s.Update(price(t, "30"))
	require.True(t, ok)
	require.Equal(t, price(t, "20"), avg)
	avg, _ = s.Update(price(t, "40")) // window now 20,30,40
	require.Equal(t, price(t, "30"), avg)
}

func TestMACrossSignals(t *testing.T) {
	ctx, id := testContext(t, "100", nil)
	alpha := NewMACross(2, 4, schema.ResDay)
	universe := []schema.InstrumentID{id}
	day := int64(24 * time.Hour)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()

	closes := []string{"100", "101", "99", "102", "105"}
	var lastSignals []Signal
	for i, c := range closes {
		ev := barEvent(t, id, base+int64(i)*day, c)
		lastSignals = alpha.OnEvent(ctx.DataOnly(), ev, universe)
		if i < 3 {
			require.Empty(t, lastSignals, "no signal before slow MA defined (bar %d)", i)
		}
	}
	// At bar 5: fast = (102+105)/2 = 103.5, slow = (101+99+102+105)/4 =
	// 101.75, fast above slow -> long.
	require.Len(t, lastSignals, 1)
	require.EqualValues(t, 10_000, lastSignals[0].StrengthBps)
}

func TestEqualWeightSplitsLeverage(t *testing.T) {
	ctx, id := testContext(t, "100", nil)
	c := &EqualWeight{LeverageBps: 10_000}
	targets := c.Targets(ctx, []Signal{
		{InstrumentID: id, StrengthBps: 10_000, ConfidenceBps: 10_000},
		{InstrumentID: id + 0, StrengthBps: -10_000, ConfidenceBps: 10_000},
	})
	// Two signals on the same instrument net out.
	require.EqualValues(t, 0, targets[id])

	targets = c.Targets(ctx, []Signal{{InstrumentID: id, StrengthBps: 10_000, ConfidenceBps: 10_000}})
	require.EqualValues(t, 10_000, targets[id])
}

func TestSignalWeightNormalizes(t *testing.T) {
	reg := schema.NewRegistry()
	a, _ := reg.Add(schema.Instrument{Symbol: "A", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{})
	b, _ := reg.Add(schema.Instrument{Symbol: "B", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{})
	ctx := &Context{Data: market.NewContext(reg, 4), Positions: stubPositions{}, Account: stubAccount{}}
	c := &SignalWeight{LeverageBps: 10_000}
	targets := c.Targets(ctx, []Signal{
		{InstrumentID: a, StrengthBps: 10_000, ConfidenceBps: 10_000},
		{InstrumentID: b, StrengthBps: -5_000, ConfidenceBps: 10_000},
	})
	require.EqualValues(t, 6_666, targets[a])
	require.EqualValues(t, -3_333, targets[b])
	require.LessOrEqual(t, targets.GrossBps(), int64(10_000))
}

func TestCapsWeightAndLeverage(t *testing.T) {
	ctx, id := testContext(t, "100", nil)
	r := &Caps{MaxWeightBps: 3_000, MaxLeverageBps: 10_000}
	out, vetoes := r.Apply(ctx, TargetPortfolio{id: 5_000})
	require.EqualValues(t, 3_000, out[id])
	require.Len(t, vetoes, 1)
	require.Equal(t, schema.RiskVetoPositionCap, vetoes[0].Reason)
}

func TestCapsSectorConcentration(t *testing.T) {
	reg := schema.NewRegistry()
	a, err := reg.Add(schema.Instrument{Symbol: "CHIPCO", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{Sector: "tech"})
	require.NoError(t, err)
	b, err := reg.Add(schema.Instrument{Symbol: "SOFTCO", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{Sector: "tech"})
	require.NoError(t, err)
	c, err := reg.Add(schema.Instrument{Symbol: "OILCO", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{Sector: "energy"})
	require.NoError(t, err)
	ctx := &Context{Data: market.NewContext(reg, 4), Positions: stubPositions{}, Account: stubAccount{}}

	r := &Caps{MaxSectorBps: 4_000}
	out, vetoes := r.Apply(ctx, TargetPortfolio{a: 4_000, b: 4_000, c: 3_000})

	// Tech gross 8000 scales to 4000; energy is under its cap.
	require.EqualValues(t, 2_000, out[a])
	require.EqualValues(t, 2_000, out[b])
	require.EqualValues(t, 3_000, out[c])
	require.Len(t, vetoes, 2)
	for _, v := range vetoes {
		require.Equal(t, schema.RiskVetoConcentration, v.Reason)
	}

	// Per-sector override relaxes one sector only.
	r = &Caps{MaxSectorBps: 4_000, SectorCaps: map[string]int64{"tech": 10_000}}
	out, vetoes = r.Apply(ctx, TargetPortfolio{a: 4_000, b: 4_000, c: 3_000})
	require.EqualValues(t, 4_000, out[a])
	require.EqualValues(t, 4_000, out[b])
	require.Empty(t, vetoes)

	// Shorts count toward gross concentration.
	r = &Caps{MaxSectorBps: 4_000}
	out, vetoes = r.Apply(ctx, TargetPortfolio{a: 4_000, b: -4_000})
	require.EqualValues(t, 2_000, out[a])
	require.EqualValues(t, -2_000, out[b])
	require.Len(t, vetoes, 2)
}

func TestCapsDrawdownHaltFlattens(t *testing.T) {
	reg := schema.NewRegistry()
	id, _ := reg.Add(schema.Instrument{Symbol: "A", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{})
	data := market.NewContext(reg, 4)
	r := &Caps{MaxDrawdownBps: 1_000}

	rich := &Context{Data: data, Positions: stubPositions{}, Account: stubAccount{equity: 100 * 100_000_000}}
	out, _ := r.Apply(rich, TargetPortfolio{id: 5_000})
	require.EqualValues(t, 5_000, out[id])
	require.False(t, r.Halted())

	// 15% drawdown trips the 10% halt and latches.
	poor := &Context{Data: data, Positions: stubPositions{}, Account: stubAccount{equity: 85 * 100_000_000}}
	out, vetoes := r.Apply(poor, TargetPortfolio{id: 5_000})
	require.Empty(t, out)
	require.NotEmpty(t, vetoes)
	require.True(t, r.Halted())

	recovered := &Context{Data: data, Positions: stubPositions{}, Account: stubAccount{equity: 100 * 100_000_000}}
	out, _ = r.Apply(recovered, TargetPortfolio{id: 5_000})
	require.Empty(t, out, "halt must latch")
}

func TestImmediateExecutionClosesGap(t *testing.T) {
	ctx, id := testContext(t, "1000", stubPositions{})
	ctx.Data.ApplyQuote(schema.QuoteTick{InstrumentID: id, Bid: price(t, "99.95"), Ask: price(t, "100.05")})

	specs := Immediate{}.Orders(ctx, TargetPortfolio{id: 10_000})
	require.Len(t, specs, 1)
	require.Equal(t, schema.OrderSideBuy, specs[0].Side)
	// 1000 equity at mid 100 -> 10 units.
	require.Equal(t, qty(t, "10"), specs[0].Qty)

	// Zero target with an existing position emits the flattening sell.
	ctx.Positions = stubPositions{id: qty(t, "10")}
	specs = Immediate{}.Orders(ctx, TargetPortfolio{id: 0})
	require.Len(t, specs, 1)
	require.Equal(t, schema.OrderSideSell, specs[0].Side)
	require.Equal(t, qty(t, "10"), specs[0].Qty)
}

func TestTWAPSlices(t *testing.T) {
	ctx, id := testContext(t, "1000", stubPositions{})
	ctx.Data.ApplyQuote(schema.QuoteTick{InstrumentID: id, Bid: price(t, "99.95"), Ask: price(t, "100.05")})
	tw := NewTWAP(5, time.Minute)

	specs := tw.Orders(ctx, TargetPortfolio{id: 10_000})
	require.Len(t, specs, 1)
	require.Equal(t, qty(t, "2"), specs[0].Qty)

	// Same tick: next slice not due yet.
	require.Empty(t, tw.Orders(ctx, TargetPortfolio{id: 10_000}))

	// One interval later the next slice releases.
	ctx.Now += int64(time.Minute)
	specs = tw.Orders(ctx, TargetPortfolio{id: 10_000})
	require.Len(t, specs, 1)
	require.Equal(t, qty(t, "2"), specs[0].Qty)
}

func TestCompositionUniversePointInTime(t *testing.T) {
	ctx, id := testContext(t, "100", nil)
	u := &CompositionUniverse{Members: []Membership{
		{InstrumentID: id, From: 0, Until: ctx.Now}, // expired exactly now
	}}
	require.Empty(t, u.SelectUniverse(ctx))

	u.Members[0].Until = ctx.Now + 1
	require.Equal(t, []schema.InstrumentID{id}, u.SelectUniverse(ctx))
}
