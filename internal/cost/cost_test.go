package cost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketsim/internal/schema"
)

func cash(t *testing.T, s string) schema.Cash {
	t.Helper()
	c, err := schema.ParseCash(s)
	require.NoError(t, err)
	return c
}

func draft(t *testing.T, side schema.OrderSide, px, sz string) FillDraft {
	t.Helper()
	p, err := schema.ParsePrice(px)
	require.NoError(t, err)
	q, err := schema.ParseQuantity(sz)
	require.NoError(t, err)
	return FillDraft{InstrumentID: 1, Side: side, Price: p, Qty: q}
}

func TestPerShareWithMinimum(t *testing.T) {
	c := PerShare{PerUnit: cash(t, "0.005"), Minimum: cash(t, "1.00")}
	// 100 shares * 0.005 = 0.50, below the minimum.
	require.Equal(t, cash(t, "1.00"), c.Fee(draft(t, schema.OrderSideBuy, "10", "100"), PositionView{}))
	// 1000 shares * 0.005 = 5.00.
	require.Equal(t, cash(t, "5.00"), c.Fee(draft(t, schema.OrderSideBuy, "10", "1000"), PositionView{}))
}

func TestPercentCommission(t *testing.T) {
	c := Percent{Bps: 10} // 0.1%
	// 100 shares at 50 = 5000 notional -> 5.00.
	require.Equal(t, cash(t, "5.00"), c.Fee(draft(t, schema.OrderSideSell, "50", "100"), PositionView{}))
}

func TestTieredCommission(t *testing.T) {
	c := Tiered{Tiers: []Tier{
		{UpTo: cash(t, "1000"), Bps: 20},
		{UpTo: 0, Bps: 10},
	}}
	require.NoError(t, c.Validate())
	// 500 notional lands in the first band: 20bps -> 1.00.
	require.Equal(t, cash(t, "1.00"), c.Fee(draft(t, schema.OrderSideBuy, "5", "100"), PositionView{}))
	// 5000 notional lands in the open band: 10bps -> 5.00.
	require.Equal(t, cash(t, "5.00"), c.Fee(draft(t, schema.OrderSideBuy, "50", "100"), PositionView{}))

	bad := Tiered{Tiers: []Tier{{UpTo: cash(t, "10"), Bps: 1}}}
	require.Error(t, bad.Validate())
}

func TestRegulatorySellSideOnly(t *testing.T) {
	c := RegulatoryFee{SellBps: 1}
	require.EqualValues(t, 0, c.Fee(draft(t, schema.OrderSideBuy, "100", "100"), PositionView{}))
	// 10000 notional at 1bp -> 1.00.
	require.Equal(t, cash(t, "1.00"), c.Fee(draft(t, schema.OrderSideSell, "100", "100"), PositionView{}))
}

func TestBorrowFeeShortOnly(t *testing.T) {
	c := BorrowFee{DailyBps: 10}
	mark, _ := schema.ParsePrice("100")
	long := PositionView{Qty: 100_0000}
	require.EqualValues(t, 0, c.Accrue(long, mark))
	short := PositionView{Qty: -100_0000} // short 100 units
	// 10000 notional at 10bps -> 10.00.
	require.Equal(t, cash(t, "10.00"), c.Accrue(short, mark))
}

func TestEngineComposition(t *testing.T) {
	e, err := NewEngine(0, []Component{
		Percent{Bps: 10},
		RegulatoryFee{SellBps: 1},
	}, []SessionComponent{Financing{DailyBps: 1}})
	require.NoError(t, err)

	d := draft(t, schema.OrderSideSell, "100", "100") // 10000 notional
	require.Equal(t, cash(t, "11.00"), e.Commission(d, PositionView{}))

	mark, _ := schema.ParsePrice("100")
	require.Equal(t, cash(t, "1.00"), e.SessionAccruals(PositionView{Qty: 100_0000}, mark))
}

func TestEngineSlippageAdjustment(t *testing.T) {
	e, err := NewEngine(10, nil, nil)
	require.NoError(t, err)
	px, _ := schema.ParsePrice("100.00")
	buy := e.AdjustPrice(schema.OrderSideBuy, px, 2)
	want, _ := schema.ParsePrice("100.10")
	require.Equal(t, want, buy)
	sell := e.AdjustPrice(schema.OrderSideSell, px, 2)
	want, _ = schema.ParsePrice("99.90")
	require.Equal(t, want, sell)
}
