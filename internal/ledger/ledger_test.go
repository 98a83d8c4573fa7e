package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketsim/internal/calendar"
	"marketsim/internal/schema"
)

func cash(t *testing.T, s string) schema.Cash {
	t.Helper()
	c, err := schema.ParseCash(s)
	require.NoError(t, err)
	return c
}

func price(t *testing.T, s string) schema.Price {
	t.Helper()
	p, err := schema.ParsePrice(s)
	require.NoError(t, err)
	return p
}

func qty(t *testing.T, s string) schema.Quantity {
	t.Helper()
	q, err := schema.ParseQuantity(s)
	require.NoError(t, err)
	return q
}

func testCal(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Config{Name: "TEST", OpenOffset: 9 * time.Hour, CloseOffset: 16 * time.Hour})
	require.NoError(t, err)
	return cal
}

func testReg(t *testing.T) (*schema.Registry, schema.InstrumentID) {
	t.Helper()
	reg := schema.NewRegistry()
	id, err := reg.Add(schema.Instrument{Symbol: "ACME", Class: schema.AssetEquity, QuoteCurrency: "USD"},
		schema.InstrumentMeta{QuotePrecision: 2, SettlementDays: 2})
	require.NoError(t, err)
	return reg, id
}

func newLedger(t *testing.T, cfg Config) (*Ledger, schema.InstrumentID) {
	t.Helper()
	reg, id := testReg(t)
	l, err := New(cfg, testCal(t), reg)
	require.NoError(t, err)
	return l, id
}

func ts(day, hour int) int64 {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC).UnixNano()
}

func TestApplyFillOpenReduceRealized(t *testing.T) {
	l, id := newLedger(t, Config{CapitalBase: cash(t, "10000")})

	// Buy 100 at 50.
	res, err := l.ApplyFill(1, id, schema.OrderSideBuy, price(t, "50"), qty(t, "100"), cash(t, "1.00"), ts(10, 10))
	require.NoError(t, err)
	require.EqualValues(t, 0, res.Realized)
	require.Equal(t, cash(t, "4999.00"), l.Account().Settled())

	pos, ok := l.Position(id)
	require.True(t, ok)
	require.Equal(t, qty(t, "100"), pos.Qty)
	require.Equal(t, price(t, "50"), pos.AvgEntry())

	// Buy 100 more at 60: average entry 55.
	_, err = l.ApplyFill(2, id, schema.OrderSideBuy, price(t, "60"), qty(t, "100"), 0, ts(10, 11))
	require.NoError(t, err)
	require.Equal(t, price(t, "55"), pos.AvgEntry())

	// Sell 50 at 70: realized (70-55)*50 = 750.
	res, err = l.ApplyFill(3, id, schema.OrderSideSell, price(t, "70"), qty(t, "50"), 0, ts(10, 12))
	require.NoError(t, err)
	require.Equal(t, cash(t, "750"), res.Realized)
	require.Equal(t, qty(t, "150"), pos.Qty)
	require.Equal(t, price(t, "55"), pos.AvgEntry())
}

func TestApplyFillCrossThroughZero(t *testing.T) {
	l, id := newLedger(t, Config{CapitalBase: cash(t, "10000")})
	_, err := l.ApplyFill(1, id, schema.OrderSideBuy, price(t, "100"), qty(t, "10"), 0, ts(10, 10))
	require.NoError(t, err)
	res, err := l.ApplyFill(2, id, schema.OrderSideSell, price(t, "110"), qty(t, "15"), 0, ts(10, 11))
	require.NoError(t, err)
	require.Equal(t, cash(t, "100"), res.Realized)
	pos, _ := l.Position(id)
	require.Equal(t, qty(t, "-5"), pos.Qty)
	require.Equal(t, price(t, "110"), pos.AvgEntry())
}

func TestConservationPerFill(t *testing.T) {
	l, id := newLedger(t, Config{CapitalBase: cash(t, "10000")})
	settled0 := l.Account().Settled()
	commission := cash(t, "2.50")
	_, err := l.ApplyFill(1, id, schema.OrderSideBuy, price(t, "40"), qty(t, "25"), commission, ts(10, 10))
	require.NoError(t, err)
	pos, _ := l.Position(id)
	// cash delta + position value at entry + commission = 0
	cashDelta := l.Account().Settled() - settled0
	require.EqualValues(t, 0, cashDelta+schema.Notional(pos.AvgEntry(), pos.Qty)+commission)
}

func TestRealisticSettlementTiming(t *testing.T) {
	l, id := newLedger(t, Config{CapitalBase: cash(t, "1000"), Settlement: SettleRealistic})
	// Wednesday trade, T+2 lands on Friday.
	tradeTs := ts(10, 10)
	res, err := l.ApplyFill(1, id, schema.OrderSideSell, price(t, "10"), qty(t, "10"), 0, tradeTs)
	require.NoError(t, err)
	require.Equal(t, cash(t, "1000"), l.Account().Settled())
	require.Equal(t, cash(t, "100"), l.Account().Pending())
	wantDate := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC).UnixNano()
	require.Equal(t, wantDate, res.Cash.EffectiveAt)

	// Nothing settles on Thursday.
	require.Empty(t, l.SettleDue(ts(11, 23)))
	recs := l.SettleDue(ts(12, 0))
	require.Len(t, recs, 1)
	require.Equal(t, cash(t, "1100"), l.Account().Settled())
	require.EqualValues(t, 0, l.Account().Pending())
}

func TestSettlementBlocksBuyThenAccepts(t *testing.T) {
	// Scenario: all capital in shares, sell proceeds pending T+2.
	l, id := newLedger(t, Config{Settlement: SettleRealistic, Violations: ViolationReject})
	l.SeedPosition(id, qty(t, "10"), price(t, "10"))

	_, err := l.ApplyFill(1, id, schema.OrderSideSell, price(t, "10"), qty(t, "10"), 0, ts(10, 10))
	require.NoError(t, err)

	// Next day: 80 buy must bounce, settled is still zero.
	require.Equal(t, schema.RejectInsufficientFunds, l.CheckBuy(cash(t, "80")))

	// After T+2 the same order clears.
	l.SettleDue(ts(12, 0))
	require.Equal(t, schema.RejectNone, l.CheckBuy(cash(t, "80")))
}

func TestReserveReleaseFlow(t *testing.T) {
	l, _ := newLedger(t, Config{CapitalBase: cash(t, "100")})
	require.NoError(t, l.ReserveOrder(7, cash(t, "60")))
	require.Equal(t, cash(t, "40"), l.BuyingPower())
	require.NoError(t, l.ConsumeReservation(7, cash(t, "25")))
	require.Equal(t, cash(t, "65"), l.BuyingPower())
	require.NoError(t, l.ReleaseOrder(7))
	require.Equal(t, cash(t, "100"), l.BuyingPower())
}

func TestGoodFaithViolationDetected(t *testing.T) {
	l, id := newLedger(t, Config{Settlement: SettleRealistic, Violations: ViolationWarn})
	l.SeedPosition(id, qty(t, "10"), price(t, "10"))

	// Sell everything: 100 pending.
	_, err := l.ApplyFill(1, id, schema.OrderSideSell, price(t, "10"), qty(t, "10"), 0, ts(10, 10))
	require.NoError(t, err)

	// Warn mode lets the unsettled proceeds fund a new buy.
	require.Equal(t, schema.RejectNone, l.CheckBuy(cash(t, "80")))
	_, err = l.ApplyFill(2, id, schema.OrderSideBuy, price(t, "8"), qty(t, "10"), 0, ts(10, 12))
	require.NoError(t, err)

	// Selling before the funding settles is a good-faith violation.
	res, err := l.ApplyFill(3, id, schema.OrderSideSell, price(t, "9"), qty(t, "10"), 0, ts(11, 10))
	require.NoError(t, err)
	require.NotNil(t, res.Violation)
	require.Equal(t, schema.ViolationGoodFaith, res.Violation.Kind)
	require.Len(t, l.Violations(), 1)
}

func TestNoViolationAfterFundsSettle(t *testing.T) {
	l, id := newLedger(t, Config{Settlement: SettleRealistic, Violations: ViolationWarn})
	l.SeedPosition(id, qty(t, "10"), price(t, "10"))
	_, err := l.ApplyFill(1, id, schema.OrderSideSell, price(t, "10"), qty(t, "10"), 0, ts(10, 10))
	require.NoError(t, err)
	_, err = l.ApplyFill(2, id, schema.OrderSideBuy, price(t, "8"), qty(t, "10"), 0, ts(10, 12))
	require.NoError(t, err)

	// Proceeds settle Friday; Monday's sell is clean.
	l.SettleDue(ts(12, 0))
	res, err := l.ApplyFill(3, id, schema.OrderSideSell, price(t, "9"), qty(t, "10"), 0, ts(15, 10))
	require.NoError(t, err)
	require.Nil(t, res.Violation)
}

func TestMarginBuyingPower(t *testing.T) {
	l, id := newLedger(t, Config{CapitalBase: cash(t, "1000"), Account: AccountMargin})
	// (settled + unsettled + 0.5*longMV)*2 - grossMV with no positions
	// doubles cash.
	require.Equal(t, cash(t, "2000"), l.BuyingPower())

	_, err := l.ApplyFill(1, id, schema.OrderSideBuy, price(t, "10"), qty(t, "50"), 0, ts(10, 10))
	require.NoError(t, err)
	l.MarkToMarket(id, price(t, "10"), ts(10, 10))
	// settled 500, longMV 500: (500 + 250)*2 - 500 = 1000.
	require.Equal(t, cash(t, "1000"), l.BuyingPower())
}

func TestPortfolioMarginUsesRiskFn(t *testing.T) {
	riskFn := func(positions []*Position) schema.Cash {
		var gross schema.Cash
		for _, p := range positions {
			mv := p.MarketValue()
			if mv < 0 {
				mv = -mv
			}
			gross += mv
		}
		return schema.PortionCash(gross, 15, 100)
	}
	l, id := newLedger(t, Config{CapitalBase: cash(t, "1000"), Account: AccountPortfolioMargin, RiskRequirement: riskFn})
	_, err := l.ApplyFill(1, id, schema.OrderSideBuy, price(t, "10"), qty(t, "50"), 0, ts(10, 10))
	require.NoError(t, err)
	// netliq 1000, requirement 75.
	require.Equal(t, cash(t, "925"), l.BuyingPower())
}

func TestSessionCharges(t *testing.T) {
	l, _ := newLedger(t, Config{CapitalBase: cash(t, "1000")})
	rec := l.ApplyCharge(schema.CashFinancing, -cash(t, "2.50"), ts(10, 16))
	require.Equal(t, schema.CashFinancing, rec.Kind)
	require.Equal(t, cash(t, "997.50"), l.Account().Settled())
}
