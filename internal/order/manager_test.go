package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketsim/internal/schema"
)

func testRegistry(t *testing.T) (*schema.Registry, schema.InstrumentID) {
	t.Helper()
	reg := schema.NewRegistry()
	id, err := reg.Add(schema.Instrument{Symbol: "ACME", Class: schema.AssetEquity, QuoteCurrency: "USD"}, schema.InstrumentMeta{QuotePrecision: 2})
	require.NoError(t, err)
	return reg, id
}

func marketSpec(id schema.InstrumentID, side schema.OrderSide, qty string) Spec {
	q, _ := schema.ParseQuantity(qty)
	return Spec{
		StrategyID: 1, InstrumentID: id, Side: side,
		Type: schema.OrderTypeMarket, Qty: q, TimeInForce: schema.TimeInForceGTC,
	}
}

func limitSpec(id schema.InstrumentID, side schema.OrderSide, qty, limit string) Spec {
	s := marketSpec(id, side, qty)
	s.Type = schema.OrderTypeLimit
	s.LimitPrice, _ = schema.ParsePrice(limit)
	return s
}

func activate(t *testing.T, m *Manager, spec Spec, now int64) *Order {
	t.Helper()
	o := m.Create(spec, now)
	require.NoError(t, m.Submit(o.ID, now, now))
	require.NoError(t, m.Accept(o.ID, now, 0))
	return o
}

func TestSpecValidation(t *testing.T) {
	reg, id := testRegistry(t)
	require.Equal(t, schema.RejectNone, marketSpec(id, schema.OrderSideBuy, "10").Validate(reg))
	require.Equal(t, schema.RejectUnknownInstrument, marketSpec(99, schema.OrderSideBuy, "10").Validate(reg))
	require.Equal(t, schema.RejectInvalidParams, marketSpec(id, schema.OrderSideBuy, "0").Validate(reg))

	noLimit := marketSpec(id, schema.OrderSideBuy, "10")
	noLimit.Type = schema.OrderTypeLimit
	require.Equal(t, schema.RejectInvalidParams, noLimit.Validate(reg))
}

func TestLifecycleAndFillBounds(t *testing.T) {
	reg, id := testRegistry(t)
	_ = reg
	m := NewManager()
	o := activate(t, m, marketSpec(id, schema.OrderSideBuy, "100"), 10)
	require.Equal(t, schema.OrderStateWorking, o.State)

	px, _ := schema.ParsePrice("10.00")
	q40, _ := schema.ParseQuantity("40")
	require.NoError(t, m.ApplyFill(Fill{OrderID: o.ID, Ts: 11, Price: px, Qty: q40}, 11))
	require.Equal(t, schema.OrderStatePartFilled, o.State)

	q70, _ := schema.ParseQuantity("70")
	err := m.ApplyFill(Fill{OrderID: o.ID, Ts: 12, Price: px, Qty: q70}, 12)
	require.ErrorIs(t, err, ErrInvalidFill)

	q60, _ := schema.ParseQuantity("60")
	require.NoError(t, m.ApplyFill(Fill{OrderID: o.ID, Ts: 12, Price: px, Qty: q60}, 12))
	require.Equal(t, schema.OrderStateFilled, o.State)
	require.EqualValues(t, 0, o.RemainingQty())
	require.Equal(t, o.Qty, o.FilledQty+o.CancelledQty+o.RemainingQty())
	require.Equal(t, px, o.AvgFillPrice())
}

func TestCancelAttributesRemainder(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	o := activate(t, m, limitSpec(id, schema.OrderSideBuy, "100", "9.50"), 10)
	px, _ := schema.ParsePrice("9.50")
	q30, _ := schema.ParseQuantity("30")
	require.NoError(t, m.ApplyFill(Fill{OrderID: o.ID, Ts: 11, Price: px, Qty: q30}, 11))
	require.NoError(t, m.Cancel(o.ID, 12, schema.RejectNone))
	require.Equal(t, schema.OrderStateCancelled, o.State)
	require.Equal(t, o.Qty, o.FilledQty+o.CancelledQty)
	require.Error(t, m.Cancel(o.ID, 13, schema.RejectNone))
}

func TestOCOFillCancelsSiblingsSameTick(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	group := m.NewGroupID()

	limit := limitSpec(id, schema.OrderSideBuy, "10", "99")
	limit.Link = schema.LinkOCO
	limit.GroupID = group
	stop := marketSpec(id, schema.OrderSideBuy, "10")
	stop.Type = schema.OrderTypeStop
	stop.StopPrice, _ = schema.ParsePrice("103")
	stop.Link = schema.LinkOCO
	stop.GroupID = group

	lo := activate(t, m, limit, 10)
	so := activate(t, m, stop, 10)

	px, _ := schema.ParsePrice("103.20")
	q, _ := schema.ParseQuantity("10")
	require.NoError(t, m.ApplyFill(Fill{OrderID: so.ID, Ts: 20, Price: px, Qty: q}, 20))
	require.Equal(t, schema.OrderStateFilled, so.State)
	require.Equal(t, schema.OrderStateCancelled, lo.State)
	require.Equal(t, int64(20), lo.UpdatedAt)
}

func TestBracketPromotionOnEntryFill(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	entry := marketSpec(id, schema.OrderSideBuy, "10")
	entry.Link = schema.LinkBracketEntry
	eo := activate(t, m, entry, 10)

	tp := limitSpec(id, schema.OrderSideSell, "10", "110")
	tp.Link = schema.LinkBracketTakeProfit
	tp.ParentID = eo.ID
	tpo := m.Create(tp, 10)

	sl := marketSpec(id, schema.OrderSideSell, "10")
	sl.Type = schema.OrderTypeStop
	sl.StopPrice, _ = schema.ParsePrice("95")
	sl.Link = schema.LinkBracketStopLoss
	sl.ParentID = eo.ID
	slo := m.Create(sl, 10)

	require.Equal(t, schema.OrderStatePending, tpo.State)
	px, _ := schema.ParsePrice("100")
	q, _ := schema.ParseQuantity("10")
	require.NoError(t, m.ApplyFill(Fill{OrderID: eo.ID, Ts: 15, Price: px, Qty: q}, 15))
	require.Equal(t, schema.OrderStateSubmitted, tpo.State)
	require.Equal(t, schema.OrderStateSubmitted, slo.State)
	require.Equal(t, int64(15), tpo.EligibleAt)
}

func TestModifySemantics(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	o := activate(t, m, limitSpec(id, schema.OrderSideBuy, "100", "10"), 10)

	// Size decrease keeps the same order.
	q80, _ := schema.ParseQuantity("80")
	same, err := m.ModifySize(o.ID, 11, q80)
	require.NoError(t, err)
	require.Equal(t, o.ID, same.ID)
	require.Equal(t, q80, same.RemainingQty())

	// Price change is cancel-replace.
	newLimit, _ := schema.ParsePrice("10.50")
	replaced, err := m.ModifyPrice(o.ID, 12, newLimit, 0)
	require.NoError(t, err)
	require.NotEqual(t, o.ID, replaced.ID)
	require.Equal(t, schema.OrderStateCancelled, o.State)
	require.Equal(t, schema.OrderStateWorking, replaced.State)
	require.Equal(t, newLimit, replaced.LimitPrice)

	// Size increase is cancel-replace.
	q200, _ := schema.ParseQuantity("200")
	grown, err := m.ModifySize(replaced.ID, 13, q200)
	require.NoError(t, err)
	require.NotEqual(t, replaced.ID, grown.ID)
}

func TestWorkingSubmissionOrder(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	first := activate(t, m, marketSpec(id, schema.OrderSideBuy, "1"), 10)
	second := activate(t, m, marketSpec(id, schema.OrderSideBuy, "2"), 10)
	third := activate(t, m, marketSpec(id, schema.OrderSideBuy, "3"), 10)
	working := m.Working()
	require.Len(t, working, 3)
	require.Equal(t, []uint64{first.ID, second.ID, third.ID}, []uint64{working[0].ID, working[1].ID, working[2].ID})
}

func TestExpireDay(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	day := marketSpec(id, schema.OrderSideBuy, "1")
	day.TimeInForce = schema.TimeInForceDay
	gtc := marketSpec(id, schema.OrderSideBuy, "1")
	do := activate(t, m, day, 10)
	go_ := activate(t, m, gtc, 10)
	require.NoError(t, m.ExpireDay(100))
	require.Equal(t, schema.OrderStateCancelled, do.State)
	require.Equal(t, schema.OrderStateWorking, go_.State)
}

func TestTransitionHookObservesChanges(t *testing.T) {
	_, id := testRegistry(t)
	m := NewManager()
	var seen []schema.OrderState
	m.SetTransitionHook(func(_ *Order, _, to schema.OrderState, _ schema.RejectReason) {
		seen = append(seen, to)
	})
	activate(t, m, marketSpec(id, schema.OrderSideBuy, "1"), 10)
	require.Equal(t, []schema.OrderState{
		schema.OrderStateSubmitted, schema.OrderStateAccepted, schema.OrderStateWorking,
	}, seen)
}
