package engine

import (
	"github.com/yanun0323/logs"

	"marketsim/internal/calendar"
	"marketsim/internal/codec"
	"marketsim/internal/cost"
	"marketsim/internal/fill"
	"marketsim/internal/order"
	"marketsim/internal/schema"
)

const engineSource uint16 = 1

// append writes one journal record with the next sequence number. The
// visibility timestamp is deterministic virtual time, never OS time.
func (e *Engine) append(t schema.EventType, tsVisible int64, payload []byte) error {
	e.seq++
	header := schema.NewHeader(t, engineSource, e.seq, e.now, tsVisible)
	header.TraceID = e.trace.Next()
	e.metrics.IncEvent(t)
	return e.deps.Journal.Append(header, payload)
}

func (e *Engine) journalSubmit(o *order.Order, tsVisible int64) error {
	rec := schema.OrderSubmitRecord{
		OrderID:      o.ID,
		StrategyID:   o.StrategyID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Type:         o.Type,
		TimeInForce:  o.TimeInForce,
		Link:         o.Link,
		ParentID:     o.ParentID,
		GroupID:      o.GroupID,
		Qty:          o.Qty,
		LimitPrice:   o.LimitPrice,
		StopPrice:    o.StopPrice,
	}
	e.payload = codec.EncodeOrderSubmit(e.payload, rec)
	return e.append(schema.EventOrderSubmit, tsVisible, e.payload)
}

// onTransition journals every order state change. The hook runs inside
// manager mutations, so failures are stashed and surfaced at the next
// append.
func (e *Engine) onTransition(o *order.Order, from, to schema.OrderState, reason schema.RejectReason) {
	rec := schema.OrderStateRecord{OrderID: o.ID, From: from, To: to, Reason: reason}
	buf := codec.EncodeOrderState(nil, rec)
	if err := e.append(schema.EventOrderState, e.now, buf); err != nil {
		logs.Errorf("run %s: journal transition: %+v", e.runID, err)
		e.cancelled.Store(true)
	}
	if !to.Terminal() {
		return
	}
	// Whatever reservation the order still holds frees on any terminal
	// transition, including OCO sibling cancels and expiries.
	if err := e.deps.Ledger.ReleaseOrder(o.ID); err != nil {
		logs.Errorf("run %s: release order %d: %+v", e.runID, o.ID, err)
		e.cancelled.Store(true)
	}
	if book, ok := e.deps.FillPolicy.(*fill.Book); ok {
		book.Release(o.ID)
	}
}

func (e *Engine) journalCash(rec schema.CashRecord) error {
	e.payload = codec.EncodeCash(e.payload, rec)
	return e.append(schema.EventCash, e.now, e.payload)
}

func (e *Engine) journalRiskVeto(rec schema.RiskVetoRecord, tsVisible int64) error {
	e.payload = codec.EncodeRiskVeto(e.payload, rec)
	return e.append(schema.EventRiskVeto, tsVisible, e.payload)
}

func (e *Engine) journalUniverse(strategyID uint32, id schema.InstrumentID, action schema.UniverseAction, tsVisible int64) error {
	rec := schema.UniverseChangeRecord{StrategyID: strategyID, InstrumentID: id, Action: action}
	e.payload = codec.EncodeUniverseChange(e.payload, rec)
	return e.append(schema.EventUniverseChange, tsVisible, e.payload)
}

// onSessionClose runs the daily ledger tasks: expire DAY orders,
// settle matured cash, accrue carry costs, mark positions, and write
// the session summary record.
func (e *Engine) onSessionClose(ts int64) {
	if err := e.sessionClose(ts); err != nil {
		logs.Errorf("run %s: session close: %+v", e.runID, err)
		e.cancelled.Store(true)
	}
}

func (e *Engine) sessionClose(ts int64) error {
	if err := e.orders.ExpireDay(ts); err != nil {
		return err
	}

	for _, rec := range e.deps.Ledger.SettleDue(calendar.Midnight(ts)) {
		if err := e.journalCash(rec); err != nil {
			return err
		}
	}

	for _, p := range e.deps.Ledger.Positions() {
		mark, ok := e.lastMark[p.InstrumentID]
		if !ok || mark <= 0 {
			continue
		}
		e.deps.Ledger.MarkToMarket(p.InstrumentID, mark, ts)
		accrual := e.deps.Costs.SessionAccruals(cost.PositionView{Qty: p.Qty, AvgEntry: p.AvgEntry()}, mark)
		if accrual == 0 {
			continue
		}
		kind := schema.CashFinancing
		if p.Qty < 0 {
			kind = schema.CashBorrowFee
		}
		rec := e.deps.Ledger.ApplyCharge(kind, -accrual, ts)
		if err := e.journalCash(rec); err != nil {
			return err
		}
	}

	rec := schema.SessionCloseRecord{
		SessionDate: calendar.Midnight(ts),
		Equity:      e.deps.Ledger.Equity(),
		SettledCash: e.deps.Ledger.Account().Settled(),
		PendingCash: e.deps.Ledger.Account().Pending(),
	}
	e.payload = codec.EncodeSessionClose(e.payload, rec)
	return e.append(schema.EventSessionClose, ts, e.payload)
}
