package engine

import (
	"fmt"

	"marketsim/internal/codec"
	"marketsim/internal/cost"
	"marketsim/internal/fill"
	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// snapshotFor builds the market snapshot all of this tick's orders are
// evaluated against.
func (e *Engine) snapshotFor(ev schema.MarketEvent) fill.Snapshot {
	snap := fill.Snapshot{Ts: e.now, InstrumentID: ev.InstrumentID}
	switch ev.Kind {
	case schema.PayloadBar:
		if ev.Bar.Kind == schema.BarQuote {
			snap.Bid = ev.Bar.BidClose
			snap.Ask = ev.Bar.AskClose
			snap.HasQuote = true
		}
		snap.BarRef = e.barRef(ev.Bar)
	case schema.PayloadTrade:
		snap.Last = ev.Trade.Price
		snap.TradeSize = ev.Trade.Size
		snap.HasTrade = true
	case schema.PayloadQuote:
		snap.Bid = ev.Quote.Bid
		snap.Ask = ev.Quote.Ask
		snap.BidSize = ev.Quote.BidSize
		snap.AskSize = ev.Quote.AskSize
		snap.HasQuote = true
	case schema.PayloadDepth:
		if len(ev.Depth.Bids) > 0 {
			snap.Bid = ev.Depth.Bids[0].Price
			snap.BidSize = ev.Depth.Bids[0].Qty
		}
		if len(ev.Depth.Asks) > 0 {
			snap.Ask = ev.Depth.Asks[0].Price
			snap.AskSize = ev.Depth.Asks[0].Qty
		}
		snap.HasQuote = snap.Bid > 0 && snap.Ask > 0
	}
	if !snap.HasTrade {
		if tk, ok := e.data.LastTrade(ev.InstrumentID); ok {
			snap.Last = tk.Price
		}
	}
	return snap
}

func (e *Engine) barRef(b schema.Bar) schema.Price {
	if b.Kind == schema.BarQuote {
		return mid(b.BidClose, b.AskClose)
	}
	if e.deps.FillPolicy.BarPriceMode() == fill.BarOpen {
		return b.Open
	}
	return b.Close
}

// matchOrders walks working orders on the event's instrument in
// submission order against one shared snapshot.
func (e *Engine) matchOrders(ev schema.MarketEvent) error {
	working := e.orders.Working()
	if len(working) == 0 {
		return nil
	}
	snap := e.snapshotFor(ev)
	for _, o := range working {
		if o.InstrumentID != ev.InstrumentID {
			continue
		}
		if !o.Eligible(e.now) {
			continue
		}
		if o.State.Terminal() {
			// An OCO sibling fill earlier in this loop may have
			// cancelled it.
			continue
		}
		proposals := e.deps.FillPolicy.ProposeFills(o, snap)
		for _, p := range proposals {
			if err := e.applyProposal(o, p, snap); err != nil {
				return err
			}
			if o.State.Terminal() {
				break
			}
		}
		if err := e.expireImmediate(o); err != nil {
			return err
		}
	}
	return nil
}

// expireImmediate enforces IOC/FOK after the order had its chance at
// this tick's snapshot.
func (e *Engine) expireImmediate(o *order.Order) error {
	if o.State.Terminal() {
		return nil
	}
	switch o.TimeInForce {
	case schema.TimeInForceIOC:
		if o.Eligible(e.now) {
			return e.cancelOrder(o, schema.RejectExpired)
		}
	case schema.TimeInForceFOK:
		// FOK is treated as IOC pending an atomic pre-check of
		// fillable size: a partial this tick keeps its fill and only
		// the remainder cancels.
		if o.Eligible(e.now) {
			return e.cancelOrder(o, schema.RejectExpired)
		}
	}
	return nil
}

// cancelOrder runs a manager cancel; reservation release happens in
// the terminal-transition hook.
func (e *Engine) cancelOrder(o *order.Order, reason schema.RejectReason) error {
	return e.orders.Cancel(o.ID, e.now, reason)
}

// applyProposal prices the proposal through the cost engine, applies it
// to the ledger, journals fill and cash records, and advances the order
// state machine.
func (e *Engine) applyProposal(o *order.Order, p fill.Proposal, snap fill.Snapshot) error {
	meta, ok := e.deps.Registry.Meta(o.InstrumentID)
	if !ok {
		return fmt.Errorf("fill for unknown instrument %d: %w", o.InstrumentID, ErrInvariant)
	}

	price := e.deps.Costs.AdjustPrice(o.Side, p.Price, meta.QuotePrecision)
	pos := cost.PositionView{}
	if held, okPos := e.deps.Ledger.Position(o.InstrumentID); okPos {
		pos = cost.PositionView{Qty: held.Qty, AvgEntry: held.AvgEntry()}
	}
	draft := cost.FillDraft{
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Price:        price,
		Qty:          p.Qty,
		Ts:           e.now,
	}
	commission := e.deps.Costs.Commission(draft, pos)

	if o.Side == schema.OrderSideBuy {
		portion := schema.Notional(price, p.Qty)
		if err := e.deps.Ledger.ConsumeReservation(o.ID, portion); err != nil {
			return err
		}
	}

	result, err := e.deps.Ledger.ApplyFill(o.ID, o.InstrumentID, o.Side, price, p.Qty, commission, e.now)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvariant)
	}

	if err := e.orders.ApplyFill(order.Fill{
		OrderID:    o.ID,
		Ts:         e.now,
		Price:      price,
		Qty:        p.Qty,
		Commission: commission,
		Bid:        snap.Bid,
		Ask:        snap.Ask,
		Last:       snap.Last,
	}, e.now); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvariant)
	}
	e.fillCount++

	rec := schema.FillRecord{
		OrderID:      o.ID,
		InstrumentID: o.InstrumentID,
		Side:         o.Side,
		Price:        price,
		Qty:          p.Qty,
		Commission:   commission,
		SlippageBps:  slippageBps(o.ArrivalPrice, price, o.Side),
		Bid:          snap.Bid,
		Ask:          snap.Ask,
		Last:         snap.Last,
	}
	e.payload = codec.EncodeFill(e.payload, rec)
	if err := e.append(schema.EventFill, e.now, e.payload); err != nil {
		return err
	}
	if err := e.journalCash(result.Cash); err != nil {
		return err
	}
	e.payload = codec.EncodePosition(e.payload, result.Position)
	if err := e.append(schema.EventPosition, e.now, e.payload); err != nil {
		return err
	}
	if result.Violation != nil {
		e.payload = codec.EncodeViolation(e.payload, *result.Violation)
		if err := e.append(schema.EventViolation, e.now, e.payload); err != nil {
			return err
		}
	}
	return nil
}

// slippageBps attributes execution cost against the arrival price.
func slippageBps(arrival, price schema.Price, side schema.OrderSide) int64 {
	if arrival <= 0 {
		return 0
	}
	diff := (int64(price) - int64(arrival)) * side.Sign()
	return diff * 10_000 / int64(arrival)
}
