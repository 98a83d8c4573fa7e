package engine

import (
	"time"

	"github.com/yanun0323/logs"

	"marketsim/internal/codec"
	"marketsim/internal/ledger"
	"marketsim/internal/market"
	"marketsim/internal/obs"
	"marketsim/internal/order"
	"marketsim/internal/schema"
	"marketsim/internal/strategy"
)

// positionView adapts the ledger for stage contexts.
type positionView struct {
	l *ledger.Ledger
}

func (v positionView) PositionQty(id schema.InstrumentID) schema.Quantity {
	if p, ok := v.l.Position(id); ok {
		return p.Qty
	}
	return 0
}

func (v positionView) AvgEntry(id schema.InstrumentID) schema.Price {
	if p, ok := v.l.Position(id); ok {
		return p.AvgEntry()
	}
	return 0
}

func (v positionView) MarkPrice(id schema.InstrumentID) schema.Price {
	if p, ok := v.l.Position(id); ok {
		return p.MarkPrice
	}
	return 0
}

type accountView struct {
	l *ledger.Ledger
}

func (v accountView) Equity() schema.Cash      { return v.l.Equity() }
func (v accountView) Settled() schema.Cash     { return v.l.Account().Settled() }
func (v accountView) BuyingPower() schema.Cash { return v.l.BuyingPower() }

func (e *Engine) stageContext(st *strategyState) *strategy.Context {
	ctx := &strategy.Context{
		Now:       e.now,
		Data:      e.data,
		Positions: positionView{e.deps.Ledger},
		Account:   accountView{e.deps.Ledger},
		Rejected:  st.rejected,
	}
	st.rejected = nil
	return ctx
}

// pipeline runs the five stages for one strategy on one routed event.
// A panic in any stage is a strategy fault handled by policy; it never
// crosses the tick boundary.
func (e *Engine) pipeline(st *strategyState, ev schema.MarketEvent, visibleAt int64) (err error) {
	var stage obs.Stage
	defer func() {
		if r := recover(); r != nil {
			err = e.onStrategyFault(st, stage, r, visibleAt)
		}
	}()

	ctx := e.stageContext(st)
	st.events++

	// Universe refresh on its rebalance schedule.
	stage = obs.StageUniverse
	if st.s.Universe != nil && st.universeDue() {
		begin := time.Now()
		next := st.s.Universe.SelectUniverse(ctx)
		e.metrics.ObserveStage(obs.StageUniverse, time.Since(begin))
		if err := e.applyUniverse(st, next, visibleAt); err != nil {
			return err
		}
	}

	stage = obs.StageAlpha
	var signals []strategy.Signal
	if st.s.Alpha != nil {
		begin := time.Now()
		signals = st.s.Alpha.OnEvent(ctx.DataOnly(), ev, st.universe)
		e.metrics.ObserveStage(obs.StageAlpha, time.Since(begin))
	}

	// During warm-up the strategy builds indicator state but must not
	// reach the order path.
	if !st.warmupDone() {
		return nil
	}

	stage = obs.StageConstruction
	var targets strategy.TargetPortfolio
	if st.s.Construction != nil {
		begin := time.Now()
		targets = st.s.Construction.Targets(ctx, signals)
		e.metrics.ObserveStage(obs.StageConstruction, time.Since(begin))
	}
	if targets == nil {
		targets = strategy.TargetPortfolio{}
	}

	// Instruments that left the universe are forced to a zero target so
	// their positions unwind through the normal order path.
	for id := range st.forcedFlat {
		if p, ok := e.deps.Ledger.Position(id); ok && p.Qty != 0 {
			targets[id] = 0
		} else {
			delete(st.forcedFlat, id)
		}
	}

	stage = obs.StageRisk
	if st.s.Risk != nil {
		begin := time.Now()
		adjusted, vetoes := st.s.Risk.Apply(ctx, targets)
		e.metrics.ObserveStage(obs.StageRisk, time.Since(begin))
		for _, veto := range vetoes {
			veto.StrategyID = st.s.ID
			if err := e.journalRiskVeto(veto, visibleAt); err != nil {
				return err
			}
		}
		targets = adjusted
		// Forced flats survive risk adjustments.
		for id := range st.forcedFlat {
			if _, ok := targets[id]; !ok {
				if p, ok := e.deps.Ledger.Position(id); ok && p.Qty != 0 {
					targets[id] = 0
				}
			}
		}
	}

	stage = obs.StageExecution
	var specs []order.Spec
	if st.s.Execution != nil {
		begin := time.Now()
		specs = st.s.Execution.Orders(ctx, targets)
		e.metrics.ObserveStage(obs.StageExecution, time.Since(begin))
	}

	// OCO specs emitted by one execution call form a single group.
	var ocoGroup uint64
	for i := range specs {
		if specs[i].Link == schema.LinkOCO && specs[i].GroupID == 0 {
			if ocoGroup == 0 {
				ocoGroup = e.orders.NewGroupID()
			}
			specs[i].GroupID = ocoGroup
		}
	}
	for _, spec := range specs {
		spec.StrategyID = st.s.ID
		if err := e.placeOrder(st, spec, visibleAt); err != nil {
			return err
		}
	}
	return nil
}

func (st *strategyState) universeDue() bool {
	if st.s.RebalanceBars <= 0 {
		return st.events == 1
	}
	return (st.events-1)%st.s.RebalanceBars == 0
}

// applyUniverse diffs the universe and journals membership changes.
// Removed instruments with open positions are queued for flattening.
func (e *Engine) applyUniverse(st *strategyState, next []schema.InstrumentID, visibleAt int64) error {
	prev := make(map[schema.InstrumentID]struct{}, len(st.universe))
	for _, id := range st.universe {
		prev[id] = struct{}{}
	}
	cur := make(map[schema.InstrumentID]struct{}, len(next))
	for _, id := range next {
		cur[id] = struct{}{}
		if _, ok := prev[id]; !ok {
			if err := e.journalUniverse(st.s.ID, id, schema.UniverseAdd, visibleAt); err != nil {
				return err
			}
		}
	}
	for _, id := range st.universe {
		if _, ok := cur[id]; ok {
			continue
		}
		if err := e.journalUniverse(st.s.ID, id, schema.UniverseRemove, visibleAt); err != nil {
			return err
		}
		if p, ok := e.deps.Ledger.Position(id); ok && p.Qty != 0 {
			st.forcedFlat[id] = struct{}{}
		}
	}
	st.universe = next
	return nil
}

// placeOrder runs a spec through acceptance: netting against working
// orders, structural validation, buying power, latency gating.
func (e *Engine) placeOrder(st *strategyState, spec order.Spec, visibleAt int64) error {
	// Reconcile against the outstanding order book: quantity already
	// working in the same direction is not re-ordered. Linked orders
	// (OCO, bracket legs) are deliberate duplicates and skip netting.
	if spec.Link == schema.LinkNone {
		outstanding := schema.Quantity(0)
		for _, w := range e.orders.Working() {
			if w.StrategyID == spec.StrategyID && w.InstrumentID == spec.InstrumentID && w.Side == spec.Side {
				outstanding += w.RemainingQty()
			}
		}
		if outstanding >= spec.Qty {
			return nil
		}
		spec.Qty -= outstanding
	}

	o := e.orders.Create(spec, e.now)
	if err := e.journalSubmit(o, visibleAt); err != nil {
		return err
	}

	delay := e.deps.Latency.OrderDelay() + e.deps.Latency.ExecDelay()
	if err := e.orders.Submit(o.ID, e.now, e.now+int64(delay)); err != nil {
		return err
	}

	if reason := spec.Validate(e.deps.Registry); reason != schema.RejectNone {
		e.metrics.IncReject()
		st.rejected = append(st.rejected, o.ID)
		return e.orders.Reject(o.ID, e.now, reason)
	}

	arrival := e.referencePrice(spec.InstrumentID, spec.LimitPrice)
	if spec.Side == schema.OrderSideBuy {
		cost := e.deps.Ledger.OrderCost(orderRefPrice(spec, arrival), spec.Qty)
		if reason := e.deps.Ledger.CheckBuy(cost); reason != schema.RejectNone {
			e.metrics.IncReject()
			st.rejected = append(st.rejected, o.ID)
			return e.orders.Reject(o.ID, e.now, reason)
		}
		if err := e.deps.Ledger.ReserveOrder(o.ID, cost); err != nil {
			return err
		}
	}

	if err := e.orders.Accept(o.ID, e.now, arrival); err != nil {
		return err
	}
	e.metrics.IncOrder()
	return nil
}

// orderRefPrice picks the price an order's cash requirement is checked
// against: the limit for priced orders, the arrival price otherwise.
func orderRefPrice(spec order.Spec, arrival schema.Price) schema.Price {
	if spec.LimitPrice > 0 {
		return spec.LimitPrice
	}
	return arrival
}

func (e *Engine) referencePrice(id schema.InstrumentID, fallback schema.Price) schema.Price {
	if mark, ok := e.lastMark[id]; ok && mark > 0 {
		return mark
	}
	return fallback
}

// onStrategyFault applies the fault policy after a stage panic.
func (e *Engine) onStrategyFault(st *strategyState, stage obs.Stage, cause any, visibleAt int64) error {
	logs.Errorf("run %s: strategy %d fault in stage %d: %v", e.runID, st.s.ID, stage, cause)
	action := e.cfg.FaultPolicy
	rec := schema.StrategyFaultRecord{
		StrategyID: st.s.ID,
		Stage:      uint16(stage),
		Action:     action,
	}
	e.payload = codec.EncodeStrategyFault(e.payload, rec)
	if err := e.append(schema.EventStrategyFault, visibleAt, e.payload); err != nil {
		return err
	}
	if action == schema.FaultAbortRun {
		return errFault{cause}
	}
	st.halted = true
	// Flatten whatever the strategy holds through the order path.
	for _, p := range e.deps.Ledger.Positions() {
		if p.Qty == 0 {
			continue
		}
		side := schema.OrderSideSell
		qty := p.Qty
		if qty < 0 {
			side = schema.OrderSideBuy
			qty = -qty
		}
		spec := order.Spec{
			StrategyID:   st.s.ID,
			InstrumentID: p.InstrumentID,
			Side:         side,
			Type:         schema.OrderTypeMarket,
			Qty:          qty,
			TimeInForce:  schema.TimeInForceGTC,
		}
		if err := e.placeOrder(st, spec, visibleAt); err != nil {
			return err
		}
	}
	// Stop routing events to the halted strategy. Its working orders are
	// not cancelled here and stay in the book.
	for _, sid := range e.filterSubscriptions(st) {
		e.filter.Unsubscribe(market.StrategyID(st.s.ID), sid.id, sid.res)
	}
	return nil
}

func (e *Engine) filterSubscriptions(st *strategyState) []subKey {
	out := make([]subKey, 0, len(st.s.Subscriptions))
	for _, sub := range st.s.Subscriptions {
		out = append(out, subKey{sub.InstrumentID, sub.Resolution})
	}
	return out
}

type errFault struct{ cause any }

func (e errFault) Error() string { return "strategy fault aborted run" }
