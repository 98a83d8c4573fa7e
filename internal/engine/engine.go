// Package engine owns the run loop. One tick of the clock flows:
// scheduler callbacks, deferred market-data visibility, strategy
// pipeline, order acceptance with latency, fill matching, costs,
// ledger, journal. Scheduled callbacks fire before event-driven stages
// at equal timestamps.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"marketsim/internal/calendar"
	"marketsim/internal/cost"
	"marketsim/internal/fill"
	"marketsim/internal/journal"
	"marketsim/internal/latency"
	"marketsim/internal/ledger"
	"marketsim/internal/market"
	"marketsim/internal/obs"
	"marketsim/internal/order"
	"marketsim/internal/sched"
	"marketsim/internal/schema"
	"marketsim/internal/strategy"
	"marketsim/internal/stream"
)

var (
	ErrCancelled = stderrors.New("run cancelled")
	ErrDataFault = stderrors.New("data-quality fault")
	ErrInvariant = stderrors.New("invariant violation")
)

// Mode is the execution mode. Paper and live reuse the same loop with a
// broker adapter in place of the fill and cost engines; the core ships
// the backtest implementation.
type Mode uint16

const (
	ModeBacktest Mode = iota
	ModePaper
	ModeLive
)

// Config wires a run.
type Config struct {
	Start int64
	End   int64
	Mode  Mode
	// FaultPolicy selects what a strategy panic does to the run.
	FaultPolicy schema.FaultAction
	// DefaultDepth bounds data-context rings not covered by warm-up.
	DefaultDepth int
	Seed         uint64
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Start == 0 || c.End == 0 || c.End <= c.Start {
		return fmt.Errorf("invalid engine config: need Start < End")
	}
	if c.Mode != ModeBacktest {
		return fmt.Errorf("invalid engine config: only backtest mode is implemented")
	}
	if c.FaultPolicy == 0 {
		return fmt.Errorf("invalid engine config: FaultPolicy is required")
	}
	return nil
}

// Deps are the constructed collaborators.
type Deps struct {
	Registry   *schema.Registry
	Calendar   *calendar.Calendar
	Stream     *stream.Stream
	FillPolicy fill.Policy
	Costs      *cost.Engine
	Latency    *latency.Model
	Ledger     *ledger.Ledger
	Journal    *journal.Writer
	Strategies []*strategy.Strategy
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID     string
	Ticks     uint64
	Orders    uint64
	Fills     uint64
	LastSeq   uint64
	NetLiq    schema.Cash
	Metrics   obs.Snapshot
	Cancelled bool
}

type strategyState struct {
	s        *strategy.Strategy
	universe []schema.InstrumentID
	// forcedFlat holds instruments that left the universe and must be
	// flattened through the normal order path.
	forcedFlat map[schema.InstrumentID]struct{}
	warmup     map[subKey]int
	rejected   []uint64
	events     int
	halted     bool
}

type subKey struct {
	id  schema.InstrumentID
	res schema.Resolution
}

type deferredEvent struct {
	ev        schema.MarketEvent
	visibleAt int64
}

// Engine runs one backtest.
type Engine struct {
	cfg  Config
	deps Deps

	data    *market.Context
	filter  *market.Filter
	sch     *sched.Scheduler
	orders  *order.Manager
	metrics *obs.Metrics
	trace   *obs.TraceGenerator

	states   []*strategyState
	deferred []deferredEvent
	lastMark map[schema.InstrumentID]schema.Price

	now       int64
	lastDate  int64
	seq       uint64
	fillCount uint64
	runID     string
	cancelled atomic.Bool
	payload   []byte
}

// New wires an engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Calendar == nil || deps.Stream == nil ||
		deps.FillPolicy == nil || deps.Costs == nil || deps.Latency == nil ||
		deps.Ledger == nil || deps.Journal == nil {
		return nil, fmt.Errorf("invalid engine deps: all collaborators are required")
	}
	if len(deps.Strategies) == 0 {
		return nil, fmt.Errorf("invalid engine deps: no strategies")
	}
	if cfg.DefaultDepth == 0 {
		cfg.DefaultDepth = 256
	}

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		data:     market.NewContext(deps.Registry, cfg.DefaultDepth),
		filter:   market.NewFilter(),
		sch:      sched.New(deps.Calendar),
		orders:   order.NewManager(),
		metrics:  obs.NewMetrics(),
		trace:    obs.NewTraceGenerator(0),
		lastMark: make(map[schema.InstrumentID]schema.Price),
		runID:    uuid.NewString(),
	}
	e.orders.SetTransitionHook(e.onTransition)

	for _, s := range deps.Strategies {
		st := &strategyState{
			s:          s,
			forcedFlat: make(map[schema.InstrumentID]struct{}),
			warmup:     make(map[subKey]int),
		}
		for _, sub := range s.Subscriptions {
			e.filter.Subscribe(market.StrategyID(s.ID), sub.InstrumentID, sub.Resolution)
			if sub.WarmupBars > 0 {
				st.warmup[subKey{sub.InstrumentID, sub.Resolution}] = sub.WarmupBars
				if sub.WarmupBars > cfg.DefaultDepth {
					e.data.SetDepth(sub.Resolution, sub.WarmupBars)
				}
			}
		}
		e.states = append(e.states, st)
	}

	// Session close drives the daily ledger tasks on every trading day.
	if closeOff := sessionCloseOffset(deps.Calendar, cfg.Start); closeOff > 0 {
		if err := e.sch.DailyAt(cfg.Start, closeOff, 0, true, e.onSessionClose); err != nil {
			return nil, errors.Wrap(err, "schedule session close")
		}
	}
	return e, nil
}

// sessionCloseOffset derives the close time-of-day for the daily task.
// A 24h session maps to the following midnight.
func sessionCloseOffset(cal *calendar.Calendar, start int64) time.Duration {
	off := time.Duration(0)
	if ts, ok := cal.SessionClose(start); ok {
		off = time.Duration(ts - calendar.Midnight(ts))
	} else {
		next := cal.NextSessionOpen(start)
		if ts, ok := cal.SessionClose(next); ok {
			off = time.Duration(ts - calendar.Midnight(ts))
		}
	}
	if off >= 24*time.Hour {
		off -= 24 * time.Hour
	}
	return off
}

// Scheduler exposes the scheduler for caller-registered callbacks.
func (e *Engine) Scheduler() *sched.Scheduler { return e.sch }

// Subscribe adds a subscription mid-run; it takes effect for the next
// event.
func (e *Engine) Subscribe(strategyID uint32, id schema.InstrumentID, res schema.Resolution) {
	e.filter.Subscribe(market.StrategyID(strategyID), id, res)
}

// Unsubscribe removes a subscription mid-run.
func (e *Engine) Unsubscribe(strategyID uint32, id schema.InstrumentID, res schema.Resolution) {
	e.filter.Unsubscribe(market.StrategyID(strategyID), id, res)
}

// RunID identifies the run in logs.
func (e *Engine) RunID() string { return e.runID }

// LedgerSnapshot captures the final portfolio for replay verification.
func (e *Engine) LedgerSnapshot(lastSeq uint64) ledger.Snapshot {
	return e.deps.Ledger.Snapshot(e.now, lastSeq)
}

// Cancel requests a clean stop between ticks.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// Run executes the backtest to completion, cancellation, or fault. The
// journal is flushed and sealed on every exit path.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	logs.Infof("run %s: starting backtest", e.runID)
	runErr := e.loop(ctx)

	if err := e.deps.Journal.Close(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "seal journal")
	}

	summary := Summary{
		RunID:     e.runID,
		Ticks:     e.metrics.Snapshot().Ticks,
		Orders:    e.metrics.Snapshot().OrdersPlaced,
		Fills:     e.fillCount,
		LastSeq:   e.seq,
		NetLiq:    e.deps.Ledger.NetLiquidation(),
		Metrics:   e.metrics.Snapshot(),
		Cancelled: e.cancelled.Load(),
	}
	if runErr != nil {
		logs.Errorf("run %s: %+v", e.runID, runErr)
		return summary, runErr
	}
	logs.Infof("run %s: done ticks=%d orders=%d fills=%d netliq=%s",
		e.runID, summary.Ticks, summary.Orders, summary.Fills, summary.NetLiq)
	return summary, nil
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.cancelled.Store(true)
		default:
		}
		if e.cancelled.Load() {
			return ErrCancelled
		}

		ev, ok, err := e.deps.Stream.Next()
		if err != nil {
			return fmt.Errorf("event stream: %w", err)
		}
		if !ok {
			return e.finish()
		}
		if ev.Ts < e.cfg.Start {
			// Warm-up data before the range: context only, no stages.
			if err := e.absorb(ev); err != nil {
				return err
			}
			continue
		}
		if ev.Ts > e.cfg.End {
			return e.finish()
		}
		if err := e.step(ev); err != nil {
			return err
		}
	}
}

// step advances one tick.
func (e *Engine) step(ev schema.MarketEvent) error {
	if ev.Ts < e.now {
		return fmt.Errorf("event at %d behind clock %d: %w", ev.Ts, e.now, ErrDataFault)
	}
	e.now = ev.Ts
	e.data.Advance(e.now)
	e.metrics.IncTick()

	// Matured cash settles as the date turns, before anything trades.
	if md := calendar.Midnight(e.now); md != e.lastDate {
		e.lastDate = md
		for _, rec := range e.deps.Ledger.SettleDue(md) {
			if err := e.journalCash(rec); err != nil {
				return err
			}
		}
	}

	// Callbacks first at equal timestamps.
	e.sch.FireDue(e.now)

	// Deliver data whose dissemination delay has elapsed.
	if err := e.deliverDeferred(); err != nil {
		return err
	}

	// Venue sees the event immediately: marks and fill snapshots.
	if err := e.observeVenue(ev); err != nil {
		return err
	}

	// Strategies see it after the data latency.
	delay := e.deps.Latency.DataDelay()
	if delay <= 0 {
		if err := e.deliver(ev, e.now); err != nil {
			return err
		}
	} else {
		e.deferred = append(e.deferred, deferredEvent{ev: ev, visibleAt: e.now + int64(delay)})
	}

	// Match working orders against this tick's snapshot.
	if err := e.matchOrders(ev); err != nil {
		return err
	}
	return nil
}

// absorb feeds pre-range events into the venue state and data context
// without running any pipeline.
func (e *Engine) absorb(ev schema.MarketEvent) error {
	if ev.Ts < e.now {
		return fmt.Errorf("event at %d behind clock %d: %w", ev.Ts, e.now, ErrDataFault)
	}
	e.now = ev.Ts
	e.data.Advance(e.now)
	if err := e.observeVenue(ev); err != nil {
		return err
	}
	return e.updateData(ev)
}

func (e *Engine) finish() error {
	// Final settlement sweep so the snapshot reflects matured cash.
	for _, rec := range e.deps.Ledger.SettleDue(e.now) {
		if err := e.journalCash(rec); err != nil {
			return err
		}
	}
	return e.deps.Journal.Flush()
}

// observeVenue updates venue-side state: mark prices and the book of
// the L2 policy when one is configured.
func (e *Engine) observeVenue(ev schema.MarketEvent) error {
	switch ev.Kind {
	case schema.PayloadBar:
		if err := ev.Bar.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrDataFault)
		}
		if ev.Bar.Kind == schema.BarTrade {
			e.lastMark[ev.InstrumentID] = ev.Bar.Close
		} else {
			e.lastMark[ev.InstrumentID] = mid(ev.Bar.BidClose, ev.Bar.AskClose)
		}
	case schema.PayloadTrade:
		e.lastMark[ev.InstrumentID] = ev.Trade.Price
	case schema.PayloadQuote:
		e.lastMark[ev.InstrumentID] = mid(ev.Quote.Bid, ev.Quote.Ask)
	case schema.PayloadDepth:
		if book, ok := e.deps.FillPolicy.(*fill.Book); ok {
			book.ApplyDepth(ev.Depth)
		}
		if len(ev.Depth.Bids) > 0 && len(ev.Depth.Asks) > 0 {
			e.lastMark[ev.InstrumentID] = mid(ev.Depth.Bids[0].Price, ev.Depth.Asks[0].Price)
		}
	}
	return nil
}

func (e *Engine) deliverDeferred() error {
	if len(e.deferred) == 0 {
		return nil
	}
	var due []deferredEvent
	rest := e.deferred[:0]
	for _, d := range e.deferred {
		if d.visibleAt <= e.now {
			due = append(due, d)
		} else {
			rest = append(rest, d)
		}
	}
	e.deferred = rest
	// Visibility order, not arrival order; the stable sort keeps the
	// clock order for equal visibility instants.
	sort.SliceStable(due, func(i, j int) bool { return due[i].visibleAt < due[j].visibleAt })
	for _, d := range due {
		if err := e.deliver(d.ev, d.visibleAt); err != nil {
			return err
		}
	}
	return nil
}

// deliver updates the strategy-facing data context and runs the
// pipeline for every subscribed strategy.
func (e *Engine) deliver(ev schema.MarketEvent, visibleAt int64) error {
	if err := e.updateData(ev); err != nil {
		return err
	}
	recipients := e.filter.Recipients(ev.InstrumentID, ev.Resolution)
	if len(recipients) == 0 {
		return nil
	}
	for _, st := range e.states {
		if st.halted {
			continue
		}
		if !containsStrategy(recipients, market.StrategyID(st.s.ID)) {
			continue
		}
		st.countWarmup(ev)
		if err := e.pipeline(st, ev, visibleAt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateData(ev schema.MarketEvent) error {
	switch ev.Kind {
	case schema.PayloadBar:
		if err := e.data.ApplyBar(ev.Bar); err != nil {
			return fmt.Errorf("%v: %w", err, ErrDataFault)
		}
	case schema.PayloadTrade:
		e.data.ApplyTrade(ev.Trade)
	case schema.PayloadQuote:
		e.data.ApplyQuote(ev.Quote)
	}
	return nil
}

func containsStrategy(list []market.StrategyID, id market.StrategyID) bool {
	for _, s := range list {
		if s == id {
			return true
		}
	}
	return false
}

func mid(bid, ask schema.Price) schema.Price {
	if bid > 0 && ask > 0 {
		return schema.Price((int64(bid) + int64(ask)) / 2)
	}
	if bid > 0 {
		return bid
	}
	return ask
}

func (st *strategyState) countWarmup(ev schema.MarketEvent) {
	if ev.Kind != schema.PayloadBar {
		return
	}
	key := subKey{ev.InstrumentID, ev.Resolution}
	if left, ok := st.warmup[key]; ok && left > 0 {
		st.warmup[key] = left - 1
	}
}

func (st *strategyState) warmupDone() bool {
	for _, left := range st.warmup {
		if left > 0 {
			return false
		}
	}
	return true
}
