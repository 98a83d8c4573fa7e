// Package strategy defines the five-stage pipeline contract: universe
// selection, alpha, portfolio construction, risk, and execution. Stages
// are small interfaces composed by value; they communicate only through
// the typed artifacts passed forward and read engine state through the
// context views, never by mutating the ledger.
package strategy

import (
	"marketsim/internal/market"
	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// PositionView is the read-only position access given to stages.
type PositionView interface {
	PositionQty(id schema.InstrumentID) schema.Quantity
	AvgEntry(id schema.InstrumentID) schema.Price
	MarkPrice(id schema.InstrumentID) schema.Price
}

// AccountView is the read-only cash access given to stages.
type AccountView interface {
	Equity() schema.Cash
	Settled() schema.Cash
	BuyingPower() schema.Cash
}

// DataContext is the alpha-stage view: market data only. Alpha models
// must not read order or portfolio state, and the interface shape is
// what enforces it.
type DataContext struct {
	Now  int64
	Data *market.Context
}

// Context is the full stage view for the other four stages. Rejected
// lists the strategy's order IDs rejected since its previous pipeline
// invocation.
type Context struct {
	Now       int64
	Data      *market.Context
	Positions PositionView
	Account   AccountView
	Rejected  []uint64
}

// Alpha's subset of the context.
func (c *Context) DataOnly() *DataContext {
	return &DataContext{Now: c.Now, Data: c.Data}
}

// Signal is one alpha output. Strength is in basis points of full
// conviction, in [-10000, 10000]; confidence in [0, 10000].
type Signal struct {
	InstrumentID  schema.InstrumentID
	StrengthBps   int64
	ConfidenceBps int64
	Ts            int64
	Meta          map[string]string
}

// Valid reports whether the signal's fields are in range.
func (s Signal) Valid() bool {
	return s.InstrumentID != 0 &&
		s.StrengthBps >= -10_000 && s.StrengthBps <= 10_000 &&
		s.ConfidenceBps >= 0 && s.ConfidenceBps <= 10_000
}

// TargetPortfolio maps instruments to signed weight fractions of
// strategy capital, in basis points.
type TargetPortfolio map[schema.InstrumentID]int64

// GrossBps is the sum of absolute weights.
func (t TargetPortfolio) GrossBps() int64 {
	var gross int64
	for _, w := range t {
		if w < 0 {
			w = -w
		}
		gross += w
	}
	return gross
}

// UniverseSelection returns the instruments currently tradable. It runs
// on the rebalance schedule, not per tick, and must never return an
// instrument that did not exist at the context clock.
type UniverseSelection interface {
	SelectUniverse(ctx *Context) []schema.InstrumentID
}

// Alpha turns market events into signals. It may keep indicator state
// updated from the event stream.
type Alpha interface {
	OnEvent(ctx *DataContext, ev schema.MarketEvent, universe []schema.InstrumentID) []Signal
}

// Construction turns signals into a pre-risk target portfolio.
type Construction interface {
	Targets(ctx *Context, signals []Signal) TargetPortfolio
}

// Risk turns pre-risk targets into post-risk targets. It may return the
// empty portfolio to halt.
type Risk interface {
	Apply(ctx *Context, targets TargetPortfolio) (TargetPortfolio, []schema.RiskVetoRecord)
}

// Execution closes the gap between post-risk targets and current
// positions. It is the only stage that produces order specs.
type Execution interface {
	Orders(ctx *Context, targets TargetPortfolio) []order.Spec
}

// Strategy bundles the five stages with their run wiring.
type Strategy struct {
	ID   uint32
	Name string

	Universe     UniverseSelection
	Alpha        Alpha
	Construction Construction
	Risk         Risk
	Execution    Execution

	// Subscriptions the engine registers at start.
	Subscriptions []Subscription
	// RebalanceBars is how many routed events pass between universe
	// refreshes; 1 reselects on every event, 0 selects once at start.
	RebalanceBars int
}

// Subscription is one (instrument, resolution) data request with its
// warm-up horizon in bars.
type Subscription struct {
	InstrumentID schema.InstrumentID
	Resolution   schema.Resolution
	WarmupBars   int
}
