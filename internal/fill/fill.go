// Package fill decides whether working orders execute against the
// current market. Policies are pluggable; all of them evaluate every
// order of a tick against the same snapshot, in submission order, and
// advance filled quantity monotonically.
package fill

import (
	"fmt"

	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// BarPriceMode selects the bar reference price used when no quote is
// available. This resolves an ambiguity in bar-resolution fills: the
// reference is an explicit policy parameter, close by default.
type BarPriceMode uint16

const (
	BarClose BarPriceMode = iota
	BarOpen
)

// QueuePolicy selects the initial queue position of a resting limit
// order in the book model.
type QueuePolicy uint16

const (
	QueueBack QueuePolicy = iota
	QueueRandom
	QueueFront
)

// Config carries the knobs shared across fill policies.
type Config struct {
	// FillOnTouch controls the limit-at-exact-opposite-quote rule: when
	// true a buy limit fills with ask == limit, when false the quote
	// must strictly cross. Chosen once at construction.
	FillOnTouch bool
	// BarPrice is the bar reference price mode.
	BarPrice BarPriceMode
	// SlippageBps is extra adverse slippage applied by the spread-aware
	// policy.
	SlippageBps int64
	// ParticipationBps caps trade-tape fills at this fraction of each
	// tick's size, in basis points (5000 = 50%).
	ParticipationBps int64
	// BaseRate is the probabilistic policy's per-tick fill probability
	// for an order resting at the mid.
	BaseRate float64
	// Queue is the book policy's queue position rule.
	Queue QueuePolicy
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.SlippageBps < 0 {
		return fmt.Errorf("invalid fill config: SlippageBps must be >= 0")
	}
	if c.ParticipationBps < 0 || c.ParticipationBps > 10_000 {
		return fmt.Errorf("invalid fill config: ParticipationBps must be in [0, 10000]")
	}
	if c.BaseRate < 0 || c.BaseRate > 1 {
		return fmt.Errorf("invalid fill config: BaseRate must be in [0, 1]")
	}
	return nil
}

// Snapshot is the market state one tick's orders are evaluated against.
type Snapshot struct {
	Ts           int64
	InstrumentID schema.InstrumentID

	Bid      schema.Price
	Ask      schema.Price
	BidSize  schema.Quantity
	AskSize  schema.Quantity
	HasQuote bool

	Last      schema.Price
	TradeSize schema.Quantity
	HasTrade  bool

	// BarRef is the bar reference price per BarPriceMode, used when no
	// quote is present.
	BarRef schema.Price
}

// Mid returns the quote midpoint, or the bar reference without a quote.
func (s Snapshot) Mid() schema.Price {
	if s.HasQuote {
		return schema.Price((int64(s.Bid) + int64(s.Ask)) / 2)
	}
	return s.BarRef
}

// Reference returns the slippage reference: mid with a quote, last trade
// otherwise, bar reference as the final fallback.
func (s Snapshot) Reference() schema.Price {
	if s.HasQuote {
		return s.Mid()
	}
	if s.HasTrade {
		return s.Last
	}
	return s.BarRef
}

// Proposal is one proposed execution against an order.
type Proposal struct {
	Price schema.Price
	Qty   schema.Quantity
}

// Policy proposes executions for a working order at the current tick.
// An empty result leaves the order working.
type Policy interface {
	ProposeFills(o *order.Order, snap Snapshot) []Proposal
	// BarPriceMode reports the bar reference the engine should build
	// snapshots with.
	BarPriceMode() BarPriceMode
}

// triggered updates and returns the stop state of an order. A buy stop
// triggers when the market trades or quotes at or above the stop price,
// a sell stop at or below.
func triggered(o *order.Order, snap Snapshot) bool {
	if o.Type != schema.OrderTypeStop && o.Type != schema.OrderTypeStopLimit {
		return true
	}
	if o.StopTriggered {
		return true
	}
	ref := schema.Price(0)
	switch {
	case snap.HasTrade:
		ref = snap.Last
	case snap.HasQuote:
		if o.Side == schema.OrderSideBuy {
			ref = snap.Ask
		} else {
			ref = snap.Bid
		}
	default:
		ref = snap.BarRef
	}
	if ref == 0 {
		return false
	}
	if o.Side == schema.OrderSideBuy && ref >= o.StopPrice {
		o.StopTriggered = true
	}
	if o.Side == schema.OrderSideSell && ref <= o.StopPrice {
		o.StopTriggered = true
	}
	return o.StopTriggered
}

// effectiveType maps a triggered stop onto its post-trigger behavior.
func effectiveType(o *order.Order) schema.OrderType {
	switch o.Type {
	case schema.OrderTypeStop:
		return schema.OrderTypeMarket
	case schema.OrderTypeStopLimit:
		return schema.OrderTypeLimit
	default:
		return o.Type
	}
}

// limitCrossed reports whether the opposite quote satisfies the limit.
func limitCrossed(side schema.OrderSide, limit, opposite schema.Price, fillOnTouch bool) bool {
	if opposite <= 0 {
		return false
	}
	if side == schema.OrderSideBuy {
		if fillOnTouch {
			return opposite <= limit
		}
		return opposite < limit
	}
	if fillOnTouch {
		return opposite >= limit
	}
	return opposite > limit
}
