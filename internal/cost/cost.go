// Package cost composes the fee and slippage adjustments applied to
// proposed fills. Per-fill components produce commissions; session
// components accrue carry costs (short borrow, overnight financing) at
// session close. All amounts round half-even to cents.
package cost

import (
	"fmt"

	"marketsim/internal/schema"
)

// FillDraft is the proposed execution a component prices.
type FillDraft struct {
	InstrumentID schema.InstrumentID
	Side         schema.OrderSide
	Price        schema.Price
	Qty          schema.Quantity
	Ts           int64
}

// Notional returns the draft's gross value.
func (d FillDraft) Notional() schema.Cash {
	n := schema.Notional(d.Price, d.Qty)
	if n < 0 {
		n = -n
	}
	return n
}

// PositionView is the read-only position snapshot components see.
type PositionView struct {
	Qty      schema.Quantity
	AvgEntry schema.Price
}

// Component prices one fee for a proposed fill.
type Component interface {
	Fee(d FillDraft, pos PositionView) schema.Cash
}

// SessionComponent accrues a carry cost for a held position at session
// close, given the session mark price.
type SessionComponent interface {
	Accrue(pos PositionView, mark schema.Price) schema.Cash
}

// PerShare charges a fixed amount per unit with a per-order minimum.
type PerShare struct {
	PerUnit schema.Cash
	Minimum schema.Cash
}

// Fee implements Component.
func (c PerShare) Fee(d FillDraft, _ PositionView) schema.Cash {
	qty := int64(d.Qty)
	if qty < 0 {
		qty = -qty
	}
	fee := schema.PortionCash(c.PerUnit, qty, 10_000)
	if fee < c.Minimum {
		fee = c.Minimum
	}
	return schema.RoundCashToCents(fee)
}

// Percent charges basis points of notional with a per-order minimum.
type Percent struct {
	Bps     int64
	Minimum schema.Cash
}

// Fee implements Component.
func (c Percent) Fee(d FillDraft, _ PositionView) schema.Cash {
	fee := schema.PortionCash(d.Notional(), c.Bps, 10_000)
	if fee < c.Minimum {
		fee = c.Minimum
	}
	return schema.RoundCashToCents(fee)
}

// Tier is one notional band of a tiered commission schedule.
type Tier struct {
	UpTo schema.Cash
	Bps  int64
}

// Tiered charges the bps of the band the fill notional lands in.
type Tiered struct {
	Tiers   []Tier
	Minimum schema.Cash
}

// Validate checks that bands ascend.
func (c Tiered) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("invalid tiered commission: no tiers")
	}
	for i := 1; i < len(c.Tiers); i++ {
		if c.Tiers[i].UpTo != 0 && c.Tiers[i].UpTo <= c.Tiers[i-1].UpTo {
			return fmt.Errorf("invalid tiered commission: bands must ascend")
		}
	}
	if c.Tiers[len(c.Tiers)-1].UpTo != 0 {
		return fmt.Errorf("invalid tiered commission: last band must be unbounded")
	}
	return nil
}

// Fee implements Component.
func (c Tiered) Fee(d FillDraft, _ PositionView) schema.Cash {
	notional := d.Notional()
	bps := c.Tiers[len(c.Tiers)-1].Bps
	for _, tier := range c.Tiers {
		if tier.UpTo != 0 && notional <= tier.UpTo {
			bps = tier.Bps
			break
		}
	}
	fee := schema.PortionCash(notional, bps, 10_000)
	if fee < c.Minimum {
		fee = c.Minimum
	}
	return schema.RoundCashToCents(fee)
}

// RegulatoryFee charges basis points on sell notional only.
type RegulatoryFee struct {
	SellBps int64
}

// Fee implements Component.
func (c RegulatoryFee) Fee(d FillDraft, _ PositionView) schema.Cash {
	if d.Side != schema.OrderSideSell {
		return 0
	}
	return schema.RoundCashToCents(schema.PortionCash(d.Notional(), c.SellBps, 10_000))
}

// BorrowFee accrues a daily rate on short notional at session close.
type BorrowFee struct {
	DailyBps int64
}

// Accrue implements SessionComponent.
func (c BorrowFee) Accrue(pos PositionView, mark schema.Price) schema.Cash {
	if pos.Qty >= 0 {
		return 0
	}
	notional := schema.Notional(mark, -pos.Qty)
	return schema.RoundCashToCents(schema.PortionCash(notional, c.DailyBps, 10_000))
}

// Financing accrues a daily rate on any position held overnight.
type Financing struct {
	DailyBps int64
}

// Accrue implements SessionComponent.
func (c Financing) Accrue(pos PositionView, mark schema.Price) schema.Cash {
	qty := pos.Qty
	if qty < 0 {
		qty = -qty
	}
	if qty == 0 {
		return 0
	}
	notional := schema.Notional(mark, qty)
	return schema.RoundCashToCents(schema.PortionCash(notional, c.DailyBps, 10_000))
}

// Engine composes components over proposed fills.
type Engine struct {
	components []Component
	session    []SessionComponent
	// SlippageBps shifts the fill price adversely before commission is
	// computed, for policies that do not price slippage themselves.
	slippageBps int64
}

// NewEngine builds a cost engine.
func NewEngine(slippageBps int64, components []Component, session []SessionComponent) (*Engine, error) {
	if slippageBps < 0 {
		return nil, fmt.Errorf("invalid cost config: slippage bps must be >= 0")
	}
	for _, c := range components {
		if t, ok := c.(Tiered); ok {
			if err := t.Validate(); err != nil {
				return nil, err
			}
		}
	}
	return &Engine{components: components, session: session, slippageBps: slippageBps}, nil
}

// AdjustPrice applies the engine-level slippage to a draft price,
// adverse to the order side, rounded half-even to the instrument quote
// precision.
func (e *Engine) AdjustPrice(side schema.OrderSide, price schema.Price, quotePrecision int32) schema.Price {
	if e.slippageBps == 0 {
		return price
	}
	adjusted := schema.ApplyBps(price, side.Sign()*e.slippageBps)
	return schema.RoundPriceTo(adjusted, quotePrecision)
}

// Commission sums all per-fill components.
func (e *Engine) Commission(d FillDraft, pos PositionView) schema.Cash {
	var total schema.Cash
	for _, c := range e.components {
		total += c.Fee(d, pos)
	}
	return total
}

// SessionAccruals sums all session components for one position.
func (e *Engine) SessionAccruals(pos PositionView, mark schema.Price) schema.Cash {
	var total schema.Cash
	for _, c := range e.session {
		total += c.Accrue(pos, mark)
	}
	return total
}
