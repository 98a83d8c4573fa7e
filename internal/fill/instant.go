package fill

import (
	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// Instant fills market orders at the quote midpoint (bar reference when
// no quote exists) and limit orders as soon as the opposite quote
// crosses, in full.
type Instant struct {
	cfg Config
}

// NewInstant creates the instant policy.
func NewInstant(cfg Config) (*Instant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Instant{cfg: cfg}, nil
}

// ProposeFills implements Policy.
func (p *Instant) ProposeFills(o *order.Order, snap Snapshot) []Proposal {
	if !triggered(o, snap) {
		return nil
	}
	remaining := o.RemainingQty()
	if remaining <= 0 {
		return nil
	}
	switch effectiveType(o) {
	case schema.OrderTypeMarket:
		px := snap.Mid()
		if px <= 0 {
			return nil
		}
		return []Proposal{{Price: px, Qty: remaining}}
	case schema.OrderTypeLimit:
		opposite := snap.Ask
		if o.Side == schema.OrderSideSell {
			opposite = snap.Bid
		}
		if !snap.HasQuote {
			opposite = snap.BarRef
		}
		if !limitCrossed(o.Side, o.LimitPrice, opposite, p.cfg.FillOnTouch) {
			return nil
		}
		return []Proposal{{Price: opposite, Qty: remaining}}
	default:
		return nil
	}
}

// BarPriceMode implements Policy.
func (p *Instant) BarPriceMode() BarPriceMode { return p.cfg.BarPrice }
