package fill

import (
	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// SpreadAware fills market buys at the ask and sells at the bid, with
// optional extra slippage in basis points. Limit orders require the
// cross and fill at their limit price.
type SpreadAware struct {
	cfg Config
}

// NewSpreadAware creates the spread-aware policy.
func NewSpreadAware(cfg Config) (*SpreadAware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SpreadAware{cfg: cfg}, nil
}

// ProposeFills implements Policy.
func (p *SpreadAware) ProposeFills(o *order.Order, snap Snapshot) []Proposal {
	if !triggered(o, snap) {
		return nil
	}
	remaining := o.RemainingQty()
	if remaining <= 0 {
		return nil
	}
	switch effectiveType(o) {
	case schema.OrderTypeMarket:
		px := schema.Price(0)
		if snap.HasQuote {
			if o.Side == schema.OrderSideBuy {
				px = snap.Ask
			} else {
				px = snap.Bid
			}
		} else {
			px = snap.BarRef
		}
		if px <= 0 {
			return nil
		}
		px = schema.ApplyBps(px, o.Side.Sign()*p.cfg.SlippageBps)
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
		return []Proposal{{Price: o.LimitPrice, Qty: remaining}}
	default:
		return nil
	}
}

// BarPriceMode implements Policy.
func (p *SpreadAware) BarPriceMode() BarPriceMode { return p.cfg.BarPrice }
