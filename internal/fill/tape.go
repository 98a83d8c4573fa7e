package fill

import (
	"errors"

	"marketsim/internal/order"
	"marketsim/internal/schema"
)

var ErrParticipationRequired = errors.New("trade-tape policy requires ParticipationBps > 0")

// TradeTape gates fills on observed trade ticks. An order takes at most
// its participation share of each tick's size and walks successive
// ticks until filled, capped, or cancelled.
type TradeTape struct {
	cfg Config
}

// NewTradeTape creates the trade-tape policy.
func NewTradeTape(cfg Config) (*TradeTape, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ParticipationBps == 0 {
		return nil, ErrParticipationRequired
	}
	return &TradeTape{cfg: cfg}, nil
}

// ProposeFills implements Policy. Only trade ticks produce fills.
func (p *TradeTape) ProposeFills(o *order.Order, snap Snapshot) []Proposal {
	if !snap.HasTrade || snap.TradeSize <= 0 {
		return nil
	}
	if !triggered(o, snap) {
		return nil
	}
	remaining := o.RemainingQty()
	if remaining <= 0 {
		return nil
	}
	switch effectiveType(o) {
	case schema.OrderTypeMarket:
		// Market orders participate in every print.
	case schema.OrderTypeLimit:
		if !limitCrossed(o.Side, o.LimitPrice, snap.Last, p.cfg.FillOnTouch) {
			return nil
		}
	default:
		return nil
	}
	take := participation(snap.TradeSize, p.cfg.ParticipationBps)
	if take <= 0 {
		return nil
	}
	qty := remaining
	if take < qty {
		qty = take
	}
	return []Proposal{{Price: snap.Last, Qty: qty}}
}

// participation floors size*bps/10000 so the policy never takes more
// than its share.
func participation(size schema.Quantity, bps int64) schema.Quantity {
	return schema.Quantity(int64(size) * bps / 10_000)
}

// BarPriceMode implements Policy.
func (p *TradeTape) BarPriceMode() BarPriceMode { return p.cfg.BarPrice }
