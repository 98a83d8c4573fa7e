package fill

import (
	"math"
	"math/rand/v2"

	"marketsim/internal/order"
	"marketsim/internal/rng"
	"marketsim/internal/schema"
)

// Probabilistic fills each working limit order with a per-tick
// probability derived from its distance to the mid in spread units, its
// size relative to displayed size, and the configured base rate. Market
// orders fill at the mid immediately. All draws come from the policy's
// seeded stream.
type Probabilistic struct {
	cfg Config
	r   *rand.Rand
}

// NewProbabilistic creates the probabilistic policy. Its stream is
// derived as rng.Child(master, "fill/prob").
func NewProbabilistic(cfg Config, master uint64) (*Probabilistic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Probabilistic{cfg: cfg, r: rng.New(rng.Child(master, "fill/prob"))}, nil
}

// ProposeFills implements Policy.
func (p *Probabilistic) ProposeFills(o *order.Order, snap Snapshot) []Proposal {
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
		prob := p.fillProbability(o, snap, remaining)
		if prob <= 0 {
			return nil
		}
		if p.r.Float64() >= prob {
			return nil
		}
		return []Proposal{{Price: o.LimitPrice, Qty: remaining}}
	default:
		return nil
	}
}

func (p *Probabilistic) fillProbability(o *order.Order, snap Snapshot, remaining schema.Quantity) float64 {
	mid := snap.Mid()
	if mid <= 0 {
		return 0
	}
	spread := int64(1)
	if snap.HasQuote && snap.Ask > snap.Bid {
		spread = int64(snap.Ask - snap.Bid)
	}
	// Distance from mid in spread units, signed so that aggressive
	// prices raise the probability and passive prices decay it.
	distance := float64(int64(mid)-int64(o.LimitPrice)) / float64(spread)
	if o.Side == schema.OrderSideSell {
		distance = -distance
	}
	prob := p.cfg.BaseRate * math.Exp(-distance)
	displayed := snap.BidSize + snap.AskSize
	if displayed > 0 {
		ratio := float64(remaining) / float64(displayed)
		prob /= 1 + ratio
	}
	if prob > 1 {
		prob = 1
	}
	if prob < 0 {
		prob = 0
	}
	return prob
}

// BarPriceMode implements Policy.
func (p *Probabilistic) BarPriceMode() BarPriceMode { return p.cfg.BarPrice }
