package fill

import (
	"math/rand/v2"

	"marketsim/internal/order"
	"marketsim/internal/rng"
	"marketsim/internal/schema"
)

// Book matches orders against a reconstructed L2 book. Market orders
// consume liquidity level by level in price-time priority, one proposal
// per level touched. Resting limit orders are assigned a queue position
// by policy and fill when aggressor trade flow at or through their
// level consumes the queue ahead of them.
type Book struct {
	cfg   Config
	r     *rand.Rand
	books map[schema.InstrumentID]*bookState
	rest  map[uint64]*restingOrder
}

type bookState struct {
	bids []schema.PriceLevel
	asks []schema.PriceLevel
}

type restingOrder struct {
	queueAhead schema.Quantity
}

// NewBook creates the book policy. The queue-position stream is derived
// from the master seed as rng.Child(master, "fill/book").
func NewBook(cfg Config, master uint64) (*Book, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Book{
		cfg:   cfg,
		r:     rng.New(rng.Child(master, "fill/book")),
		books: make(map[schema.InstrumentID]*bookState),
		rest:  make(map[uint64]*restingOrder),
	}, nil
}

// ApplyDepth replaces the reconstructed book for an instrument.
func (p *Book) ApplyDepth(d schema.DepthSnapshot) {
	state, ok := p.books[d.InstrumentID]
	if !ok {
		state = &bookState{}
		p.books[d.InstrumentID] = state
	}
	state.bids = append(state.bids[:0], d.Bids...)
	state.asks = append(state.asks[:0], d.Asks...)
}

// ProposeFills implements Policy.
func (p *Book) ProposeFills(o *order.Order, snap Snapshot) []Proposal {
	state, ok := p.books[o.InstrumentID]
	if !ok {
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
		return p.sweep(o.Side, remaining, state)
	case schema.OrderTypeLimit:
		return p.resting(o, remaining, snap)
	default:
		return nil
	}
}

// sweep consumes book levels best-first, producing one proposal per
// price level touched.
func (p *Book) sweep(side schema.OrderSide, remaining schema.Quantity, state *bookState) []Proposal {
	levels := state.asks
	if side == schema.OrderSideSell {
		levels = state.bids
	}
	var out []Proposal
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if lvl.Qty <= 0 {
			continue
		}
		take := lvl.Qty
		if take > remaining {
			take = remaining
		}
		out = append(out, Proposal{Price: lvl.Price, Qty: take})
		remaining -= take
	}
	return out
}

// resting tracks the order's queue position at its level and fills from
// trade flow that reaches the level.
func (p *Book) resting(o *order.Order, remaining schema.Quantity, snap Snapshot) []Proposal {
	ro, ok := p.rest[o.ID]
	if !ok {
		ro = &restingOrder{queueAhead: p.initialQueue(o)}
		p.rest[o.ID] = ro
	}
	if !snap.HasTrade || snap.TradeSize <= 0 {
		return nil
	}
	// Aggressor flow reaches the order's level when it prints at or
	// through the limit price.
	reaches := false
	if o.Side == schema.OrderSideBuy {
		reaches = snap.Last <= o.LimitPrice
	} else {
		reaches = snap.Last >= o.LimitPrice
	}
	if !reaches {
		return nil
	}
	flow := snap.TradeSize
	if ro.queueAhead > 0 {
		if flow <= ro.queueAhead {
			ro.queueAhead -= flow
			return nil
		}
		flow -= ro.queueAhead
		ro.queueAhead = 0
	}
	qty := flow
	if qty > remaining {
		qty = remaining
	}
	if qty <= 0 {
		return nil
	}
	return []Proposal{{Price: o.LimitPrice, Qty: qty}}
}

// initialQueue assigns the queue ahead of a fresh resting order from the
// displayed size at its level.
func (p *Book) initialQueue(o *order.Order) schema.Quantity {
	state, ok := p.books[o.InstrumentID]
	if !ok {
		return 0
	}
	levels := state.bids
	if o.Side == schema.OrderSideSell {
		levels = state.asks
	}
	var displayed schema.Quantity
	for _, lvl := range levels {
		if lvl.Price == o.LimitPrice {
			displayed = lvl.Qty
			break
		}
	}
	switch p.cfg.Queue {
	case QueueFront:
		return 0
	case QueueRandom:
		if displayed <= 0 {
			return 0
		}
		return schema.Quantity(p.r.Int64N(int64(displayed) + 1))
	default:
		return displayed
	}
}

// Release drops resting state for a terminal order.
func (p *Book) Release(orderID uint64) {
	delete(p.rest, orderID)
}

// BarPriceMode implements Policy.
func (p *Book) BarPriceMode() BarPriceMode { return p.cfg.BarPrice }
