// Package ledger is the portfolio accounting core: positions, the cash
// account with its settlement queue, buying power, and P&L. Every
// mutation funnels through the Ledger so the conservation invariants
// can be enforced at one point.
package ledger

import (
	"sort"

	"marketsim/internal/schema"
)

// Position tracks one instrument's signed quantity and entry basis.
type Position struct {
	InstrumentID schema.InstrumentID
	Qty          schema.Quantity
	// entryNotional is the signed cost basis of the open quantity at
	// CashScale; AvgEntry derives from it exactly.
	entryNotional schema.Cash
	Realized      schema.Cash
	MarkPrice     schema.Price
	MarkTs        int64
}

// AvgEntry is the volume-weighted average entry price of the open
// quantity.
func (p *Position) AvgEntry() schema.Price {
	if p.Qty == 0 {
		return 0
	}
	qty := p.Qty
	notional := p.entryNotional
	if qty < 0 {
		qty = -qty
		notional = -notional
	}
	return schema.AvgPrice(notional, qty)
}

// Unrealized marks the open quantity against the last mark price.
func (p *Position) Unrealized() schema.Cash {
	if p.Qty == 0 || p.MarkPrice == 0 {
		return 0
	}
	return schema.Notional(p.MarkPrice, p.Qty) - p.entryNotional
}

// MarketValue is the signed value of the open quantity at the mark.
func (p *Position) MarketValue() schema.Cash {
	return schema.Notional(p.MarkPrice, p.Qty)
}

type positionBook struct {
	byID map[schema.InstrumentID]*Position
}

func newPositionBook() *positionBook {
	return &positionBook{byID: make(map[schema.InstrumentID]*Position)}
}

func (b *positionBook) get(id schema.InstrumentID) *Position {
	p, ok := b.byID[id]
	if !ok {
		p = &Position{InstrumentID: id}
		b.byID[id] = p
	}
	return p
}

func (b *positionBook) lookup(id schema.InstrumentID) (*Position, bool) {
	p, ok := b.byID[id]
	return p, ok
}

// all returns positions sorted by instrument for deterministic walks.
func (b *positionBook) all() []*Position {
	out := make([]*Position, 0, len(b.byID))
	for _, p := range b.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// applyFill mutates the position for an execution and returns the
// realized P&L delta. Reducing past zero closes the open quantity and
// opens the remainder at the fill price.
func (p *Position) applyFill(side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.Cash {
	signed := schema.Quantity(int64(qty) * side.Sign())
	var realized schema.Cash

	switch {
	case p.Qty == 0 || (p.Qty > 0) == (signed > 0):
		// Open or increase: basis grows at the fill price.
		p.Qty += signed
		p.entryNotional += schema.Notional(price, signed)
	case abs(signed) <= abs(p.Qty):
		// Reduce or flatten: realize against the average basis.
		closed := -signed
		basis := schema.PortionCash(p.entryNotional, int64(closed), int64(p.Qty))
		realized = schema.Notional(price, closed) - basis
		p.entryNotional -= basis
		p.Qty += signed
		if p.Qty == 0 {
			p.entryNotional = 0
		}
	default:
		// Cross through zero: close everything, open the remainder.
		closed := p.Qty
		realized = schema.Notional(price, closed) - p.entryNotional
		remainder := signed + closed
		p.Qty = remainder
		p.entryNotional = schema.Notional(price, remainder)
	}

	p.Realized += realized
	return realized
}

func abs(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}
