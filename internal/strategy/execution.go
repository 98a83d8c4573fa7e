package strategy

import (
	"time"

	"marketsim/internal/order"
	"marketsim/internal/schema"
)

// refPrice resolves the sizing reference: the freshest of the cached
// quote, trade, and bar observations. Ties prefer the quote midpoint.
func refPrice(ctx *Context, id schema.InstrumentID) schema.Price {
	var best schema.Price
	var bestTs int64 = -1
	if q, ok := ctx.Data.LastQuote(id); ok && q.Bid > 0 && q.Ask > 0 {
		best = schema.Price((int64(q.Bid) + int64(q.Ask)) / 2)
		bestTs = q.Ts
	}
	if tk, ok := ctx.Data.LastTrade(id); ok && tk.Price > 0 && tk.Ts > bestTs {
		best = tk.Price
		bestTs = tk.Ts
	}
	for _, res := range []schema.Resolution{schema.ResMinute, schema.ResHour, schema.ResDay} {
		if b, ok := ctx.Data.Bar(id, res); ok && b.Close > 0 && b.EffectiveAt() > bestTs {
			best = b.Close
			bestTs = b.EffectiveAt()
		}
	}
	return best
}

// weightQty converts a weight in basis points of equity into a quantity
// at the reference price, truncated toward zero.
func weightQty(equity schema.Cash, weightBps int64, price schema.Price) schema.Quantity {
	if price <= 0 {
		return 0
	}
	num := int64(equity) * weightBps
	den := 10_000 * int64(price)
	return schema.Quantity(num / den)
}

// Immediate closes the target gap with market orders in one shot.
type Immediate struct{}

// Orders implements Execution.
func (Immediate) Orders(ctx *Context, targets TargetPortfolio) []order.Spec {
	equity := ctx.Account.Equity()
	var specs []order.Spec
	for _, id := range sortedIDs(targets) {
		price := refPrice(ctx, id)
		if price <= 0 {
			continue
		}
		target := weightQty(equity, targets[id], price)
		delta := target - ctx.Positions.PositionQty(id)
		if delta == 0 {
			continue
		}
		side := schema.OrderSideBuy
		if delta < 0 {
			side = schema.OrderSideSell
			delta = -delta
		}
		specs = append(specs, order.Spec{
			InstrumentID: id,
			Side:         side,
			Type:         schema.OrderTypeMarket,
			Qty:          delta,
			TimeInForce:  schema.TimeInForceGTC,
		})
	}
	return specs
}

// TWAP slices each target gap into equal child orders released on a
// fixed interval. Programs restart when the target moves against the
// working direction.
type TWAP struct {
	Slices   int
	Interval time.Duration

	programs map[schema.InstrumentID]*twapProgram
}

type twapProgram struct {
	side      schema.OrderSide
	remaining schema.Quantity
	released  schema.Quantity
	startPos  schema.Quantity
	sliceQty  schema.Quantity
	nextAt    int64
}

// outstanding is the signed quantity the program has promised but the
// position has not yet absorbed: unreleased remainder plus released
// slices, net of fills observed since the program started.
func (p *twapProgram) outstanding(current schema.Quantity) schema.Quantity {
	sign := schema.Quantity(1)
	if p.side == schema.OrderSideSell {
		sign = -1
	}
	return sign*(p.remaining+p.released) - (current - p.startPos)
}

// NewTWAP builds a TWAP execution model.
func NewTWAP(slices int, interval time.Duration) *TWAP {
	if slices < 1 {
		slices = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &TWAP{
		Slices:   slices,
		Interval: interval,
		programs: make(map[schema.InstrumentID]*twapProgram),
	}
}

// Orders implements Execution.
func (t *TWAP) Orders(ctx *Context, targets TargetPortfolio) []order.Spec {
	equity := ctx.Account.Equity()
	var specs []order.Spec
	for _, id := range sortedIDs(targets) {
		price := refPrice(ctx, id)
		if price <= 0 {
			continue
		}
		target := weightQty(equity, targets[id], price)
		current := ctx.Positions.PositionQty(id)
		prog := t.programs[id]
		pending := schema.Quantity(0)
		if prog != nil {
			pending = prog.outstanding(current)
		}
		gap := target - current - pending
		if gap != 0 {
			side := schema.OrderSideBuy
			size := gap
			if gap < 0 {
				side = schema.OrderSideSell
				size = -gap
			}
			if prog == nil || prog.side != side {
				// A direction change abandons the old program; the new
				// gap is recomputed from the bare position.
				size = target - current
				if size < 0 {
					size = -size
				}
				prog = &twapProgram{side: side, startPos: current, nextAt: ctx.Now}
				t.programs[id] = prog
				prog.remaining = size
			} else {
				prog.remaining += size
			}
			prog.sliceQty = schema.Quantity(int64(prog.remaining) / int64(t.Slices))
			if prog.sliceQty == 0 {
				prog.sliceQty = prog.remaining
			}
		}
		if prog == nil || prog.remaining == 0 {
			continue
		}
		if ctx.Now < prog.nextAt {
			continue
		}
		qty := prog.sliceQty
		if qty > prog.remaining {
			qty = prog.remaining
		}
		prog.remaining -= qty
		prog.released += qty
		prog.nextAt = ctx.Now + int64(t.Interval)
		if prog.remaining == 0 {
			delete(t.programs, id)
		}
		specs = append(specs, order.Spec{
			InstrumentID: id,
			Side:         prog.side,
			Type:         schema.OrderTypeMarket,
			Qty:          qty,
			TimeInForce:  schema.TimeInForceGTC,
		})
	}
	return specs
}
