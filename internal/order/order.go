// Package order owns the order lifecycle. Orders are created from specs
// emitted by execution models and mutated only by the Manager; every
// state transition is reported through the transition hook so the engine
// can journal it.
package order

import (
	"errors"

	"marketsim/internal/schema"
)

var (
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrInvalidSpec       = errors.New("invalid order spec")
)

// Spec is the immutable order request produced by an execution model.
type Spec struct {
	StrategyID   uint32
	InstrumentID schema.InstrumentID
	Side         schema.OrderSide
	Type         schema.OrderType
	Qty          schema.Quantity
	LimitPrice   schema.Price
	StopPrice    schema.Price
	TimeInForce  schema.TimeInForce
	Link         schema.LinkKind
	ParentID     uint64
	GroupID      uint64
}

// Validate checks the structural validity of a spec against the
// registry. Failures become Rejected orders, not run errors.
func (s Spec) Validate(reg *schema.Registry) schema.RejectReason {
	if _, ok := reg.Instrument(s.InstrumentID); !ok {
		return schema.RejectUnknownInstrument
	}
	if s.Qty <= 0 {
		return schema.RejectInvalidParams
	}
	if s.Side != schema.OrderSideBuy && s.Side != schema.OrderSideSell {
		return schema.RejectInvalidParams
	}
	switch s.Type {
	case schema.OrderTypeMarket:
	case schema.OrderTypeLimit:
		if s.LimitPrice <= 0 {
			return schema.RejectInvalidParams
		}
	case schema.OrderTypeStop:
		if s.StopPrice <= 0 {
			return schema.RejectInvalidParams
		}
	case schema.OrderTypeStopLimit:
		if s.LimitPrice <= 0 || s.StopPrice <= 0 {
			return schema.RejectInvalidParams
		}
	default:
		return schema.RejectInvalidParams
	}
	if s.TimeInForce == schema.TimeInForceUnknown {
		return schema.RejectInvalidParams
	}
	return schema.RejectNone
}

// Fill is one execution against an order.
type Fill struct {
	OrderID    uint64
	Ts         int64
	Price      schema.Price
	Qty        schema.Quantity
	Commission schema.Cash
	Bid        schema.Price
	Ask        schema.Price
	Last       schema.Price
}

// Order is the manager's view of a working or finished order.
type Order struct {
	Spec
	ID    uint64
	State schema.OrderState

	FilledQty    schema.Quantity
	CancelledQty schema.Quantity
	Notional     schema.Cash
	Commission   schema.Cash

	CreatedAt  int64
	UpdatedAt  int64
	EligibleAt int64

	// ArrivalPrice is the reference for slippage attribution, captured
	// when the order is accepted.
	ArrivalPrice schema.Price

	// StopTriggered marks a stop or stop-limit whose stop condition has
	// been crossed.
	StopTriggered bool

	Children []uint64
	Fills    []Fill

	submitSeq uint64
}

// RemainingQty is the quantity still open.
func (o *Order) RemainingQty() schema.Quantity {
	return o.Qty - o.FilledQty - o.CancelledQty
}

// AvgFillPrice is the size-weighted average fill price at PriceScale.
func (o *Order) AvgFillPrice() schema.Price {
	if o.FilledQty == 0 {
		return 0
	}
	return schema.AvgPrice(o.Notional, o.FilledQty)
}

// Eligible reports whether transmission latency has elapsed at ts.
func (o *Order) Eligible(ts int64) bool {
	return ts >= o.EligibleAt
}

var transitions = map[schema.OrderState][]schema.OrderState{
	schema.OrderStatePending:    {schema.OrderStateSubmitted, schema.OrderStateCancelled},
	schema.OrderStateSubmitted:  {schema.OrderStateAccepted, schema.OrderStateRejected},
	schema.OrderStateAccepted:   {schema.OrderStateWorking, schema.OrderStateCancelled},
	schema.OrderStateWorking:    {schema.OrderStatePartFilled, schema.OrderStateFilled, schema.OrderStateCancelled},
	schema.OrderStatePartFilled: {schema.OrderStatePartFilled, schema.OrderStateFilled, schema.OrderStateCancelled},
}

func canTransition(from, to schema.OrderState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
