package schema

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// Sign returns +1 for buys, -1 for sells, 0 otherwise.
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return OrderSideUnknown
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
	TimeInForceDay
	TimeInForceMOO
	TimeInForceMOC
)

// LinkKind describes how an order is linked to its parent.
type LinkKind uint16

const (
	LinkNone LinkKind = iota
	LinkOCO
	LinkBracketEntry
	LinkBracketTakeProfit
	LinkBracketStopLoss
)

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStatePending
	OrderStateSubmitted
	OrderStateAccepted
	OrderStateWorking
	OrderStatePartFilled
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}

// RejectReason describes why an order was rejected.
type RejectReason uint16

const (
	RejectNone RejectReason = iota
	RejectInvalidParams
	RejectUnknownInstrument
	RejectInsufficientFunds
	RejectRiskVeto
	RejectVenue
	RejectExpired
)

// OrderSubmitRecord is the payload for EventOrderSubmit.
type OrderSubmitRecord struct {
	OrderID      uint64
	StrategyID   uint32
	InstrumentID InstrumentID
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	Link         LinkKind
	ParentID     uint64
	GroupID      uint64
	Qty          Quantity
	LimitPrice   Price
	StopPrice    Price
}

// OrderStateRecord is the payload for EventOrderState.
type OrderStateRecord struct {
	OrderID uint64
	From    OrderState
	To      OrderState
	Reason  RejectReason
}

// FillRecord is the payload for EventFill.
type FillRecord struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Side         OrderSide
	Price        Price
	Qty          Quantity
	Commission   Cash
	SlippageBps  int64
	Bid          Price
	Ask          Price
	Last         Price
}

// CashKind describes a cash movement origin.
type CashKind uint16

const (
	CashUnknown CashKind = iota
	CashTrade
	CashSettlement
	CashFinancing
	CashBorrowFee
	CashDeposit
)

// CashRecord is the payload for EventCash.
type CashRecord struct {
	Kind         CashKind
	Amount       Cash
	EffectiveAt  int64
	SettledAfter Cash
	PendingAfter Cash
}

// PositionRecord is the payload for EventPosition.
type PositionRecord struct {
	InstrumentID InstrumentID
	Qty          Quantity
	AvgEntry     Price
	Realized     Cash
	MarkPrice    Price
}

// RiskVetoReason is a coarse reason code for risk vetoes.
type RiskVetoReason uint16

const (
	RiskVetoNone RiskVetoReason = iota
	RiskVetoPositionCap
	RiskVetoLeverageCap
	RiskVetoDrawdownHalt
	RiskVetoConcentration
)

// RiskVetoRecord is the payload for EventRiskVeto.
type RiskVetoRecord struct {
	StrategyID   uint32
	InstrumentID InstrumentID
	Reason       RiskVetoReason
	TargetBps    int64
	AllowedBps   int64
}

// ViolationKind classifies cash-account rule breaches.
type ViolationKind uint16

const (
	ViolationUnknown ViolationKind = iota
	ViolationGoodFaith
	ViolationFreeRiding
)

// ViolationRecord is the payload for EventViolation.
type ViolationRecord struct {
	Kind         ViolationKind
	OrderID      uint64
	InstrumentID InstrumentID
	Amount       Cash
}

// FaultAction is the policy applied after a strategy fault.
type FaultAction uint16

const (
	FaultHaltStrategy FaultAction = iota + 1
	FaultAbortRun
)

// StrategyFaultRecord is the payload for EventStrategyFault.
type StrategyFaultRecord struct {
	StrategyID uint32
	Stage      uint16
	Action     FaultAction
}

// SessionCloseRecord is the payload for EventSessionClose.
type SessionCloseRecord struct {
	SessionDate int64
	Equity      Cash
	SettledCash Cash
	PendingCash Cash
}

// UniverseAction marks an instrument entering or leaving a universe.
type UniverseAction uint16

const (
	UniverseAdd UniverseAction = iota + 1
	UniverseRemove
)

// UniverseChangeRecord is the payload for EventUniverseChange, one record
// per instrument per change.
type UniverseChangeRecord struct {
	StrategyID   uint32
	InstrumentID InstrumentID
	Action       UniverseAction
}
