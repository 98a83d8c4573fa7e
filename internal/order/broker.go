package order

import "marketsim/internal/schema"

// BrokerPosition is a position as reported by a live venue.
type BrokerPosition struct {
	InstrumentID schema.InstrumentID
	Qty          schema.Quantity
	AvgEntry     schema.Price
}

// AccountSnapshot is the account state a live venue reports.
type AccountSnapshot struct {
	Currency    string
	Settled     schema.Cash
	BuyingPower schema.Cash
	NetLiq      schema.Cash
}

// Broker is the live-trading boundary. The backtest implementation of
// this contract is the simulated fill and cost engines together; a
// venue adapter satisfying it can be swapped in for paper and live
// modes without touching the pipeline.
type Broker interface {
	Submit(spec Spec) (uint64, error)
	Cancel(orderID uint64) error
	Modify(orderID uint64, newPrice schema.Price, newQty schema.Quantity) error
	Positions() ([]BrokerPosition, error)
	Account() (AccountSnapshot, error)
}
