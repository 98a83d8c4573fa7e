package schema

import "fmt"

// BarKind distinguishes trade bars from quote bars.
type BarKind uint16

const (
	BarTrade BarKind = iota
	BarQuote
)

// Bar is an aggregated interval. Start marks the beginning of the
// interval; the bar is effective (visible to strategies) at
// Start + Resolution.Duration().
type Bar struct {
	Start        int64
	InstrumentID InstrumentID
	Resolution   Resolution
	Kind         BarKind

	Open   Price
	High   Price
	Low    Price
	Close  Price
	Volume Quantity

	BidOpen  Price
	BidHigh  Price
	BidLow   Price
	BidClose Price
	AskOpen  Price
	AskHigh  Price
	AskLow   Price
	AskClose Price
}

// EffectiveAt returns the moment the bar's information is complete.
func (b Bar) EffectiveAt() int64 {
	return b.Start + int64(b.Resolution.Duration())
}

// Validate enforces the bar invariants. A failure here is a data-quality
// error and must abort the run before the bar reaches any strategy.
func (b Bar) Validate() error {
	if b.InstrumentID == 0 {
		return fmt.Errorf("bar has no instrument")
	}
	if b.Resolution == ResUnknown || b.Resolution == ResTick {
		return fmt.Errorf("bar resolution invalid: %s", b.Resolution)
	}
	switch b.Kind {
	case BarTrade:
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
			return fmt.Errorf("bar has negative price")
		}
		if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close {
			return fmt.Errorf("bar OHLC inverted: o=%s h=%s l=%s c=%s", b.Open, b.High, b.Low, b.Close)
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar volume negative: %s", b.Volume)
		}
	case BarQuote:
		if b.BidClose > b.AskClose {
			return fmt.Errorf("bar bid/ask crossed: bid=%s ask=%s", b.BidClose, b.AskClose)
		}
	default:
		return fmt.Errorf("bar kind unknown: %d", b.Kind)
	}
	return nil
}

// TickDirection is the aggressor side of a trade tick.
type TickDirection uint16

const (
	TickDirectionUnknown TickDirection = iota
	TickDirectionBuy
	TickDirectionSell
)

// TradeTick is a single trade print.
type TradeTick struct {
	Ts           int64
	InstrumentID InstrumentID
	Price        Price
	Size         Quantity
	Direction    TickDirection
}

// QuoteTick is a single top-of-book update.
type QuoteTick struct {
	Ts           int64
	InstrumentID InstrumentID
	Bid          Price
	Ask          Price
	BidSize      Quantity
	AskSize      Quantity
}

// PriceLevel is one side level of a depth snapshot.
type PriceLevel struct {
	Price Price
	Qty   Quantity
}

// DepthSnapshot is an L2 book snapshot, best levels first.
type DepthSnapshot struct {
	Ts           int64
	InstrumentID InstrumentID
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// PayloadKind tags the MarketEvent union.
type PayloadKind uint16

const (
	PayloadUnknown PayloadKind = iota
	PayloadBar
	PayloadTrade
	PayloadQuote
	PayloadDepth
)

// MarketEvent is the unit delivered by the event stream. The payload is
// selected by Kind; events are immutable once emitted.
type MarketEvent struct {
	Ts           int64
	InstrumentID InstrumentID
	Resolution   Resolution
	Kind         PayloadKind

	Bar   Bar
	Trade TradeTick
	Quote QuoteTick
	Depth DepthSnapshot
}
