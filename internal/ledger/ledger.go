package ledger

import (
	"errors"
	"fmt"

	"marketsim/internal/calendar"
	"marketsim/internal/schema"
)

var (
	ErrInsufficientFunds = errors.New("insufficient buying power")
	ErrReconciliation    = errors.New("cash reconciliation mismatch")
)

// SettlementMode selects T+0 or calendar-delayed settlement.
type SettlementMode uint16

const (
	SettleT0 SettlementMode = iota
	SettleRealistic
)

// AccountType selects the buying power formula.
type AccountType uint16

const (
	AccountCash AccountType = iota
	AccountMargin
	AccountPortfolioMargin
)

// ViolationPolicy selects how cash-account rule breaches are handled.
type ViolationPolicy uint16

const (
	ViolationWarn ViolationPolicy = iota
	ViolationReject
)

// RiskRequirementFn computes the portfolio-margin requirement from the
// current positions.
type RiskRequirementFn func(positions []*Position) schema.Cash

// Config describes the account.
type Config struct {
	Currency    string
	CapitalBase schema.Cash
	Settlement  SettlementMode
	Account     AccountType
	Violations  ViolationPolicy
	// RiskRequirement is required for portfolio-margin accounts.
	RiskRequirement RiskRequirementFn
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.CapitalBase < 0 {
		return fmt.Errorf("invalid ledger config: CapitalBase must be >= 0")
	}
	if c.Account == AccountPortfolioMargin && c.RiskRequirement == nil {
		return fmt.Errorf("invalid ledger config: portfolio margin needs a risk requirement function")
	}
	return nil
}

// fundingTag marks a buy executed against not-yet-settled funds.
type fundingTag struct {
	kind      schema.ViolationKind
	settlesAt int64
	orderID   uint64
	amount    schema.Cash
}

// FillResult carries the journalable outcome of one applied fill.
type FillResult struct {
	Realized  schema.Cash
	Cash      schema.CashRecord
	Position  schema.PositionRecord
	Violation *schema.ViolationRecord
}

// Ledger is the single mutation point for portfolio state.
type Ledger struct {
	cfg     Config
	cal     *calendar.Calendar
	reg     *schema.Registry
	account *CashAccount
	book    *positionBook

	reservations map[uint64]schema.Cash
	funding      map[schema.InstrumentID][]fundingTag
	violations   []schema.ViolationRecord
}

// New creates a ledger with the capital base as opening settled cash.
func New(cfg Config, cal *calendar.Calendar, reg *schema.Registry) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		cfg:          cfg,
		cal:          cal,
		reg:          reg,
		account:      NewCashAccount(cfg.Currency, cfg.CapitalBase),
		book:         newPositionBook(),
		reservations: make(map[uint64]schema.Cash),
		funding:      make(map[schema.InstrumentID][]fundingTag),
	}, nil
}

// Account exposes the cash account read-only.
func (l *Ledger) Account() *CashAccount { return l.account }

// Position returns the position for an instrument, if one exists.
func (l *Ledger) Position(id schema.InstrumentID) (*Position, bool) {
	return l.book.lookup(id)
}

// Positions returns all positions sorted by instrument.
func (l *Ledger) Positions() []*Position { return l.book.all() }

// Violations returns the recorded cash-account violations.
func (l *Ledger) Violations() []schema.ViolationRecord { return l.violations }

// SeedPosition installs an opening position at the given entry price.
// Used by run configuration before the clock starts.
func (l *Ledger) SeedPosition(id schema.InstrumentID, qty schema.Quantity, entry schema.Price) {
	p := l.book.get(id)
	p.Qty = qty
	p.entryNotional = schema.Notional(entry, qty)
	p.MarkPrice = entry
}

// OrderCost returns the cash needed to accept an order at the given
// reference price, commission excluded.
func (l *Ledger) OrderCost(price schema.Price, qty schema.Quantity) schema.Cash {
	n := schema.Notional(price, qty)
	if n < 0 {
		n = -n
	}
	return n
}

// CheckBuy verifies buying power covers the cost and, for cash accounts
// under the reject policy, that the purchase would not breach the
// free-riding rules. A zero reason means the order may be accepted.
func (l *Ledger) CheckBuy(cost schema.Cash) schema.RejectReason {
	if cost <= l.BuyingPower() {
		return schema.RejectNone
	}
	if l.cfg.Account == AccountCash && l.cfg.Violations == ViolationWarn {
		// Warn-only cash accounts may spend unsettled proceeds; the
		// resulting violation is recorded when the round trip closes.
		if cost <= l.account.Settled()+l.account.PendingCredits()-l.account.Reserved() {
			return schema.RejectNone
		}
	}
	return schema.RejectInsufficientFunds
}

// ReserveOrder earmarks cash for a working buy order.
func (l *Ledger) ReserveOrder(orderID uint64, amount schema.Cash) error {
	if amount <= 0 {
		return nil
	}
	l.account.Reserve(amount)
	l.reservations[orderID] += amount
	return l.checkReserve()
}

// ReleaseOrder frees what remains of an order's reservation.
func (l *Ledger) ReleaseOrder(orderID uint64) error {
	amount, ok := l.reservations[orderID]
	if !ok {
		return nil
	}
	delete(l.reservations, orderID)
	return l.account.Release(amount)
}

// ConsumeReservation reduces an order's reservation by the filled
// portion before the trade cash posts.
func (l *Ledger) ConsumeReservation(orderID uint64, amount schema.Cash) error {
	held, ok := l.reservations[orderID]
	if !ok || amount <= 0 {
		return nil
	}
	if amount > held {
		amount = held
	}
	l.reservations[orderID] -= amount
	if l.reservations[orderID] == 0 {
		delete(l.reservations, orderID)
	}
	return l.account.Release(amount)
}

// ApplyFill applies one execution: position effect, realized P&L, and
// the cash leg routed through settlement. The caller consumes any
// reservation first.
func (l *Ledger) ApplyFill(orderID uint64, id schema.InstrumentID, side schema.OrderSide, price schema.Price, qty schema.Quantity, commission schema.Cash, ts int64) (FillResult, error) {
	if qty <= 0 {
		return FillResult{}, fmt.Errorf("fill qty must be > 0")
	}
	meta, ok := l.reg.Meta(id)
	if !ok {
		return FillResult{}, fmt.Errorf("fill for unknown instrument %d", id)
	}

	var result FillResult
	if side == schema.OrderSideSell {
		if v := l.consumeFunding(id, orderID, ts); v != nil {
			result.Violation = v
		}
	}

	settledBefore := l.account.Settled()
	pendingBefore := l.account.Pending()

	notional := schema.Notional(price, qty)
	cashDelta := schema.Cash(-side.Sign())*notional - commission

	if side == schema.OrderSideBuy {
		l.tagFunding(id, orderID, notional+commission, ts, meta.SettlementDays)
	}

	pos := l.book.get(id)
	realized := pos.applyFill(side, price, qty)
	pos.MarkPrice = price
	pos.MarkTs = ts

	effectiveAt := ts
	if l.cfg.Settlement == SettleRealistic && meta.SettlementDays > 0 {
		effectiveAt = l.cal.AddBusinessDays(ts, meta.SettlementDays)
		l.account.Defer(cashDelta, effectiveAt)
	} else {
		l.account.ApplySettled(cashDelta)
	}

	// Conservation: the cash delta plus position notional delta plus
	// commission must net to zero for the trade leg.
	settledDelta := l.account.Settled() - settledBefore
	pendingDelta := l.account.Pending() - pendingBefore
	if settledDelta+pendingDelta+schema.Cash(side.Sign())*notional+commission != 0 {
		return FillResult{}, fmt.Errorf("fill %d on %d: %w", orderID, id, ErrReconciliation)
	}

	result.Realized = realized
	result.Cash = schema.CashRecord{
		Kind:         schema.CashTrade,
		Amount:       cashDelta,
		EffectiveAt:  effectiveAt,
		SettledAfter: l.account.Settled(),
		PendingAfter: l.account.Pending(),
	}
	result.Position = schema.PositionRecord{
		InstrumentID: id,
		Qty:          pos.Qty,
		AvgEntry:     pos.AvgEntry(),
		Realized:     pos.Realized,
		MarkPrice:    pos.MarkPrice,
	}
	return result, nil
}

// tagFunding records whether a buy is funded by settled cash. Buys that
// reach into unsettled proceeds carry a violation tag until the funds
// settle; selling the shares before then realizes the violation.
func (l *Ledger) tagFunding(id schema.InstrumentID, orderID uint64, cost schema.Cash, ts int64, settlementDays int) {
	if l.cfg.Settlement != SettleRealistic || l.cfg.Account != AccountCash {
		return
	}
	available := l.account.Settled() - l.account.Reserved()
	if cost <= available {
		return
	}
	kind := schema.ViolationGoodFaith
	if cost > available+l.account.PendingCredits() {
		kind = schema.ViolationFreeRiding
	}
	settlesAt := l.latestPendingCredit()
	if settlesAt == 0 {
		settlesAt = l.cal.AddBusinessDays(ts, settlementDays)
	}
	l.funding[id] = append(l.funding[id], fundingTag{
		kind: kind, settlesAt: settlesAt, orderID: orderID, amount: cost,
	})
}

func (l *Ledger) latestPendingCredit() int64 {
	var latest int64
	for _, e := range l.account.pending {
		if e.Amount > 0 && e.EffectiveAt > latest {
			latest = e.EffectiveAt
		}
	}
	return latest
}

// consumeFunding pops unsettled funding tags on a sell; selling before
// the funding settled is the violation.
func (l *Ledger) consumeFunding(id schema.InstrumentID, orderID uint64, ts int64) *schema.ViolationRecord {
	tags := l.funding[id]
	if len(tags) == 0 {
		return nil
	}
	tag := tags[0]
	l.funding[id] = tags[1:]
	if ts >= tag.settlesAt {
		return nil
	}
	rec := schema.ViolationRecord{
		Kind:         tag.kind,
		OrderID:      orderID,
		InstrumentID: id,
		Amount:       tag.amount,
	}
	l.violations = append(l.violations, rec)
	return &rec
}

// ApplyCharge posts a non-trade cash movement (financing, borrow fees,
// deposits) to the settled balance.
func (l *Ledger) ApplyCharge(kind schema.CashKind, amount schema.Cash, ts int64) schema.CashRecord {
	l.account.ApplySettled(amount)
	return schema.CashRecord{
		Kind:         kind,
		Amount:       amount,
		EffectiveAt:  ts,
		SettledAfter: l.account.Settled(),
		PendingAfter: l.account.Pending(),
	}
}

// SettleDue promotes matured settlement entries and returns one record
// per settled entry.
func (l *Ledger) SettleDue(now int64) []schema.CashRecord {
	due := l.account.SettleDue(now)
	if len(due) == 0 {
		return nil
	}
	out := make([]schema.CashRecord, 0, len(due))
	for _, e := range due {
		out = append(out, schema.CashRecord{
			Kind:         schema.CashSettlement,
			Amount:       e.Amount,
			EffectiveAt:  e.EffectiveAt,
			SettledAfter: l.account.Settled(),
			PendingAfter: l.account.Pending(),
		})
	}
	// Expire funding tags whose proceeds have now settled.
	for id, tags := range l.funding {
		rest := tags[:0]
		for _, tag := range tags {
			if tag.settlesAt > now {
				rest = append(rest, tag)
			}
		}
		if len(rest) == 0 {
			delete(l.funding, id)
		} else {
			l.funding[id] = rest
		}
	}
	return out
}

// MarkToMarket updates one position's mark.
func (l *Ledger) MarkToMarket(id schema.InstrumentID, price schema.Price, ts int64) {
	if p, ok := l.book.lookup(id); ok {
		p.MarkPrice = price
		p.MarkTs = ts
	}
}

// BuyingPower evaluates the account-type formula.
func (l *Ledger) BuyingPower() schema.Cash {
	switch l.cfg.Account {
	case AccountMargin:
		var longMV, grossMV schema.Cash
		for _, p := range l.book.all() {
			mv := p.MarketValue()
			if mv > 0 {
				longMV += mv
			}
			if mv < 0 {
				mv = -mv
			}
			grossMV += mv
		}
		base := l.account.Settled() + l.account.Pending() + schema.PortionCash(longMV, 1, 2)
		return 2*base - grossMV
	case AccountPortfolioMargin:
		return l.NetLiquidation() - l.cfg.RiskRequirement(l.book.all())
	default:
		return l.account.Settled() - l.account.Reserved()
	}
}

// NetLiquidation is total cash plus the marked value of all positions.
func (l *Ledger) NetLiquidation() schema.Cash {
	total := l.account.Total()
	for _, p := range l.book.all() {
		total += p.MarketValue()
	}
	return total
}

// Equity is an alias for net liquidation used in session records.
func (l *Ledger) Equity() schema.Cash { return l.NetLiquidation() }

// checkReserve verifies the reserve bound: reserved cash never exceeds
// settled cash plus the permitted unsettled allowance. A failure is
// fatal to the run.
func (l *Ledger) checkReserve() error {
	allowance := schema.Cash(0)
	if l.cfg.Account != AccountCash || l.cfg.Violations == ViolationWarn {
		allowance = l.account.PendingCredits()
	}
	if l.account.Reserved() > l.account.Settled()+allowance {
		return fmt.Errorf("reserved %s exceeds settled %s plus allowance: %w",
			l.account.Reserved(), l.account.Settled(), ErrReconciliation)
	}
	return nil
}
