package ledger

import (
	"fmt"
	"sort"

	"marketsim/internal/schema"
)

// pendingEntry is one cash delta waiting for its settlement date.
type pendingEntry struct {
	Amount      schema.Cash
	EffectiveAt int64
	// seq preserves append order so equal effective dates settle FIFO.
	seq uint64
}

// CashAccount holds settled balance, the FIFO settlement queue, and the
// amount reserved for working buy orders and unsettled buy outflows.
type CashAccount struct {
	Currency string
	settled  schema.Cash
	reserved schema.Cash
	pending  []pendingEntry
	nextSeq  uint64
}

// NewCashAccount creates an account with an opening settled balance.
func NewCashAccount(currency string, opening schema.Cash) *CashAccount {
	if currency == "" {
		currency = "USD"
	}
	return &CashAccount{Currency: currency, settled: opening}
}

// Settled returns the spendable balance.
func (a *CashAccount) Settled() schema.Cash { return a.settled }

// Reserved returns the amount committed to working buys and unsettled
// outflows.
func (a *CashAccount) Reserved() schema.Cash { return a.reserved }

// Pending returns the net unsettled amount.
func (a *CashAccount) Pending() schema.Cash {
	var total schema.Cash
	for _, e := range a.pending {
		total += e.Amount
	}
	return total
}

// PendingCredits returns the unsettled inflows only.
func (a *CashAccount) PendingCredits() schema.Cash {
	var total schema.Cash
	for _, e := range a.pending {
		if e.Amount > 0 {
			total += e.Amount
		}
	}
	return total
}

// Total returns settled plus pending.
func (a *CashAccount) Total() schema.Cash { return a.settled + a.Pending() }

// ApplySettled posts a delta directly to the settled balance (T+0 mode,
// financing, fees).
func (a *CashAccount) ApplySettled(amount schema.Cash) {
	a.settled += amount
}

// Defer queues a delta for settlement at effectiveAt. Outflows stay
// counted against buying power through the reserve until they settle.
func (a *CashAccount) Defer(amount schema.Cash, effectiveAt int64) {
	a.nextSeq++
	a.pending = append(a.pending, pendingEntry{Amount: amount, EffectiveAt: effectiveAt, seq: a.nextSeq})
	if amount < 0 {
		a.reserved += -amount
	}
}

// Reserve earmarks settled cash for a working buy order.
func (a *CashAccount) Reserve(amount schema.Cash) {
	if amount > 0 {
		a.reserved += amount
	}
}

// Release frees a reservation.
func (a *CashAccount) Release(amount schema.Cash) error {
	if amount <= 0 {
		return nil
	}
	if amount > a.reserved {
		return fmt.Errorf("release %s exceeds reserved %s", amount, a.reserved)
	}
	a.reserved -= amount
	return nil
}

// SettleDue promotes every pending entry whose effective date has
// arrived, strictly in (effective date, append) order, and returns the
// settled entries. Outflow settlements release their reserve.
func (a *CashAccount) SettleDue(now int64) []pendingEntry {
	var due []pendingEntry
	rest := a.pending[:0]
	for _, e := range a.pending {
		if e.EffectiveAt <= now {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	a.pending = rest
	// Entries settle strictly in effective-date order; ties keep the
	// append order.
	sort.Slice(due, func(i, j int) bool {
		if due[i].EffectiveAt != due[j].EffectiveAt {
			return due[i].EffectiveAt < due[j].EffectiveAt
		}
		return due[i].seq < due[j].seq
	})
	for _, e := range due {
		a.settled += e.Amount
		if e.Amount < 0 {
			a.reserved -= -e.Amount
		}
	}
	return due
}
