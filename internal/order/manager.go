package order

import (
	"fmt"
	"sort"

	"marketsim/internal/schema"
)

// TransitionHook observes every state change for journaling.
type TransitionHook func(o *Order, from, to schema.OrderState, reason schema.RejectReason)

// Manager tracks all orders of a run and enforces the state machine.
type Manager struct {
	orders    map[uint64]*Order
	groups    map[uint64][]uint64
	nextID    uint64
	nextGroup uint64
	submitSeq uint64
	hook      TransitionHook
}

// NewManager creates an empty order manager.
func NewManager() *Manager {
	return &Manager{
		orders: make(map[uint64]*Order),
		groups: make(map[uint64][]uint64),
	}
}

// SetTransitionHook installs the journaling hook.
func (m *Manager) SetTransitionHook(hook TransitionHook) { m.hook = hook }

// NewGroupID allocates an OCO group identifier.
func (m *Manager) NewGroupID() uint64 {
	m.nextGroup++
	return m.nextGroup
}

// Order returns the order by ID.
func (m *Manager) Order(id uint64) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Create registers a new order in Pending state.
func (m *Manager) Create(spec Spec, now int64) *Order {
	m.nextID++
	o := &Order{
		Spec:      spec,
		ID:        m.nextID,
		State:     schema.OrderStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.orders[o.ID] = o
	if spec.GroupID != 0 {
		m.groups[spec.GroupID] = append(m.groups[spec.GroupID], o.ID)
	}
	if spec.ParentID != 0 {
		if parent, ok := m.orders[spec.ParentID]; ok {
			parent.Children = append(parent.Children, o.ID)
		}
	}
	return o
}

// Submit moves a pending order to Submitted and stamps its fill
// eligibility gate. Orders fill only at ticks at or after eligibleAt.
func (m *Manager) Submit(id uint64, now, eligibleAt int64) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if err := m.transition(o, schema.OrderStateSubmitted, schema.RejectNone, now); err != nil {
		return err
	}
	o.EligibleAt = eligibleAt
	m.submitSeq++
	o.submitSeq = m.submitSeq
	return nil
}

// Accept moves a submitted order through Accepted into Working and
// captures the arrival price for slippage attribution.
func (m *Manager) Accept(id uint64, now int64, arrival schema.Price) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if err := m.transition(o, schema.OrderStateAccepted, schema.RejectNone, now); err != nil {
		return err
	}
	o.ArrivalPrice = arrival
	return m.transition(o, schema.OrderStateWorking, schema.RejectNone, now)
}

// Reject terminates a submitted order with a reason.
func (m *Manager) Reject(id uint64, now int64, reason schema.RejectReason) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if err := m.transition(o, schema.OrderStateRejected, reason, now); err != nil {
		return err
	}
	o.CancelledQty = o.RemainingQty() + o.CancelledQty
	return nil
}

// Cancel terminates a non-terminal order, attributing the open quantity
// to CancelledQty so the terminal quantity identity holds.
func (m *Manager) Cancel(id uint64, now int64, reason schema.RejectReason) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrUnknownOrder
	}
	if o.State.Terminal() {
		return ErrInvalidTransition
	}
	remaining := o.RemainingQty()
	if err := m.transition(o, schema.OrderStateCancelled, reason, now); err != nil {
		return err
	}
	o.CancelledQty += remaining
	return nil
}

// ApplyFill records an execution. Partial fills keep the order working;
// the final fill transitions it to Filled, cancels OCO siblings in the
// same tick, and promotes bracket children from Pending to Submitted.
func (m *Manager) ApplyFill(f Fill, now int64) error {
	o, ok := m.orders[f.OrderID]
	if !ok {
		return ErrUnknownOrder
	}
	if o.State != schema.OrderStateWorking && o.State != schema.OrderStatePartFilled {
		return ErrInvalidTransition
	}
	if f.Qty <= 0 || f.Qty > o.RemainingQty() {
		return fmt.Errorf("fill qty %s vs remaining %s: %w", f.Qty, o.RemainingQty(), ErrInvalidFill)
	}
	o.FilledQty += f.Qty
	o.Notional += schema.Notional(f.Price, f.Qty)
	o.Commission += f.Commission
	o.Fills = append(o.Fills, f)

	if o.RemainingQty() == 0 {
		if err := m.transition(o, schema.OrderStateFilled, schema.RejectNone, now); err != nil {
			return err
		}
		if o.GroupID != 0 {
			if err := m.cancelSiblings(o, now); err != nil {
				return err
			}
		}
		if o.Link == schema.LinkBracketEntry {
			if err := m.promoteChildren(o, now); err != nil {
				return err
			}
		}
		return nil
	}
	return m.transition(o, schema.OrderStatePartFilled, schema.RejectNone, now)
}

// cancelSiblings cancels every other non-terminal member of the order's
// OCO group atomically within the current tick.
func (m *Manager) cancelSiblings(o *Order, now int64) error {
	for _, sid := range m.groups[o.GroupID] {
		if sid == o.ID {
			continue
		}
		sibling, ok := m.orders[sid]
		if !ok || sibling.State.Terminal() {
			continue
		}
		if err := m.Cancel(sid, now, schema.RejectNone); err != nil {
			return err
		}
	}
	return nil
}

// promoteChildren submits a bracket entry's take-profit and stop-loss
// legs. Children share the entry's eligibility instant: they become
// live in the same tick the entry filled.
func (m *Manager) promoteChildren(o *Order, now int64) error {
	for _, cid := range o.Children {
		child, ok := m.orders[cid]
		if !ok || child.State != schema.OrderStatePending {
			continue
		}
		if err := m.Submit(cid, now, now); err != nil {
			return err
		}
	}
	return nil
}

// ModifyPrice changes a working limit or stop price. Price changes lose
// queue priority: the order is cancelled and replaced.
func (m *Manager) ModifyPrice(id uint64, now int64, limit, stop schema.Price) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.State != schema.OrderStateWorking && o.State != schema.OrderStatePartFilled {
		return nil, ErrInvalidTransition
	}
	return m.cancelReplace(o, now, limit, stop, o.RemainingQty())
}

// ModifySize changes the open quantity. Decreases preserve queue
// priority; increases are cancel-replace.
func (m *Manager) ModifySize(id uint64, now int64, newQty schema.Quantity) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.State != schema.OrderStateWorking && o.State != schema.OrderStatePartFilled {
		return nil, ErrInvalidTransition
	}
	if newQty <= o.FilledQty {
		return nil, ErrInvalidFill
	}
	open := newQty - o.FilledQty
	if open < o.RemainingQty() {
		o.CancelledQty += o.RemainingQty() - open
		o.UpdatedAt = now
		return o, nil
	}
	if open == o.RemainingQty() {
		return o, nil
	}
	return m.cancelReplace(o, now, o.LimitPrice, o.StopPrice, open)
}

func (m *Manager) cancelReplace(o *Order, now int64, limit, stop schema.Price, qty schema.Quantity) (*Order, error) {
	if err := m.Cancel(o.ID, now, schema.RejectNone); err != nil {
		return nil, err
	}
	spec := o.Spec
	spec.LimitPrice = limit
	spec.StopPrice = stop
	spec.Qty = qty
	replacement := m.Create(spec, now)
	if err := m.Submit(replacement.ID, now, o.EligibleAt); err != nil {
		return nil, err
	}
	if err := m.Accept(replacement.ID, now, o.ArrivalPrice); err != nil {
		return nil, err
	}
	return replacement, nil
}

// Working returns all fillable orders in submission order, the order in
// which fill policies must evaluate them.
func (m *Manager) Working() []*Order {
	out := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		if o.State == schema.OrderStateWorking || o.State == schema.OrderStatePartFilled {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].submitSeq < out[j].submitSeq })
	return out
}

// ExpireDay cancels all working DAY orders at session close.
func (m *Manager) ExpireDay(now int64) error {
	for _, o := range m.Working() {
		if o.TimeInForce != schema.TimeInForceDay {
			continue
		}
		if err := m.Cancel(o.ID, now, schema.RejectExpired); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) transition(o *Order, to schema.OrderState, reason schema.RejectReason, now int64) error {
	if !canTransition(o.State, to) {
		return fmt.Errorf("%s -> %s: %w", stateName(o.State), stateName(to), ErrInvalidTransition)
	}
	from := o.State
	o.State = to
	o.UpdatedAt = now
	if m.hook != nil {
		m.hook(o, from, to, reason)
	}
	return nil
}

func stateName(s schema.OrderState) string {
	switch s {
	case schema.OrderStatePending:
		return "pending"
	case schema.OrderStateSubmitted:
		return "submitted"
	case schema.OrderStateAccepted:
		return "accepted"
	case schema.OrderStateWorking:
		return "working"
	case schema.OrderStatePartFilled:
		return "part-filled"
	case schema.OrderStateFilled:
		return "filled"
	case schema.OrderStateCancelled:
		return "cancelled"
	case schema.OrderStateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}
