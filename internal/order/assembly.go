package order

import (
	"context"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
)

// State is one step of a single order's client-side assembly.
type State string

const (
	// StateDraft: the cart has items but no order exists yet.
	StateDraft State = "DRAFT"
	// StateCreated: the order shell is persisted with a zero total.
	StateCreated State = "CREATED"
	// StateProductsAttached: cart lines were copied into order line items
	// with price snapshots.
	StateProductsAttached State = "PRODUCTS_ATTACHED"
	// StateFinalized: the order was marked PAID, or deliberately left
	// PENDING for an asynchronous payment.
	StateFinalized State = "FINALIZED"
)

// Assembly tracks one order through its assembly steps. Steps only move
// forward; calling a step out of order fails with ErrWrongAssemblyState so
// a re-entrant caller (browser reload mid-checkout) cannot corrupt the flow.
type Assembly struct {
	asm    *Assembler
	userID int64
	state  State

	Order  *backend.Order
	Result *AttachResult
}

// Begin starts an assembly in DRAFT for the given user.
func (a *Assembler) Begin(userID int64) *Assembly {
	return &Assembly{asm: a, userID: userID, state: StateDraft}
}

// State returns the current assembly step.
func (s *Assembly) State() State {
	return s.state
}

// Create persists the order shell. DRAFT -> CREATED.
func (s *Assembly) Create(ctx context.Context) error {
	if s.state != StateDraft {
		return ErrWrongAssemblyState
	}
	o, err := s.asm.CreateOrder(ctx, s.userID)
	if err != nil {
		return err
	}
	s.Order = o
	s.state = StateCreated
	return nil
}

// Attach copies the cart lines into the order. CREATED ->
// PRODUCTS_ATTACHED. When the order already has lines (a replayed
// checkout), the attach is skipped but the state still advances.
func (s *Assembly) Attach(ctx context.Context, lines []cart.Line) error {
	if s.state != StateCreated {
		return ErrWrongAssemblyState
	}
	res, err := s.asm.AttachLines(ctx, s.Order.ID, lines)
	if err != nil {
		return err
	}
	s.Result = res
	s.state = StateProductsAttached
	return nil
}

// Finalize either marks the order PAID or leaves it PENDING for an
// asynchronous payment. PRODUCTS_ATTACHED -> FINALIZED.
func (s *Assembly) Finalize(ctx context.Context, paid bool) error {
	if s.state != StateProductsAttached {
		return ErrWrongAssemblyState
	}
	if paid {
		o, err := s.asm.SetStatus(ctx, s.Order.ID, backend.StatusPaid)
		if err != nil {
			return err
		}
		s.Order = o
	}
	s.state = StateFinalized
	return nil
}
