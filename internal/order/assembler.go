// Package order assembles a cart into a persisted order: shell creation,
// line item attachment with price snapshots, and status transitions.
package order

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
)

// Sentinel errors for order assembly.
var (
	ErrNoLines            = errors.New("no line items to attach")
	ErrOrderNotCreated    = errors.New("order was not created")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrWrongAssemblyState = errors.New("operation not valid in current assembly state")
)

// API is the backend surface the assembler needs.
type API interface {
	CreateOrder(ctx context.Context, userID int64) (*backend.Order, error)
	Order(ctx context.Context, orderID int64) (*backend.Order, error)
	OrdersByUser(ctx context.Context, userID int64) ([]backend.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status backend.OrderStatus) (*backend.Order, error)
	AttachOrderLine(ctx context.Context, req backend.OrderLineRequest) (*backend.OrderLine, error)
}

// Assembler creates and finalizes orders.
type Assembler struct {
	api API
}

// New returns an Assembler backed by api.
func New(api API) *Assembler {
	return &Assembler{api: api}
}

// CreateOrder posts a new order shell for the user with a zero total. When
// the backend's creation response lacks the new id, the assembler recovers
// it by taking the user's most recent order. That fallback exists only
// because some backend paths do not echo the id; it is never tried when the
// response carries one.
func (a *Assembler) CreateOrder(ctx context.Context, userID int64) (*backend.Order, error) {
	created, err := a.api.CreateOrder(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if created.ID != 0 {
		return created, nil
	}

	zctx.From(ctx).Warn("Order creation response lacked an id, recovering via latest order",
		zap.Int64("user_id", userID))

	orders, err := a.api.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "recover created order")
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotCreated
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Date.After(orders[j].Date.Time)
	})
	return &orders[0], nil
}

// FailedLine records one line item that could not be attached.
type FailedLine struct {
	ProductID int64
	Err       error
}

// AttachResult reports the outcome of a (possibly partial) attach batch.
type AttachResult struct {
	// Skipped is true when the order already had line items and nothing was
	// attached; re-running the checkout after a reload must not duplicate
	// lines.
	Skipped  bool
	Attached int
	Failed   []FailedLine
	// Total sums priceAtOrderTime x quantity over the successfully attached
	// lines only. Failed lines are excluded, so a partial batch can leave
	// the order under-priced; callers decide whether that is acceptable.
	Total decimal.Decimal
}

// AttachLines copies cart lines into order line items, snapshotting each
// line's discounted unit price as priceAtOrderTime. Lines are submitted
// concurrently; an individual failure is logged and excluded from the total
// but does not abort the batch.
func (a *Assembler) AttachLines(ctx context.Context, orderID int64, lines []cart.Line) (*AttachResult, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	existing, err := a.api.Order(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch order")
	}
	if len(existing.Lines) > 0 {
		return &AttachResult{Skipped: true, Total: DerivedTotal(existing)}, nil
	}

	lg := zctx.From(ctx)
	results := make([]error, len(lines))

	var g errgroup.Group
	for i, line := range lines {
		g.Go(func() error {
			_, err := a.api.AttachOrderLine(ctx, backend.OrderLineRequest{
				OrderID:          orderID,
				ProductID:        line.Product.ID,
				Quantity:         line.Quantity,
				PriceAtOrderTime: line.UnitPrice,
			})
			if err != nil {
				lg.Error("Failed to attach order line",
					zap.Int64("order_id", orderID),
					zap.Int64("product_id", line.Product.ID),
					zap.Error(err),
				)
				results[i] = err
			}
			// Batch continues past individual failures.
			return nil
		})
	}
	_ = g.Wait()

	res := &AttachResult{Total: decimal.Zero}
	for i, line := range lines {
		if err := results[i]; err != nil {
			res.Failed = append(res.Failed, FailedLine{ProductID: line.Product.ID, Err: err})
			continue
		}
		res.Attached++
		res.Total = res.Total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return res, nil
}

// SetStatus transitions an order, enforcing the forward-only rule before
// calling the backend: PENDING may become PAID or CANCELED, PAID may become
// SHIPPED, and nothing leaves CANCELED or SHIPPED.
func (a *Assembler) SetStatus(ctx context.Context, orderID int64, status backend.OrderStatus) (*backend.Order, error) {
	current, err := a.api.Order(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch order")
	}
	if !CanTransition(current.Status, status) {
		return nil, errors.Wrapf(ErrIllegalTransition, "%s -> %s", current.Status, status)
	}

	updated, err := a.api.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return updated, nil
}

// Cancel transitions an order to CANCELED. Callers are expected to have
// confirmed the action with the user.
func (a *Assembler) Cancel(ctx context.Context, orderID int64) (*backend.Order, error) {
	return a.SetStatus(ctx, orderID, backend.StatusCanceled)
}

// CanTransition reports whether from -> to is a legal order status change.
func CanTransition(from, to backend.OrderStatus) bool {
	switch from {
	case backend.StatusPending:
		return to == backend.StatusPaid || to == backend.StatusCanceled
	case backend.StatusPaid:
		return to == backend.StatusShipped
	default:
		return false
	}
}

// DerivedTotal computes an order's total from its line items. The stored
// totalAmount field is never trusted for display: a partially attached order
// or a stale shell would otherwise show the wrong figure.
func DerivedTotal(o *backend.Order) decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.PriceAtOrderTime.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
