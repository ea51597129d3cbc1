// Package checkout orchestrates the storefront purchase flow: materialize
// the cart, assemble an order, stage the checkout intent, and hand off to
// the payment bridge. It also persists in-flight checkout intents.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/catalog"
	"github.com/xenking/storefront-checkout/internal/order"
)

// ErrEmptyCart is returned when checkout starts with no cart lines.
var ErrEmptyCart = errors.New("cart is empty")

// Carts is the cart surface the flow needs.
type Carts interface {
	GetOrCreate(ctx context.Context, userID int64) (*backend.Cart, error)
	Items(ctx context.Context, cartID int64) ([]cart.Line, error)
}

// PaymentStarter opens the payment for a staged intent.
type PaymentStarter interface {
	Begin(ctx context.Context, intent Intent) (redirectURL string, err error)
}

// Flow runs checkouts end to end.
type Flow struct {
	carts    Carts
	orders   *order.Assembler
	payments PaymentStarter
	now      func() time.Time
}

// NewFlow wires a Flow.
func NewFlow(carts Carts, orders *order.Assembler, payments PaymentStarter) *Flow {
	return &Flow{
		carts:    carts,
		orders:   orders,
		payments: payments,
		now:      time.Now,
	}
}

// Started describes a successfully initiated checkout.
type Started struct {
	OrderID     int64
	Amount      int64
	RedirectURL string
}

// Start materializes the user's cart, creates the order shell, stages the
// intent, and opens the payment. Line items are attached later, in the
// payment callback, once the customer returns from the gateway.
func (f *Flow) Start(ctx context.Context, userID int64) (*Started, error) {
	userCart, err := f.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "materialize cart")
	}
	lines, err := f.carts.Items(ctx, userCart.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	assembly := f.orders.Begin(userID)
	if err := assembly.Create(ctx); err != nil {
		return nil, err
	}
	orderID := assembly.Order.ID

	amount := catalog.AmountUnits(cart.Subtotal(lines))
	intent := Intent{
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Lines:     freeze(lines),
		CreatedAt: f.now(),
	}

	redirect, err := f.payments.Begin(ctx, intent)
	if err != nil {
		return nil, errors.Wrap(err, "begin payment")
	}

	zctx.From(ctx).Info("Checkout started",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", orderID),
		zap.Int64("amount", amount),
	)
	return &Started{OrderID: orderID, Amount: amount, RedirectURL: redirect}, nil
}

// freeze captures the cart lines inside the intent so the callback phase
// attaches exactly what was priced at checkout time, even if the cart
// changes meanwhile.
func freeze(lines []cart.Line) []IntentLine {
	frozen := make([]IntentLine, 0, len(lines))
	for _, l := range lines {
		frozen = append(frozen, IntentLine{
			ProductID: l.Product.ID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return frozen
}
