// Package cart materializes a per-user shopping cart: fetch-or-create, line
// item management with stock clamping, and best-effort clearing.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/catalog"
)

// Sentinel errors for cart operations.
var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("cart item not found")
)

// API is the backend surface the materializer needs.
type API interface {
	CartByUser(ctx context.Context, userID int64) (*backend.Cart, error)
	CreateCart(ctx context.Context, userID int64) (*backend.Cart, error)
	DeleteCart(ctx context.Context, cartID int64) error
	CartItems(ctx context.Context, cartID int64) ([]backend.CartItem, error)
	CreateCartItem(ctx context.Context, req backend.CartItemRequest) (*backend.CartItem, error)
	UpdateCartItem(ctx context.Context, itemID int64, req backend.CartItemRequest) (*backend.CartItem, error)
	DeleteCartItem(ctx context.Context, itemID int64) error
	ProductByID(ctx context.Context, id int64) (*backend.Product, error)
}

// Line is a cart item joined with its product snapshot for display and
// checkout. UnitPrice is the product's current effective (discounted) price;
// Total is UnitPrice times quantity, unrounded.
type Line struct {
	ItemID    int64
	Product   catalog.Product
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Materializer resolves and mutates a user's cart.
type Materializer struct {
	api API
}

// New returns a Materializer backed by api.
func New(api API) *Materializer {
	return &Materializer{api: api}
}

// GetOrCreate fetches the user's cart, creating one when none exists.
// Calling it twice without intervening deletes yields the same cart id;
// deduplication of concurrent creates is the backend's responsibility.
func (m *Materializer) GetOrCreate(ctx context.Context, userID int64) (*backend.Cart, error) {
	cart, err := m.api.CartByUser(ctx, userID)
	switch {
	case err == nil:
		return cart, nil
	case errors.Is(err, backend.ErrNotFound):
		created, err := m.api.CreateCart(ctx, userID)
		if err != nil {
			return nil, errors.Wrap(err, "create cart")
		}
		return created, nil
	default:
		return nil, errors.Wrap(err, "fetch cart")
	}
}

// AddItem persists a new line item priced at unitPrice.
func (m *Materializer) AddItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice decimal.Decimal) (*backend.CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	item, err := m.api.CreateCartItem(ctx, backend.CartItemRequest{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     unitPrice,
	})
	if err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}
	return item, nil
}

// UpdateItem replaces a line item's quantity and price. Quantities above the
// product's available stock are clamped rather than submitted; the returned
// flag tells the caller to surface a warning. Zero and negative quantities
// are rejected.
func (m *Materializer) UpdateItem(ctx context.Context, itemID, cartID, productID int64, quantity int, unitPrice decimal.Decimal) (*backend.CartItem, bool, error) {
	if quantity < 1 {
		return nil, false, ErrInvalidQuantity
	}

	product, err := m.api.ProductByID(ctx, productID)
	if err != nil {
		return nil, false, errors.Wrap(err, "fetch product")
	}

	clamped := false
	if product.Quantity > 0 && quantity > product.Quantity {
		zctx.From(ctx).Warn("Clamping cart quantity to available stock",
			zap.Int64("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("available", product.Quantity),
		)
		quantity = product.Quantity
		clamped = true
	}

	item, err := m.api.UpdateCartItem(ctx, itemID, backend.CartItemRequest{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     unitPrice,
	})
	if err != nil {
		return nil, clamped, errors.Wrap(err, "update cart item")
	}
	return item, clamped, nil
}

// RemoveItem deletes one line item. A missing item yields ErrItemNotFound so
// the caller can refresh its view instead of failing hard.
func (m *Materializer) RemoveItem(ctx context.Context, itemID int64) error {
	if err := m.api.DeleteCartItem(ctx, itemID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return ErrItemNotFound
		}
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// Items lists the cart's lines joined with their product snapshots. Lines
// whose product snapshot is missing are skipped; totals stay unrounded so
// summation does not compound rounding error.
func (m *Materializer) Items(ctx context.Context, cartID int64) ([]Line, error) {
	items, err := m.api.CartItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		if item.Product == nil {
			zctx.From(ctx).Warn("Cart item without product snapshot",
				zap.Int64("item_id", item.ID))
			continue
		}
		p := item.Product.Domain()
		unit := p.EffectivePrice()
		lines = append(lines, Line{
			ItemID:    item.ID,
			Product:   p,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			Total:     unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return lines, nil
}

// Subtotal sums the line totals.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	return total
}

// Clear removes every item from the user's cart and then the cart itself.
// Item deletions run in parallel; individual failures are logged and do not
// stop the rest, so the cart can end up partially cleared. Nothing is rolled
// back.
func (m *Materializer) Clear(ctx context.Context, userID int64) error {
	cart, err := m.api.CartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "fetch cart")
	}

	items, err := m.api.CartItems(ctx, cart.ID)
	if err != nil {
		return errors.Wrap(err, "list cart items")
	}

	lg := zctx.From(ctx)
	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			if err := m.api.DeleteCartItem(ctx, item.ID); err != nil {
				lg.Error("Failed to delete cart item",
					zap.Int64("item_id", item.ID),
					zap.Error(err),
				)
			}
			// Deliberately nil: partial failure must not abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	if err := m.api.DeleteCart(ctx, cart.ID); err != nil && !errors.Is(err, backend.ErrNotFound) {
		lg.Error("Failed to delete cart", zap.Int64("cart_id", cart.ID), zap.Error(err))
	}
	return nil
}
