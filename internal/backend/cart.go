package backend

import (
	"context"
	"net/http"
	"strconv"
)

// CartByUser fetches the user's cart. Returns ErrNotFound when the user has
// none yet; callers that want fetch-or-create semantics use the cart
// materializer instead.
func (c *Client) CartByUser(ctx context.Context, userID int64) (*Cart, error) {
	var cart Cart
	err := c.do(ctx, http.MethodGet, "/api/shopping-cart/"+strconv.FormatInt(userID, 10), nil, nil, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart creates an empty cart for the user.
func (c *Client) CreateCart(ctx context.Context, userID int64) (*Cart, error) {
	req := struct {
		UserID int64 `json:"userId"`
	}{UserID: userID}

	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/api/shopping-cart", nil, req, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// DeleteCart removes the cart shell itself.
func (c *Client) DeleteCart(ctx context.Context, cartID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/shopping-cart/"+strconv.FormatInt(cartID, 10), nil, nil, nil)
}

// CartItems lists the line items of a cart, joined with product snapshots.
// A 404 means the cart has no items and yields an empty slice.
func (c *Client) CartItems(ctx context.Context, cartID int64) ([]CartItem, error) {
	var items []CartItem
	err := c.do(ctx, http.MethodGet, "/api/cart-items/cart/"+strconv.FormatInt(cartID, 10), nil, nil, &items)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateCartItem persists a new cart line.
func (c *Client) CreateCartItem(ctx context.Context, req CartItemRequest) (*CartItem, error) {
	var item CartItem
	if err := c.do(ctx, http.MethodPost, "/api/cart-items", nil, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateCartItem replaces an existing cart line.
func (c *Client) UpdateCartItem(ctx context.Context, itemID int64, req CartItemRequest) (*CartItem, error) {
	var item CartItem
	if err := c.do(ctx, http.MethodPut, "/api/cart-items/"+strconv.FormatInt(itemID, 10), nil, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCartItem removes one cart line.
func (c *Client) DeleteCartItem(ctx context.Context, itemID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/cart-items/"+strconv.FormatInt(itemID, 10), nil, nil, nil)
}
