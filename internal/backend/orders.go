package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// CreateOrder posts a new order shell for the user. TotalAmount starts at
// zero; the real total is derived from line items after assembly. Some
// backend deployments respond without the new order's id; callers recover
// it from OrdersByUser when they need one.
func (c *Client) CreateOrder(ctx context.Context, userID int64) (*Order, error) {
	req := OrderRequest{UserID: userID, TotalAmount: decimal.Zero}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Order fetches one order including its line items.
func (c *Client) Order(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(orderID, 10), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrdersByUser lists a user's orders, newest data included but in backend
// order. A 404 yields an empty slice.
func (c *Client) OrdersByUser(ctx context.Context, userID int64) ([]Order, error) {
	var orders []Order
	err := c.do(ctx, http.MethodGet, "/api/orders/user/"+strconv.FormatInt(userID, 10), nil, nil, &orders)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus transitions an order. The status travels as a query
// parameter, matching the backend's contract.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) (*Order, error) {
	q := url.Values{"status": []string{string(status)}}

	var order Order
	err := c.do(ctx, http.MethodPut, "/api/orders/"+strconv.FormatInt(orderID, 10)+"/status", q, nil, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DeleteOrder removes an order. Used only by the pending-order reaper.
func (c *Client) DeleteOrder(ctx context.Context, orderID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+strconv.FormatInt(orderID, 10), nil, nil, nil)
}

// AttachOrderLine adds one line item to an order with its price snapshot.
func (c *Client) AttachOrderLine(ctx context.Context, req OrderLineRequest) (*OrderLine, error) {
	var line OrderLine
	if err := c.do(ctx, http.MethodPost, "/api/order-product/", nil, req, &line); err != nil {
		return nil, err
	}
	return &line, nil
}
