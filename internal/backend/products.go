package backend

import (
	"context"
	"net/http"
	"strconv"
)

// Products lists the catalog. A 404 yields an empty slice.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var products []Product
	err := c.do(ctx, http.MethodGet, "/api/products", nil, nil, &products)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return products, nil
}

// ProductByID fetches one product.
func (c *Client) ProductByID(ctx context.Context, id int64) (*Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProduct removes a product (provider/admin surface).
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// Categories lists all categories. A 404 yields an empty slice.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, nil, &categories)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return categories, nil
}

// CategoryByID fetches one category.
func (c *Client) CategoryByID(ctx context.Context, id int64) (*Category, error) {
	var cat Category
	if err := c.do(ctx, http.MethodGet, "/api/categories/"+strconv.FormatInt(id, 10), nil, nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}
