package backend

import (
	"context"
	"net/http"
	"strconv"
)

// Login authenticates against the backend and returns the issued token plus
// identity claims. The caller is responsible for seeding the session.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, password string) (*RegisterResponse, error) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: username, Password: password}

	var resp RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserByID fetches one user profile.
func (c *Client) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/users/"+strconv.FormatInt(id, 10), nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// WishList lists a user's wish-list entries. A 404 yields an empty slice.
func (c *Client) WishList(ctx context.Context, userID int64) ([]WishItem, error) {
	var items []WishItem
	err := c.do(ctx, http.MethodGet, "/api/wish-list/"+strconv.FormatInt(userID, 10), nil, nil, &items)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return items, nil
}

// AddWishListItem puts a product on the user's wish-list.
func (c *Client) AddWishListItem(ctx context.Context, userID, productID int64) (*WishItem, error) {
	req := struct {
		UserID    int64 `json:"userId"`
		ProductID int64 `json:"productId"`
	}{UserID: userID, ProductID: productID}

	var item WishItem
	if err := c.do(ctx, http.MethodPost, "/api/wish-list", nil, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveWishListItem deletes one wish-list entry by its id.
func (c *Client) RemoveWishListItem(ctx context.Context, itemID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/wish-list/"+strconv.FormatInt(itemID, 10), nil, nil, nil)
}

// CommentsByProduct lists comments for a product. A 404 yields an empty slice.
func (c *Client) CommentsByProduct(ctx context.Context, productID int64) ([]Comment, error) {
	var comments []Comment
	err := c.do(ctx, http.MethodGet, "/api/comments/"+strconv.FormatInt(productID, 10), nil, nil, &comments)
	if err := emptyOnNotFound(err); err != nil {
		return nil, err
	}
	return comments, nil
}

// AddComment posts a comment on a product.
func (c *Client) AddComment(ctx context.Context, userID, productID int64, text string) (*Comment, error) {
	req := struct {
		UserID    int64  `json:"userId"`
		ProductID int64  `json:"productId"`
		Text      string `json:"text"`
	}{UserID: userID, ProductID: productID, Text: text}

	var comment Comment
	if err := c.do(ctx, http.MethodPost, "/api/comments", nil, req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/comments/"+strconv.FormatInt(commentID, 10), nil, nil, nil)
}
