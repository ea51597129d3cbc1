package backend

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/catalog"
	"github.com/xenking/storefront-checkout/internal/session"
)

// WireTime decodes the backend's timestamps, which arrive either as RFC 3339
// or as a zone-less "2006-01-02T15:04:05" local datetime.
type WireTime struct {
	time.Time
}

func (t *WireTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

// Product is the backend's product representation.
type Product struct {
	ID          int64           `json:"productId"`
	Name        string          `json:"productName"`
	Description string          `json:"productDescription"`
	Price       decimal.Decimal `json:"productPrice"`
	Discount    int             `json:"productDiscount"`
	Quantity    int             `json:"productQuantity"`
	Images      string          `json:"productImages"`
	Category    *Category       `json:"category,omitempty"`
}

// Domain converts the wire product to the catalog domain type.
func (p Product) Domain() catalog.Product {
	var categoryID int64
	if p.Category != nil {
		categoryID = p.Category.ID
	}
	return catalog.Product{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		DiscountPercent:   p.Discount,
		QuantityAvailable: p.Quantity,
		CategoryID:        categoryID,
		ImagePath:         p.Images,
	}
}

// Category is the backend's category representation.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Cart is a per-user shopping cart shell.
type Cart struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"userId,omitempty"`
	Items  []CartItem `json:"cartItems,omitempty"`
}

// CartItem is one cart line, joined with its product snapshot.
type CartItem struct {
	ID       int64           `json:"id"`
	Product  *Product        `json:"product,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// CartItemRequest is the create/update payload for a cart line.
type CartItemRequest struct {
	CartID    int64           `json:"cartId"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderStatus is the backend's order state label.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusPaid     OrderStatus = "PAID"
	StatusShipped  OrderStatus = "SHIPPED"
	StatusCanceled OrderStatus = "CANCELED"
)

// Order is the backend's order representation. TotalAmount is kept for wire
// fidelity only; displayed totals must be derived from the line items.
type Order struct {
	ID          int64           `json:"id"`
	Date        WireTime        `json:"date"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Lines       []OrderLine     `json:"orderProducts,omitempty"`
}

// OrderLine is a persisted order line item. PriceAtOrderTime is the
// discounted unit price snapshotted at assembly time and is never
// recomputed from the product's current price.
type OrderLine struct {
	ID               int64           `json:"id"`
	Quantity         int             `json:"quantity"`
	PriceAtOrderTime decimal.Decimal `json:"priceAtOrderTime"`
	Product          *Product        `json:"product,omitempty"`
}

// OrderRequest creates an order shell.
type OrderRequest struct {
	UserID      int64           `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// OrderLineRequest attaches one line item to an order. Field names follow
// the backend's mixed snake/camel convention.
type OrderLineRequest struct {
	OrderID          int64           `json:"order_id"`
	ProductID        int64           `json:"product_id"`
	Quantity         int             `json:"quantity"`
	PriceAtOrderTime decimal.Decimal `json:"priceAtOrderTime"`
}

// Authority is how the backend serializes a granted role.
type Authority struct {
	Authority string `json:"authority"`
}

// AuthResponse is returned by login.
type AuthResponse struct {
	ID       int64       `json:"id"`
	Token    string      `json:"token"`
	Username string      `json:"username"`
	Roles    []Authority `json:"roles"`
}

// SessionRoles maps the wire authorities to session roles, dropping the
// framework's "ROLE_" prefix.
func (a AuthResponse) SessionRoles() []session.Role {
	roles := make([]session.Role, 0, len(a.Roles))
	for _, r := range a.Roles {
		roles = append(roles, session.Role(strings.TrimPrefix(r.Authority, "ROLE_")))
	}
	return roles
}

// RegisterResponse is returned by register.
type RegisterResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// User is the backend's user representation.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// WishItem is one wish-list entry.
type WishItem struct {
	ID      int64    `json:"id"`
	Product *Product `json:"product,omitempty"`
}

// Comment is a product comment.
type Comment struct {
	ID        int64    `json:"id"`
	ProductID int64    `json:"productId"`
	UserID    int64    `json:"userId"`
	Username  string   `json:"username,omitempty"`
	Text      string   `json:"text"`
	Date      WireTime `json:"date"`
}
