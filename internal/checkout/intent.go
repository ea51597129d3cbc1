package checkout

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/catalog"
	"github.com/xenking/storefront-checkout/internal/kv"
)

// productRef builds a product stub carrying only the id, which is all an
// attach request needs.
func productRef(id int64) catalog.Product {
	return catalog.Product{ID: id}
}

// ErrNoIntent is returned when no staged checkout matches.
var ErrNoIntent = errors.New("no pending checkout intent")

// Staging keys. The names mirror the legacy web client's storage keys so
// operators reading a dumped store recognize them.
const (
	keyCurrentOrder = "currentOrderId"
	prefixOrder     = "order_"
	suffixAmount    = "_amount"
	suffixItems     = "_cartItems"
)

// IntentLine is one cart line frozen into a checkout intent.
type IntentLine struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Intent is a persisted record of an in-flight checkout: which order is
// awaiting its payment callback, for which user and amount, and the lines
// to attach. Unlike the browser-held staging it replaces, it survives a
// process restart.
type Intent struct {
	OrderID   int64        `json:"orderId"`
	UserID    int64        `json:"userId"`
	Amount    int64        `json:"amount"`
	Lines     []IntentLine `json:"lines"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Intents stores checkout intents in a kv.Store.
type Intents struct {
	store kv.Store
}

// NewIntents returns an intent store backed by store.
func NewIntents(store kv.Store) *Intents {
	return &Intents{store: store}
}

// Put stores the intent under its order id. The currentOrderId pointer is
// kept pointing at the most recently staged checkout for store-dump
// compatibility; nothing resolves intents through it.
func (s *Intents) Put(intent Intent) error {
	id := strconv.FormatInt(intent.OrderID, 10)

	raw, err := json.Marshal(intent.Lines)
	if err != nil {
		return errors.Wrap(err, "encode intent lines")
	}
	full, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "encode intent")
	}

	if err := s.store.Set(prefixOrder+id+suffixItems, string(raw)); err != nil {
		return errors.Wrap(err, "store intent lines")
	}
	if err := s.store.Set(prefixOrder+id+suffixAmount, strconv.FormatInt(intent.Amount, 10)); err != nil {
		return errors.Wrap(err, "store intent amount")
	}
	if err := s.store.Set(prefixOrder+id, string(full)); err != nil {
		return errors.Wrap(err, "store intent")
	}
	if err := s.store.Set(keyCurrentOrder, id); err != nil {
		return errors.Wrap(err, "store current order id")
	}
	return nil
}

// ByOrder returns the staged intent for orderID, or ErrNoIntent. Several
// checkouts may be staged at once (one per user); resolution is always by
// the order id the payment callback carries, never by a shared pointer.
func (s *Intents) ByOrder(orderID int64) (*Intent, error) {
	raw, ok := s.store.Get(prefixOrder + strconv.FormatInt(orderID, 10))
	if !ok {
		return nil, ErrNoIntent
	}
	var intent Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, errors.Wrap(err, "decode intent")
	}
	return &intent, nil
}

// Drop removes the intent and all its staging keys. Called after a
// successful callback, and safe to call twice.
func (s *Intents) Drop(orderID int64) error {
	id := strconv.FormatInt(orderID, 10)
	for _, key := range []string{
		prefixOrder + id + suffixItems,
		prefixOrder + id + suffixAmount,
		prefixOrder + id,
	} {
		if err := s.store.Delete(key); err != nil {
			return errors.Wrapf(err, "delete %q", key)
		}
	}
	if current, ok := s.store.Get(keyCurrentOrder); ok && current == id {
		if err := s.store.Delete(keyCurrentOrder); err != nil {
			return errors.Wrap(err, "delete current order id")
		}
	}
	return nil
}

// Users returns the user ids with a live intent, for the pending-order
// reaper's scan.
func (s *Intents) Users() []int64 {
	var users []int64
	seen := make(map[int64]struct{})
	for _, key := range s.store.Keys(prefixOrder) {
		raw, ok := s.store.Get(key)
		if !ok {
			continue
		}
		var intent Intent
		if err := json.Unmarshal([]byte(raw), &intent); err != nil || intent.UserID == 0 {
			continue
		}
		if _, dup := seen[intent.UserID]; dup {
			continue
		}
		seen[intent.UserID] = struct{}{}
		users = append(users, intent.UserID)
	}
	return users
}

// CartLines converts intent lines back to cart lines for attachment.
func (i *Intent) CartLines() []cart.Line {
	lines := make([]cart.Line, 0, len(i.Lines))
	for _, l := range i.Lines {
		lines = append(lines, cart.Line{
			Product:   productRef(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	return lines
}
