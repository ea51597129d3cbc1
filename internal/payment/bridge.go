// Package payment bridges checkout to the external payment gateway: it
// opens payment attempts, builds the hosted-page redirect, and reconciles
// the gateway's callback into order status and cart state.
package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/order"
)

// CallbackOK is the gateway's query-parameter value for a successful payment.
const CallbackOK = "OK"

// Sentinel errors for the payment flow.
var (
	ErrRequestRejected = errors.New("gateway rejected payment request")
	ErrVerifyFailed    = errors.New("payment verification failed")
)

// Gateway is the payment surface of the backend client.
type Gateway interface {
	RequestPayment(ctx context.Context, req backend.ZarinRequest) (*backend.ZarinResponse, error)
	VerifyPayment(ctx context.Context, req backend.ZarinVerify) (*backend.ZarinResponse, error)
}

// CartClearer clears a user's cart after a settled payment.
type CartClearer interface {
	Clear(ctx context.Context, userID int64) error
}

// Orders is the order surface the bridge needs.
type Orders interface {
	AttachLines(ctx context.Context, orderID int64, lines []cart.Line) (*order.AttachResult, error)
	SetStatus(ctx context.Context, orderID int64, status backend.OrderStatus) (*backend.Order, error)
}

// Config holds the gateway constants.
type Config struct {
	// MerchantID identifies the shop at the gateway.
	MerchantID string
	// CallbackURL is where the gateway redirects the customer afterwards.
	CallbackURL string
	// StartPayURL is the gateway's hosted-page base, e.g.
	// "https://sandbox.zarinpal.com/pg/StartPay". The authority is appended.
	StartPayURL string
}

// Bridge drives the two-phase payment protocol.
type Bridge struct {
	cfg     Config
	gateway Gateway
	orders  Orders
	carts   CartClearer
	intents *checkout.Intents
}

// NewBridge wires a Bridge.
func NewBridge(cfg Config, gateway Gateway, orders Orders, carts CartClearer, intents *checkout.Intents) *Bridge {
	return &Bridge{
		cfg:     cfg,
		gateway: gateway,
		orders:  orders,
		carts:   carts,
		intents: intents,
	}
}

// Begin stages the checkout intent, opens a payment attempt, and returns the
// gateway URL to send the customer to. A request-phase failure leaves no
// state mutated beyond the staged intent, which a later Retry reuses.
func (b *Bridge) Begin(ctx context.Context, intent checkout.Intent) (redirectURL string, err error) {
	if err := b.intents.Put(intent); err != nil {
		return "", errors.Wrap(err, "stage checkout intent")
	}
	return b.request(ctx, intent)
}

// Retry re-enters the request phase with the staged order and amount after
// a failed or abandoned payment.
func (b *Bridge) Retry(ctx context.Context, orderID int64) (redirectURL string, err error) {
	intent, err := b.intents.ByOrder(orderID)
	if err != nil {
		return "", err
	}
	return b.request(ctx, *intent)
}

func (b *Bridge) request(ctx context.Context, intent checkout.Intent) (string, error) {
	callback, err := callbackURL(b.cfg.CallbackURL, intent.OrderID)
	if err != nil {
		return "", errors.Wrap(err, "build callback url")
	}

	resp, err := b.gateway.RequestPayment(ctx, backend.ZarinRequest{
		MerchantID:  b.cfg.MerchantID,
		Amount:      intent.Amount,
		Description: fmt.Sprintf("order %d payment", intent.OrderID),
		CallbackURL: callback,
		Metadata: backend.ZarinMetadata{
			UserID:  strconv.FormatInt(intent.UserID, 10),
			OrderID: strconv.FormatInt(intent.OrderID, 10),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "request payment")
	}
	if resp.Data.Authority == "" || resp.Data.Code != backend.ZarinCodeOK {
		if len(resp.Errors) > 0 {
			return "", errors.Wrapf(ErrRequestRejected, "code %d: %s", resp.Errors[0].Code, resp.Errors[0].Message)
		}
		return "", errors.Wrapf(ErrRequestRejected, "code %d", resp.Data.Code)
	}
	return strings.TrimRight(b.cfg.StartPayURL, "/") + "/" + resp.Data.Authority, nil
}

// callbackURL embeds the order id in the gateway redirect so the callback
// settles exactly the checkout it belongs to, however many are staged.
func callbackURL(base string, orderID int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("orderId", strconv.FormatInt(orderID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CallbackResult reports what the callback phase did.
type CallbackResult struct {
	OrderID int64
	Paid    bool
	RefID   int64
	Attach  *order.AttachResult
}

// HandleCallback reconciles the gateway redirect for one order. The intent
// is resolved by the order id embedded in the callback URL at request time,
// so concurrent checkouts by different users settle independently. Line
// items are attached first when the order has none yet, so a replayed
// callback or an earlier crash cannot duplicate them. On Status "OK" the
// payment is verified, the order marked PAID, the cart cleared, and the
// staged intent dropped. Any other status leaves the order PENDING and the
// intent in place so the customer can retry; the attached lines stay,
// matching the storefront's established behaviour.
//
// The whole method is safe to replay: every step either checks before
// acting or tolerates being repeated.
func (b *Bridge) HandleCallback(ctx context.Context, orderID int64, authority, status string) (*CallbackResult, error) {
	if authority == "" || status == "" {
		return nil, errors.New("missing Authority or Status callback parameter")
	}
	intent, err := b.intents.ByOrder(orderID)
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	res := &CallbackResult{OrderID: intent.OrderID}

	// Attach is idempotent: AttachLines skips when lines already exist.
	attach, err := b.orders.AttachLines(ctx, intent.OrderID, intent.CartLines())
	if err != nil {
		return nil, errors.Wrap(err, "attach order lines")
	}
	res.Attach = attach

	if status != CallbackOK {
		lg.Info("Payment not completed, order left pending",
			zap.Int64("order_id", intent.OrderID),
			zap.String("status", status),
		)
		return res, nil
	}

	verify, err := b.gateway.VerifyPayment(ctx, backend.ZarinVerify{
		MerchantID: b.cfg.MerchantID,
		Amount:     intent.Amount,
		Authority:  authority,
	})
	if err != nil {
		return nil, errors.Wrap(err, "verify payment")
	}
	code := verify.Data.Code
	if code != backend.ZarinCodeOK && code != backend.ZarinCodeAlreadyVerified {
		return nil, errors.Wrapf(ErrVerifyFailed, "code %d", code)
	}
	res.RefID = verify.Data.RefID

	if _, err := b.orders.SetStatus(ctx, intent.OrderID, backend.StatusPaid); err != nil {
		// Code 101 means an earlier replay already settled this payment;
		// the order may already be PAID then.
		if !(code == backend.ZarinCodeAlreadyVerified && errors.Is(err, order.ErrIllegalTransition)) {
			return nil, errors.Wrap(err, "mark order paid")
		}
	}
	res.Paid = true

	// Money has moved; cleanup failures must not mask the success.
	if err := b.carts.Clear(ctx, intent.UserID); err != nil {
		lg.Error("Failed to clear cart after payment",
			zap.Int64("user_id", intent.UserID), zap.Error(err))
	}
	if err := b.intents.Drop(intent.OrderID); err != nil {
		lg.Error("Failed to drop checkout intent",
			zap.Int64("order_id", intent.OrderID), zap.Error(err))
	}

	lg.Info("Payment settled",
		zap.Int64("order_id", intent.OrderID),
		zap.Int64("ref_id", res.RefID),
	)
	return res, nil
}
