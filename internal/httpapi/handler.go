// Package httpapi exposes the checkout flows over HTTP: starting a
// checkout, receiving the payment gateway callback, retrying a failed
// payment, and listing a user's orders with derived totals.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/order"
	"github.com/xenking/storefront-checkout/internal/payment"
)

// Flow starts checkouts.
type Flow interface {
	Start(ctx context.Context, userID int64) (*checkout.Started, error)
}

// Bridge handles the payment callback and retry paths.
type Bridge interface {
	HandleCallback(ctx context.Context, orderID int64, authority, status string) (*payment.CallbackResult, error)
	Retry(ctx context.Context, orderID int64) (redirectURL string, err error)
}

// OrderLister fetches a user's orders.
type OrderLister interface {
	OrdersByUser(ctx context.Context, userID int64) ([]backend.Order, error)
}

// Handler serves the gateway routes.
type Handler struct {
	flow   Flow
	bridge Bridge
	orders OrderLister
}

// NewHandler wires a Handler.
func NewHandler(flow Flow, bridge Bridge, orders OrderLister) *Handler {
	return &Handler{flow: flow, bridge: bridge, orders: orders}
}

// Routes registers the handler's routes on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/checkout/{userID}", h.startCheckout)
	r.Post("/checkout/retry/{orderID}", h.retryPayment)
	r.Get("/callback", h.paymentCallback)
	r.Get("/orders/{userID}", h.listOrders)
	return r
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	started, err := h.flow.Start(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"orderId":     started.OrderID,
		"amount":      started.Amount,
		"redirectUrl": started.RedirectURL,
	})
}

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	// The gateway echoes the callback URL's own orderId parameter and adds
	// its capitalized Authority/Status parameters on redirect.
	orderID, err := strconv.ParseInt(r.URL.Query().Get("orderId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	authority := r.URL.Query().Get("Authority")
	status := r.URL.Query().Get("Status")

	result, err := h.bridge.HandleCallback(r.Context(), orderID, authority, status)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := map[string]any{
		"orderId": result.OrderID,
		"paid":    result.Paid,
	}
	if result.Paid {
		resp["refId"] = result.RefID
	}
	if result.Attach != nil && len(result.Attach.Failed) > 0 {
		resp["failedLineItems"] = len(result.Attach.Failed)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	redirect, err := h.bridge.Retry(r.Context(), orderID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"redirectUrl": redirect})
}

// orderSummary is one row of a user's order list. Total is always derived
// from the line items, never read from the stored totalAmount.
type orderSummary struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     int             `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	orders, err := h.orders.OrdersByUser(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	summaries := make([]orderSummary, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		summaries = append(summaries, orderSummary{
			ID:        o.ID,
			Status:    string(o.Status),
			CreatedAt: o.Date.Time,
			Items:     len(o.Lines),
			Total:     order.DerivedTotal(o),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// renderError maps domain errors onto HTTP statuses.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired, log in again")
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, backend.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "storefront backend unavailable")
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, checkout.ErrNoIntent):
		writeError(w, http.StatusConflict, "no checkout in progress")
	case errors.Is(err, payment.ErrVerifyFailed), errors.Is(err, payment.ErrRequestRejected):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, order.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}
