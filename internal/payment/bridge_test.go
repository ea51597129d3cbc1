package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/kv"
	"github.com/xenking/storefront-checkout/internal/order"
)

// --- Mock implementations ---

type mockGateway struct {
	requestResp *backend.ZarinResponse
	requestErr  error
	requests    []backend.ZarinRequest

	verifyResp *backend.ZarinResponse
	verifyErr  error
	verifies   []backend.ZarinVerify
}

func (m *mockGateway) RequestPayment(_ context.Context, req backend.ZarinRequest) (*backend.ZarinResponse, error) {
	m.requests = append(m.requests, req)
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	return m.requestResp, nil
}

func (m *mockGateway) VerifyPayment(_ context.Context, req backend.ZarinVerify) (*backend.ZarinResponse, error) {
	m.verifies = append(m.verifies, req)
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResp, nil
}

type mockOrders struct {
	attachResult *order.AttachResult
	attachErr    error
	attachCalls  int
	attachedTo   []int64

	statusErr  error
	statusSets []backend.OrderStatus
	statusTo   []int64
}

func (m *mockOrders) AttachLines(_ context.Context, orderID int64, _ []cart.Line) (*order.AttachResult, error) {
	m.attachCalls++
	m.attachedTo = append(m.attachedTo, orderID)
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	if m.attachResult != nil {
		return m.attachResult, nil
	}
	return &order.AttachResult{Attached: 1}, nil
}

func (m *mockOrders) SetStatus(_ context.Context, orderID int64, status backend.OrderStatus) (*backend.Order, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	m.statusSets = append(m.statusSets, status)
	m.statusTo = append(m.statusTo, orderID)
	return &backend.Order{ID: orderID, Status: status}, nil
}

type mockCarts struct {
	clearErr     error
	clearCalls   int
	clearedUsers []int64
}

func (m *mockCarts) Clear(_ context.Context, userID int64) error {
	m.clearCalls++
	m.clearedUsers = append(m.clearedUsers, userID)
	return m.clearErr
}

// --- Helpers ---

func okRequestResp() *backend.ZarinResponse {
	return &backend.ZarinResponse{Data: backend.ZarinData{Authority: "A000123", Code: 100}}
}

func okVerifyResp() *backend.ZarinResponse {
	return &backend.ZarinResponse{Data: backend.ZarinData{Code: 100, RefID: 987654}}
}

func testIntent() checkout.Intent {
	return checkout.Intent{OrderID: 42, UserID: 7, Amount: 1500}
}

func newTestBridge(gw *mockGateway, orders *mockOrders, carts *mockCarts) (*Bridge, *checkout.Intents) {
	intents := checkout.NewIntents(kv.NewMemory())
	b := NewBridge(Config{
		MerchantID:  "m-1",
		CallbackURL: "https://shop.example.com/callback",
		StartPayURL: "https://sandbox.zarinpal.com/pg/StartPay",
	}, gw, orders, carts, intents)
	return b, intents
}

// --- Tests ---

func TestBegin_StagesIntentAndBuildsRedirect(t *testing.T) {
	gw := &mockGateway{requestResp: okRequestResp()}
	b, intents := newTestBridge(gw, &mockOrders{}, &mockCarts{})

	redirect, err := b.Begin(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.zarinpal.com/pg/StartPay/A000123", redirect)

	staged, err := intents.ByOrder(42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), staged.OrderID)

	require.Len(t, gw.requests, 1)
	assert.Equal(t, "m-1", gw.requests[0].MerchantID)
	assert.Equal(t, int64(1500), gw.requests[0].Amount)
	assert.Equal(t, "7", gw.requests[0].Metadata.UserID)
	assert.Equal(t, "42", gw.requests[0].Metadata.OrderID)
	// The callback URL carries the order id so the redirect identifies
	// which staged checkout it settles.
	assert.Equal(t, "https://shop.example.com/callback?orderId=42", gw.requests[0].CallbackURL)
}

func TestBegin_RejectedRequestKeepsIntent(t *testing.T) {
	gw := &mockGateway{requestResp: &backend.ZarinResponse{
		Errors: []backend.ZarinError{{Code: -9, Message: "validation error"}},
	}}
	b, intents := newTestBridge(gw, &mockOrders{}, &mockCarts{})

	_, err := b.Begin(context.Background(), testIntent())
	require.ErrorIs(t, err, ErrRequestRejected)

	// The staged intent stays so the customer can retry.
	_, err = intents.ByOrder(42)
	require.NoError(t, err)
}

func TestRetry_ReusesStagedIntent(t *testing.T) {
	gw := &mockGateway{requestResp: okRequestResp()}
	b, intents := newTestBridge(gw, &mockOrders{}, &mockCarts{})
	require.NoError(t, intents.Put(testIntent()))

	redirect, err := b.Retry(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.zarinpal.com/pg/StartPay/A000123", redirect)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(1500), gw.requests[0].Amount)
}

func TestRetry_NoIntent(t *testing.T) {
	b, _ := newTestBridge(&mockGateway{}, &mockOrders{}, &mockCarts{})

	_, err := b.Retry(context.Background(), 42)
	require.ErrorIs(t, err, checkout.ErrNoIntent)
}

func TestRetry_ResolvesByOrder(t *testing.T) {
	gw := &mockGateway{requestResp: okRequestResp()}
	b, intents := newTestBridge(gw, &mockOrders{}, &mockCarts{})
	require.NoError(t, intents.Put(checkout.Intent{OrderID: 101, UserID: 1, Amount: 1000}))
	require.NoError(t, intents.Put(checkout.Intent{OrderID: 202, UserID: 2, Amount: 2000}))

	// Retrying the first order must not pick up the later-staged one.
	_, err := b.Retry(context.Background(), 101)
	require.NoError(t, err)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(1000), gw.requests[0].Amount)
	assert.Equal(t, "101", gw.requests[0].Metadata.OrderID)
}

func TestHandleCallback_Settled(t *testing.T) {
	gw := &mockGateway{verifyResp: okVerifyResp()}
	orders := &mockOrders{}
	carts := &mockCarts{}
	b, intents := newTestBridge(gw, orders, carts)
	require.NoError(t, intents.Put(testIntent()))

	res, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, int64(42), res.OrderID)
	assert.Equal(t, int64(987654), res.RefID)

	assert.Equal(t, 1, orders.attachCalls)
	assert.Equal(t, []backend.OrderStatus{backend.StatusPaid}, orders.statusSets)
	assert.Equal(t, 1, carts.clearCalls)

	require.Len(t, gw.verifies, 1)
	assert.Equal(t, "A000123", gw.verifies[0].Authority)
	assert.Equal(t, int64(1500), gw.verifies[0].Amount)

	_, err = intents.ByOrder(42)
	require.ErrorIs(t, err, checkout.ErrNoIntent)
}

func TestHandleCallback_ConcurrentCheckoutsStayIsolated(t *testing.T) {
	// Two users have checkouts in flight at once; the earlier-staged one
	// settles first. Its callback must touch only its own order, amount,
	// and cart, not whichever intent was staged last.
	gw := &mockGateway{verifyResp: okVerifyResp()}
	orders := &mockOrders{}
	carts := &mockCarts{}
	b, intents := newTestBridge(gw, orders, carts)
	require.NoError(t, intents.Put(checkout.Intent{OrderID: 101, UserID: 1, Amount: 1000}))
	require.NoError(t, intents.Put(checkout.Intent{OrderID: 202, UserID: 2, Amount: 2000}))

	res, err := b.HandleCallback(context.Background(), 101, "A000111", "OK")
	require.NoError(t, err)
	assert.Equal(t, int64(101), res.OrderID)
	assert.True(t, res.Paid)

	assert.Equal(t, []int64{101}, orders.attachedTo)
	assert.Equal(t, []int64{101}, orders.statusTo)
	assert.Equal(t, []int64{1}, carts.clearedUsers)
	require.Len(t, gw.verifies, 1)
	assert.Equal(t, int64(1000), gw.verifies[0].Amount)

	// The first intent is settled and gone; the second is untouched.
	_, err = intents.ByOrder(101)
	require.ErrorIs(t, err, checkout.ErrNoIntent)
	other, err := intents.ByOrder(202)
	require.NoError(t, err)
	assert.Equal(t, int64(2), other.UserID)
	assert.Equal(t, int64(2000), other.Amount)
}

func TestHandleCallback_FailedStatusLeavesOrderPending(t *testing.T) {
	gw := &mockGateway{}
	orders := &mockOrders{}
	carts := &mockCarts{}
	b, intents := newTestBridge(gw, orders, carts)
	require.NoError(t, intents.Put(testIntent()))

	res, err := b.HandleCallback(context.Background(), 42, "A000123", "NOK")
	require.NoError(t, err)
	assert.False(t, res.Paid)

	// Lines are attached even on failure; the order just stays PENDING.
	assert.Equal(t, 1, orders.attachCalls)
	assert.Empty(t, orders.statusSets)
	assert.Empty(t, gw.verifies)
	assert.Zero(t, carts.clearCalls)

	// The intent stays so Retry can re-enter the payment.
	_, err = intents.ByOrder(42)
	require.NoError(t, err)
}

func TestHandleCallback_MissingParams(t *testing.T) {
	b, intents := newTestBridge(&mockGateway{}, &mockOrders{}, &mockCarts{})
	require.NoError(t, intents.Put(testIntent()))

	_, err := b.HandleCallback(context.Background(), 42, "", "OK")
	require.Error(t, err)
	_, err = b.HandleCallback(context.Background(), 42, "A000123", "")
	require.Error(t, err)
}

func TestHandleCallback_NoIntent(t *testing.T) {
	b, _ := newTestBridge(&mockGateway{}, &mockOrders{}, &mockCarts{})

	_, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.ErrorIs(t, err, checkout.ErrNoIntent)
}

func TestHandleCallback_VerifyRejected(t *testing.T) {
	gw := &mockGateway{verifyResp: &backend.ZarinResponse{
		Data: backend.ZarinData{Code: -51},
	}}
	orders := &mockOrders{}
	carts := &mockCarts{}
	b, intents := newTestBridge(gw, orders, carts)
	require.NoError(t, intents.Put(testIntent()))

	_, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.ErrorIs(t, err, ErrVerifyFailed)
	assert.Empty(t, orders.statusSets)
	assert.Zero(t, carts.clearCalls)
}

func TestHandleCallback_ReplayAfterSettlement(t *testing.T) {
	// A replayed callback: the gateway answers 101 (already verified) and the
	// order is already PAID, so marking it PAID again fails the transition
	// check. The replay must still succeed.
	gw := &mockGateway{verifyResp: &backend.ZarinResponse{
		Data: backend.ZarinData{Code: 101, RefID: 987654},
	}}
	orders := &mockOrders{
		attachResult: &order.AttachResult{Skipped: true},
		statusErr:    order.ErrIllegalTransition,
	}
	carts := &mockCarts{}
	b, intents := newTestBridge(gw, orders, carts)
	require.NoError(t, intents.Put(testIntent()))

	res, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.True(t, res.Attach.Skipped)
}

func TestHandleCallback_AttachFailureAborts(t *testing.T) {
	orders := &mockOrders{attachErr: assert.AnError}
	b, intents := newTestBridge(&mockGateway{}, orders, &mockCarts{})
	require.NoError(t, intents.Put(testIntent()))

	_, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.ErrorIs(t, err, assert.AnError)
}

func TestHandleCallback_CartClearFailureDoesNotMaskSuccess(t *testing.T) {
	gw := &mockGateway{verifyResp: okVerifyResp()}
	carts := &mockCarts{clearErr: assert.AnError}
	b, intents := newTestBridge(gw, &mockOrders{}, carts)
	require.NoError(t, intents.Put(testIntent()))

	res, err := b.HandleCallback(context.Background(), 42, "A000123", "OK")
	require.NoError(t, err)
	assert.True(t, res.Paid)
}
