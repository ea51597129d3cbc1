package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/backend"
	"github.com/xenking/storefront-checkout/internal/cart"
	"github.com/xenking/storefront-checkout/internal/catalog"
)

// --- Mock implementations ---

type mockAPI struct {
	mu sync.Mutex

	createResp *backend.Order
	createErr  error

	orders    map[int64]*backend.Order
	userList  []backend.Order
	listErr   error
	statusSet []backend.OrderStatus

	attached  []backend.OrderLineRequest
	attachErr map[int64]error
}

func (m *mockAPI) CreateOrder(_ context.Context, _ int64) (*backend.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.createResp != nil {
		return m.createResp, nil
	}
	return &backend.Order{ID: 42, Status: backend.StatusPending}, nil
}

func (m *mockAPI) Order(_ context.Context, orderID int64) (*backend.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return o, nil
}

func (m *mockAPI) OrdersByUser(_ context.Context, _ int64) ([]backend.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.userList, nil
}

func (m *mockAPI) UpdateOrderStatus(_ context.Context, orderID int64, status backend.OrderStatus) (*backend.Order, error) {
	m.statusSet = append(m.statusSet, status)
	return &backend.Order{ID: orderID, Status: status}, nil
}

func (m *mockAPI) AttachOrderLine(_ context.Context, req backend.OrderLineRequest) (*backend.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.attachErr[req.ProductID]; err != nil {
		return nil, err
	}
	m.attached = append(m.attached, req)
	return &backend.OrderLine{ID: int64(len(m.attached)), Quantity: req.Quantity, PriceAtOrderTime: req.PriceAtOrderTime}, nil
}

// --- Helpers ---

func wireDate(t time.Time) backend.WireTime {
	return backend.WireTime{Time: t}
}

func testLine(productID int64, qty int, unit string) cart.Line {
	price := decimal.RequireFromString(unit)
	return cart.Line{
		Product:   catalog.Product{ID: productID},
		Quantity:  qty,
		UnitPrice: price,
		Total:     price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// --- Tests ---

func TestCreateOrder_ResponseCarriesID(t *testing.T) {
	api := &mockAPI{createResp: &backend.Order{ID: 42, Status: backend.StatusPending}}
	a := New(api)

	o, err := a.CreateOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
}

func TestCreateOrder_FallbackToNewestOrder(t *testing.T) {
	now := time.Now()
	api := &mockAPI{
		createResp: &backend.Order{}, // backend omitted the id
		userList: []backend.Order{
			{ID: 40, Date: wireDate(now.Add(-2 * time.Hour))},
			{ID: 42, Date: wireDate(now)},
			{ID: 41, Date: wireDate(now.Add(-time.Hour))},
		},
	}
	a := New(api)

	o, err := a.CreateOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
}

func TestCreateOrder_FallbackEmptyList(t *testing.T) {
	api := &mockAPI{createResp: &backend.Order{}}
	a := New(api)

	_, err := a.CreateOrder(context.Background(), 7)
	require.ErrorIs(t, err, ErrOrderNotCreated)
}

func TestAttachLines_NoLines(t *testing.T) {
	a := New(&mockAPI{})

	_, err := a.AttachLines(context.Background(), 42, nil)
	require.ErrorIs(t, err, ErrNoLines)
}

func TestAttachLines_SnapshotsPrices(t *testing.T) {
	api := &mockAPI{orders: map[int64]*backend.Order{
		42: {ID: 42, Status: backend.StatusPending},
	}}
	a := New(api)

	res, err := a.AttachLines(context.Background(), 42, []cart.Line{
		testLine(1, 2, "84.9915"),
		testLine(2, 1, "10"),
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Attached)
	assert.Empty(t, res.Failed)
	// 2*84.9915 + 10 = 179.983
	assert.True(t, res.Total.Equal(decimal.RequireFromString("179.983")), "got %s", res.Total)
	assert.Len(t, api.attached, 2)
}

func TestAttachLines_SkipsWhenOrderAlreadyHasLines(t *testing.T) {
	api := &mockAPI{orders: map[int64]*backend.Order{
		42: {ID: 42, Lines: []backend.OrderLine{
			{Quantity: 2, PriceAtOrderTime: decimal.NewFromInt(450)},
		}},
	}}
	a := New(api)

	res, err := a.AttachLines(context.Background(), 42, []cart.Line{testLine(1, 2, "450")})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Attached)
	assert.True(t, res.Total.Equal(decimal.NewFromInt(900)))
	assert.Empty(t, api.attached, "no duplicate lines may be created")
}

func TestAttachLines_PartialFailureExcludedFromTotal(t *testing.T) {
	api := &mockAPI{
		orders:    map[int64]*backend.Order{42: {ID: 42}},
		attachErr: map[int64]error{2: errors.New("backend hiccup")},
	}
	a := New(api)

	res, err := a.AttachLines(context.Background(), 42, []cart.Line{
		testLine(1, 2, "450"),
		testLine(2, 1, "100"),
		testLine(3, 1, "50"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attached)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, int64(2), res.Failed[0].ProductID)
	// 2*450 + 50; the failed line's 100 is excluded.
	assert.True(t, res.Total.Equal(decimal.NewFromInt(950)), "got %s", res.Total)
}

func TestSetStatus_LegalTransition(t *testing.T) {
	api := &mockAPI{orders: map[int64]*backend.Order{
		42: {ID: 42, Status: backend.StatusPending},
	}}
	a := New(api)

	o, err := a.SetStatus(context.Background(), 42, backend.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusPaid, o.Status)
	assert.Equal(t, []backend.OrderStatus{backend.StatusPaid}, api.statusSet)
}

func TestSetStatus_IllegalTransition(t *testing.T) {
	api := &mockAPI{orders: map[int64]*backend.Order{
		42: {ID: 42, Status: backend.StatusShipped},
	}}
	a := New(api)

	_, err := a.SetStatus(context.Background(), 42, backend.StatusPending)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Empty(t, api.statusSet, "backend must not be called for illegal transitions")
}

func TestCancel(t *testing.T) {
	api := &mockAPI{orders: map[int64]*backend.Order{
		42: {ID: 42, Status: backend.StatusPending},
	}}
	a := New(api)

	o, err := a.Cancel(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, backend.StatusCanceled, o.Status)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to backend.OrderStatus
		ok       bool
	}{
		{backend.StatusPending, backend.StatusPaid, true},
		{backend.StatusPending, backend.StatusCanceled, true},
		{backend.StatusPending, backend.StatusShipped, false},
		{backend.StatusPaid, backend.StatusShipped, true},
		{backend.StatusPaid, backend.StatusPending, false},
		{backend.StatusPaid, backend.StatusCanceled, false},
		{backend.StatusShipped, backend.StatusPaid, false},
		{backend.StatusCanceled, backend.StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDerivedTotal_IgnoresStoredTotalAmount(t *testing.T) {
	o := &backend.Order{
		TotalAmount: decimal.NewFromInt(99999), // stale shell value
		Lines: []backend.OrderLine{
			{Quantity: 2, PriceAtOrderTime: decimal.RequireFromString("84.9915")},
			{Quantity: 1, PriceAtOrderTime: decimal.NewFromInt(10)},
		},
	}
	assert.True(t, DerivedTotal(o).Equal(decimal.RequireFromString("179.983")))
}

func TestAssembly_FullSequence(t *testing.T) {
	api := &mockAPI{
		createResp: &backend.Order{ID: 42, Status: backend.StatusPending},
		orders: map[int64]*backend.Order{
			42: {ID: 42, Status: backend.StatusPending},
		},
	}
	a := New(api)

	asm := a.Begin(7)
	assert.Equal(t, StateDraft, asm.State())

	require.NoError(t, asm.Create(context.Background()))
	assert.Equal(t, StateCreated, asm.State())

	require.NoError(t, asm.Attach(context.Background(), []cart.Line{testLine(1, 1, "450")}))
	assert.Equal(t, StateProductsAttached, asm.State())

	require.NoError(t, asm.Finalize(context.Background(), true))
	assert.Equal(t, StateFinalized, asm.State())
	assert.Equal(t, backend.StatusPaid, asm.Order.Status)
}

func TestAssembly_OutOfOrderSteps(t *testing.T) {
	a := New(&mockAPI{createResp: &backend.Order{ID: 42}})

	asm := a.Begin(7)
	require.ErrorIs(t, asm.Attach(context.Background(), []cart.Line{testLine(1, 1, "10")}), ErrWrongAssemblyState)
	require.ErrorIs(t, asm.Finalize(context.Background(), true), ErrWrongAssemblyState)

	require.NoError(t, asm.Create(context.Background()))
	require.ErrorIs(t, asm.Create(context.Background()), ErrWrongAssemblyState)
}

func TestAssembly_FinalizeUnpaidLeavesPending(t *testing.T) {
	api := &mockAPI{
		createResp: &backend.Order{ID: 42, Status: backend.StatusPending},
		orders: map[int64]*backend.Order{
			42: {ID: 42, Status: backend.StatusPending},
		},
	}
	a := New(api)

	asm := a.Begin(7)
	require.NoError(t, asm.Create(context.Background()))
	require.NoError(t, asm.Attach(context.Background(), []cart.Line{testLine(1, 1, "450")}))
	require.NoError(t, asm.Finalize(context.Background(), false))

	assert.Equal(t, StateFinalized, asm.State())
	assert.Empty(t, api.statusSet, "unpaid finalize must not touch the status")
}
