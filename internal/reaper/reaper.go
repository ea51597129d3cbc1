// Package reaper expires unpaid orders. A PENDING order older than the
// configured TTL is deleted from the backend. Running it service-side on a
// ticker fixes the legacy web client's weakness of a 24-hour browser timer
// that never survived a page reload.
package reaper

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/backend"
)

// DefaultTTL is how long a PENDING order may stay unpaid.
const DefaultTTL = 24 * time.Hour

// API is the backend surface the reaper needs.
type API interface {
	OrdersByUser(ctx context.Context, userID int64) ([]backend.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
}

// UserSource yields the users whose orders should be scanned.
type UserSource interface {
	Users() []int64
}

// Reaper periodically deletes expired PENDING orders.
type Reaper struct {
	api   API
	users UserSource
	ttl   time.Duration
	now   func() time.Time
}

// New returns a Reaper with the given TTL; a non-positive TTL falls back to
// DefaultTTL.
func New(api API, users UserSource, ttl time.Duration) *Reaper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reaper{
		api:   api,
		users: users,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Run scans on every tick until ctx is canceled. Scan errors are logged,
// not fatal; the next tick retries.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Scan(ctx); err != nil {
				lg.Error("Pending-order scan failed", zap.Error(err))
			}
		}
	}
}

// Scan sweeps every tracked user and returns how many orders were reaped.
func (r *Reaper) Scan(ctx context.Context) (int, error) {
	reaped := 0
	for _, userID := range r.users.Users() {
		n, err := r.Sweep(ctx, userID)
		if err != nil {
			return reaped, errors.Wrapf(err, "sweep user %d", userID)
		}
		reaped += n
	}
	return reaped, nil
}

// Sweep deletes the user's expired PENDING orders. Only orders strictly past
// createdAt+TTL are touched; anything younger, and anything not PENDING, is
// left alone. Individual delete failures are logged and the sweep continues.
func (r *Reaper) Sweep(ctx context.Context, userID int64) (int, error) {
	orders, err := r.api.OrdersByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "list orders")
	}

	lg := zctx.From(ctx)
	now := r.now()
	reaped := 0
	for _, o := range orders {
		if o.Status != backend.StatusPending {
			continue
		}
		if o.Date.IsZero() || !now.After(o.Date.Add(r.ttl)) {
			continue
		}
		if err := r.api.DeleteOrder(ctx, o.ID); err != nil {
			lg.Error("Failed to delete expired order",
				zap.Int64("order_id", o.ID),
				zap.Error(err),
			)
			continue
		}
		lg.Info("Deleted expired pending order",
			zap.Int64("order_id", o.ID),
			zap.Int64("user_id", userID),
			zap.Time("created_at", o.Date.Time),
		)
		reaped++
	}
	return reaped, nil
}
