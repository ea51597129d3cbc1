// Package session holds the authenticated user's state: bearer token, user
// id, username, and role claims. The legacy web client scattered these
// across browser-local storage keys; here they live behind an explicit
// accessor backed by a kv.Store.
package session

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/storefront-checkout/internal/kv"
)

// Role is a backend-issued role claim. A user may hold several.
type Role string

const (
	RoleUser     Role = "USER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

// ErrNoSession is returned when no authenticated session is stored.
var ErrNoSession = errors.New("no active session")

const (
	keyToken    = "token"
	keyUserID   = "userId"
	keyUsername = "username"
	keyRoles    = "roles"
)

// Accessor reads and writes the current session.
type Accessor struct {
	store kv.Store
	now   func() time.Time
}

// New returns an Accessor backed by store.
func New(store kv.Store) *Accessor {
	return &Accessor{store: store, now: time.Now}
}

// Session is a snapshot of the stored session state.
type Session struct {
	Token    string
	UserID   int64
	Username string
	Roles    []Role
}

// HasRole reports whether the session carries the given role claim.
func (s Session) HasRole(role Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Begin stores a freshly authenticated session.
func (a *Accessor) Begin(token string, userID int64, username string, roles []Role) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return errors.Wrap(err, "encode roles")
	}
	if err := a.store.Set(keyToken, token); err != nil {
		return errors.Wrap(err, "store token")
	}
	if err := a.store.Set(keyUserID, strconv.FormatInt(userID, 10)); err != nil {
		return errors.Wrap(err, "store user id")
	}
	if err := a.store.Set(keyUsername, username); err != nil {
		return errors.Wrap(err, "store username")
	}
	if err := a.store.Set(keyRoles, string(rolesJSON)); err != nil {
		return errors.Wrap(err, "store roles")
	}
	return nil
}

// Current returns the stored session. ErrNoSession is returned when no token
// is stored or the token has expired; an expired session is cleared as a
// side effect, mirroring the forced-logout behaviour of the API client.
func (a *Accessor) Current() (Session, error) {
	token, ok := a.store.Get(keyToken)
	if !ok || token == "" {
		return Session{}, ErrNoSession
	}
	if expired, _ := tokenExpired(token, a.now()); expired {
		_ = a.Clear()
		return Session{}, ErrNoSession
	}

	s := Session{Token: token}
	if v, ok := a.store.Get(keyUserID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Session{}, errors.Wrap(err, "parse user id")
		}
		s.UserID = id
	}
	s.Username, _ = a.store.Get(keyUsername)
	if v, ok := a.store.Get(keyRoles); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &s.Roles); err != nil {
			return Session{}, errors.Wrap(err, "decode roles")
		}
	}
	return s, nil
}

// Token returns the stored bearer token, if any. Used by the API client;
// expiry is not checked here because the backend rejects stale tokens with
// 401 anyway.
func (a *Accessor) Token() (string, bool) {
	return a.store.Get(keyToken)
}

// Clear removes all session state. Called on logout and on 401 responses.
func (a *Accessor) Clear() error {
	for _, key := range []string{keyToken, keyUserID, keyUsername, keyRoles} {
		if err := a.store.Delete(key); err != nil {
			return errors.Wrapf(err, "delete %q", key)
		}
	}
	return nil
}

// tokenExpired inspects the token's exp claim without verifying the
// signature. Verification belongs to the backend; the client only needs to
// know whether a token is worth sending.
func tokenExpired(token string, now time.Time) (bool, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Unparseable tokens are treated as expired so the caller
		// re-authenticates instead of looping on 401s.
		return true, errors.Wrap(err, "parse token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, nil
	}
	return now.After(exp.Time), nil
}
