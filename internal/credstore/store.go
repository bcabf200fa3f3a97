// Package credstore owns the per-(service, account) credential records:
// created on a successful OAuth code exchange, read before every provider
// call, and removed when a provider rejects them. Records never leave the
// session boundary this store is scoped to. It is a leaf package; both
// the adapters and the engines depend on it.
//
// Token values are never logged by this package.
package credstore

import (
	"context"
	"time"

	"github.com/unidrive/unidrive/internal/item"
)

// Record is one access/refresh credential set for a (service, account).
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the record holds a usable access token at the
// given instant. A zero expiry means the provider did not report one.
// Expiry is checked by callers before use; the store itself never evicts
// on expiry.
func (r *Record) Valid(now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}

	return r.Expiry.IsZero() || now.Before(r.Expiry)
}

// Store is the injectable credential store abstraction. Get never fails
// for a missing record — absence is a valid, expected outcome reported
// via the bool. All three operations are atomic single-key operations;
// no cross-key transactions exist.
type Store interface {
	// Get returns the record for (service, accountID), or (nil, false, nil)
	// when absent.
	Get(ctx context.Context, service item.Service, accountID string) (*Record, bool, error)

	// Put creates or replaces the record for (service, accountID).
	Put(ctx context.Context, service item.Service, accountID string, rec Record) error

	// Clear removes records. An empty accountID clears every account for
	// the service; an empty service clears everything.
	Clear(ctx context.Context, service item.Service, accountID string) error
}
