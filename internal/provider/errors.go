// Package provider defines the unified adapter contract that every
// cloud-storage service implements, the shared failure taxonomy, and a
// common HTTP client. Adapters translate one provider's list/search/open
// semantics into the unified item model; credentials are always explicit
// per-call arguments, never looked up ambiently.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/unidrive/unidrive/internal/item"
)

// Sentinel errors for the adapter failure taxonomy.
// Use errors.Is(err, provider.ErrUnauthorized) to check.
var (
	// ErrUnauthorized means the credential is missing, expired, or was
	// rejected. The caller must clear the credential and surface a
	// re-authentication URL.
	ErrUnauthorized = errors.New("provider: unauthorized")

	// ErrNotFound means the addressed folder or item does not exist.
	ErrNotFound = errors.New("provider: not found")

	// ErrRateLimited means the provider is throttling this account.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrTransient covers network failures and provider 5xx responses.
	// Safe to retry with backoff; adapters never retry it themselves —
	// that decision belongs to the caller.
	ErrTransient = errors.New("provider: transient failure")

	// ErrMalformed means the provider returned a payload shape the
	// adapter does not recognize.
	ErrMalformed = errors.New("provider: malformed response")
)

// CallError wraps a sentinel error with the failing service/account, the
// HTTP status (0 for network-level failures), and the provider's error
// message body for debugging.
type CallError struct {
	Service    item.Service
	Account    string
	StatusCode int
	Message    string
	RetryAfter time.Duration // from Retry-After, when the provider sent one
	Err        error         // sentinel, for errors.Is()
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s/%s: HTTP %d: %s", e.Service, e.Account, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s/%s: %s", e.Service, e.Account, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Malformed builds a CallError for an unrecognized payload shape.
func Malformed(service item.Service, account string, cause error) *CallError {
	return &CallError{
		Service: service,
		Account: account,
		Message: cause.Error(),
		Err:     ErrMalformed,
	}
}

// classifyStatus maps an HTTP status code to a taxonomy sentinel.
// 403 is treated as unauthorized: providers return it for revoked tokens
// and missing scopes, both of which are fixed by re-authentication.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrTransient
	}
}
