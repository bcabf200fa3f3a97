// Package account tracks the service accounts a user has connected and
// runs the OAuth flows that connect them. One service may hold any
// number of accounts; enumeration order is insertion order, which the
// aggregation engine relies on for its merge order.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unidrive/unidrive/internal/item"
)

// Account is one connected identity within a service.
type Account struct {
	ID      string
	Service item.Service
	Name    string
	Email   string
}

// Registry stores connected accounts.
type Registry interface {
	// List returns every connected account in insertion order.
	List(ctx context.Context) ([]Account, error)

	// ByService returns the accounts connected for one service, in
	// insertion order.
	ByService(ctx context.Context, service item.Service) ([]Account, error)

	// Add registers an account, replacing any existing entry with the
	// same (service, id). A replaced entry keeps its position.
	Add(ctx context.Context, acct Account) error

	// Remove deletes an account. Removing an unknown account is not an
	// error.
	Remove(ctx context.Context, service item.Service, accountID string) error
}

// MemoryRegistry is an in-process Registry for single-process use and
// tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	accounts []Account
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// List implements Registry.
func (r *MemoryRegistry) List(context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Account, len(r.accounts))
	copy(out, r.accounts)

	return out, nil
}

// ByService implements Registry.
func (r *MemoryRegistry) ByService(_ context.Context, service item.Service) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Account

	for _, a := range r.accounts {
		if a.Service == service {
			out = append(out, a)
		}
	}

	return out, nil
}

// Add implements Registry.
func (r *MemoryRegistry) Add(_ context.Context, acct Account) error {
	if acct.ID == "" || acct.Service == "" {
		return errors.New("account: id and service are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.accounts {
		if existing.Service == acct.Service && existing.ID == acct.ID {
			r.accounts[i] = acct
			return nil
		}
	}

	r.accounts = append(r.accounts, acct)

	return nil
}

// Remove implements Registry.
func (r *MemoryRegistry) Remove(_ context.Context, service item.Service, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.accounts {
		if existing.Service == service && existing.ID == accountID {
			r.accounts = append(r.accounts[:i], r.accounts[i+1:]...)
			return nil
		}
	}

	return nil
}

// SQLiteRegistry persists accounts in the session database shared with
// the credential store (the accounts table lives in the same schema).
type SQLiteRegistry struct {
	db *sql.DB

	now func() time.Time
}

// NewSQLiteRegistry wraps the given session database.
func NewSQLiteRegistry(db *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db, now: time.Now}
}

// List implements Registry. rowid order preserves insertion order.
func (r *SQLiteRegistry) List(ctx context.Context) ([]Account, error) {
	return r.query(ctx,
		`SELECT account_id, service, name, email FROM accounts ORDER BY rowid`)
}

// ByService implements Registry.
func (r *SQLiteRegistry) ByService(ctx context.Context, service item.Service) ([]Account, error) {
	return r.query(ctx,
		`SELECT account_id, service, name, email FROM accounts WHERE service = ? ORDER BY rowid`,
		string(service))
}

func (r *SQLiteRegistry) query(ctx context.Context, q string, args ...any) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("account: listing accounts: %w", err)
	}
	defer rows.Close()

	var out []Account

	for rows.Next() {
		var (
			a   Account
			svc string
		)

		if err := rows.Scan(&a.ID, &svc, &a.Name, &a.Email); err != nil {
			return nil, fmt.Errorf("account: scanning account: %w", err)
		}

		a.Service = item.Service(svc)
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account: iterating accounts: %w", err)
	}

	return out, nil
}

// Add implements Registry.
func (r *SQLiteRegistry) Add(ctx context.Context, acct Account) error {
	if acct.ID == "" || acct.Service == "" {
		return errors.New("account: id and service are required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (account_id, service, name, email, added_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (service, account_id) DO UPDATE
		 SET name = excluded.name, email = excluded.email`,
		acct.ID, string(acct.Service), acct.Name, acct.Email, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("account: adding account: %w", err)
	}

	return nil
}

// Remove implements Registry.
func (r *SQLiteRegistry) Remove(ctx context.Context, service item.Service, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE service = ? AND account_id = ?`,
		string(service), accountID)
	if err != nil {
		return fmt.Errorf("account: removing account: %w", err)
	}

	return nil
}
