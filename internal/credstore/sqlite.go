package credstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite" // driver

	"github.com/unidrive/unidrive/internal/item"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultRetention is how long a stored credential stays readable.
// Rows older than the retention window read as absent; they are not
// evicted automatically.
const DefaultRetention = 24 * time.Hour

// SQLite is a session-scoped Store backed by an encrypted sqlite
// database. Records are sealed with ChaCha20-Poly1305 before they touch
// disk; the key is derived from the configured session secret.
type SQLite struct {
	db        *sql.DB
	key       []byte
	retention time.Duration
	logger    *slog.Logger

	// now is stubbed in tests to exercise the retention window.
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the session database at path,
// applies pending migrations, and returns a store sealing records with a
// key derived from secret. A zero retention uses DefaultRetention.
func OpenSQLite(
	ctx context.Context, path, secret string, retention time.Duration, logger *slog.Logger,
) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if secret == "" {
		return nil, errors.New("credstore: session secret must not be empty")
	}

	if retention <= 0 {
		retention = DefaultRetention
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credstore: opening %s: %w", path, err)
	}

	// Sole-writer: sqlite handles one writer at a time; a single
	// connection avoids SQLITE_BUSY under concurrent Put/Clear.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	key := sha256.Sum256([]byte(secret))

	return &SQLite{
		db:        db,
		key:       key[:],
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("credstore: creating migration sub-filesystem: %w", err)
	}

	prov, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("credstore: creating migration provider: %w", err)
	}

	results, err := prov.Up(ctx)
	if err != nil {
		return fmt.Errorf("credstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// DB exposes the underlying database so the account registry can share
// the same session store.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements Store. A row older than the retention window reads as
// absent; the row itself is left in place (no automatic eviction).
func (s *SQLite) Get(ctx context.Context, service item.Service, accountID string) (*Record, bool, error) {
	var (
		ciphertext []byte
		updatedAt  int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT ciphertext, updated_at FROM credentials WHERE service = ? AND account_id = ?`,
		string(service), accountID,
	).Scan(&ciphertext, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("credstore: reading record: %w", err)
	}

	if s.now().Sub(time.Unix(updatedAt, 0)) > s.retention {
		s.logger.Debug("credential past retention window, treating as absent",
			slog.String("service", string(service)),
			slog.String("account_id", accountID),
		)

		return nil, false, nil
	}

	rec, err := s.unseal(ciphertext)
	if err != nil {
		return nil, false, err
	}

	return rec, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, service item.Service, accountID string, rec Record) error {
	ciphertext, err := s.seal(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (service, account_id, ciphertext, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (service, account_id) DO UPDATE
		 SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		string(service), accountID, ciphertext, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("credstore: writing record: %w", err)
	}

	return nil
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context, service item.Service, accountID string) error {
	var err error

	switch {
	case service == "":
		_, err = s.db.ExecContext(ctx, `DELETE FROM credentials`)
	case accountID == "":
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM credentials WHERE service = ?`, string(service))
	default:
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM credentials WHERE service = ? AND account_id = ?`,
			string(service), accountID)
	}

	if err != nil {
		return fmt.Errorf("credstore: clearing records: %w", err)
	}

	return nil
}

// seal encrypts a record for storage: random nonce prefix + AEAD box.
func (s *SQLite) seal(rec Record) ([]byte, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("credstore: encoding record: %w", err)
	}

	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, fmt.Errorf("credstore: creating cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("credstore: generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// unseal decrypts a stored record.
func (s *SQLite) unseal(ciphertext []byte) (*Record, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, fmt.Errorf("credstore: creating cipher: %w", err)
	}

	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, errors.New("credstore: ciphertext too short")
	}

	nonce, box := ciphertext[:chacha20poly1305.NonceSize], ciphertext[chacha20poly1305.NonceSize:]

	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("credstore: decrypting record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("credstore: decoding record: %w", err)
	}

	return &rec, nil
}
