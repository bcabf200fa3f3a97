package credstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unidrive/unidrive/internal/item"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.db")

	store, err := OpenSQLite(context.Background(), path, "test-secret", 0, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func TestOpenSQLite_EmptySecret(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "s.db"), "", 0, nil)

	require.Error(t, err)
}

func TestSQLite_RoundTrip(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	expiry := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec := Record{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scope:        "files.read",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}

	require.NoError(t, store.Put(ctx, item.ServiceOneDrive, "a1", rec))

	got, ok, err := store.Get(ctx, item.ServiceOneDrive, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, "files.read", got.Scope)
	assert.Equal(t, "Bearer", got.TokenType)
	assert.True(t, got.Expiry.Equal(expiry))
}

func TestSQLite_GetAbsent(t *testing.T) {
	store := newTestSQLite(t)

	rec, ok, err := store.Get(context.Background(), item.ServiceDropbox, "nobody")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestSQLite_PutOverwrites(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item.ServiceDropbox, "a1", Record{AccessToken: "old"}))
	require.NoError(t, store.Put(ctx, item.ServiceDropbox, "a1", Record{AccessToken: "new"}))

	got, ok, err := store.Get(ctx, item.ServiceDropbox, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got.AccessToken)
}

func TestSQLite_RetentionWindow(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	require.NoError(t, store.Put(ctx, item.ServiceGoogleDrive, "a1", Record{AccessToken: "tok"}))

	// Inside the window: still readable.
	store.now = func() time.Time { return base.Add(23 * time.Hour) }
	_, ok, err := store.Get(ctx, item.ServiceGoogleDrive, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Past the window: reads as absent, no error.
	store.now = func() time.Time { return base.Add(25 * time.Hour) }
	rec, ok, err := store.Get(ctx, item.ServiceGoogleDrive, "a1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestSQLite_ClearVariants(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item.ServiceGoogleDrive, "a1", Record{AccessToken: "t1"}))
	require.NoError(t, store.Put(ctx, item.ServiceGoogleDrive, "a2", Record{AccessToken: "t2"}))
	require.NoError(t, store.Put(ctx, item.ServiceDropbox, "a3", Record{AccessToken: "t3"}))

	require.NoError(t, store.Clear(ctx, item.ServiceGoogleDrive, "a1"))
	_, ok, _ := store.Get(ctx, item.ServiceGoogleDrive, "a1")
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx, item.ServiceGoogleDrive, ""))
	_, ok, _ = store.Get(ctx, item.ServiceGoogleDrive, "a2")
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx, "", ""))
	_, ok, _ = store.Get(ctx, item.ServiceDropbox, "a3")
	assert.False(t, ok)
}

func TestSQLite_CiphertextNotPlaintext(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, item.ServiceOneDrive, "a1", Record{AccessToken: "super-secret-token"}))

	var ciphertext []byte
	err := store.DB().QueryRowContext(ctx,
		`SELECT ciphertext FROM credentials WHERE service = ? AND account_id = ?`,
		string(item.ServiceOneDrive), "a1",
	).Scan(&ciphertext)
	require.NoError(t, err)

	assert.NotContains(t, string(ciphertext), "super-secret-token")
}
