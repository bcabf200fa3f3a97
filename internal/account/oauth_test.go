package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// fakeAdapter answers CurrentAccount with a fixed identity and records
// the credential it was handed.
type fakeAdapter struct {
	service  item.Service
	identity provider.Identity
	err      error
	gotCred  *credstore.Record
}

func (f *fakeAdapter) Service() item.Service { return f.service }

func (f *fakeAdapter) ListChildren(context.Context, *credstore.Record, string, string) ([]item.Item, error) {
	return nil, nil
}

func (f *fakeAdapter) Search(context.Context, *credstore.Record, string, string) ([]item.Item, error) {
	return nil, nil
}

func (f *fakeAdapter) ResolveOpenLink(context.Context, *credstore.Record, string, string) (string, error) {
	return "", nil
}

func (f *fakeAdapter) CurrentAccount(_ context.Context, cred *credstore.Record) (provider.Identity, error) {
	f.gotCred = cred
	if f.err != nil {
		return provider.Identity{}, f.err
	}

	return f.identity, nil
}

func testAuthenticator(t *testing.T, adapter provider.Adapter) (*Authenticator, credstore.Store, *MemoryRegistry) {
	t.Helper()

	store := credstore.NewMemory()
	reg := NewMemoryRegistry()
	apps := map[item.Service]App{
		adapter.Service(): {ClientID: "client-id"},
	}
	auth := NewAuthenticator(apps, store, reg, provider.NewSet(adapter), slog.New(slog.DiscardHandler))

	return auth, store, reg
}

func TestBeginAuthBuildsAuthorizationURL(t *testing.T) {
	adapter := &fakeAdapter{service: item.ServiceGoogleDrive}
	auth, _, _ := testAuthenticator(t, adapter)

	authURL, state, err := auth.BeginAuth(item.ServiceGoogleDrive, "https://app.example.com/callback")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestBeginAuthUnknownService(t *testing.T) {
	adapter := &fakeAdapter{service: item.ServiceGoogleDrive}
	auth, _, _ := testAuthenticator(t, adapter)

	_, _, err := auth.BeginAuth(item.ServiceDropbox, "https://app.example.com/callback")
	assert.ErrorContains(t, err, "no OAuth app configured")
}

func TestCompleteAuthRejectsUnknownState(t *testing.T) {
	adapter := &fakeAdapter{service: item.ServiceGoogleDrive}
	auth, _, _ := testAuthenticator(t, adapter)

	_, err := auth.CompleteAuth(context.Background(), "never-issued", "code")
	assert.ErrorContains(t, err, "unknown or expired")
}

func TestCompleteAuthRejectsExpiredState(t *testing.T) {
	adapter := &fakeAdapter{service: item.ServiceGoogleDrive}
	auth, _, _ := testAuthenticator(t, adapter)

	_, state, err := auth.BeginAuth(item.ServiceGoogleDrive, "https://app.example.com/callback")
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(pendingTTL + time.Minute) }

	_, err = auth.CompleteAuth(context.Background(), state, "code")
	assert.ErrorContains(t, err, "unknown or expired")
}

// tokenServer mocks an OAuth token endpoint.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.NotEmpty(t, r.FormValue("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "exchanged-access",
			"refresh_token": "exchanged-refresh",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestFinishStoresCredentialAndRegistersAccount(t *testing.T) {
	adapter := &fakeAdapter{
		service: item.ServiceGoogleDrive,
		identity: provider.Identity{
			ID:    "user-123",
			Name:  "Toni Tester",
			Email: "toni@example.com",
		},
	}
	auth, store, reg := testAuthenticator(t, adapter)

	srv := tokenServer(t)
	cfg := &oauth2.Config{
		ClientID: "client-id",
		Endpoint: oauth2.Endpoint{
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{"scope-a", "scope-b"},
	}

	acct, err := auth.finish(context.Background(), item.ServiceGoogleDrive, cfg, "auth-code", oauth2.GenerateVerifier())
	require.NoError(t, err)

	assert.Equal(t, "user-123", acct.ID)
	assert.Equal(t, item.ServiceGoogleDrive, acct.Service)
	assert.Equal(t, "Toni Tester", acct.Name)
	assert.Equal(t, "toni@example.com", acct.Email)

	rec, ok, err := store.Get(context.Background(), item.ServiceGoogleDrive, "user-123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "exchanged-access", rec.AccessToken)
	assert.Equal(t, "exchanged-refresh", rec.RefreshToken)
	assert.Equal(t, "scope-a scope-b", rec.Scope)

	// The identity lookup saw the freshly exchanged credential.
	require.NotNil(t, adapter.gotCred)
	assert.Equal(t, "exchanged-access", adapter.gotCred.AccessToken)

	accounts, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "user-123", accounts[0].ID)
}

func TestFinishIdentityFailureLeavesNothingBehind(t *testing.T) {
	adapter := &fakeAdapter{
		service: item.ServiceGoogleDrive,
		err:     fmt.Errorf("who are you: %w", provider.ErrUnauthorized),
	}
	auth, store, reg := testAuthenticator(t, adapter)

	srv := tokenServer(t)
	cfg := &oauth2.Config{
		ClientID: "client-id",
		Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}

	_, err := auth.finish(context.Background(), item.ServiceGoogleDrive, cfg, "auth-code", oauth2.GenerateVerifier())
	require.ErrorContains(t, err, "fetching account identity")

	_, ok, err := store.Get(context.Background(), item.ServiceGoogleDrive, "user-123")
	require.NoError(t, err)
	assert.False(t, ok)

	accounts, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestConnectStatic(t *testing.T) {
	// The provider reports the key ID as its identity; the account is
	// registered under the caller's dispatch key instead.
	adapter := &fakeAdapter{
		service:  item.ServiceObjectStore,
		identity: provider.Identity{ID: "AKIAEXAMPLE"},
	}

	store := credstore.NewMemory()
	reg := NewMemoryRegistry()
	auth := NewAuthenticator(nil, store, reg, provider.NewSet(adapter), slog.New(slog.DiscardHandler))

	acct, err := auth.ConnectStatic(context.Background(), item.ServiceObjectStore, "media", adapter, "AKIAEXAMPLE", "secret")
	require.NoError(t, err)
	assert.Equal(t, "media", acct.ID)
	assert.Equal(t, "media", acct.Name)

	rec, ok, err := store.Get(context.Background(), item.ServiceObjectStore, "media")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AKIAEXAMPLE", rec.AccessToken)
	assert.Equal(t, "secret", rec.RefreshToken)
	assert.Equal(t, "static", rec.TokenType)

	accounts, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "media", accounts[0].ID)

	// Static credentials never report as expired.
	assert.True(t, rec.Valid(time.Now().Add(24*365*time.Hour)))
}

func TestConnectStatic_BadCredentialsPersistNothing(t *testing.T) {
	adapter := &fakeAdapter{
		service: item.ServiceObjectStore,
		err:     provider.ErrUnauthorized,
	}

	store := credstore.NewMemory()
	reg := NewMemoryRegistry()
	auth := NewAuthenticator(nil, store, reg, provider.NewSet(adapter), slog.New(slog.DiscardHandler))

	_, err := auth.ConnectStatic(context.Background(), item.ServiceObjectStore, "media", adapter, "bad", "creds")
	require.Error(t, err)

	_, ok, err := store.Get(context.Background(), item.ServiceObjectStore, "media")
	require.NoError(t, err)
	assert.False(t, ok)

	accounts, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestDisconnectClearsCredentialAndRegistry(t *testing.T) {
	adapter := &fakeAdapter{
		service:  item.ServiceDropbox,
		identity: provider.Identity{ID: "dbid:abc"},
	}

	store := credstore.NewMemory()
	reg := NewMemoryRegistry()
	auth := NewAuthenticator(nil, store, reg, provider.NewSet(adapter), slog.New(slog.DiscardHandler))

	require.NoError(t, store.Put(context.Background(), item.ServiceDropbox, "dbid:abc", credstore.Record{AccessToken: "tok"}))
	require.NoError(t, reg.Add(context.Background(), Account{ID: "dbid:abc", Service: item.ServiceDropbox}))

	require.NoError(t, auth.Disconnect(context.Background(), item.ServiceDropbox, "dbid:abc"))

	_, ok, err := store.Get(context.Background(), item.ServiceDropbox, "dbid:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	accounts, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestOAuthCallbackHandler(t *testing.T) {
	t.Run("state mismatch", func(t *testing.T) {
		resultCh := make(chan callbackResult, 1)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/?state=wrong&code=abc", nil)

		handleOAuthCallback(w, r, "expected", resultCh)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		result := <-resultCh
		assert.ErrorContains(t, result.err, "state mismatch")
	})

	t.Run("provider error", func(t *testing.T) {
		resultCh := make(chan callbackResult, 1)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/?state=s&error=access_denied&error_description=nope", nil)

		handleOAuthCallback(w, r, "s", resultCh)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		result := <-resultCh
		assert.ErrorContains(t, result.err, "access_denied")
	})

	t.Run("missing code", func(t *testing.T) {
		resultCh := make(chan callbackResult, 1)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/?state=s", nil)

		handleOAuthCallback(w, r, "s", resultCh)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		result := <-resultCh
		assert.ErrorContains(t, result.err, "missing authorization code")
	})

	t.Run("success", func(t *testing.T) {
		resultCh := make(chan callbackResult, 1)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/?state=s&code=the-code", nil)

		handleOAuthCallback(w, r, "s", resultCh)

		assert.Equal(t, http.StatusOK, w.Code)
		result := <-resultCh
		require.NoError(t, result.err)
		assert.Equal(t, "the-code", result.code)
	})
}
