package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/microsoft"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// App holds the OAuth client registration for one service.
type App struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Default scopes request read access to file metadata and content plus
// the profile fields used to label the account.
var defaultScopes = map[item.Service][]string{
	item.ServiceGoogleDrive: {
		"https://www.googleapis.com/auth/drive.readonly",
		"https://www.googleapis.com/auth/userinfo.email",
	},
	item.ServiceOneDrive: {
		"offline_access",
		"Files.Read.All",
		"User.Read",
	},
	item.ServiceDropbox: {
		"files.metadata.read",
		"files.content.read",
		"account_info.read",
	},
}

func endpointFor(service item.Service) (oauth2.Endpoint, error) {
	switch service {
	case item.ServiceGoogleDrive:
		return endpoints.Google, nil
	case item.ServiceOneDrive:
		return microsoft.AzureADEndpoint("common"), nil
	case item.ServiceDropbox:
		return endpoints.Dropbox, nil
	default:
		return oauth2.Endpoint{}, fmt.Errorf("account: no OAuth endpoint for service %q", service)
	}
}

// pendingTTL bounds how long a started web flow may wait for its
// callback before the state is forgotten.
const pendingTTL = 10 * time.Minute

type pendingAuth struct {
	service  item.Service
	verifier string
	cfg      *oauth2.Config
	started  time.Time
}

// Authenticator runs OAuth authorization code + PKCE flows and lands
// the results in the credential store and the account registry.
type Authenticator struct {
	apps     map[item.Service]App
	store    credstore.Store
	registry Registry
	adapters provider.Set
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingAuth

	now func() time.Time
}

// NewAuthenticator wires an Authenticator. apps must hold a client
// registration for every service the user will connect.
func NewAuthenticator(
	apps map[item.Service]App,
	store credstore.Store,
	registry Registry,
	adapters provider.Set,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		apps:     apps,
		store:    store,
		registry: registry,
		adapters: adapters,
		logger:   logger,
		pending:  make(map[string]pendingAuth),
		now:      time.Now,
	}
}

func (a *Authenticator) config(service item.Service, redirectURL string) (*oauth2.Config, error) {
	app, ok := a.apps[service]
	if !ok || app.ClientID == "" {
		return nil, fmt.Errorf("account: no OAuth app configured for service %q", service)
	}

	ep, err := endpointFor(service)
	if err != nil {
		return nil, err
	}

	scopes := app.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes[service]
	}

	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		Endpoint:     ep,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}, nil
}

// BeginAuth starts a web authorization flow. It returns the URL the
// user's browser should visit and the state token the callback will
// echo back. The flow stays pending for pendingTTL.
func (a *Authenticator) BeginAuth(service item.Service, redirectURL string) (authURL, state string, err error) {
	cfg, err := a.config(service, redirectURL)
	if err != nil {
		return "", "", err
	}

	verifier := oauth2.GenerateVerifier()
	state = uuid.NewString()

	a.mu.Lock()
	a.prunePendingLocked()
	a.pending[state] = pendingAuth{
		service:  service,
		verifier: verifier,
		cfg:      cfg,
		started:  a.now(),
	}
	a.mu.Unlock()

	authURL = cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	a.logger.Info("authorization flow started",
		slog.String("service", string(service)),
	)

	return authURL, state, nil
}

// CompleteAuth finishes a flow started with BeginAuth: it validates the
// state, exchanges the code, stores the credential, and registers the
// account under its provider identity.
func (a *Authenticator) CompleteAuth(ctx context.Context, state, code string) (Account, error) {
	a.mu.Lock()
	p, ok := a.pending[state]
	delete(a.pending, state)
	a.prunePendingLocked()
	a.mu.Unlock()

	if !ok || a.now().Sub(p.started) > pendingTTL {
		return Account{}, errors.New("account: unknown or expired OAuth state")
	}

	return a.finish(ctx, p.service, p.cfg, code, p.verifier)
}

func (a *Authenticator) prunePendingLocked() {
	for state, p := range a.pending {
		if a.now().Sub(p.started) > pendingTTL {
			delete(a.pending, state)
		}
	}
}

// finish exchanges the authorization code, persists the credential, and
// labels the account from the provider's identity endpoint.
func (a *Authenticator) finish(
	ctx context.Context,
	service item.Service,
	cfg *oauth2.Config,
	code, verifier string,
) (Account, error) {
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Account{}, fmt.Errorf("account: exchanging authorization code: %w", err)
	}

	rec := &credstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(cfg.Scopes, " "),
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}

	adapter, ok := a.adapters[service]
	if !ok {
		return Account{}, fmt.Errorf("account: no adapter for service %q", service)
	}

	identity, err := adapter.CurrentAccount(ctx, rec)
	if err != nil {
		return Account{}, fmt.Errorf("account: fetching account identity: %w", err)
	}

	if err := a.store.Put(ctx, service, identity.ID, *rec); err != nil {
		return Account{}, fmt.Errorf("account: storing credential: %w", err)
	}

	acct := Account{
		ID:      identity.ID,
		Service: service,
		Name:    identity.Name,
		Email:   identity.Email,
	}

	if err := a.registry.Add(ctx, acct); err != nil {
		return Account{}, fmt.Errorf("account: registering account: %w", err)
	}

	a.logger.Info("account connected",
		slog.String("service", string(service)),
		slog.String("account", acct.ID),
		slog.Time("expiry", tok.Expiry),
	)

	return acct, nil
}

// ReauthURL starts a fresh flow for an account whose credential was
// rejected and returns the URL to send the user to. The completion path
// is the same web callback as BeginAuth.
func (a *Authenticator) ReauthURL(service item.Service, redirectURL string) (string, error) {
	authURL, _, err := a.BeginAuth(service, redirectURL)
	return authURL, err
}

// Disconnect removes an account and clears its stored credential.
func (a *Authenticator) Disconnect(ctx context.Context, service item.Service, accountID string) error {
	if err := a.store.Clear(ctx, service, accountID); err != nil {
		return fmt.Errorf("account: clearing credential: %w", err)
	}

	if err := a.registry.Remove(ctx, service, accountID); err != nil {
		return err
	}

	a.logger.Info("account disconnected",
		slog.String("service", string(service)),
		slog.String("account", accountID),
	)

	return nil
}

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the
// callback handler.
type callbackResult struct {
	code string
	err  error
}

// BrowserLogin performs the authorization code + PKCE flow for the CLI:
//  1. Binds a localhost HTTP server on a random port
//  2. Opens the browser to the service's authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code, stores the credential, registers the account
//
// openURL is called with the authorization URL; the CLI uses it to
// launch the default browser. If openURL fails, the URL is printed to
// stderr so the user can open it manually.
func (a *Authenticator) BrowserLogin(
	ctx context.Context,
	service item.Service,
	openURL func(string) error,
) (Account, error) {
	a.logger.Info("starting browser auth flow",
		slog.String("service", string(service)),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, a.logger)
	if err != nil {
		return Account{}, err
	}

	defer shutdownCallbackServer(srv, a.logger)

	// No path suffix — the registered "http://localhost" redirect URI
	// requires an exact path match, any port.
	cfg, err := a.config(service, fmt.Sprintf("http://localhost:%d", port))
	if err != nil {
		return Account{}, err
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, openURL, a.logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return Account{}, err
	}

	return a.finish(ctx, service, cfg, code, verifier)
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server
// with the given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("account: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("account: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("account: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux. Must be
// called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends
// the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("account: OAuth state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("account: authorization failed: %s: %s", errParam, desc)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: errors.New("account: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Account connected</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the
// URL to stderr as a fallback so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is
// canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("account: authorization canceled: %w", ctx.Err())
	}
}

// ConnectStatic registers an account backed by static credentials (the
// object store provider authenticates with an access key pair rather
// than OAuth). The key ID is stored as the access token and the secret
// as the refresh token; static credentials do not expire. Credentials
// are verified against the given adapter before anything is persisted.
// The account is registered under accountID, the caller's dispatch
// key, since the provider-reported identity for a bucket is just the
// key ID.
func (a *Authenticator) ConnectStatic(
	ctx context.Context,
	service item.Service,
	accountID string,
	adapter provider.Adapter,
	keyID, secret string,
) (Account, error) {
	rec := &credstore.Record{
		AccessToken:  keyID,
		RefreshToken: secret,
		TokenType:    "static",
	}

	identity, err := adapter.CurrentAccount(ctx, rec)
	if err != nil {
		return Account{}, fmt.Errorf("account: validating static credentials: %w", err)
	}

	if err := a.store.Put(ctx, service, accountID, *rec); err != nil {
		return Account{}, fmt.Errorf("account: storing credential: %w", err)
	}

	acct := Account{
		ID:      accountID,
		Service: service,
		Name:    identity.Name,
		Email:   identity.Email,
	}

	if acct.Name == "" {
		acct.Name = accountID
	}

	if err := a.registry.Add(ctx, acct); err != nil {
		return Account{}, err
	}

	a.logger.Info("account connected",
		slog.String("service", string(service)),
		slog.String("account", acct.ID),
	)

	return acct, nil
}
