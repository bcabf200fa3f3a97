// Package httpapi exposes the aggregation, search, navigation, and
// account operations as a JSON HTTP surface. Identity gating is
// assumed upstream; the handlers serve whoever reaches them.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/unidrive/unidrive/internal/account"
	"github.com/unidrive/unidrive/internal/aggregate"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/nav"
	"github.com/unidrive/unidrive/internal/provider"
)

// Handler serves the JSON API. Construct with NewHandler.
type Handler struct {
	engine      *aggregate.Engine
	machine     *nav.Machine
	broadcaster *nav.Broadcaster
	auth        *account.Authenticator
	registry    account.Registry
	baseURL     string
	logger      *slog.Logger

	mux *http.ServeMux
}

// NewHandler wires the API routes. baseURL is the externally reachable
// prefix used to build OAuth callback URLs.
func NewHandler(
	engine *aggregate.Engine,
	machine *nav.Machine,
	broadcaster *nav.Broadcaster,
	auth *account.Authenticator,
	registry account.Registry,
	baseURL string,
	logger *slog.Logger,
) *Handler {
	h := &Handler{
		engine:      engine,
		machine:     machine,
		broadcaster: broadcaster,
		auth:        auth,
		registry:    registry,
		baseURL:     baseURL,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/list", h.handleList)
	h.mux.HandleFunc("GET /api/search", h.handleSearch)
	h.mux.HandleFunc("GET /api/open", h.handleOpen)
	h.mux.HandleFunc("GET /api/accounts", h.handleAccounts)
	h.mux.HandleFunc("DELETE /api/accounts/{service}/{id}", h.handleRemoveAccount)
	h.mux.HandleFunc("GET /api/navigate", h.handleNavigate)
	h.mux.HandleFunc("GET /api/location/ws", h.handleLocationFeed)
	h.mux.HandleFunc("GET /auth/{service}/start", h.handleAuthStart)
	h.mux.HandleFunc("GET /auth/{service}/callback", h.handleAuthCallback)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("writing response failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps the failure taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// handleList serves GET /api/list?folder=&service=&account=. A missing
// folder means the aggregated root.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	loc := nav.ParseLocation(r.URL.Query())

	listing, err := h.engine.ListFolder(r.Context(), loc.Ref())
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

// handleSearch serves GET /api/search?q=&services=a&services=b. Absent
// services means every known service.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	active := item.Services()

	if raw, ok := r.URL.Query()["services"]; ok {
		active = active[:0]
		for _, s := range raw {
			active = append(active, item.Service(s))
		}
	}

	listing, err := h.engine.Search(r.Context(), q, active)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

// handleOpen serves GET /api/open?service=&account=&item=.
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	service := item.Service(q.Get("service"))
	accountID := q.Get("account")
	itemID := q.Get("item")

	if service == "" || accountID == "" || itemID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("service, account, and item are required"))
		return
	}

	url, err := h.engine.OpenLink(r.Context(), service, accountID, itemID)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type accountBody struct {
	ID      string       `json:"id"`
	Service item.Service `json:"service"`
	Name    string       `json:"name,omitempty"`
	Email   string       `json:"email,omitempty"`
}

// handleAccounts serves GET /api/accounts.
func (h *Handler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.registry.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]accountBody, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountBody{ID: a.ID, Service: a.Service, Name: a.Name, Email: a.Email})
	}

	h.writeJSON(w, http.StatusOK, map[string][]accountBody{"accounts": out})
}

// handleRemoveAccount serves DELETE /api/accounts/{service}/{id}.
func (h *Handler) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	service := item.Service(r.PathValue("service"))
	if !service.Known() {
		h.writeError(w, http.StatusBadRequest, errors.New("unknown service"))
		return
	}

	if err := h.auth.Disconnect(r.Context(), service, r.PathValue("id")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	// With no accounts left there is nothing to browse; navigation
	// falls back to the initial root state.
	remaining, err := h.registry.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if len(remaining) == 0 {
		h.machine.Reset()
	}

	w.WriteHeader(http.StatusNoContent)
}

// navigateBody is the response for /api/navigate.
type navigateBody struct {
	Location nav.Location      `json:"location"`
	Query    string            `json:"query"`
	Crumbs   []item.Breadcrumb `json:"breadcrumbs"`
	Listing  aggregate.Listing `json:"listing"`
}

// handleNavigate serves GET /api/navigate. With item parameters it
// drives the state machine into that folder; with ?root=1 it jumps to
// the root; with only location parameters it adopts a deep link. The
// response carries the breadcrumbs, the canonical location query
// string, and the listing of the resulting folder.
func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("root") == "1":
		h.machine.NavigateToRoot()
	case q.Has("item"):
		h.machine.NavigateTo(item.Item{
			ID:       q.Get("item"),
			Name:     q.Get("name"),
			Kind:     item.KindFolder,
			Service:  item.Service(q.Get("service")),
			Account:  q.Get("account"),
			ParentID: q.Get("parent"),
		})
	default:
		h.machine.HandleLocationChange(nav.ParseLocation(q))
	}

	loc := h.machine.Current()

	listing, err := h.engine.ListFolder(r.Context(), loc.Ref())
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, navigateBody{
		Location: loc,
		Query:    loc.Encode(),
		Crumbs:   h.machine.Breadcrumbs(),
		Listing:  listing,
	})
}

// handleAuthStart serves GET /auth/{service}/start: redirects the
// browser to the provider's consent screen.
func (h *Handler) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	service := item.Service(r.PathValue("service"))
	if !service.Known() {
		h.writeError(w, http.StatusBadRequest, errors.New("unknown service"))
		return
	}

	callback := h.baseURL + "/auth/" + string(service) + "/callback"

	authURL, _, err := h.auth.BeginAuth(service, callback)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleAuthCallback serves GET /auth/{service}/callback: completes the
// flow begun by handleAuthStart.
func (h *Handler) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		h.writeError(w, http.StatusBadRequest, errors.New("authorization failed: "+errParam))
		return
	}

	acct, err := h.auth.CompleteAuth(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, http.StatusOK, accountBody{
		ID: acct.ID, Service: acct.Service, Name: acct.Name, Email: acct.Email,
	})
}
