// Package dropbox adapts the Dropbox v2 API to the unified provider
// contract. Dropbox is RPC-shaped: every operation is a POST with a JSON
// body, folders are flagged structurally via the ".tag" discriminator,
// and the root is addressed as the empty path.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// DefaultBaseURL is the Dropbox API v2 endpoint.
const DefaultBaseURL = "https://api.dropboxapi.com/2"

// Entry type tags.
const (
	tagFile   = "file"
	tagFolder = "folder"
)

// Adapter implements provider.Adapter for Dropbox.
type Adapter struct {
	baseURL string
	client  *provider.Client
	logger  *slog.Logger
}

// New creates a Dropbox adapter. An empty baseURL uses the real API;
// tests point it at an httptest server.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		baseURL: baseURL,
		client:  provider.NewClient(item.ServiceDropbox, httpClient, logger),
		logger:  logger,
	}
}

// Service implements provider.Adapter.
func (a *Adapter) Service() item.Service {
	return item.ServiceDropbox
}

// entryResponse mirrors a Dropbox metadata entry exactly. Size is a
// pointer: absent on folder entries, required on file entries.
type entryResponse struct {
	Tag            string           `json:".tag"` //nolint:tagliatelle // Dropbox union discriminator
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	PathDisplay    string           `json:"path_display"`
	ServerModified string           `json:"server_modified"`
	Size           *int64           `json:"size"`
	SharingInfo    *json.RawMessage `json:"sharing_info"`
}

type listFolderResponse struct {
	Entries []entryResponse `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

type searchMatch struct {
	Metadata struct {
		Metadata entryResponse `json:"metadata"`
	} `json:"metadata"`
}

type searchResponse struct {
	Matches []searchMatch `json:"matches"`
}

type temporaryLinkResponse struct {
	Link string `json:"link"`
}

type currentAccountResponse struct {
	AccountID string `json:"account_id"`
	Name      *struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
	Email string `json:"email"`
}

// toItem normalizes a Dropbox entry. Entries with an unknown ".tag" or
// missing identity fields are rejected rather than coerced.
func (e *entryResponse) toItem(accountID string) (item.Item, error) {
	if e.ID == "" || e.Name == "" {
		return item.Item{}, fmt.Errorf("entry missing id or name")
	}

	it := item.Item{
		ID:         e.ID,
		Name:       e.Name,
		Service:    item.ServiceDropbox,
		Account:    accountID,
		ParentID:   parentOf(e.PathDisplay),
		Path:       e.PathDisplay,
		ChildCount: item.ChildCountUnknown,
		IsShared:   e.SharingInfo != nil,
	}

	switch e.Tag {
	case tagFolder:
		it.Kind = item.KindFolder
	case tagFile:
		it.Kind = item.KindFile

		if e.Size == nil {
			return item.Item{}, fmt.Errorf("file entry %s missing size", e.ID)
		}

		it.SizeKB = item.KBFromBytes(*e.Size)
	default:
		return item.Item{}, fmt.Errorf("entry %s has unknown tag %q", e.ID, e.Tag)
	}

	if e.ServerModified != "" {
		ts, err := time.Parse(time.RFC3339, e.ServerModified)
		if err != nil {
			return item.Item{}, fmt.Errorf("unparseable server_modified %q: %w", e.ServerModified, err)
		}

		it.ModifiedAt = ts
	}

	return it, nil
}

// parentOf derives the parent folder path from a path_display value.
// Entries directly under the Dropbox root report the empty string, the
// unified marker for "the parent is the root". Dropbox accepts paths
// as folder addresses, so a non-root parent path is itself usable as
// a folder ID.
func parentOf(pathDisplay string) string {
	i := strings.LastIndex(pathDisplay, "/")
	if i <= 0 {
		return ""
	}

	return pathDisplay[:i]
}

// ListChildren implements provider.Adapter. Dropbox addresses the root
// as the empty path; any other folder is addressed by its "id:" value.
func (a *Adapter) ListChildren(
	ctx context.Context, cred *credstore.Record, accountID, folderID string,
) ([]item.Item, error) {
	path := folderID
	if folderID == item.RootFolderID {
		path = ""
	}

	var items []item.Item

	body, err := json.Marshal(map[string]any{"path": path})
	if err != nil {
		return nil, fmt.Errorf("dropbox: encoding request: %w", err)
	}

	var page listFolderResponse
	err = a.client.PostJSON(ctx, accountID,
		a.baseURL+"/files/list_folder", cred.AccessToken, bytes.NewReader(body), &page)
	if err != nil {
		return nil, err
	}

	for {
		for i := range page.Entries {
			it, convErr := page.Entries[i].toItem(accountID)
			if convErr != nil {
				return nil, provider.Malformed(item.ServiceDropbox, accountID, convErr)
			}

			items = append(items, it)
		}

		if !page.HasMore {
			break
		}

		cursorBody, marshalErr := json.Marshal(map[string]string{"cursor": page.Cursor})
		if marshalErr != nil {
			return nil, fmt.Errorf("dropbox: encoding cursor request: %w", marshalErr)
		}

		page = listFolderResponse{}

		err = a.client.PostJSON(ctx, accountID,
			a.baseURL+"/files/list_folder/continue", cred.AccessToken,
			bytes.NewReader(cursorBody), &page)
		if err != nil {
			return nil, err
		}
	}

	a.logger.Debug("listed dropbox entries",
		slog.String("account_id", accountID),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// Search implements provider.Adapter via files/search_v2.
func (a *Adapter) Search(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("dropbox: encoding search request: %w", err)
	}

	var resp searchResponse
	err = a.client.PostJSON(ctx, accountID,
		a.baseURL+"/files/search_v2", cred.AccessToken, bytes.NewReader(body), &resp)
	if err != nil {
		return nil, err
	}

	items := make([]item.Item, 0, len(resp.Matches))

	for i := range resp.Matches {
		it, convErr := resp.Matches[i].Metadata.Metadata.toItem(accountID)
		if convErr != nil {
			return nil, provider.Malformed(item.ServiceDropbox, accountID, convErr)
		}

		items = append(items, it)
	}

	return items, nil
}

// ResolveOpenLink implements provider.Adapter. Dropbox cannot turn a bare
// ID into a browser URL, but get_temporary_link accepts an "id:" path and
// returns a short-lived direct link.
func (a *Adapter) ResolveOpenLink(
	ctx context.Context, cred *credstore.Record, accountID, itemID string,
) (string, error) {
	body, err := json.Marshal(map[string]string{"path": itemID})
	if err != nil {
		return "", fmt.Errorf("dropbox: encoding link request: %w", err)
	}

	var resp temporaryLinkResponse
	err = a.client.PostJSON(ctx, accountID,
		a.baseURL+"/files/get_temporary_link", cred.AccessToken, bytes.NewReader(body), &resp)
	if err != nil {
		return "", err
	}

	if resp.Link == "" {
		return "", provider.Malformed(item.ServiceDropbox, accountID,
			fmt.Errorf("temporary link response missing link"))
	}

	return resp.Link, nil
}

// CurrentAccount implements provider.Adapter via users/get_current_account.
// The endpoint takes a JSON null body.
func (a *Adapter) CurrentAccount(ctx context.Context, cred *credstore.Record) (provider.Identity, error) {
	var resp currentAccountResponse
	err := a.client.PostJSON(ctx, "",
		a.baseURL+"/users/get_current_account", cred.AccessToken,
		bytes.NewReader([]byte("null")), &resp)
	if err != nil {
		return provider.Identity{}, err
	}

	if resp.AccountID == "" {
		return provider.Identity{}, provider.Malformed(item.ServiceDropbox, "",
			fmt.Errorf("account response missing account_id"))
	}

	id := provider.Identity{ID: resp.AccountID, Email: resp.Email}
	if resp.Name != nil {
		id.Name = resp.Name.DisplayName
	}

	return id, nil
}
