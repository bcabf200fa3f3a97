// Package googledrive adapts the Google Drive v3 API to the unified
// provider contract.
package googledrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// DefaultBaseURL is the Google Drive v3 API endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

// folderMimeType is Drive's container sentinel: an item is a folder iff
// its MIME type equals this value.
const folderMimeType = "application/vnd.google-apps.folder"

// listPageSize is the pageSize for file list requests (Drive caps at 1000;
// 100 keeps response latency predictable).
const listPageSize = 100

// itemFields is the field projection requested on every file response.
const itemFields = "id,name,mimeType,size,modifiedTime,parents,webViewLink,webContentLink,shared"

// Adapter implements provider.Adapter for Google Drive.
type Adapter struct {
	baseURL string
	client  *provider.Client
	logger  *slog.Logger

	// Drive accepts the literal "root" alias on requests but reports
	// the real folder ID in parents, so the alias is resolved once per
	// account to recognize top-level items.
	mu      sync.Mutex
	rootIDs map[string]string
}

// New creates a Google Drive adapter. An empty baseURL uses the real API;
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
		client:  provider.NewClient(item.ServiceGoogleDrive, httpClient, logger),
		logger:  logger,
		rootIDs: make(map[string]string),
	}
}

// Service implements provider.Adapter.
func (a *Adapter) Service() item.Service {
	return item.ServiceGoogleDrive
}

// fileResponse mirrors the Drive v3 file resource exactly. Unexported —
// callers only ever see the normalized item.Item. Size is a pointer
// because Drive omits it for folders and native documents: absent means
// "no byte size", while a present-but-empty string is a malformed payload.
type fileResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MimeType       string   `json:"mimeType"`
	Size           *string  `json:"size"` // Drive reports bytes as a decimal string
	ModifiedTime   string   `json:"modifiedTime"`
	Parents        []string `json:"parents"`
	WebViewLink    string   `json:"webViewLink"`
	WebContentLink string   `json:"webContentLink"`
	Shared         bool     `json:"shared"`
}

type listResponse struct {
	Files         []fileResponse `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

type aboutResponse struct {
	User *struct {
		PermissionID string `json:"permissionId"`
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	} `json:"user"`
}

// toItem normalizes a Drive file resource. Rejects payloads missing the
// identity fields rather than coercing them.
func (f *fileResponse) toItem(accountID string) (item.Item, error) {
	if f.ID == "" || f.Name == "" {
		return item.Item{}, fmt.Errorf("file resource missing id or name")
	}

	it := item.Item{
		ID:         f.ID,
		Name:       f.Name,
		Kind:       item.KindFile,
		Service:    item.ServiceGoogleDrive,
		Account:    accountID,
		MimeType:   f.MimeType,
		ViewLink:   f.WebViewLink,
		ChildCount: item.ChildCountUnknown,
		IsShared:   f.Shared,
	}

	if f.MimeType == folderMimeType {
		it.Kind = item.KindFolder
	} else {
		it.DownloadLink = f.WebContentLink
	}

	if len(f.Parents) > 0 {
		it.ParentID = f.Parents[0]
	}

	if f.Size != nil {
		bytes, err := strconv.ParseInt(*f.Size, 10, 64)
		if err != nil {
			return item.Item{}, fmt.Errorf("unparseable size %q: %w", *f.Size, err)
		}

		it.SizeKB = item.KBFromBytes(bytes)
	}

	if f.ModifiedTime != "" {
		ts, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			return item.Item{}, fmt.Errorf("unparseable modifiedTime %q: %w", f.ModifiedTime, err)
		}

		it.ModifiedAt = ts
	}

	return it, nil
}

// ListChildren implements provider.Adapter. Drive accepts the literal
// "root" alias as a parent, so the unified root ID passes through as-is.
func (a *Adapter) ListChildren(
	ctx context.Context, cred *credstore.Record, accountID, folderID string,
) ([]item.Item, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))

	items, err := a.list(ctx, cred, accountID, query)
	if err != nil {
		return nil, err
	}

	// A root listing's children are top-level by construction; their
	// parents collapse to the unified empty-string marker without a
	// root ID lookup.
	if folderID == item.RootFolderID {
		for i := range items {
			items[i].ParentID = ""
		}
	}

	return items, nil
}

// Search implements provider.Adapter using Drive's server-side name
// matching.
func (a *Adapter) Search(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	rootID, err := a.rootID(ctx, cred, accountID)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("name contains '%s' and trashed=false", escapeQuery(query))

	items, err := a.list(ctx, cred, accountID, q)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].ParentID == rootID {
			items[i].ParentID = ""
		}
	}

	return items, nil
}

// rootID resolves and caches the real folder ID behind the "root" alias
// for one account.
func (a *Adapter) rootID(ctx context.Context, cred *credstore.Record, accountID string) (string, error) {
	a.mu.Lock()
	id, ok := a.rootIDs[accountID]
	a.mu.Unlock()

	if ok {
		return id, nil
	}

	var root fileResponse
	err := a.client.GetJSON(ctx, accountID,
		a.baseURL+"/files/root?fields=id", cred.AccessToken, &root)
	if err != nil {
		return "", err
	}

	if root.ID == "" {
		return "", provider.Malformed(item.ServiceGoogleDrive, accountID,
			fmt.Errorf("root resource missing id"))
	}

	a.mu.Lock()
	a.rootIDs[accountID] = root.ID
	a.mu.Unlock()

	return root.ID, nil
}

// list pages through /files with the given q expression.
func (a *Adapter) list(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	var items []item.Item

	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", "nextPageToken,files("+itemFields+")")
		params.Set("pageSize", strconv.Itoa(listPageSize))

		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page listResponse
		err := a.client.GetJSON(ctx, accountID,
			a.baseURL+"/files?"+params.Encode(), cred.AccessToken, &page)
		if err != nil {
			return nil, err
		}

		for i := range page.Files {
			it, convErr := page.Files[i].toItem(accountID)
			if convErr != nil {
				return nil, provider.Malformed(item.ServiceGoogleDrive, accountID, convErr)
			}

			items = append(items, it)
		}

		if page.NextPageToken == "" {
			break
		}

		pageToken = page.NextPageToken
	}

	a.logger.Debug("listed drive items",
		slog.String("account_id", accountID),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// ResolveOpenLink implements provider.Adapter. Drive resolves a bare ID
// directly to its webViewLink.
func (a *Adapter) ResolveOpenLink(
	ctx context.Context, cred *credstore.Record, accountID, itemID string,
) (string, error) {
	var file fileResponse
	err := a.client.GetJSON(ctx, accountID,
		a.baseURL+"/files/"+url.PathEscape(itemID)+"?fields=id,webViewLink",
		cred.AccessToken, &file)
	if err != nil {
		return "", err
	}

	if file.WebViewLink == "" {
		return "", provider.Malformed(item.ServiceGoogleDrive, accountID,
			fmt.Errorf("file %s has no webViewLink", itemID))
	}

	return file.WebViewLink, nil
}

// CurrentAccount implements provider.Adapter via the Drive about endpoint.
func (a *Adapter) CurrentAccount(ctx context.Context, cred *credstore.Record) (provider.Identity, error) {
	var about aboutResponse
	err := a.client.GetJSON(ctx, "",
		a.baseURL+"/about?fields=user", cred.AccessToken, &about)
	if err != nil {
		return provider.Identity{}, err
	}

	if about.User == nil || about.User.PermissionID == "" {
		return provider.Identity{}, provider.Malformed(item.ServiceGoogleDrive, "",
			fmt.Errorf("about response missing user"))
	}

	return provider.Identity{
		ID:    about.User.PermissionID,
		Name:  about.User.DisplayName,
		Email: about.User.EmailAddress,
	}, nil
}

// escapeQuery escapes single quotes and backslashes for interpolation
// into a Drive q expression.
func escapeQuery(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}

		out = append(out, s[i])
	}

	return string(out)
}
