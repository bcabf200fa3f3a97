// Package onedrive adapts the Microsoft Graph drive API to the unified
// provider contract.
package onedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// listPageSize is the $top value for children requests. 200 is the
// maximum Graph allows for drive item collections.
const listPageSize = 200

// Adapter implements provider.Adapter for OneDrive via Microsoft Graph.
type Adapter struct {
	baseURL string
	client  *provider.Client
	logger  *slog.Logger
}

// New creates a OneDrive adapter. An empty baseURL uses the real Graph
// endpoint; tests point it at an httptest server.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		baseURL: baseURL,
		client:  provider.NewClient(item.ServiceOneDrive, httpClient, logger),
		logger:  logger,
	}
}

// Service implements provider.Adapter.
func (a *Adapter) Service() item.Service {
	return item.ServiceOneDrive
}

// driveItemResponse mirrors the Graph driveItem JSON exactly. Unexported —
// callers only see the normalized item.Item. The file/folder facets are
// pointers: presence of the folder facet is what makes an item a folder.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 *int64           `json:"size"`
	WebURL               string           `json:"webUrl"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *folderFacet     `json:"folder"`
	Shared               *json.RawMessage `json:"shared"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type parentRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount *int `json:"childCount"`
}

type listResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type searchResponse = listResponse

type userResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// toItem normalizes a Graph driveItem. An item without both facets (and
// without an ID or name) is rejected rather than coerced.
func (d *driveItemResponse) toItem(accountID string) (item.Item, error) {
	if d.ID == "" || d.Name == "" {
		return item.Item{}, fmt.Errorf("driveItem missing id or name")
	}

	if d.File == nil && d.Folder == nil {
		return item.Item{}, fmt.Errorf("driveItem %s has neither file nor folder facet", d.ID)
	}

	it := item.Item{
		ID:         d.ID,
		Name:       d.Name,
		Kind:       item.KindFile,
		Service:    item.ServiceOneDrive,
		Account:    accountID,
		ViewLink:   d.WebURL,
		ChildCount: item.ChildCountUnknown,
		IsShared:   d.Shared != nil,
	}

	// Graph spells the drive root's path ".../root:"; items directly
	// under it carry the unified empty-string parent instead of the
	// drive-specific root item ID.
	if d.ParentReference != nil && !strings.HasSuffix(d.ParentReference.Path, "root:") {
		it.ParentID = d.ParentReference.ID
	}

	if d.Folder != nil {
		it.Kind = item.KindFolder
		if d.Folder.ChildCount != nil {
			it.ChildCount = *d.Folder.ChildCount
		}
	} else {
		it.MimeType = d.File.MimeType
		it.DownloadLink = d.DownloadURL

		if d.Size != nil {
			it.SizeKB = item.KBFromBytes(*d.Size)
		}
	}

	if d.LastModifiedDateTime != "" {
		ts, err := time.Parse(time.RFC3339, d.LastModifiedDateTime)
		if err != nil {
			return item.Item{}, fmt.Errorf("unparseable lastModifiedDateTime %q: %w", d.LastModifiedDateTime, err)
		}

		it.ModifiedAt = ts
	}

	return it, nil
}

// ListChildren implements provider.Adapter. Graph spells the root as the
// literal path segment "root" rather than an item ID.
func (a *Adapter) ListChildren(
	ctx context.Context, cred *credstore.Record, accountID, folderID string,
) ([]item.Item, error) {
	var path string
	if folderID == item.RootFolderID {
		path = fmt.Sprintf("/me/drive/root/children?$top=%d", listPageSize)
	} else {
		path = fmt.Sprintf("/me/drive/items/%s/children?$top=%d", url.PathEscape(folderID), listPageSize)
	}

	return a.collect(ctx, cred, accountID, path)
}

// Search implements provider.Adapter using Graph's server-side search
// scoped to the drive root.
func (a *Adapter) Search(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	// Graph wants the doubled quotes literal in the path, so they are
	// restored after percent-encoding the rest of the query.
	escaped := strings.ReplaceAll(url.PathEscape(escapeQuery(query)), "%27", "'")

	path := fmt.Sprintf("/me/drive/root/search(q='%s')?$top=%d", escaped, listPageSize)

	return a.collect(ctx, cred, accountID, path)
}

// collect pages through a driveItem collection, following @odata.nextLink.
func (a *Adapter) collect(
	ctx context.Context, cred *credstore.Record, accountID, path string,
) ([]item.Item, error) {
	var items []item.Item

	next := a.baseURL + path

	for next != "" {
		var page searchResponse
		if err := a.client.GetJSON(ctx, accountID, next, cred.AccessToken, &page); err != nil {
			return nil, err
		}

		for i := range page.Value {
			it, convErr := page.Value[i].toItem(accountID)
			if convErr != nil {
				return nil, provider.Malformed(item.ServiceOneDrive, accountID, convErr)
			}

			items = append(items, it)
		}

		next = page.NextLink
	}

	a.logger.Debug("listed graph items",
		slog.String("account_id", accountID),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// ResolveOpenLink implements provider.Adapter. Graph resolves a bare
// item ID directly to its webUrl.
func (a *Adapter) ResolveOpenLink(
	ctx context.Context, cred *credstore.Record, accountID, itemID string,
) (string, error) {
	var resp driveItemResponse
	err := a.client.GetJSON(ctx, accountID,
		a.baseURL+"/me/drive/items/"+url.PathEscape(itemID)+"?$select=id,webUrl",
		cred.AccessToken, &resp)
	if err != nil {
		return "", err
	}

	if resp.WebURL == "" {
		return "", provider.Malformed(item.ServiceOneDrive, accountID,
			fmt.Errorf("driveItem %s has no webUrl", itemID))
	}

	return resp.WebURL, nil
}

// CurrentAccount implements provider.Adapter via Graph /me.
func (a *Adapter) CurrentAccount(ctx context.Context, cred *credstore.Record) (provider.Identity, error) {
	var user userResponse
	if err := a.client.GetJSON(ctx, "", a.baseURL+"/me", cred.AccessToken, &user); err != nil {
		return provider.Identity{}, err
	}

	if user.ID == "" {
		return provider.Identity{}, provider.Malformed(item.ServiceOneDrive, "",
			fmt.Errorf("user response missing id"))
	}

	email := user.Mail
	if email == "" {
		email = user.UserPrincipalName
	}

	return provider.Identity{
		ID:    user.ID,
		Name:  user.DisplayName,
		Email: email,
	}, nil
}

// escapeQuery doubles single quotes per OData string literal rules.
func escapeQuery(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}

		out = append(out, s[i])
	}

	return string(out)
}
