package googledrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

func testCred() *credstore.Record {
	return &credstore.Record{AccessToken: "test-token"}
}

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(srv.URL, srv.Client(), nil)
}

func TestListChildren_Normalization(t *testing.T) {
	var gotQuery string

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"files": [
			{"id": "folder-1", "name": "Photos", "mimeType": "application/vnd.google-apps.folder",
			 "modifiedTime": "2026-02-01T10:00:00Z", "parents": ["root-id"], "shared": true,
			 "webViewLink": "https://drive.example/folder-1"},
			{"id": "file-1", "name": "notes.txt", "mimeType": "text/plain", "size": "1536",
			 "modifiedTime": "2026-02-02T11:30:00Z", "parents": ["root-id"],
			 "webViewLink": "https://drive.example/file-1",
			 "webContentLink": "https://drive.example/dl/file-1"}
		]}`))
	}))

	items, err := a.ListChildren(context.Background(), testCred(), "acct-1", item.RootFolderID)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "'root' in parents and trashed=false", gotQuery)

	folder := items[0]
	assert.Equal(t, "folder-1", folder.ID)
	assert.Equal(t, "", folder.ParentID) // listed at the root
	assert.Equal(t, item.KindFolder, folder.Kind)
	assert.Equal(t, item.ServiceGoogleDrive, folder.Service)
	assert.Equal(t, "acct-1", folder.Account)
	assert.True(t, folder.IsShared)
	assert.Equal(t, item.ChildCountUnknown, folder.ChildCount)

	file := items[1]
	assert.Equal(t, item.KindFile, file.Kind)
	assert.Equal(t, int64(2), file.SizeKB) // 1536 bytes rounds to 2 KB
	assert.Equal(t, "text/plain", file.MimeType)
	assert.Equal(t, "https://drive.example/dl/file-1", file.DownloadLink)
	assert.Equal(t, "2026-02-02T11:30:00Z", file.ModifiedAt.Format("2006-01-02T15:04:05Z"))
}

func TestListChildren_Pagination(t *testing.T) {
	calls := 0

	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"files": [{"id": "f1", "name": "a.txt", "mimeType": "text/plain"}],
				"nextPageToken": "page-2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"files": [{"id": "f2", "name": "b.txt", "mimeType": "text/plain"}]}`))
	}))

	items, err := a.ListChildren(context.Background(), testCred(), "acct-1", "some-folder")

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, items, 2)
	assert.Equal(t, "f1", items[0].ID)
	assert.Equal(t, "f2", items[1].ID)
}

func TestListChildren_Unauthorized(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"code": 401}}`))
	}))

	_, err := a.ListChildren(context.Background(), testCred(), "acct-1", item.RootFolderID)

	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUnauthorized)

	var callErr *provider.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, item.ServiceGoogleDrive, callErr.Service)
	assert.Equal(t, "acct-1", callErr.Account)
	assert.Equal(t, http.StatusUnauthorized, callErr.StatusCode)
}

func TestListChildren_MalformedSize(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"id": "f1", "name": "a.txt", "mimeType": "text/plain", "size": "abc"}]}`))
	}))

	_, err := a.ListChildren(context.Background(), testCred(), "acct-1", item.RootFolderID)

	assert.ErrorIs(t, err, provider.ErrMalformed)
}

func TestListChildren_MissingID(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"name": "orphan.txt", "mimeType": "text/plain"}]}`))
	}))

	_, err := a.ListChildren(context.Background(), testCred(), "acct-1", item.RootFolderID)

	assert.ErrorIs(t, err, provider.ErrMalformed)
}

func TestListChildren_AbsentSizeIsZero(t *testing.T) {
	// Drive omits size for native docs; absent is valid, not malformed.
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"id": "doc-1", "name": "Doc",
			"mimeType": "application/vnd.google-apps.document"}]}`))
	}))

	items, err := a.ListChildren(context.Background(), testCred(), "acct-1", item.RootFolderID)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(0), items[0].SizeKB)
	assert.Equal(t, item.KindFile, items[0].Kind)
}

// searchHandler answers the root alias resolution and the files query.
func searchHandler(rootID, filesJSON string, rootCalls *int, gotQuery *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/root", func(w http.ResponseWriter, _ *http.Request) {
		if rootCalls != nil {
			*rootCalls++
		}
		_, _ = w.Write([]byte(`{"id": "` + rootID + `"}`))
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("q")
		}
		_, _ = w.Write([]byte(filesJSON))
	})

	return mux
}

func TestSearch_QueryEscaping(t *testing.T) {
	var gotQuery string

	a := newTestAdapter(t, searchHandler("root-id", `{"files": []}`, nil, &gotQuery))

	_, err := a.Search(context.Background(), testCred(), "acct-1", "bob's files")

	require.NoError(t, err)
	assert.Equal(t, `name contains 'bob\'s files' and trashed=false`, gotQuery)
}

func TestSearch_RootParentNormalized(t *testing.T) {
	rootCalls := 0

	a := newTestAdapter(t, searchHandler("root-id", `{"files": [
		{"id": "top-1", "name": "Top", "mimeType": "application/vnd.google-apps.folder",
		 "parents": ["root-id"]},
		{"id": "deep-1", "name": "Deep", "mimeType": "application/vnd.google-apps.folder",
		 "parents": ["top-1"]}
	]}`, &rootCalls, nil))

	items, err := a.Search(context.Background(), testCred(), "acct-1", "top")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "", items[0].ParentID)
	assert.Equal(t, "top-1", items[1].ParentID)

	// The alias resolution is cached per account.
	_, err = a.Search(context.Background(), testCred(), "acct-1", "again")
	require.NoError(t, err)
	assert.Equal(t, 1, rootCalls)
}

func TestResolveOpenLink(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/file-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "file-9", "webViewLink": "https://drive.example/view/file-9"}`))
	}))

	link, err := a.ResolveOpenLink(context.Background(), testCred(), "acct-1", "file-9")

	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/view/file-9", link)
}

func TestResolveOpenLink_NoLink(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "file-9"}`))
	}))

	_, err := a.ResolveOpenLink(context.Background(), testCred(), "acct-1", "file-9")

	assert.ErrorIs(t, err, provider.ErrMalformed)
}

func TestCurrentAccount(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user": {"permissionId": "perm-1", "displayName": "Ada", "emailAddress": "ada@example.com"}}`))
	}))

	id, err := a.CurrentAccount(context.Background(), testCred())

	require.NoError(t, err)
	assert.Equal(t, "perm-1", id.ID)
	assert.Equal(t, "Ada", id.Name)
	assert.Equal(t, "ada@example.com", id.Email)
}

func TestCurrentAccount_MissingUser(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := a.CurrentAccount(context.Background(), testCred())

	assert.ErrorIs(t, err, provider.ErrMalformed)
}

func TestRoundTrip_IdentityPreserved(t *testing.T) {
	raw := fileResponse{ID: "f-1", Name: "Budget.xlsx", MimeType: "application/vnd.ms-excel"}

	it, err := raw.toItem("acct-7")

	require.NoError(t, err)
	assert.Equal(t, "f-1", it.ID)
	assert.Equal(t, "Budget.xlsx", it.Name)
	assert.Equal(t, item.ServiceGoogleDrive, it.Service)
	assert.Equal(t, "acct-7", it.Account)
	assert.Equal(t, item.KindFile, it.Kind)
}
