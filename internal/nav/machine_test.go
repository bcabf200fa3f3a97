package nav

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unidrive/unidrive/internal/item"
)

// recordingSink captures every published location.
type recordingSink struct {
	mu        sync.Mutex
	published []Location
	err       error
}

func (s *recordingSink) Publish(loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, loc)

	return s.err
}

func (s *recordingSink) locations() []Location {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Location, len(s.published))
	copy(out, s.published)

	return out
}

func folderItem(id, name, parentID string) item.Item {
	return item.Item{
		ID: id, Name: name, Kind: item.KindFolder,
		Service: item.ServiceGoogleDrive, Account: "g1",
		ParentID: parentID,
	}
}

func TestMachineStartsAtRoot(t *testing.T) {
	m := NewMachine(nil, slog.New(slog.DiscardHandler))

	loc := m.Current()
	assert.Equal(t, item.RootFolderID, loc.FolderID)
	assert.Empty(t, string(loc.Service))
	assert.Empty(t, loc.Account)
	assert.Empty(t, m.Breadcrumbs())
}

func TestNavigateToIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	docs := folderItem("docs", "Documents", item.RootFolderID)

	m.NavigateTo(docs)
	m.NavigateTo(docs)

	// One location update, one breadcrumb element.
	assert.Len(t, sink.locations(), 1)
	require.Len(t, m.Breadcrumbs(), 1)
	assert.Equal(t, "docs", m.Breadcrumbs()[0].ID)
}

func TestNavigateToBuildsPath(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.NavigateTo(folderItem("b", "B", "a"))
	m.NavigateTo(folderItem("c", "C", "b"))

	crumbs := m.Breadcrumbs()
	require.Len(t, crumbs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{crumbs[0].ID, crumbs[1].ID, crumbs[2].ID})

	loc := m.Current()
	assert.Equal(t, "c", loc.FolderID)
	assert.Equal(t, item.ServiceGoogleDrive, loc.Service)
	assert.Equal(t, "g1", loc.Account)
}

func TestNavigateToAncestorTruncatesPath(t *testing.T) {
	m := NewMachine(nil, slog.New(slog.DiscardHandler))

	a := folderItem("a", "A", item.RootFolderID)
	b := folderItem("b", "B", "a")
	c := folderItem("c", "C", "b")

	m.NavigateTo(a)
	m.NavigateTo(b)
	m.NavigateTo(c)

	// Jumping back to A discards B and C.
	m.NavigateTo(a)

	crumbs := m.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "a", crumbs[0].ID)
	assert.Equal(t, "a", m.Current().FolderID)
}

func TestNavigateToMidPathAncestor(t *testing.T) {
	m := NewMachine(nil, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.NavigateTo(folderItem("b", "B", "a"))
	m.NavigateTo(folderItem("c", "C", "b"))
	m.NavigateTo(folderItem("b", "B", "a"))

	crumbs := m.Breadcrumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, "b", crumbs[1].ID)
}

func TestNavigateToTopLevelFolderReplacesPath(t *testing.T) {
	m := NewMachine(nil, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.NavigateTo(folderItem("b", "B", "a"))

	// A sibling of A, reached from the root listing.
	m.NavigateTo(folderItem("z", "Z", item.RootFolderID))

	crumbs := m.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "z", crumbs[0].ID)
}

func TestNavigateToEmptyParentReplacesPath(t *testing.T) {
	m := NewMachine(nil, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.NavigateTo(folderItem("b", "B", "a"))

	// Adapters report a root-level parent as the empty string; a
	// cross-service jump from a search result must not extend the
	// old trail.
	top := item.Item{
		ID: "id:top", Name: "Top", Kind: item.KindFolder,
		Service: item.ServiceDropbox, Account: "d1", ParentID: "",
	}
	m.NavigateTo(top)

	crumbs := m.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "id:top", crumbs[0].ID)
	assert.Equal(t, item.ServiceDropbox, m.Current().Service)
}

func TestNavigateToRootClearsEverything(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.NavigateToRoot()

	loc := m.Current()
	assert.True(t, loc.IsRoot())
	assert.Empty(t, m.Breadcrumbs())

	// Already at root: nothing further published.
	published := len(sink.locations())
	m.NavigateToRoot()
	assert.Len(t, sink.locations(), published)
}

func TestHandleLocationChangeAdoptsWithoutRebuildingCrumbs(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	published := len(sink.locations())

	m.HandleLocationChange(Location{
		FolderID: "deep", Service: item.ServiceDropbox, Account: "d1",
	})

	loc := m.Current()
	assert.Equal(t, "deep", loc.FolderID)
	assert.Equal(t, item.ServiceDropbox, loc.Service)

	// Crumbs are untouched and nothing extra is published: the
	// location already reflects the new state.
	require.Len(t, m.Breadcrumbs(), 1)
	assert.Len(t, sink.locations(), published)

	// Same folder id again is a no-op.
	m.HandleLocationChange(Location{FolderID: "deep"})
	assert.Equal(t, item.ServiceDropbox, m.Current().Service)
}

func TestResetReturnsToInitialState(t *testing.T) {
	sink := &recordingSink{}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	m.Reset()

	assert.True(t, m.Current().IsRoot())
	assert.Empty(t, m.Breadcrumbs())

	locs := sink.locations()
	require.NotEmpty(t, locs)
	assert.Equal(t, item.RootFolderID, locs[len(locs)-1].FolderID)
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	m := NewMachine(sink, slog.New(slog.DiscardHandler))

	// Must not panic or block navigation.
	m.NavigateTo(folderItem("a", "A", item.RootFolderID))
	assert.Equal(t, "a", m.Current().FolderID)
}
