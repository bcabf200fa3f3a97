package nav

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/unidrive/unidrive/internal/item"
)

// LocationSink receives the encoded location every time the current
// folder changes. Sink failures are logged and swallowed by the
// machine: a stale shared location is recoverable, a crash is not.
type LocationSink interface {
	Publish(loc Location) error
}

// Machine is the navigation state machine. All methods are safe for
// concurrent use.
type Machine struct {
	mu sync.Mutex

	folderID string
	service  item.Service
	account  string
	crumbs   []item.Breadcrumb

	sink   LocationSink
	logger *slog.Logger
}

// NewMachine starts at the aggregated root. sink may be nil.
func NewMachine(sink LocationSink, logger *slog.Logger) *Machine {
	return &Machine{
		folderID: item.RootFolderID,
		sink:     sink,
		logger:   logger,
	}
}

// Current returns the current location.
func (m *Machine) Current() Location {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Location{FolderID: m.folderID, Service: m.service, Account: m.account}
}

// Breadcrumbs returns a copy of the path from root to the current
// folder.
func (m *Machine) Breadcrumbs() []item.Breadcrumb {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.crumbs)
}

// NavigateTo enters the given folder. Navigating to the folder the
// machine is already in is a no-op: no breadcrumb mutation and no
// location update. Navigating to an element already on the breadcrumb
// path truncates the path to end at that element.
func (m *Machine) NavigateTo(target item.Item) {
	m.mu.Lock()

	if target.ID == m.folderID {
		m.mu.Unlock()
		return
	}

	m.service = target.Service
	m.account = target.Account

	switch {
	case target.ID == item.RootFolderID:
		m.crumbs = nil
	case target.ParentID == "" || target.ParentID == item.RootFolderID:
		// An empty ParentID means the parent is the root.
		m.crumbs = []item.Breadcrumb{item.CrumbFromItem(target)}
	default:
		if i := slices.IndexFunc(m.crumbs, func(c item.Breadcrumb) bool {
			return c.ID == target.ID
		}); i >= 0 {
			m.crumbs = m.crumbs[:i+1]
		} else {
			m.crumbs = append(m.crumbs, item.CrumbFromItem(target))
		}
	}

	m.folderID = target.ID
	loc := Location{FolderID: m.folderID, Service: m.service, Account: m.account}
	m.mu.Unlock()

	m.publish(loc)
}

// NavigateToRoot jumps back to the aggregated root. A no-op when
// already there.
func (m *Machine) NavigateToRoot() {
	m.mu.Lock()

	if m.atRootLocked() {
		m.mu.Unlock()
		return
	}

	m.resetLocked()
	m.mu.Unlock()

	m.publish(RootLocation())
}

// HandleLocationChange adopts an externally driven location (deep link,
// history navigation). The breadcrumb path is not rebuilt: it only
// grows back through NavigateTo. The location itself already reflects
// the new state, so nothing is published.
func (m *Machine) HandleLocationChange(loc Location) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if loc.FolderID == m.folderID {
		return
	}

	m.folderID = loc.FolderID
	m.service = loc.Service
	m.account = loc.Account
}

// Reset drops back to the initial state unconditionally, for use when
// the session ends. The root location is published if the folder
// changed.
func (m *Machine) Reset() {
	m.mu.Lock()

	changed := m.folderID != item.RootFolderID
	m.resetLocked()
	m.mu.Unlock()

	if changed {
		m.publish(RootLocation())
	}
}

func (m *Machine) atRootLocked() bool {
	return m.folderID == item.RootFolderID && m.service == "" && m.account == "" && len(m.crumbs) == 0
}

func (m *Machine) resetLocked() {
	m.folderID = item.RootFolderID
	m.service = ""
	m.account = ""
	m.crumbs = nil
}

func (m *Machine) publish(loc Location) {
	if m.sink == nil {
		return
	}

	if err := m.sink.Publish(loc); err != nil {
		m.logger.Warn("publishing location failed",
			slog.String("folder", loc.FolderID),
			slog.String("error", err.Error()),
		)
	}
}
