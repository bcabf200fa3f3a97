// Package item defines the unified file/folder model shared by every
// provider adapter, the aggregation engines, and the navigation layer.
// Fields are normalized from provider responses — callers never see raw
// API data.
package item

import "time"

// ChildCountUnknown indicates the child count was not present in the
// provider response.
const ChildCountUnknown = -1

// RootFolderID is the provider-independent folder ID for "the root".
// Each adapter maps it to its provider's own root addressing scheme.
// It is NOT globally unique — two providers both use the literal "root",
// so identity is always the (Service, AccountID, ID) triple.
const RootFolderID = "root"

// Service identifies one external cloud-storage provider.
type Service string

// Connected provider services.
const (
	ServiceGoogleDrive Service = "googledrive"
	ServiceOneDrive    Service = "onedrive"
	ServiceDropbox     Service = "dropbox"
	ServiceObjectStore Service = "objectstore"
)

// Services lists every known service in a fixed order.
func Services() []Service {
	return []Service{ServiceGoogleDrive, ServiceOneDrive, ServiceDropbox, ServiceObjectStore}
}

// Known reports whether s names a supported service.
func (s Service) Known() bool {
	switch s {
	case ServiceGoogleDrive, ServiceOneDrive, ServiceDropbox, ServiceObjectStore:
		return true
	default:
		return false
	}
}

// Kind is the tagged-union discriminator for Item.
type Kind string

// Item kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Item represents a file or folder as seen through the unified model.
// An item's identity across sessions is (Service, AccountID, ID); the ID
// alone is only unique within one service+account.
type Item struct {
	ID       string
	Name     string
	Kind     Kind
	Service  Service
	Account  string // account ID that produced this item
	ParentID string // empty means the parent is the root

	// Display hints for the owning account, annotated by the
	// aggregation engine after a successful fan-out branch.
	AccountName  string
	AccountEmail string

	// Path is a provider-specific context string (e.g. Dropbox
	// path_display). Optional.
	Path string

	ModifiedAt time.Time

	// File-only fields.
	SizeKB       int64 // whole kilobytes, rounded
	MimeType     string
	ViewLink     string
	DownloadLink string // may be pre-authenticated and ephemeral; never log

	// Folder-only fields.
	ChildCount int // ChildCountUnknown if not reported
	IsShared   bool
}

// IsFolder reports whether the item is a folder.
func (it Item) IsFolder() bool {
	return it.Kind == KindFolder
}

// modifiedDisplayLayout renders timestamps for display. The underlying
// ModifiedAt value is always retained as reported by the provider.
const modifiedDisplayLayout = "Jan 2, 2006 3:04 PM"

// ModifiedDisplay returns the modification time rendered for display.
func (it Item) ModifiedDisplay() string {
	if it.ModifiedAt.IsZero() {
		return ""
	}

	return it.ModifiedAt.Format(modifiedDisplayLayout)
}

// KBFromBytes converts a provider byte count to whole kilobytes, rounded
// half-up with a floor of 1 so a non-empty file never displays as 0 KB.
// All providers report bytes; the unified model reports KB.
func KBFromBytes(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}

	kb := (bytes + 512) / 1024
	if kb == 0 {
		kb = 1
	}

	return kb
}

// FolderRef addresses one folder in one account, or — as the zero value —
// the root across every active account.
type FolderRef struct {
	Service  Service
	Account  string
	FolderID string
}

// AllRoots reports whether the ref is the "root across all active
// accounts" sentinel.
func (r FolderRef) AllRoots() bool {
	return r.FolderID == "" || (r.FolderID == RootFolderID && r.Service == "" && r.Account == "")
}

// Breadcrumb is one element of the path from root to the current folder.
type Breadcrumb struct {
	ID      string
	Name    string
	Service Service
	Account string
}

// CrumbFromItem builds a breadcrumb element for a folder item.
func CrumbFromItem(it Item) Breadcrumb {
	return Breadcrumb{
		ID:      it.ID,
		Name:    it.Name,
		Service: it.Service,
		Account: it.Account,
	}
}
