// Package nav tracks where the user is in the merged folder tree: the
// current folder, its owning service and account, and the breadcrumb
// path that led there. Folder changes publish a compact location
// encoding so the position is bookmarkable and shareable.
package nav

import (
	"net/url"

	"github.com/unidrive/unidrive/internal/item"
)

// Location is the externally-visible navigation position. It encodes
// to query-style parameters and must survive hand-edited values:
// missing parameters default to the root / absent.
type Location struct {
	FolderID string       `json:"folderId"`
	Service  item.Service `json:"service,omitempty"`
	Account  string       `json:"account,omitempty"`
}

// RootLocation is the initial position.
func RootLocation() Location {
	return Location{FolderID: item.RootFolderID}
}

// IsRoot reports whether the location is the aggregated root.
func (l Location) IsRoot() bool {
	return l.FolderID == item.RootFolderID && l.Service == "" && l.Account == ""
}

// Ref converts the location into a folder reference for listing.
func (l Location) Ref() item.FolderRef {
	return item.FolderRef{Service: l.Service, Account: l.Account, FolderID: l.FolderID}
}

// Values encodes the location as query parameters. Absent service and
// account are omitted rather than written empty.
func (l Location) Values() url.Values {
	v := url.Values{}
	v.Set("folder", l.FolderID)

	if l.Service != "" {
		v.Set("service", string(l.Service))
	}

	if l.Account != "" {
		v.Set("account", l.Account)
	}

	return v
}

// Encode renders the location as a query string.
func (l Location) Encode() string {
	return l.Values().Encode()
}

// ParseLocation decodes a location from query parameters. A missing or
// empty folder parameter means the root; unknown extra parameters are
// ignored.
func ParseLocation(v url.Values) Location {
	loc := Location{
		FolderID: v.Get("folder"),
		Service:  item.Service(v.Get("service")),
		Account:  v.Get("account"),
	}

	if loc.FolderID == "" {
		loc.FolderID = item.RootFolderID
	}

	return loc
}

// ParseLocationString decodes a location from an encoded query string.
// Garbage input degrades to the root location rather than failing.
func ParseLocationString(s string) Location {
	v, err := url.ParseQuery(s)
	if err != nil {
		return RootLocation()
	}

	return ParseLocation(v)
}
