package item

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sort orders a merged result set for display: every folder before every
// file, then case-insensitive ascending by name within each group. The
// sort is stable, so the concatenation order of equal-named items from
// different accounts is preserved.
func Sort(items []Item) {
	// Collators carry internal buffers and are not safe for concurrent
	// use, so each call builds its own.
	c := collate.New(language.Und, collate.IgnoreCase)

	slices.SortStableFunc(items, func(a, b Item) int {
		switch {
		case a.IsFolder() && !b.IsFolder():
			return -1
		case !a.IsFolder() && b.IsFolder():
			return 1
		default:
			return c.CompareString(a.Name, b.Name)
		}
	})
}

// Filter returns the items whose name contains query, compared
// case-insensitively and unanchored. This is the client-side narrowing of
// already-loaded folder contents, distinct from provider-side search.
// A blank query returns the input unchanged.
func Filter(items []Item, query string) []Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}

	needle := strings.ToLower(query)

	kept := make([]Item, 0, len(items))
	for i := range items {
		if strings.Contains(strings.ToLower(items[i].Name), needle) {
			kept = append(kept, items[i])
		}
	}

	return kept
}
