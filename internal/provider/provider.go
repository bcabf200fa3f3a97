package provider

import (
	"context"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
)

// Identity is the provider's view of who owns a credential, fetched from
// the provider's userinfo endpoint after an OAuth exchange. It labels the
// connected account for display.
type Identity struct {
	ID    string
	Name  string
	Email string
}

// Adapter translates one provider's list/search/open semantics into the
// unified contract. Every call takes its credential explicitly; adapters
// never look credentials up ambiently and are side-effect-free — even an
// unauthorized outcome only reports ErrUnauthorized, credential
// invalidation is performed by the engines.
//
// Failures are returned as *CallError values wrapping the taxonomy
// sentinels; adapters never panic across this boundary and never retry
// transient failures themselves.
type Adapter interface {
	// Service names the provider this adapter speaks to.
	Service() item.Service

	// ListChildren returns the children of the given folder. A folderID of
	// item.RootFolderID is mapped to the provider's own root addressing
	// scheme (providers disagree on how the root is spelled).
	ListChildren(ctx context.Context, cred *credstore.Record, accountID, folderID string) ([]item.Item, error)

	// Search runs the provider's native server-side search. Recursion and
	// ranking are the provider's; no client-side tree walk is performed.
	Search(ctx context.Context, cred *credstore.Record, accountID, query string) ([]item.Item, error)

	// ResolveOpenLink returns a browsable URL for a single item. Providers
	// that cannot resolve a bare ID fetch the item's canonical location
	// first.
	ResolveOpenLink(ctx context.Context, cred *credstore.Record, accountID, itemID string) (string, error)

	// CurrentAccount identifies the credential's owner.
	CurrentAccount(ctx context.Context, cred *credstore.Record) (Identity, error)
}

// Set indexes adapters by service for the engines and the OAuth layer.
type Set map[item.Service]Adapter

// NewSet builds a Set from the given adapters.
func NewSet(adapters ...Adapter) Set {
	s := make(Set, len(adapters))
	for _, a := range adapters {
		s[a.Service()] = a
	}

	return s
}
