package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort_FoldersBeforeFiles(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "zebra.txt", Kind: KindFile},
		{ID: "2", Name: "Alpha", Kind: KindFolder},
		{ID: "3", Name: "beta.txt", Kind: KindFile},
		{ID: "4", Name: "gamma", Kind: KindFolder},
	}

	Sort(items)

	require.Len(t, items, 4)
	assert.Equal(t, "Alpha", items[0].Name)
	assert.Equal(t, "gamma", items[1].Name)
	assert.Equal(t, "beta.txt", items[2].Name)
	assert.Equal(t, "zebra.txt", items[3].Name)
}

func TestSort_CaseInsensitiveWithinGroup(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "banana", Kind: KindFile},
		{ID: "2", Name: "Apple", Kind: KindFile},
		{ID: "3", Name: "cherry", Kind: KindFile},
		{ID: "4", Name: "APRICOT", Kind: KindFile},
	}

	Sort(items)

	names := []string{items[0].Name, items[1].Name, items[2].Name, items[3].Name}
	assert.Equal(t, []string{"Apple", "APRICOT", "banana", "cherry"}, names)
}

func TestSort_StableAcrossAccounts(t *testing.T) {
	// Same name from two accounts keeps concatenation order.
	items := []Item{
		{ID: "1", Name: "report.pdf", Kind: KindFile, Account: "first"},
		{ID: "2", Name: "report.pdf", Kind: KindFile, Account: "second"},
	}

	Sort(items)

	assert.Equal(t, "first", items[0].Account)
	assert.Equal(t, "second", items[1].Account)
}

func TestSort_Empty(t *testing.T) {
	var items []Item

	Sort(items)

	assert.Empty(t, items)
}

func TestFilter(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "Quarterly Report.pdf"},
		{ID: "2", Name: "photo.jpg"},
		{ID: "3", Name: "REPORTS"},
	}

	result := Filter(items, "report")

	require.Len(t, result, 2)
	assert.Equal(t, "1", result[0].ID)
	assert.Equal(t, "3", result[1].ID)
}

func TestFilter_BlankQueryReturnsAll(t *testing.T) {
	items := []Item{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}

	assert.Len(t, Filter(items, ""), 2)
	assert.Len(t, Filter(items, "   "), 2)
}

func TestFilter_Unanchored(t *testing.T) {
	items := []Item{{ID: "1", Name: "my-vacation-photos"}}

	assert.Len(t, Filter(items, "vacation"), 1)
	assert.Empty(t, Filter(items, "vacations"))
}
