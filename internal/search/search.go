// Package search holds the search request model, fuzzy ranking of item
// names, and the keystroke debouncer.
package search

import (
	"github.com/sahilm/fuzzy"

	"github.com/nikbrunner/drive/internal/model"
)

// DefaultLimit caps search results when the caller does not.
const DefaultLimit = 50

// Request is one search against the item store.
type Request struct {
	Query    string
	Scope    model.Scope
	FolderID *string // nil = whole scope
	Limit    int
}

// Same reports whether two requests ask for the same results.
func (r Request) Same(o Request) bool {
	return r.Query == o.Query && r.Scope == o.Scope && model.PtrEqual(r.FolderID, o.FolderID)
}

// Result represents a fuzzy match against an item name.
type Result struct {
	Item           model.Item
	MatchedIndexes []int
	Score          int
}

// itemNames implements fuzzy.Source for an item slice.
type itemNames []model.Item

func (n itemNames) String(i int) string {
	return n[i].Name
}

func (n itemNames) Len() int {
	return len(n)
}

// Rank matches query against item names and returns results sorted by
// match score (best first), at most limit of them when limit > 0.
func Rank(query string, items []model.Item, limit int) []Result {
	if query == "" {
		return nil
	}

	matches := fuzzy.FindFrom(query, itemNames(items))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Item:           items[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}

	return results
}

// Items strips ranking details from results.
func Items(results []Result) []model.Item {
	items := make([]model.Item, len(results))
	for i, r := range results {
		items[i] = r.Item
	}
	return items
}
