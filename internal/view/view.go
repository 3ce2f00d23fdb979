// Package view derives the active view from navigation and search state.
package view

import (
	"strings"

	"github.com/nikbrunner/drive/internal/model"
)

// State is either Browsing or Searching.
type State interface {
	Scope() model.Scope
	Folder() *string
	isState()
}

// Browsing lists the children of a folder (or the scope root when nil).
type Browsing struct {
	In       model.Scope
	FolderID *string
}

// Searching shows the results of the last completed search for Query.
// The search is scoped to the active scope's current folder.
type Searching struct {
	Query    string
	In       model.Scope
	FolderID *string
}

func (b Browsing) Scope() model.Scope  { return b.In }
func (b Browsing) Folder() *string     { return b.FolderID }
func (Browsing) isState()              {}
func (s Searching) Scope() model.Scope { return s.In }
func (s Searching) Folder() *string    { return s.FolderID }
func (Searching) isState()             {}

// Input is everything the view depends on.
type Input struct {
	Active    model.Scope
	OwnedCwd  *string
	SharedCwd *string
	Query     string
}

// Select returns the view for in. A non-blank query always wins for display;
// it never changes either cwd.
func Select(in Input) State {
	cwd := in.OwnedCwd
	if in.Active == model.ScopeShared {
		cwd = in.SharedCwd
	}

	if q := strings.TrimSpace(in.Query); q != "" {
		return Searching{Query: q, In: in.Active, FolderID: cwd}
	}
	return Browsing{In: in.Active, FolderID: cwd}
}

// Equal reports whether two states select the same list.
func Equal(a, b State) bool {
	switch x := a.(type) {
	case Browsing:
		y, ok := b.(Browsing)
		return ok && x.In == y.In && model.PtrEqual(x.FolderID, y.FolderID)
	case Searching:
		y, ok := b.(Searching)
		return ok && x.Query == y.Query && x.In == y.In && model.PtrEqual(x.FolderID, y.FolderID)
	}
	return a == nil && b == nil
}

// IsSearching returns true for a Searching state.
func IsSearching(s State) bool {
	_, ok := s.(Searching)
	return ok
}
