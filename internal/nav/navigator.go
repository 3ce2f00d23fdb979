package nav

import "github.com/nikbrunner/drive/internal/model"

// Navigator owns one Path per scope and tracks which scope is active.
type Navigator struct {
	paths  map[model.Scope]*Path
	active model.Scope
}

// NewNavigator creates a navigator at the root of every scope, Owned active.
func NewNavigator() *Navigator {
	n := &Navigator{paths: make(map[model.Scope]*Path, len(model.Scopes))}
	for _, s := range model.Scopes {
		n.paths[s] = NewPath(model.RootCrumb(s))
	}
	return n
}

// Active returns the active scope.
func (n *Navigator) Active() model.Scope {
	return n.active
}

// SetActive switches the active scope. Paths are left untouched.
func (n *Navigator) SetActive(s model.Scope) {
	n.active = s
}

// Path returns the path of a scope.
func (n *Navigator) Path(s model.Scope) *Path {
	return n.paths[s]
}

// Cwd returns the current folder of a scope.
func (n *Navigator) Cwd(s model.Scope) *string {
	return n.paths[s].Cwd()
}

// Enter pushes a folder onto the scope's path.
func (n *Navigator) Enter(s model.Scope, item model.Item) error {
	if !item.IsFolder() {
		return ErrNotFolder
	}
	n.paths[s].Push(model.CrumbFor(item))
	return nil
}

// OpenFromSearch starts a fresh trail [root, folder] in the scope. Search
// results carry no ancestry, so the trail cannot be rebuilt.
func (n *Navigator) OpenFromSearch(s model.Scope, item model.Item) error {
	if !item.IsFolder() {
		return ErrNotFolder
	}
	p := n.paths[s]
	p.Reset()
	p.Push(model.CrumbFor(item))
	return nil
}

// Rename patches the crumb names for folder id in every scope.
func (n *Navigator) Rename(id, name string) int {
	total := 0
	for _, s := range model.Scopes {
		total += n.paths[s].rename(id, name)
	}
	return total
}

// Detach resets every scope whose trail runs through folder id, which has
// moved and no longer sits where the trail says. Returns how many reset.
func (n *Navigator) Detach(id string) int {
	reset := 0
	for _, s := range model.Scopes {
		if p := n.paths[s]; p.contains(id) {
			p.Reset()
			reset++
		}
	}
	return reset
}
