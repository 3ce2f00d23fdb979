package model

// Crumb is a named folder position in a navigation trail.
type Crumb struct {
	FolderID *string // nil = scope root
	Name     string
}

// RootCrumb returns the crumb for the root of a scope.
func RootCrumb(s Scope) Crumb {
	return Crumb{FolderID: nil, Name: s.Title()}
}

// CrumbFor returns the crumb for entering a folder item.
func CrumbFor(folder Item) Crumb {
	id := folder.ID
	return Crumb{FolderID: &id, Name: folder.Name}
}

// IsRoot returns true for a scope root crumb.
func (c Crumb) IsRoot() bool {
	return c.FolderID == nil
}
