// Package nav holds the breadcrumb trails for each browsing scope.
package nav

import (
	"errors"
	"fmt"

	"github.com/nikbrunner/drive/internal/model"
)

var (
	ErrIndexOutOfRange = errors.New("crumb index out of range")
	ErrNotFolder       = errors.New("item is not a folder")
)

// Path is an ordered trail of crumbs. It always holds at least the root crumb;
// the last crumb is the current folder.
type Path struct {
	root   model.Crumb
	crumbs []model.Crumb
}

// NewPath creates a path holding only the given root crumb.
func NewPath(root model.Crumb) *Path {
	return &Path{root: root, crumbs: []model.Crumb{root}}
}

// Push appends a crumb.
func (p *Path) Push(c model.Crumb) {
	p.crumbs = append(p.crumbs, c)
}

// Pop removes the last crumb. At the root it does nothing and returns false.
func (p *Path) Pop() bool {
	if len(p.crumbs) <= 1 {
		return false
	}
	p.crumbs = p.crumbs[:len(p.crumbs)-1]
	return true
}

// JumpTo truncates the path to crumbs[0..index].
func (p *Path) JumpTo(index int) error {
	if index < 0 || index >= len(p.crumbs) {
		return fmt.Errorf("%w: %d (length %d)", ErrIndexOutOfRange, index, len(p.crumbs))
	}
	p.crumbs = p.crumbs[:index+1]
	return nil
}

// Reset restores the single root crumb.
func (p *Path) Reset() {
	p.crumbs = []model.Crumb{p.root}
}

// Len returns the number of crumbs.
func (p *Path) Len() int {
	return len(p.crumbs)
}

// Current returns the last crumb.
func (p *Path) Current() model.Crumb {
	return p.crumbs[len(p.crumbs)-1]
}

// Cwd returns the current folder id, nil at the scope root.
func (p *Path) Cwd() *string {
	return p.Current().FolderID
}

// AtRoot returns true if only the root crumb is present.
func (p *Path) AtRoot() bool {
	return len(p.crumbs) == 1
}

// Crumbs returns a copy of the trail.
func (p *Path) Crumbs() []model.Crumb {
	out := make([]model.Crumb, len(p.crumbs))
	copy(out, p.crumbs)
	return out
}

// rename patches every crumb pointing at id and returns how many changed.
func (p *Path) rename(id, name string) int {
	n := 0
	for i := range p.crumbs {
		if p.crumbs[i].FolderID != nil && *p.crumbs[i].FolderID == id {
			p.crumbs[i].Name = name
			n++
		}
	}
	return n
}

func (p *Path) contains(id string) bool {
	for _, c := range p.crumbs {
		if c.FolderID != nil && *c.FolderID == id {
			return true
		}
	}
	return false
}
