package nav_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/nav"
)

func folder(id, name string) model.Item {
	return model.Item{ID: id, Name: name, Kind: model.KindFolder}
}

func names(p *nav.Path) []string {
	var out []string
	for _, c := range p.Crumbs() {
		out = append(out, c.Name)
	}
	return out
}

func TestPath_PopAtRootIsNoop(t *testing.T) {
	p := nav.NewPath(model.RootCrumb(model.ScopeOwned))

	assert.Assert(t, !p.Pop())
	assert.Equal(t, p.Len(), 1)
	assert.Assert(t, p.Cwd() == nil)
}

func TestPath_JumpToZero(t *testing.T) {
	p := nav.NewPath(model.RootCrumb(model.ScopeOwned))
	p.Push(model.CrumbFor(folder("docs", "Docs")))
	p.Push(model.CrumbFor(folder("y2024", "2024")))

	assert.NilError(t, p.JumpTo(0))
	assert.DeepEqual(t, names(p), []string{"Root"})
	assert.Assert(t, p.Cwd() == nil)
}

func TestPath_JumpToKeepsPrefix(t *testing.T) {
	p := nav.NewPath(model.RootCrumb(model.ScopeOwned))
	p.Push(model.CrumbFor(folder("a", "A")))
	p.Push(model.CrumbFor(folder("b", "B")))
	p.Push(model.CrumbFor(folder("c", "C")))

	assert.NilError(t, p.JumpTo(2))
	assert.Equal(t, p.Len(), 3)
	assert.DeepEqual(t, names(p), []string{"Root", "A", "B"})
	assert.Equal(t, *p.Cwd(), "b")
}

func TestPath_JumpToRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		index int
	}{
		{"negative", -1},
		{"equal to length", 2},
		{"far beyond", 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := nav.NewPath(model.RootCrumb(model.ScopeOwned))
			p.Push(model.CrumbFor(folder("a", "A")))

			err := p.JumpTo(tt.index)
			assert.Assert(t, errors.Is(err, nav.ErrIndexOutOfRange))
			// Path is unchanged, not clamped.
			assert.Equal(t, p.Len(), 2)
			assert.Equal(t, *p.Cwd(), "a")
		})
	}
}

func TestPath_Reset(t *testing.T) {
	p := nav.NewPath(model.RootCrumb(model.ScopeShared))
	p.Push(model.CrumbFor(folder("a", "A")))
	p.Reset()

	assert.Equal(t, p.Len(), 1)
	assert.Equal(t, p.Current().Name, "Shared")
}

func TestPath_RandomOperationsKeepRoot(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := nav.NewPath(model.RootCrumb(model.ScopeOwned))

	for i := 0; i < 5000; i++ {
		before := p.Len()
		switch rng.IntN(4) {
		case 0:
			p.Push(model.CrumbFor(folder("f", "F")))
			assert.Equal(t, p.Len(), before+1)
		case 1:
			p.Pop()
		case 2:
			idx := rng.IntN(before+2) - 1
			err := p.JumpTo(idx)
			if idx >= 0 && idx < before {
				assert.NilError(t, err)
				assert.Equal(t, p.Len(), idx+1)
			} else {
				assert.Assert(t, errors.Is(err, nav.ErrIndexOutOfRange))
				assert.Equal(t, p.Len(), before)
			}
		case 3:
			if rng.IntN(10) == 0 {
				p.Reset()
			}
		}
		if p.Len() < 1 {
			t.Fatalf("path length dropped below 1 after %d operations", i)
		}
		assert.Assert(t, p.Crumbs()[0].IsRoot())
	}
}

func TestNavigator_EnterRejectsFiles(t *testing.T) {
	n := nav.NewNavigator()

	err := n.Enter(model.ScopeOwned, model.Item{ID: "x", Kind: model.KindFile})
	assert.Assert(t, errors.Is(err, nav.ErrNotFolder))
	assert.Equal(t, n.Path(model.ScopeOwned).Len(), 1)
}

func TestNavigator_ScopesAreIndependent(t *testing.T) {
	n := nav.NewNavigator()
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("docs", "Docs")))
	n.SetActive(model.ScopeShared)
	assert.NilError(t, n.Enter(model.ScopeShared, folder("team", "Team")))

	assert.Equal(t, n.Active(), model.ScopeShared)
	assert.Equal(t, *n.Cwd(model.ScopeOwned), "docs")
	assert.Equal(t, *n.Cwd(model.ScopeShared), "team")
}

func TestNavigator_RenamePatchesBothScopes(t *testing.T) {
	n := nav.NewNavigator()
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("x", "Old")))
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("y", "Child")))
	assert.NilError(t, n.Enter(model.ScopeShared, folder("x", "Old")))

	patched := n.Rename("x", "New")

	assert.Equal(t, patched, 2)
	assert.DeepEqual(t, names(n.Path(model.ScopeOwned)), []string{"Root", "New", "Child"})
	assert.DeepEqual(t, names(n.Path(model.ScopeShared)), []string{"Shared", "New"})
}

func TestNavigator_OpenFromSearch(t *testing.T) {
	n := nav.NewNavigator()
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("a", "A")))
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("b", "B")))

	assert.NilError(t, n.OpenFromSearch(model.ScopeOwned, folder("z", "Found")))

	assert.DeepEqual(t, names(n.Path(model.ScopeOwned)), []string{"Root", "Found"})
	assert.Equal(t, *n.Cwd(model.ScopeOwned), "z")
}

func TestNavigator_DetachResetsTrailsThroughFolder(t *testing.T) {
	n := nav.NewNavigator()
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("x", "Moved")))
	assert.NilError(t, n.Enter(model.ScopeOwned, folder("y", "Child")))
	assert.NilError(t, n.Enter(model.ScopeShared, folder("z", "Other")))

	assert.Equal(t, n.Detach("x"), 1)
	assert.DeepEqual(t, names(n.Path(model.ScopeOwned)), []string{"Root"})
	assert.DeepEqual(t, names(n.Path(model.ScopeShared)), []string{"Shared", "Other"})

	assert.Equal(t, n.Detach("missing"), 0)
}
