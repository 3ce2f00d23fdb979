// Package browser ties navigation, view selection, search and the thumbnail
// scheduler together. The renderer drives it through its methods and reads
// Snapshot; it never touches the parts directly.
package browser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/handles"
	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/nav"
	"github.com/nikbrunner/drive/internal/search"
	"github.com/nikbrunner/drive/internal/thumbs"
	"github.com/nikbrunner/drive/internal/view"
)

var (
	ErrEmptyName  = errors.New("name cannot be empty")
	ErrSharedRoot = errors.New("cannot create items at the shared root")
	ErrClosed     = errors.New("browser closed")
)

// Params holds parameters for creating a Browser.
type Params struct {
	Store    itemstore.Store
	Uploader itemstore.Uploader // defaults to Store when it implements Uploader
	Handles  thumbs.HandleManager

	Workers     int           // concurrent thumbnail fetches
	MaxBytes    int64         // largest thumbnail body accepted, 0 = unlimited
	Debounce    time.Duration // search quiet period
	SearchLimit int

	// OnChange is called (from any goroutine) whenever Snapshot would
	// return something new.
	OnChange func()
}

// Snapshot is everything the renderer draws.
type Snapshot struct {
	State   view.State
	Scope   model.Scope
	Crumbs  []model.Crumb
	Query   string
	Items   []model.Item
	Search  search.Snapshot
	Thumbs  map[string]*handles.Handle
	Pending map[string]bool
	Err     error // last listing failure, cleared by the next successful load
}

// Browser is the client-side state of one browsing session.
type Browser struct {
	store     itemstore.Store
	uploader  itemstore.Uploader
	sched     *thumbs.Scheduler
	debouncer *search.Debouncer
	onChange  func()
	log       *zap.Logger

	// ops serializes navigation and mutations, which talk to the store
	// between reading and committing state.
	ops sync.Mutex

	mu         sync.Mutex
	nav        *nav.Navigator
	query      string
	listing    []model.Item
	listingFor view.Browsing
	state      view.State
	visible    []model.Item
	err        error
	closed     bool
}

// New creates a Browser at the root of the owned scope. Call Refresh to
// load the first listing.
func New(params Params) *Browser {
	uploader := params.Uploader
	if uploader == nil {
		uploader, _ = params.Store.(itemstore.Uploader)
	}

	b := &Browser{
		store:    params.Store,
		uploader: uploader,
		onChange: params.OnChange,
		log:      logging.Named("browser"),
		nav:      nav.NewNavigator(),
	}
	b.state = view.Browsing{In: model.ScopeOwned}
	b.listingFor = view.Browsing{In: model.ScopeOwned}

	b.sched = thumbs.NewScheduler(thumbs.SchedulerParams{
		Fetcher:   params.Store,
		Handles:   params.Handles,
		Workers:   params.Workers,
		MaxBytes:  params.MaxBytes,
		OnInstall: func(string) { b.notify() },
	})
	b.debouncer = search.NewDebouncer(search.DebouncerParams{
		Search:   params.Store.Search,
		Window:   params.Debounce,
		Limit:    params.SearchLimit,
		OnChange: func(search.Snapshot) { b.update(false) },
	})

	return b
}

// Snapshot returns the current state for rendering.
func (b *Browser) Snapshot() Snapshot {
	b.mu.Lock()
	snap := Snapshot{
		State:  b.state,
		Scope:  b.nav.Active(),
		Crumbs: b.nav.Path(b.nav.Active()).Crumbs(),
		Query:  b.query,
		Items:  append([]model.Item(nil), b.visible...),
		Err:    b.err,
	}
	b.mu.Unlock()

	snap.Search = b.debouncer.Snapshot()
	snap.Thumbs = b.sched.Cache().Snapshot()
	snap.Pending = make(map[string]bool)
	for _, id := range model.ImageIDs(snap.Items) {
		if _, ok := snap.Thumbs[id]; !ok && b.sched.Pending(id) {
			snap.Pending[id] = true
		}
	}
	return snap
}

// Refresh reloads the listing of the active folder, re-sends the search if
// one is active, and reconciles thumbnails. On failure the previous listing
// stays visible and the error is returned.
func (b *Browser) Refresh(ctx context.Context) error {
	b.ops.Lock()
	defer b.ops.Unlock()
	return b.refresh(ctx)
}

func (b *Browser) refresh(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	target := b.browsingLocked()
	query := b.query
	b.mu.Unlock()

	items, err := itemstore.List(ctx, b.store, target.In, target.FolderID)
	if err != nil {
		b.setErr(err)
		return fmt.Errorf("load listing: %w", err)
	}

	b.mu.Lock()
	b.listing = items
	b.listingFor = target
	b.err = nil
	b.mu.Unlock()

	if strings.TrimSpace(query) != "" {
		b.debouncer.Input(query, target.In, target.FolderID)
	}
	b.update(true)
	return nil
}

// Open enters a folder. From search results the folder starts a fresh
// trail [root, folder] and the query is cleared. Files are rejected with
// nav.ErrNotFolder.
func (b *Browser) Open(ctx context.Context, item model.Item) error {
	if !item.IsFolder() {
		return nav.ErrNotFolder
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	b.mu.Lock()
	scope := b.nav.Active()
	fromSearch := view.IsSearching(b.state)
	b.mu.Unlock()

	id := item.ID
	return b.navigate(ctx, view.Browsing{In: scope, FolderID: &id}, func() error {
		if fromSearch {
			b.query = ""
			return b.nav.OpenFromSearch(scope, item)
		}
		return b.nav.Enter(scope, item)
	})
}

// Back leaves the current folder. At the scope root it does nothing.
func (b *Browser) Back(ctx context.Context) error {
	b.ops.Lock()
	defer b.ops.Unlock()

	b.mu.Lock()
	scope := b.nav.Active()
	crumbs := b.nav.Path(scope).Crumbs()
	b.mu.Unlock()

	if len(crumbs) < 2 {
		return nil
	}
	parent := crumbs[len(crumbs)-2]
	return b.navigate(ctx, view.Browsing{In: scope, FolderID: parent.FolderID}, func() error {
		b.nav.Path(scope).Pop()
		return nil
	})
}

// JumpTo truncates the active trail to crumb index.
func (b *Browser) JumpTo(ctx context.Context, index int) error {
	b.ops.Lock()
	defer b.ops.Unlock()

	b.mu.Lock()
	scope := b.nav.Active()
	crumbs := b.nav.Path(scope).Crumbs()
	b.mu.Unlock()

	if index < 0 || index >= len(crumbs) {
		return fmt.Errorf("%w: %d (length %d)", nav.ErrIndexOutOfRange, index, len(crumbs))
	}
	return b.navigate(ctx, view.Browsing{In: scope, FolderID: crumbs[index].FolderID}, func() error {
		return b.nav.Path(scope).JumpTo(index)
	})
}

// SwitchScope makes scope active, keeping each scope's trail. An active
// query is re-sent for the new scope.
func (b *Browser) SwitchScope(ctx context.Context, scope model.Scope) error {
	b.ops.Lock()
	defer b.ops.Unlock()

	b.mu.Lock()
	cwd := b.nav.Cwd(scope)
	b.mu.Unlock()

	return b.navigate(ctx, view.Browsing{In: scope, FolderID: cwd}, func() error {
		b.nav.SetActive(scope)
		return nil
	})
}

// ToggleScope switches between the owned and shared scopes.
func (b *Browser) ToggleScope(ctx context.Context) error {
	b.mu.Lock()
	next := model.ScopeShared
	if b.nav.Active() == model.ScopeShared {
		next = model.ScopeOwned
	}
	b.mu.Unlock()
	return b.SwitchScope(ctx, next)
}

// SetQuery updates the search text. A non-blank query switches the view to
// search results once the debounced search completes; a blank one returns
// to the listing at once.
func (b *Browser) SetQuery(query string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.query = query
	scope := b.nav.Active()
	cwd := b.nav.Cwd(scope)
	b.mu.Unlock()

	// Input may call back into update synchronously.
	b.debouncer.Input(query, scope, cwd)
	b.update(false)
}

// ClearQuery is SetQuery("").
func (b *Browser) ClearQuery() {
	b.SetQuery("")
}

// navigate loads the listing for target and only then applies the
// navigation change, so a failed load leaves the trail untouched.
func (b *Browser) navigate(ctx context.Context, target view.Browsing, apply func() error) error {
	items, err := itemstore.List(ctx, b.store, target.In, target.FolderID)
	if err != nil {
		b.setErr(err)
		return fmt.Errorf("load listing: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if err := apply(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.listing = items
	b.listingFor = target
	b.err = nil
	query := b.query
	b.mu.Unlock()

	// The search follows the new folder, or stops if the query was dropped.
	if strings.TrimSpace(query) == "" {
		b.debouncer.Clear()
	} else {
		b.debouncer.Input(query, target.In, target.FolderID)
	}
	b.update(true)
	return nil
}

// update recomputes the view and reconciles thumbnails when the visible
// list changed (or always, with force).
func (b *Browser) update(force bool) {
	snap := b.debouncer.Snapshot()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	active := b.nav.Active()
	state := view.Select(view.Input{
		Active:    active,
		OwnedCwd:  b.nav.Cwd(model.ScopeOwned),
		SharedCwd: b.nav.Cwd(model.ScopeShared),
		Query:     b.query,
	})

	var visible []model.Item
	switch s := state.(type) {
	case view.Searching:
		req := search.Request{Query: s.Query, Scope: s.In, FolderID: s.FolderID}
		if snap.Completed(req) && snap.Err == nil {
			visible = snap.Results
		}
	case view.Browsing:
		if view.Equal(s, b.listingFor) {
			visible = b.listing
		}
	}

	changed := force || !view.Equal(state, b.state) || !sameIDs(visible, b.visible)
	b.state = state
	b.visible = visible
	if changed {
		b.sched.Reconcile(visible)
	}
	b.mu.Unlock()

	b.notify()
}

// browsingLocked returns the Browsing state for the active cwd, whatever
// the query.
func (b *Browser) browsingLocked() view.Browsing {
	scope := b.nav.Active()
	return view.Browsing{In: scope, FolderID: b.nav.Cwd(scope)}
}

func (b *Browser) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	b.log.Warn("listing failed", zap.Error(err))
	b.notify()
}

func (b *Browser) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}

// Close stops searching, cancels thumbnail fetches and revokes every
// thumbnail handle.
func (b *Browser) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.debouncer.Close()
	b.sched.Close()
}

// Wait blocks until no thumbnail fetch is running.
func (b *Browser) Wait() {
	b.sched.Wait()
}

// Me returns the signed-in identity.
func (b *Browser) Me(ctx context.Context) (*model.Identity, error) {
	return b.store.Me(ctx)
}

// CreateFolder creates a folder in the active folder.
func (b *Browser) CreateFolder(ctx context.Context, name string) (*model.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	parent, err := b.writableCwd()
	if err != nil {
		return nil, err
	}

	item, err := b.store.CreateFolder(ctx, parent, name)
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	b.log.Info("folder created", zap.String("id", item.ID), zap.String("name", name))
	return item, b.refresh(ctx)
}

// Rename renames an item and patches any breadcrumb showing it.
func (b *Browser) Rename(ctx context.Context, id, name string) (*model.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	item, err := b.store.Rename(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}

	b.mu.Lock()
	patched := b.nav.Rename(id, name)
	b.mu.Unlock()

	b.log.Info("item renamed", zap.String("id", id), zap.Int("crumbs", patched))
	return item, b.refresh(ctx)
}

// Move re-parents an item into folder parentID. Trails running through a
// moved folder are reset to their root.
func (b *Browser) Move(ctx context.Context, id, parentID string) (*model.Item, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, fmt.Errorf("move: %w: destination folder required", itemstore.ErrBadRequest)
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	item, err := b.store.Move(ctx, id, parentID)
	if err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}

	b.mu.Lock()
	reset := b.nav.Detach(id)
	b.mu.Unlock()

	b.log.Info("item moved", zap.String("id", id), zap.String("parent", parentID), zap.Int("trails_reset", reset))
	return item, b.refresh(ctx)
}

// Delete deletes an item.
func (b *Browser) Delete(ctx context.Context, id string) error {
	b.ops.Lock()
	defer b.ops.Unlock()

	if err := b.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	b.log.Info("item deleted", zap.String("id", id))
	return b.refresh(ctx)
}

// Share grants target a role on an item.
func (b *Browser) Share(ctx context.Context, id, target string, role model.ShareRole) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("share: %w", itemstore.ErrBadRequest)
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	if err := b.store.Share(ctx, id, target, role); err != nil {
		return fmt.Errorf("share: %w", err)
	}
	b.log.Info("item shared", zap.String("id", id), zap.String("target", target), zap.Stringer("role", role))
	return b.refresh(ctx)
}

// Upload sends a local file into the active folder. Errors wrap
// itemstore.ErrPresignFailed or itemstore.ErrStoragePut depending on the
// step that failed.
func (b *Browser) Upload(ctx context.Context, path string) (*model.Item, error) {
	if b.uploader == nil {
		return nil, fmt.Errorf("upload: no uploader configured")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("upload: %s is a directory", path)
	}

	b.ops.Lock()
	defer b.ops.Unlock()

	parent, err := b.writableCwd()
	if err != nil {
		return nil, err
	}

	item, err := itemstore.Upload(ctx, b.store, b.uploader, itemstore.UploadRequest{
		ParentID:  parent,
		Filename:  filepath.Base(path),
		MimeType:  MimeType(path),
		SizeBytes: info.Size(),
	}, f)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	b.log.Info("file uploaded", zap.String("id", item.ID), zap.Int64("size", info.Size()))
	return item, b.refresh(ctx)
}

// writableCwd returns the parent for new items, refusing the shared root.
func (b *Browser) writableCwd() (*string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.nav.Active()
	cwd := b.nav.Cwd(scope)
	if scope == model.ScopeShared && cwd == nil {
		return nil, ErrSharedRoot
	}
	return cwd, nil
}

// MimeType guesses a file's type from its extension.
func MimeType(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return "application/octet-stream"
	}
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return t
}

func sameIDs(a, b []model.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
