package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/metrics"
	"github.com/nikbrunner/drive/internal/model"
)

// DefaultWindow is the quiescence period before a search is sent.
const DefaultWindow = 250 * time.Millisecond

// Func runs one search request.
type Func func(ctx context.Context, req Request) ([]model.Item, error)

// Snapshot is the debouncer state as seen by the renderer.
type Snapshot struct {
	Query   string     // raw text as typed
	Request Request    // request the results (or error) belong to
	Results []model.Item
	Busy    bool
	Err     error
}

// Completed reports whether the snapshot holds a finished answer for req.
func (s Snapshot) Completed(req Request) bool {
	return !s.Busy && s.Request.Same(req) && s.Request.Query != ""
}

// DebouncerParams holds parameters for creating a Debouncer.
type DebouncerParams struct {
	Search   Func
	Window   time.Duration // defaults to DefaultWindow
	Limit    int           // defaults to DefaultLimit
	OnChange func(Snapshot)
}

// Debouncer turns keystrokes into at most one search per quiet period.
// Every dispatched request gets a sequence number; only the answer to the
// latest one is kept, so a slow earlier response cannot replace newer results.
type Debouncer struct {
	search   Func
	window   time.Duration
	limit    int
	onChange func(Snapshot)
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timer    *time.Timer
	timerSeq uint64 // bumped on every keystroke; stale timers compare against it
	seq      uint64 // latest dispatched request
	inflight context.CancelFunc
	state    Snapshot
	closed   bool
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(params DebouncerParams) *Debouncer {
	window := params.Window
	if window <= 0 {
		window = DefaultWindow
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		search:   params.Search,
		window:   window,
		limit:    limit,
		onChange: params.OnChange,
		log:      logging.Named("search"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Input records a keystroke. A blank query clears results and error at once
// without a request; anything else restarts the quiet-period timer.
func (d *Debouncer) Input(query string, scope model.Scope, folderID *string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	d.state.Query = query
	d.timerSeq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	q := strings.TrimSpace(query)
	if q == "" {
		// Drop whatever is in flight; its answer belongs to an old query.
		d.seq++
		if d.inflight != nil {
			d.inflight()
			d.inflight = nil
		}
		d.state.Request = Request{}
		d.state.Results = nil
		d.state.Err = nil
		d.state.Busy = false
		snap := d.snapshotLocked()
		d.mu.Unlock()
		d.notify(snap)
		return
	}

	req := Request{Query: q, Scope: scope, FolderID: folderID, Limit: d.limit}
	token := d.timerSeq
	d.timer = time.AfterFunc(d.window, func() { d.fire(req, token) })
	d.mu.Unlock()
}

// Clear is Input with an empty query.
func (d *Debouncer) Clear() {
	d.Input("", model.ScopeOwned, nil)
}

// Snapshot returns a copy of the current state.
func (d *Debouncer) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Close stops the timer and cancels any request in flight.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.timerSeq++
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.inflight = nil
	d.mu.Unlock()
	d.cancel()
}

func (d *Debouncer) fire(req Request, token uint64) {
	d.mu.Lock()
	if d.closed || token != d.timerSeq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.seq++
	seq := d.seq
	if d.inflight != nil {
		d.inflight()
	}
	ctx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	d.inflight = cancel
	d.state.Busy = true
	snap := d.snapshotLocked()
	d.mu.Unlock()
	d.notify(snap)

	d.log.Debug("search dispatched", zap.String("query", req.Query), zap.Stringer("scope", req.Scope), zap.Uint64("seq", seq))
	results, err := d.search(ctx, req)

	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		metrics.RecordSearch("stale")
		d.log.Debug("stale search response dropped", zap.String("query", req.Query), zap.Uint64("seq", seq))
		return
	}
	d.inflight = nil
	d.state.Busy = false
	d.state.Request = req
	if err != nil {
		d.state.Results = nil
		d.state.Err = err
		metrics.RecordSearch("error")
		d.log.Warn("search failed", zap.String("query", req.Query), zap.Error(err))
	} else {
		d.state.Results = results
		d.state.Err = nil
		metrics.RecordSearch("ok")
	}
	snap = d.snapshotLocked()
	d.mu.Unlock()
	d.notify(snap)
}

func (d *Debouncer) snapshotLocked() Snapshot {
	snap := d.state
	if d.state.Results != nil {
		snap.Results = append([]model.Item(nil), d.state.Results...)
	}
	return snap
}

func (d *Debouncer) notify(snap Snapshot) {
	if d.onChange != nil {
		d.onChange(snap)
	}
}
