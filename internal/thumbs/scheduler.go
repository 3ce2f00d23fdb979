package thumbs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/nikbrunner/drive/internal/handles"
	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/logging"
	"github.com/nikbrunner/drive/internal/metrics"
	"github.com/nikbrunner/drive/internal/model"
)

// DefaultWorkers bounds concurrent thumbnail fetches.
const DefaultWorkers = 4

// Fetcher downloads raw file content.
type Fetcher interface {
	FetchContent(ctx context.Context, id string) (*itemstore.Content, error)
}

// SchedulerParams holds parameters for creating a Scheduler.
type SchedulerParams struct {
	Fetcher   Fetcher
	Handles   HandleManager
	Workers   int   // defaults to DefaultWorkers
	MaxBytes  int64 // 0 = unlimited
	OnInstall func(id string)
}

type task struct {
	gen Generation
	ctx context.Context
	id  string
}

// Scheduler fetches thumbnails for the visible set with at most Workers
// fetches outstanding. Each Reconcile starts a new generation: the previous
// generation's context is cancelled and its queue is replaced, and anything
// it still produces is discarded by the cache.
type Scheduler struct {
	fetcher   Fetcher
	handles   HandleManager
	cache     *Cache
	workers   int
	maxBytes  int64
	onInstall func(id string)
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	idle      *sync.Cond
	gen       Generation
	genCancel context.CancelFunc
	queue     []task
	pending   map[string]bool // queued or fetching in the current generation
	running   int
	closed    bool
}

// NewScheduler creates a Scheduler with its own Cache.
func NewScheduler(params SchedulerParams) *Scheduler {
	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		fetcher:   params.Fetcher,
		handles:   params.Handles,
		cache:     NewCache(params.Handles),
		workers:   workers,
		maxBytes:  params.MaxBytes,
		onInstall: params.OnInstall,
		log:       logging.Named("thumbs"),
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]bool),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Cache returns the cache the scheduler fills.
func (s *Scheduler) Cache() *Cache {
	return s.cache
}

// Reconcile makes items the visible set: stale thumbnails are revoked at
// once, missing image thumbnails are queued in order. Returns the new
// generation, or 0 after Close.
func (s *Scheduler) Reconcile(items []model.Item) Generation {
	ids := model.ImageIDs(items)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	g, missing := s.cache.Begin(ids)
	metrics.RecordReconcile()

	if s.genCancel != nil {
		s.genCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.gen = g
	s.genCancel = cancel

	s.queue = make([]task, 0, len(missing))
	s.pending = make(map[string]bool, len(missing))
	for _, id := range missing {
		s.queue = append(s.queue, task{gen: g, ctx: ctx, id: id})
		s.pending[id] = true
	}

	// Workers still busy with a superseded fetch count against the bound.
	for n := 0; n < len(s.queue) && s.running < s.workers; n++ {
		s.running++
		go s.work()
	}

	s.log.Debug("reconciled",
		zap.Uint64("generation", uint64(g)),
		zap.Int("visible", len(ids)),
		zap.Int("queued", len(missing)),
		zap.Int("workers", s.running),
	)
	return g
}

// Pending reports whether id is queued or being fetched for the current
// generation.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id]
}

// Wait blocks until no worker is running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running > 0 {
		s.idle.Wait()
	}
}

// Close cancels outstanding fetches, waits for the workers and revokes
// every cached handle. Later calls to Reconcile do nothing.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.pending = make(map[string]bool)
	s.cancel()
	s.mu.Unlock()

	s.Wait()
	s.cache.Teardown()
}

// work drains the shared queue. The exit check and the running count
// change under one lock, so a Reconcile never leaves queued work without a
// worker.
func (s *Scheduler) work() {
	for {
		s.mu.Lock()
		if s.closed || len(s.queue) == 0 {
			s.running--
			if s.running == 0 {
				s.idle.Broadcast()
			}
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if !s.cache.Current(t.gen) {
			continue
		}
		s.fetch(t)
	}
}

func (s *Scheduler) fetch(t task) {
	metrics.FetchStarted()
	defer metrics.FetchFinished()
	defer s.done(t)

	h, err := s.load(t)
	if err != nil {
		// Retried by the next reconciliation that still shows the item.
		metrics.RecordFetch(false)
		s.log.Debug("thumbnail fetch failed",
			zap.String("id", t.id),
			zap.Uint64("generation", uint64(t.gen)),
			zap.Error(err),
		)
		return
	}
	metrics.RecordFetch(true)

	if s.cache.Install(t.gen, t.id, h) && s.onInstall != nil {
		s.onInstall(t.id)
	}
}

func (s *Scheduler) load(t task) (*handles.Handle, error) {
	content, err := s.fetcher.FetchContent(t.ctx, t.id)
	if err != nil {
		return nil, err
	}
	defer content.Body.Close()

	var r io.Reader = content.Body
	if s.maxBytes > 0 {
		r = io.LimitReader(content.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("content larger than %d bytes", s.maxBytes)
	}

	return s.handles.Create(t.ctx, t.id, data)
}

func (s *Scheduler) done(t task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == t.gen {
		delete(s.pending, t.id)
	}
}
