package thumbs_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/drive/internal/handles"
	"github.com/nikbrunner/drive/internal/itemstore"
	"github.com/nikbrunner/drive/internal/model"
	"github.com/nikbrunner/drive/internal/thumbs"
)

// countingManager tracks live handles per item and how often each handle
// was revoked.
type countingManager struct {
	mu      sync.Mutex
	seq     uint64
	live    map[uint64]*handles.Handle
	revokes map[uint64]int
	created []string
}

func newCountingManager() *countingManager {
	return &countingManager{
		live:    make(map[uint64]*handles.Handle),
		revokes: make(map[uint64]int),
	}
}

func (m *countingManager) Create(ctx context.Context, itemID string, data []byte) (*handles.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h := &handles.Handle{Seq: m.seq, ItemID: itemID, Size: int64(len(data))}
	m.live[h.Seq] = h
	m.created = append(m.created, itemID)
	return h, nil
}

func (m *countingManager) Revoke(h *handles.Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokes[h.Seq]++
	delete(m.live, h.Seq)
}

func (m *countingManager) liveFor(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.live {
		if h.ItemID == itemID {
			n++
		}
	}
	return n
}

func (m *countingManager) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *countingManager) maxRevokes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	most := 0
	for _, n := range m.revokes {
		if n > most {
			most = n
		}
	}
	return most
}

// fakeFetcher serves "data-<id>" and can hold fetches until released.
type fakeFetcher struct {
	mu       sync.Mutex
	gate     chan struct{} // nil = never block
	active   int
	maxSeen  int
	calls    map[string]int
	fail     map[string]bool
	onFetch  func(id string)
	started  chan string
	ignoreCx bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeFetcher) FetchContent(ctx context.Context, id string) (*itemstore.Content, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.calls[id]++
	fail := f.fail[id]
	gate, started, onFetch := f.gate, f.started, f.onFetch
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if onFetch != nil {
		onFetch(id)
	}
	if started != nil {
		started <- id
	}
	if gate != nil {
		if f.ignoreCx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if fail {
		return nil, errors.New("boom")
	}

	body := "data-" + id
	return &itemstore.Content{
		Body:     io.NopCloser(strings.NewReader(body)),
		Filename: id,
		Size:     int64(len(body)),
	}, nil
}

func (f *fakeFetcher) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func image(id string) model.Item {
	mime := "image/png"
	return model.Item{ID: id, Name: id + ".png", Kind: model.KindFile, MimeType: &mime}
}

func folder(id string) model.Item {
	return model.Item{ID: id, Name: id, Kind: model.KindFolder}
}

func TestCache_InstallRequiresCurrentGenerationAndVisibility(t *testing.T) {
	hm := newCountingManager()
	c := thumbs.NewCache(hm)
	ctx := context.Background()

	g1, missing := c.Begin([]string{"a", "b"})
	assert.DeepEqual(t, missing, []string{"a", "b"})

	h, _ := hm.Create(ctx, "z", nil)
	assert.Assert(t, !c.Install(g1, "z", h), "not visible")
	assert.Equal(t, hm.liveCount(), 0)

	g2, _ := c.Begin([]string{"a"})
	h, _ = hm.Create(ctx, "a", nil)
	assert.Assert(t, !c.Install(g1, "a", h), "stale generation")
	assert.Equal(t, hm.liveCount(), 0)

	h, _ = hm.Create(ctx, "a", nil)
	assert.Assert(t, c.Install(g2, "a", h))
	assert.Equal(t, c.Len(), 1)
	assert.Assert(t, c.Current(g2))
	assert.Assert(t, !c.Current(g1))
}

func TestCache_InstallReplacesExisting(t *testing.T) {
	hm := newCountingManager()
	c := thumbs.NewCache(hm)
	ctx := context.Background()

	g, _ := c.Begin([]string{"a"})
	first, _ := hm.Create(ctx, "a", nil)
	second, _ := hm.Create(ctx, "a", nil)
	assert.Assert(t, c.Install(g, "a", first))
	assert.Assert(t, c.Install(g, "a", second))

	got, ok := c.Get("a")
	assert.Assert(t, ok)
	assert.Equal(t, got.Seq, second.Seq)
	assert.Equal(t, hm.liveFor("a"), 1)
}

func TestCache_BeginEvictsAndReportsMissing(t *testing.T) {
	hm := newCountingManager()
	c := thumbs.NewCache(hm)
	ctx := context.Background()

	g, _ := c.Begin([]string{"a", "b"})
	for _, id := range []string{"a", "b"} {
		h, _ := hm.Create(ctx, id, nil)
		assert.Assert(t, c.Install(g, id, h))
	}

	_, missing := c.Begin([]string{"b", "c", "c"})
	assert.DeepEqual(t, missing, []string{"c"})
	assert.Equal(t, hm.liveFor("a"), 0)
	assert.Equal(t, hm.liveFor("b"), 1)

	snap := c.Snapshot()
	assert.Assert(t, is.Len(snap, 1))
	assert.Assert(t, snap["b"] != nil)

	c.Teardown()
	assert.Equal(t, c.Len(), 0)
	assert.Equal(t, hm.liveCount(), 0)
	assert.Equal(t, hm.maxRevokes(), 1)
}

func TestScheduler_AtMostFourConcurrentFetches(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 100)
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	var items []model.Item
	for i := 0; i < 20; i++ {
		items = append(items, image(string(rune('a'+i))))
	}
	s.Reconcile(items)

	for i := 0; i < 4; i++ {
		<-f.started
	}
	close(f.gate)
	s.Wait()

	assert.Equal(t, f.maxSeen, 4)
	assert.Equal(t, s.Cache().Len(), 20)
	assert.Equal(t, hm.liveCount(), 20)
}

func TestScheduler_BoundHoldsAcrossGenerations(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 200)
	// Superseded fetches keep running until the gate opens.
	f.ignoreCx = true
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})

	for g := 0; g < 10; g++ {
		var items []model.Item
		for i := 0; i < 10; i++ {
			items = append(items, image(fmt.Sprintf("g%d-%d", g, i)))
		}
		s.Reconcile(items)
		if g == 0 {
			for i := 0; i < 4; i++ {
				<-f.started
			}
		}
	}
	close(f.gate)
	s.Wait()

	f.mu.Lock()
	maxSeen := f.maxSeen
	f.mu.Unlock()
	assert.Assert(t, maxSeen <= 4, "saw %d concurrent fetches", maxSeen)
	assert.Equal(t, s.Cache().Len(), 10)
	assert.Equal(t, hm.liveCount(), s.Cache().Len())
	for i := 0; i < 10; i++ {
		_, ok := s.Cache().Get(fmt.Sprintf("g9-%d", i))
		assert.Assert(t, ok)
	}

	s.Close()
	assert.Equal(t, hm.liveCount(), 0)
	assert.Assert(t, hm.maxRevokes() <= 1)
}

func TestScheduler_WorkersOption(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 100)
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm, Workers: 2})
	defer s.Close()

	s.Reconcile([]model.Item{image("a"), image("b"), image("c"), image("d")})
	<-f.started
	<-f.started
	close(f.gate)
	s.Wait()

	assert.Assert(t, f.maxSeen <= 2)
	assert.Equal(t, s.Cache().Len(), 4)
}

func TestScheduler_ShrinkRevokesExactlyOnce(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	s.Reconcile([]model.Item{image("imgA"), image("imgB"), folder("folderC")})
	s.Wait()
	assert.Equal(t, s.Cache().Len(), 2)

	s.Reconcile([]model.Item{image("imgB")})
	s.Wait()

	snap := s.Cache().Snapshot()
	assert.Assert(t, is.Len(snap, 1))
	assert.Assert(t, snap["imgB"] != nil)
	assert.Equal(t, hm.liveFor("imgA"), 0)
	assert.Equal(t, hm.maxRevokes(), 1)
	assert.Equal(t, f.callsFor("imgB"), 1, "cached item is not refetched")
	assert.Equal(t, f.callsFor("folderC"), 0)
}

func TestScheduler_EvictsBeforeFill(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	s.Reconcile([]model.Item{image("a"), image("b")})
	s.Wait()

	var liveAtFetch []int
	var mu sync.Mutex
	f.mu.Lock()
	f.onFetch = func(id string) {
		mu.Lock()
		liveAtFetch = append(liveAtFetch, hm.liveFor("a")+hm.liveFor("b"))
		mu.Unlock()
	}
	f.mu.Unlock()

	s.Reconcile([]model.Item{image("c"), image("d")})
	s.Wait()

	assert.DeepEqual(t, liveAtFetch, []int{0, 0})
}

func TestScheduler_StaleGenerationNeverInstalls(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 10)
	f.ignoreCx = true // finish the stale fetch instead of aborting it
	var installed []string
	var mu sync.Mutex
	s := thumbs.NewScheduler(thumbs.SchedulerParams{
		Fetcher: f,
		Handles: hm,
		OnInstall: func(id string) {
			mu.Lock()
			installed = append(installed, id)
			mu.Unlock()
		},
	})
	defer s.Close()

	g1 := s.Reconcile([]model.Item{image("a")})
	assert.Equal(t, <-f.started, "a")
	assert.Assert(t, s.Pending("a"))

	g2 := s.Reconcile([]model.Item{image("b")})
	assert.Assert(t, g2 > g1)
	assert.Assert(t, !s.Pending("a"))
	assert.Equal(t, <-f.started, "b")

	close(f.gate)
	s.Wait()

	assert.DeepEqual(t, installed, []string{"b"})
	_, ok := s.Cache().Get("a")
	assert.Assert(t, !ok)
	assert.Equal(t, hm.liveFor("a"), 0)
	assert.Equal(t, hm.liveCount(), 1)
	assert.Assert(t, !s.Pending("b"))
}

func TestScheduler_SupersededFetchIsCancelled(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.started = make(chan string, 10)
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	s.Reconcile([]model.Item{image("a")})
	<-f.started
	s.Reconcile(nil)
	s.Wait()

	assert.Equal(t, hm.liveCount(), 0)
	assert.Assert(t, is.Len(hm.created, 0))
}

func TestScheduler_FailureRetriedOnNextReconcile(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	f.fail["bad"] = true
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	items := []model.Item{image("bad"), image("good")}
	s.Reconcile(items)
	s.Wait()
	_, ok := s.Cache().Get("bad")
	assert.Assert(t, !ok)
	assert.Equal(t, s.Cache().Len(), 1)

	f.mu.Lock()
	f.fail["bad"] = false
	f.mu.Unlock()

	s.Reconcile(items)
	s.Wait()
	_, ok = s.Cache().Get("bad")
	assert.Assert(t, ok)
	assert.Equal(t, f.callsFor("bad"), 2)
	assert.Equal(t, f.callsFor("good"), 1)
}

func TestScheduler_MaxBytes(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm, MaxBytes: 4})
	defer s.Close()

	s.Reconcile([]model.Item{image("a")})
	s.Wait()

	assert.Equal(t, s.Cache().Len(), 0)
	assert.Equal(t, hm.liveCount(), 0)
}

func TestScheduler_CloseTearsDown(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})

	s.Reconcile([]model.Item{image("a"), image("b")})
	s.Wait()
	assert.Equal(t, hm.liveCount(), 2)

	s.Close()
	s.Close()
	assert.Equal(t, hm.liveCount(), 0)
	assert.Equal(t, hm.maxRevokes(), 1)

	assert.Equal(t, s.Reconcile([]model.Item{image("c")}), thumbs.Generation(0))
	s.Wait()
	assert.Equal(t, f.callsFor("c"), 0)
}

func TestScheduler_RandomReconcilesKeepOneHandlePerID(t *testing.T) {
	hm := newCountingManager()
	f := newFakeFetcher()
	s := thumbs.NewScheduler(thumbs.SchedulerParams{Fetcher: f, Handles: hm})
	defer s.Close()

	sets := [][]model.Item{
		{image("a"), image("b"), image("c")},
		{image("b")},
		{image("c"), image("d"), folder("x")},
		{},
		{image("a"), image("d")},
		{image("a"), image("b"), image("c"), image("d"), image("e")},
	}
	for round := 0; round < 10; round++ {
		for _, set := range sets {
			s.Reconcile(set)
		}
	}
	s.Wait()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Assert(t, hm.liveFor(id) <= 1, id)
	}
	assert.Equal(t, hm.liveCount(), s.Cache().Len())
	assert.Assert(t, hm.maxRevokes() <= 1)
}
