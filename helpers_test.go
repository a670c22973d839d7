package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/querycache/provider"
)

type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	reject atomic.Bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if p.reject.Load() {
		return false, nil
	}
	p.mu.Lock()
	p.m[key] = value
	p.mu.Unlock()
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) put(key string, v []byte) {
	p.mu.Lock()
	p.m[key] = v
	p.mu.Unlock()
}

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

// item is a tracked record; itemList and itemDetail are two views holding it.
type item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Saved    bool   `json:"saved"`
}

func (i item) Identity() Identity { return Identity{ID: i.ID} }

type itemList struct {
	Items []item `json:"items"`
	Count int    `json:"count"`
}

type itemDetail struct {
	Item  item   `json:"item"`
	Notes string `json:"notes"`
}

type recipe struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
}

func (r recipe) Identity() Identity { return Identity{ID: r.ID, ExternalID: r.ExternalID} }

type recordingHooks struct {
	NopHooks
	mu        sync.Mutex
	heals     []string
	rejected  int
	coalesced int
	failed    int
	discarded int
	settled   []Phase
}

func (h *recordingHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
}

func (h *recordingHooks) ProviderSetRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

func (h *recordingHooks) FetchCoalesced(string) {
	h.mu.Lock()
	h.coalesced++
	h.mu.Unlock()
}

func (h *recordingHooks) FetchFailed(string, error) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
}

func (h *recordingHooks) FetchDiscarded(string) {
	h.mu.Lock()
	h.discarded++
	h.mu.Unlock()
}

func (h *recordingHooks) MutationSettled(_ string, p Phase, _ error) {
	h.mu.Lock()
	h.settled = append(h.settled, p)
	h.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, mp pr.Provider, optsOpt func(*Options)) *Client {
	t.Helper()
	opts := Options{Namespace: "test", Provider: mp}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cl, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := cl.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return cl
}

func storageKeyOf(t *testing.T, s *Store, k Key) string {
	t.Helper()
	canon, err := k.canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	return s.storageKey(canon)
}

func mustGet[T any](t *testing.T, s *Store, k Key) T {
	t.Helper()
	v, ok, err := GetData[T](context.Background(), s, k)
	if err != nil || !ok {
		t.Fatalf("GetData(%s): ok=%v err=%v", k, ok, err)
	}
	return v
}
