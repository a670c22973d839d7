package pantry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
)

// SearchResult is one emission of a Searcher.
type SearchResult[T any] struct {
	Query string
	Items []T
	// Pending is set while only local candidates are known and the server
	// search for Query is still outstanding.
	Pending bool
	Err     error
}

// Searcher turns a stream of query text into results: every Update emits the
// locally filtered candidates at once, then after the debounce delay runs
// the server search and emits the server results merged with the
// candidates. Results of a superseded query are dropped.
type Searcher[T querycache.Identified] struct {
	delay  time.Duration
	local  func(q string) []T
	remote func(ctx context.Context, q string) ([]T, error)
	emit   func(SearchResult[T])
	log    querycache.Logger

	seq    atomic.Uint64
	emitMu sync.Mutex

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewSearcher builds a Searcher. emit is called serially and must not call
// Update or Close.
func NewSearcher[T querycache.Identified](
	delay time.Duration,
	local func(q string) []T,
	remote func(ctx context.Context, q string) ([]T, error),
	emit func(SearchResult[T]),
	log querycache.Logger,
) *Searcher[T] {
	if log == nil {
		log = querycache.NopLogger{}
	}
	return &Searcher[T]{delay: delay, local: local, remote: remote, emit: emit, log: log}
}

// Update starts a search for q, superseding the previous one. Blank q emits
// the unfiltered local results and no server search.
func (s *Searcher[T]) Update(q string) {
	q = trim(q)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	seq := s.seq.Add(1)
	s.stopLocked()
	if q != "" {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		s.timer = time.AfterFunc(s.delay, func() {
			defer s.wg.Done()
			s.run(ctx, seq, q)
		})
	}
	s.mu.Unlock()

	s.deliver(seq, SearchResult[T]{Query: q, Items: s.local(q), Pending: q != ""})
}

// stopLocked cancels the pending timer or running server search.
func (s *Searcher[T]) stopLocked() {
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Searcher[T]) run(ctx context.Context, seq uint64, q string) {
	server, err := s.remote(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Debug("search failed", querycache.Fields{"query": q, "err": err})
		s.deliver(seq, SearchResult[T]{Query: q, Items: s.local(q), Err: err})
		return
	}
	s.deliver(seq, SearchResult[T]{Query: q, Items: querycache.Merge(s.local(q), server)})
}

// deliver emits r unless a newer Update has happened.
func (s *Searcher[T]) deliver(seq uint64, r SearchResult[T]) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.seq.Load() != seq {
		s.log.Debug("search result superseded", querycache.Fields{"query": r.Query})
		return
	}
	s.emit(r)
}

// Close stops the searcher and waits for a running server search to end.
// No results are emitted afterwards.
func (s *Searcher[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.seq.Add(1)
	s.stopLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// PantrySearch searches pantry items matching f. Local candidates come from
// the cached item list for f.
func (s *Service) PantrySearch(f ItemFilters, emit func(SearchResult[record.PantryItem])) *Searcher[record.PantryItem] {
	local := func(q string) []record.PantryItem {
		l, ok, err := querycache.GetData[itemList](context.Background(), s.store, ItemsKey(f))
		if err != nil || !ok {
			return nil
		}
		return FilterItems(l.Items, q)
	}
	remote := func(ctx context.Context, q string) ([]record.PantryItem, error) {
		res, _, err := s.Search(ctx, q, f)
		return res.Items, err
	}
	return NewSearcher(s.delay, local, remote, emit, s.log)
}

// RecipeSearch searches recipes by text. Local candidates come from the
// loaded suggestion pages.
func (s *Service) RecipeSearch(emit func(SearchResult[record.RecipeSummary])) *Searcher[record.RecipeSummary] {
	local := func(q string) []record.RecipeSummary {
		in, ok, err := querycache.GetData[querycache.Infinite[record.SuggestPage]](context.Background(), s.store, InfiniteSuggestKey(s.pageSize))
		if err != nil || !ok {
			return nil
		}
		var all []record.RecipeSummary
		for _, p := range in.Pages {
			all = append(all, p.Items...)
		}
		return FilterRecipes(all, q)
	}
	remote := func(ctx context.Context, q string) ([]record.RecipeSummary, error) {
		in, err := s.SearchPager(SearchParams{Q: q}).First(ctx)
		if err != nil {
			return nil, err
		}
		var all []record.RecipeSummary
		for _, p := range in.Pages {
			all = append(all, p.Items...)
		}
		return all, nil
	}
	return NewSearcher(s.delay, local, remote, emit, s.log)
}
