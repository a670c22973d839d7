package querycache

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	gen "github.com/unkn0wn-root/querycache/genstore"
)

// Forever disables age-based staleness for a query.
const Forever time.Duration = math.MaxInt64

// Fetcher loads the remote value for one key.
type Fetcher func(ctx context.Context) (any, error)

// FetchFunc is the typed form of Fetcher.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// QueryOptions tune a single query.
type QueryOptions struct {
	// StaleTime is how long a fetched result is served without refetching.
	// 0 => executor default; < 0 => always refetch; Forever => never stale.
	StaleTime time.Duration
}

// errSuperseded tells waiters that their flight was replaced by a forced one.
var errSuperseded = errors.New("querycache: flight superseded")

type flight struct {
	name  string
	key   Key
	parts [][]byte
	slot  string
	gen   uint64

	ctx     context.Context
	cancel  context.CancelFunc
	run     func() (any, error)
	aborted chan struct{}

	superseded bool // guarded by Executor.mu
}

// abort wakes the flight's waiters. Must be called with Executor.mu held,
// after removing fl from the flight map.
func (fl *flight) abort(superseded bool) {
	fl.superseded = superseded
	fl.cancel()
	close(fl.aborted)
}

type registered struct {
	key Key
	fn  Fetcher
}

// Executor resolves queries from the store or the network, coalescing
// identical in-flight reads.
type Executor struct {
	store *Store
	gens  gen.GenStore
	log   Logger
	hooks Hooks
	now   func() time.Time

	staleTime      time.Duration
	concurrency    int
	onUnauthorized func()

	base context.Context
	stop context.CancelFunc

	sf singleflight.Group

	mu       sync.Mutex
	seq      uint64
	flights  map[string]*flight
	fetchers map[string]registered
	closed   bool

	bg sync.WaitGroup
}

func newExecutor(store *Store, gens gen.GenStore, log Logger, hooks Hooks, staleTime time.Duration, concurrency int, onUnauthorized func()) *Executor {
	base, stop := context.WithCancel(context.Background())
	e := &Executor{
		store:          store,
		gens:           gens,
		log:            log,
		hooks:          hooks,
		now:            store.now,
		staleTime:      staleTime,
		concurrency:    concurrency,
		onUnauthorized: onUnauthorized,
		base:           base,
		stop:           stop,
		flights:        make(map[string]*flight),
		fetchers:       make(map[string]registered),
	}
	store.onStale = e.refetchKeys
	return e
}

// Store returns the store the executor writes to.
func (e *Executor) Store() *Store { return e.store }

// Query returns the cached value for key when it is fresh, otherwise fetches
// it. Concurrent queries for an equal key share one fetch. On failure the
// cached value is left untouched and the error is returned to the caller.
func Query[T any](ctx context.Context, e *Executor, key Key, fetch FetchFunc[T], opts QueryOptions) (T, error) {
	var zero T
	ent, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok && !e.isStale(ent, opts.StaleTime) {
		return cast[T](ent.Data)
	}
	v, _, err := e.fetch(ctx, key, erase(fetch), fetchOpts{register: true})
	if err != nil {
		return zero, err
	}
	return cast[T](v)
}

// Prefetch warms key in the background when it is missing or stale.
// Errors are logged and dropped.
func Prefetch[T any](e *Executor, key Key, fetch FetchFunc[T], opts QueryOptions) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.bg.Done()
		if _, err := Query(e.base, e, key, fetch, opts); err != nil {
			e.log.Debug("prefetch failed", Fields{"key": key.String(), "err": err})
		}
	}()
}

func erase[T any](fetch FetchFunc[T]) Fetcher {
	return func(ctx context.Context) (any, error) { return fetch(ctx) }
}

// IsStale reports whether ent must be refetched under staleTime.
func (e *Executor) IsStale(ent Entry, staleTime time.Duration) bool {
	return e.isStale(ent, staleTime)
}

func (e *Executor) isStale(ent Entry, staleTime time.Duration) bool {
	if ent.Stale {
		return true
	}
	st := coalesce(staleTime, e.staleTime)
	switch {
	case st < 0:
		return true
	case st == Forever:
		return false
	}
	return e.now().Sub(ent.FetchedAt) >= st
}

// Refetch reruns the fetcher last registered for key and waits for it.
func (e *Executor) Refetch(ctx context.Context, key Key) (any, error) {
	canon, err := key.canonical()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	r, ok := e.fetchers[e.store.storageKey(canon)]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNoFetcher
	}
	v, _, err := e.fetch(ctx, key, r.fn, fetchOpts{force: true})
	return v, err
}

// Invalidate marks entries stale and refetches them per refetch.
func (e *Executor) Invalidate(ctx context.Context, f Filter, refetch RefetchType) (int, error) {
	return e.store.Invalidate(ctx, f, refetch)
}

// refetchKeys restarts fetches for keys with a registered fetcher, bounded by
// the executor's refetch concurrency.
func (e *Executor) refetchKeys(keys []Key) {
	type job struct {
		key Key
		fn  Fetcher
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	jobs := make([]job, 0, len(keys))
	for _, k := range keys {
		canon, err := k.canonical()
		if err != nil {
			continue
		}
		if r, ok := e.fetchers[e.store.storageKey(canon)]; ok {
			jobs = append(jobs, job{key: k, fn: r.fn})
		}
	}
	if len(jobs) == 0 {
		e.mu.Unlock()
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bg.Done()
		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for _, j := range jobs {
			g.Go(func() error {
				if _, _, err := e.fetch(e.base, j.key, j.fn, fetchOpts{force: true}); err != nil {
					e.log.Debug("background refetch failed", Fields{"key": j.key.String(), "err": err})
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

type fetchOpts struct {
	// force replaces an in-flight fetch instead of joining it.
	force bool
	// register records fn as the key's refetcher.
	register bool
}

// fetch runs or joins the flight for key. joined reports whether another
// caller's flight produced the result.
func (e *Executor) fetch(ctx context.Context, key Key, fn Fetcher, o fetchOpts) (any, bool, error) {
	canon, err := key.canonical()
	if err != nil {
		return nil, false, err
	}
	parts, err := key.partsCanonical()
	if err != nil {
		return nil, false, err
	}
	id := e.store.storageKey(canon)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, false, ErrClosed
	}
	if o.register {
		e.fetchers[id] = registered{key: append(Key(nil), key...), fn: fn}
	}
	fl, joined := e.flights[id], false
	if fl != nil && !o.force {
		joined = true
	} else {
		if fl != nil {
			delete(e.flights, id)
			fl.abort(true)
		}
		fl = e.newFlight(id, key, parts, fn)
		e.flights[id] = fl
	}
	ch := e.sf.DoChan(fl.name, fl.run)
	e.mu.Unlock()

	if joined {
		e.hooks.FetchCoalesced(key.String())
	} else {
		_ = e.store.update(e.base, func(t *txn) error {
			e.mu.Lock()
			live := e.flights[id] == fl
			e.mu.Unlock()
			if live {
				t.setFetching(key, true)
			}
			return nil
		})
	}

	v, err := e.await(ctx, key, fl, ch)
	return v, joined, err
}

// newFlight must be called with e.mu held.
func (e *Executor) newFlight(id string, key Key, parts [][]byte, fn Fetcher) *flight {
	e.seq++
	fctx, cancel := context.WithCancel(e.base)
	fl := &flight{
		name:    id + "#" + strconv.FormatUint(e.seq, 10),
		key:     append(Key(nil), key...),
		parts:   parts,
		slot:    id,
		ctx:     fctx,
		cancel:  cancel,
		aborted: make(chan struct{}),
	}
	g, err := e.gens.Snapshot(fctx, id)
	if err != nil {
		e.log.Warn("generation snapshot failed", Fields{"key": key.String(), "err": err})
	}
	fl.gen = g
	e.bg.Add(1)
	fl.run = func() (any, error) {
		defer e.bg.Done()
		defer cancel()
		v, err := fn(fctx)
		return e.complete(fl, v, err)
	}
	return fl
}

// complete settles a flight. The result is written only when the flight is
// still current, was not aborted, and the slot generation is unchanged.
func (e *Executor) complete(fl *flight, v any, ferr error) (any, error) {
	var (
		discarded  bool
		superseded bool
	)
	uerr := e.store.update(e.base, func(t *txn) error {
		e.mu.Lock()
		live := e.flights[fl.slot] == fl
		if live {
			delete(e.flights, fl.slot)
		}
		superseded = fl.superseded
		e.mu.Unlock()

		if !live {
			discarded = true
			return nil
		}
		t.setFetching(fl.key, false)
		if fl.ctx.Err() != nil {
			discarded = true
			return nil
		}
		if ferr != nil {
			return nil
		}
		cur, err := e.gens.Snapshot(t.ctx, fl.slot)
		if err != nil || cur != fl.gen {
			discarded = true
			return nil
		}
		err = t.seed(fl.key, v)
		if errors.Is(err, errRejected) {
			return nil
		}
		return err
	})

	switch {
	case errors.Is(uerr, ErrClosed):
		return nil, ErrClosed
	case discarded:
		e.hooks.FetchDiscarded(fl.key.String())
		e.log.Debug("fetch result discarded", Fields{"key": fl.key.String()})
		if superseded {
			return nil, errSuperseded
		}
		return nil, ErrCanceled
	case ferr != nil:
		e.hooks.FetchFailed(fl.key.String(), ferr)
		e.log.Warn("fetch failed; keeping cached value", Fields{"key": fl.key.String(), "err": ferr})
		if IsUnauthorized(ferr) && e.onUnauthorized != nil {
			e.onUnauthorized()
		}
		return nil, ferr
	case uerr != nil:
		e.log.Error("storing fetch result failed", Fields{"key": fl.key.String(), "err": uerr})
	}
	return v, nil
}

// await waits for the flight result, following forced replacements. When the
// replacement has already settled, its stored result is returned.
func (e *Executor) await(ctx context.Context, key Key, fl *flight, ch <-chan singleflight.Result) (any, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if !errors.Is(r.Err, errSuperseded) {
				return r.Val, r.Err
			}
		case <-fl.aborted:
		}

		e.mu.Lock()
		superseded := fl.superseded
		next := e.flights[fl.slot]
		if superseded && next != nil {
			fl, ch = next, e.sf.DoChan(next.name, next.run)
		}
		e.mu.Unlock()

		switch {
		case !superseded:
			return nil, ErrCanceled
		case next == nil:
			ent, ok, err := e.store.Get(ctx, key)
			if err != nil || !ok || ent.Stale {
				return nil, ErrCanceled
			}
			return ent.Data, nil
		}
	}
}

// waitIdle blocks until no fetch for key is outstanding.
func (e *Executor) waitIdle(ctx context.Context, key Key) error {
	canon, err := key.canonical()
	if err != nil {
		return err
	}
	id := e.store.storageKey(canon)
	for {
		e.mu.Lock()
		fl := e.flights[id]
		var ch <-chan singleflight.Result
		if fl != nil {
			ch = e.sf.DoChan(fl.name, fl.run)
		}
		e.mu.Unlock()
		if fl == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		case <-fl.aborted:
		}
	}
}

// Fetching reports whether a fetch for key is in flight.
func (e *Executor) Fetching(key Key) bool {
	canon, err := key.canonical()
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flights[e.store.storageKey(canon)] != nil
}

// Cancel aborts in-flight fetches selected by any of filters and fences their
// slots so that a late completion is dropped. Waiters receive ErrCanceled.
// With no filters nothing is canceled. Returns the number of aborted fetches.
func (e *Executor) Cancel(ctx context.Context, filters ...Filter) (int, error) {
	var n int
	err := e.store.update(ctx, func(t *txn) error {
		var err error
		n, err = e.cancelTx(t, filters)
		return err
	})
	return n, err
}

func (e *Executor) cancelTx(t *txn, filters []Filter) (int, error) {
	if len(filters) == 0 {
		return 0, nil
	}
	cfs := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		cf, err := f.compile()
		if err != nil {
			return 0, err
		}
		cfs = append(cfs, cf)
	}

	e.mu.Lock()
	var aborted []*flight
	for id, fl := range e.flights {
		for _, cf := range cfs {
			if cf.match(fl.key, fl.parts) {
				delete(e.flights, id)
				aborted = append(aborted, fl)
				break
			}
		}
	}
	e.mu.Unlock()

	slots, err := t.match(filters...)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(slots)+len(aborted))
	ids := make([]string, 0, len(slots)+len(aborted))
	for _, sl := range slots {
		seen[sl.id] = struct{}{}
		ids = append(ids, sl.id)
	}
	for _, fl := range aborted {
		if _, ok := seen[fl.slot]; !ok {
			ids = append(ids, fl.slot)
		}
	}
	if len(ids) > 0 {
		if _, err := e.gens.BumpMany(t.ctx, ids); err != nil {
			for _, id := range ids {
				e.hooks.GenBumpError(id, err)
			}
			e.log.Error("generation bump failed", Fields{"slots": len(ids), "err": err})
		}
	}

	e.mu.Lock()
	for _, fl := range aborted {
		fl.abort(false)
	}
	e.mu.Unlock()
	for _, fl := range aborted {
		t.setFetching(fl.key, false)
	}
	if len(aborted) > 0 {
		e.log.Debug("canceled in-flight fetches", Fields{"count": len(aborted)})
	}
	return len(aborted), nil
}

// Wait blocks until every in-flight and background fetch has finished.
func (e *Executor) Wait() { e.bg.Wait() }

// Close aborts every fetch and waits for them to finish or ctx to end.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for id, fl := range e.flights {
		delete(e.flights, id)
		fl.abort(false)
	}
	e.mu.Unlock()
	e.stop()

	done := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
