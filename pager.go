package querycache

import (
	"context"
	"errors"
	"sync"
)

// Paged is one page of an ordered result set.
type Paged interface {
	// PageLen is the number of records on the page.
	PageLen() int
	// KnownTotal is the total number of records when the server reports it.
	KnownTotal() (int, bool)
}

// Infinite is the cached state of a paginated query: the loaded pages in
// order and the page numbers they were fetched with. It is stored under a
// single key.
type Infinite[P any] struct {
	Pages  []P
	Params []int
}

// LastParam returns the page number of the last loaded page, or 0.
func (in Infinite[P]) LastParam() int {
	if len(in.Params) == 0 {
		return 0
	}
	return in.Params[len(in.Params)-1]
}

// NextPageParam decides whether a page follows the one fetched with lastParam
// (1-based). With a known total there are no more pages once
// lastParam*pageSize >= total; otherwise a short page is the last one. An
// empty page always ends the sequence.
func NextPageParam(last Paged, lastParam, pageSize int) (int, bool) {
	n := last.PageLen()
	if n == 0 {
		return 0, false
	}
	if total, ok := last.KnownTotal(); ok {
		if lastParam*pageSize >= total {
			return 0, false
		}
		return lastParam + 1, true
	}
	if n < pageSize {
		return 0, false
	}
	return lastParam + 1, true
}

// PageFunc fetches page param (1-based) of size pageSize.
type PageFunc[P Paged] func(ctx context.Context, param, pageSize int) (P, error)

// Pager drives incremental fetching of one paginated query. Pages are
// requested strictly in order: Next waits for any outstanding fetch of the
// same key before requesting the following page.
type Pager[P Paged] struct {
	exec     *Executor
	key      Key
	pageSize int
	fetch    PageFunc[P]
	opts     QueryOptions

	mu sync.Mutex
}

// NewPager returns a pager caching its pages under key.
func NewPager[P Paged](exec *Executor, key Key, pageSize int, fetch PageFunc[P], opts QueryOptions) *Pager[P] {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &Pager[P]{exec: exec, key: key, pageSize: pageSize, fetch: fetch, opts: opts}
}

// Key returns the key the pages are cached under.
func (p *Pager[P]) Key() Key { return p.key }

// First returns the cached pages when fresh; otherwise it (re)loads them. A
// refetch re-requests every loaded page in order.
func (p *Pager[P]) First(ctx context.Context) (Infinite[P], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Query(ctx, p.exec, p.key, p.reload, p.opts)
}

// Prefetch loads the first page in the background when the pages are missing
// or stale. Errors are dropped.
func (p *Pager[P]) Prefetch() {
	Prefetch(p.exec, p.key, p.reload, p.opts)
}

// reload fetches pages 1..n, where n is the number of pages currently cached.
func (p *Pager[P]) reload(ctx context.Context) (Infinite[P], error) {
	n := 1
	if cur, ok, err := GetData[Infinite[P]](ctx, p.exec.store, p.key); err == nil && ok && len(cur.Pages) > 0 {
		n = len(cur.Pages)
	}
	var out Infinite[P]
	param := 1
	for i := 0; i < n; i++ {
		page, err := p.fetch(ctx, param, p.pageSize)
		if err != nil {
			return Infinite[P]{}, err
		}
		out.Pages = append(out.Pages, page)
		out.Params = append(out.Params, param)
		next, more := NextPageParam(page, param, p.pageSize)
		if !more {
			break
		}
		param = next
	}
	return out, nil
}

// Next fetches the page after the last loaded one and returns the updated
// pages. When no page follows, the cached pages are returned unchanged.
func (p *Pager[P]) Next(ctx context.Context) (Infinite[P], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if err := p.exec.waitIdle(ctx, p.key); err != nil {
			return Infinite[P]{}, err
		}
		cur, ok, err := GetData[Infinite[P]](ctx, p.exec.store, p.key)
		if err != nil {
			return Infinite[P]{}, err
		}
		if !ok || len(cur.Pages) == 0 {
			return Query(ctx, p.exec, p.key, p.reload, p.opts)
		}
		param, more := NextPageParam(cur.Pages[len(cur.Pages)-1], cur.LastParam(), p.pageSize)
		if !more {
			return cur, nil
		}

		v, joined, err := p.exec.fetch(ctx, p.key, func(fctx context.Context) (any, error) {
			page, err := p.fetch(fctx, param, p.pageSize)
			if err != nil {
				return nil, err
			}
			base, ok, err := GetData[Infinite[P]](fctx, p.exec.store, p.key)
			if err != nil || !ok {
				base = cur
			}
			if base.LastParam() >= param {
				return base, nil
			}
			return Infinite[P]{
				Pages:  append(append([]P(nil), base.Pages...), page),
				Params: append(append([]int(nil), base.Params...), param),
			}, nil
		}, fetchOpts{})
		if joined {
			// Someone else's fetch for this key finished first; re-evaluate.
			if err != nil && !errors.Is(err, ErrCanceled) {
				return Infinite[P]{}, err
			}
			continue
		}
		if err != nil {
			return Infinite[P]{}, err
		}
		return cast[Infinite[P]](v)
	}
}

// HasNext reports whether another page follows the cached ones.
func (p *Pager[P]) HasNext(ctx context.Context) (bool, error) {
	cur, ok, err := GetData[Infinite[P]](ctx, p.exec.store, p.key)
	if err != nil || !ok || len(cur.Pages) == 0 {
		return false, err
	}
	_, more := NextPageParam(cur.Pages[len(cur.Pages)-1], cur.LastParam(), p.pageSize)
	return more, nil
}
