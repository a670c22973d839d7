// Package pantry is the pantry and recipe client built on querycache: query
// identities, cached queries and pagers, optimistic mutations with their
// projections per record kind, and debounced local-plus-server search.
package pantry

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
	"github.com/unkn0wn-root/querycache/transport"
)

const (
	defaultRecipePageSize = 10
	defaultSearchDelay    = 300 * time.Millisecond
	defaultExpiringDays   = 3
	itemsPageSize         = 200

	pantryStale  = 2 * time.Minute
	recipesStale = 5 * time.Minute
	detailStale  = 30 * time.Minute
)

// ErrNoID is returned for record operations called with an empty id.
var ErrNoID = errors.New("pantry: empty id")

type Options struct {
	Logger         querycache.Logger
	RecipePageSize int           // 0 => 10
	SearchDelay    time.Duration // debounce for Searchers; 0 => 300ms
	ExpiringDays   int           // 0 => 3
}

// Service issues cached queries and optimistic mutations against the pantry
// API. It is safe for concurrent use.
type Service struct {
	exec  *querycache.Executor
	store *querycache.Store
	coord *querycache.Coordinator
	api   *transport.Client
	log   querycache.Logger

	pageSize     int
	delay        time.Duration
	expiringDays int
}

func New(qc *querycache.Client, api *transport.Client, opts Options) *Service {
	s := &Service{
		exec:         qc.Executor(),
		store:        qc.Store(),
		coord:        qc.Coordinator(),
		api:          api,
		log:          opts.Logger,
		pageSize:     opts.RecipePageSize,
		delay:        opts.SearchDelay,
		expiringDays: opts.ExpiringDays,
	}
	if s.log == nil {
		s.log = querycache.NopLogger{}
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultRecipePageSize
	}
	if s.delay <= 0 {
		s.delay = defaultSearchDelay
	}
	if s.expiringDays <= 0 {
		s.expiringDays = defaultExpiringDays
	}
	return s
}

// PageSize is the recipe page size used by the pagers.
func (s *Service) PageSize() int { return s.pageSize }

func get[T any](s *Service, path string) querycache.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		return transport.Get[T](ctx, s.api, path)
	}
}

func itemsPath(f ItemFilters) string {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.ExpiringWithin != nil {
		q.Set("expiring_within", strconv.Itoa(*f.ExpiringWithin))
	}
	if f.Category != nil {
		q.Set("category", strconv.Itoa(*f.Category))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	q.Set("page", strconv.Itoa(max(f.Page, 1)))
	q.Set("page_size", strconv.Itoa(itemsPageSize))
	return "/pantry?" + q.Encode()
}

func (s *Service) Summary(ctx context.Context) (record.PantrySummary, error) {
	return querycache.Query(ctx, s.exec, SummaryKey(),
		get[record.PantrySummary](s, "/pantry/summary"),
		querycache.QueryOptions{StaleTime: pantryStale})
}

// Expiring lists items expiring within days; days <= 0 uses the default.
func (s *Service) Expiring(ctx context.Context, days int) ([]record.PantryItem, error) {
	if days <= 0 {
		days = s.expiringDays
	}
	return querycache.Query(ctx, s.exec, ExpiringKey(days),
		get[[]record.PantryItem](s, "/pantry/expiring?days="+strconv.Itoa(days)),
		querycache.QueryOptions{StaleTime: pantryStale})
}

func (s *Service) Items(ctx context.Context, f ItemFilters) (itemList, error) {
	return querycache.Query(ctx, s.exec, ItemsKey(f),
		get[itemList](s, itemsPath(f)),
		querycache.QueryOptions{StaleTime: pantryStale})
}

// Search runs a server-side pantry search. Blank text is not sent: ok is
// false and nothing is fetched.
func (s *Service) Search(ctx context.Context, text string, f ItemFilters) (res itemList, ok bool, err error) {
	text = trim(text)
	if text == "" {
		return res, false, nil
	}
	f.Search = text
	res, err = querycache.Query(ctx, s.exec, SearchKey(text, f),
		get[itemList](s, itemsPath(f)),
		querycache.QueryOptions{StaleTime: pantryStale})
	return res, err == nil, err
}

// Suggestions is the first page of pantry-based suggestions (dashboard).
func (s *Service) Suggestions(ctx context.Context, pageSize int) (record.SuggestPage, error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	return querycache.Query(ctx, s.exec, SuggestKey(pageSize),
		get[record.SuggestPage](s, suggestPath(1, pageSize)),
		querycache.QueryOptions{StaleTime: recipesStale})
}

func suggestPath(page, pageSize int) string {
	return "/recipes/suggest?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
}

func searchPath(p SearchParams, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(p.PageSize))
	if trim(p.Q) != "" {
		q.Set("q", p.Q)
	}
	if p.Diet != "" {
		q.Set("diet", p.Diet)
	}
	if p.MaxReadyTime > 0 {
		q.Set("max_ready_time", strconv.Itoa(p.MaxReadyTime))
	}
	return "/recipes/search?" + q.Encode()
}

// SuggestionPager pages through all suggestions.
func (s *Service) SuggestionPager() *querycache.Pager[record.SuggestPage] {
	ps := s.pageSize
	return querycache.NewPager(s.exec, InfiniteSuggestKey(ps), ps,
		func(ctx context.Context, param, pageSize int) (record.SuggestPage, error) {
			return transport.Get[record.SuggestPage](ctx, s.api, suggestPath(param, pageSize))
		}, querycache.QueryOptions{StaleTime: recipesStale})
}

// SearchPager pages through a recipe search. p.PageSize 0 uses the service
// page size. Callers check p.Enabled before fetching.
func (s *Service) SearchPager(p SearchParams) *querycache.Pager[record.SearchPage] {
	if p.PageSize <= 0 {
		p.PageSize = s.pageSize
	}
	return querycache.NewPager(s.exec, InfiniteSearchKey(p), p.PageSize,
		func(ctx context.Context, param, _ int) (record.SearchPage, error) {
			return transport.Get[record.SearchPage](ctx, s.api, searchPath(p, param))
		}, querycache.QueryOptions{StaleTime: recipesStale})
}

// Recipe tabs prefetched by PrefetchRecipeTabs.
var (
	QuickMeals = SearchParams{MaxReadyTime: 30}
	Healthy    = SearchParams{Q: "healthy"}
	Vegetarian = SearchParams{Diet: "vegetarian"}
)

// PrefetchRecipeTabs warms the first page of the quick, healthy and
// vegetarian tabs in the background.
func (s *Service) PrefetchRecipeTabs() {
	for _, p := range []SearchParams{QuickMeals, Healthy, Vegetarian} {
		s.SearchPager(p).Prefetch()
	}
}

func (s *Service) Recipe(ctx context.Context, id string) (record.RecipeDetail, error) {
	if id == "" {
		return record.RecipeDetail{}, ErrNoID
	}
	return querycache.Query(ctx, s.exec, DetailKey(id),
		get[record.RecipeDetail](s, "/recipes/"+url.PathEscape(id)),
		querycache.QueryOptions{StaleTime: detailStale})
}

func (s *Service) Saved(ctx context.Context) (record.Paginated[record.SavedRecipe], error) {
	return querycache.Query(ctx, s.exec, SavedKey(),
		get[record.Paginated[record.SavedRecipe]](s, "/recipes/saved"),
		querycache.QueryOptions{StaleTime: recipesStale})
}

func (s *Service) History(ctx context.Context) (record.Paginated[record.CookingLog], error) {
	return querycache.Query(ctx, s.exec, HistoryKey(),
		get[record.Paginated[record.CookingLog]](s, "/recipes/history"),
		querycache.QueryOptions{StaleTime: pantryStale})
}

// Me is the signed-in user. It is never stale; profile updates refresh it.
func (s *Service) Me(ctx context.Context) (record.User, error) {
	return querycache.Query(ctx, s.exec, UserKey(),
		get[record.User](s, "/me"),
		querycache.QueryOptions{StaleTime: querycache.Forever})
}
