package pantry

import (
	"strings"

	"github.com/unkn0wn-root/querycache"
)

// ItemFilters narrow the pantry list. They are part of the query identity,
// so zero fields are omitted to keep equal filters equal.
type ItemFilters struct {
	Status         string `json:"status,omitempty"`
	ExpiringWithin *int   `json:"expiring_within,omitempty"`
	Category       *int   `json:"category,omitempty"`
	Search         string `json:"search,omitempty"`
	Page           int    `json:"page,omitempty"`
}

type expiringParams struct {
	Days int `json:"days"`
}

type suggestParams struct {
	PageSize int `json:"page_size"`
}

// SearchParams select a recipe search. Blank Q with no Diet and no
// MaxReadyTime is not a search.
type SearchParams struct {
	Q            string `json:"q"`
	Diet         string `json:"diet,omitempty"`
	PageSize     int    `json:"page_size"`
	MaxReadyTime int    `json:"max_ready_time,omitempty"`
}

func (p SearchParams) Enabled() bool {
	return strings.TrimSpace(p.Q) != "" || p.Diet != "" || p.MaxReadyTime > 0
}

const infinite = "infinite"

func SummaryKey() querycache.Key             { return querycache.K("pantry", "summary") }
func ExpiringKey(days int) querycache.Key    { return querycache.K("pantry", "expiring", expiringParams{Days: days}) }
func ItemsKey(f ItemFilters) querycache.Key  { return querycache.K("pantry", "items", f) }
func SuggestKey(pageSize int) querycache.Key { return querycache.K("recipes", "suggest", suggestParams{pageSize}) }
func DetailKey(id string) querycache.Key     { return querycache.K("recipes", "detail", id) }
func SavedKey() querycache.Key               { return querycache.K("recipes", "saved") }
func HistoryKey() querycache.Key             { return querycache.K("recipes", "history") }
func UserKey() querycache.Key                { return querycache.K("user", "me") }

// SearchKey identifies a server-side pantry search; text replaces f.Search.
func SearchKey(text string, f ItemFilters) querycache.Key {
	f.Search = text
	return querycache.K("pantry", "search", f)
}

func InfiniteSuggestKey(pageSize int) querycache.Key {
	return querycache.K("recipes", "suggest", infinite, suggestParams{pageSize})
}

func InfiniteSearchKey(p SearchParams) querycache.Key {
	return querycache.K("recipes", "search", infinite, p)
}

// Filters over the views of each record kind.
var (
	PantryFilter   = querycache.Prefix("pantry")
	ItemsFilter    = querycache.Prefix("pantry", "items")
	SearchFilter   = querycache.Prefix("pantry", "search")
	ExpiringFilter = querycache.Prefix("pantry", "expiring")

	RecipesFilter         = querycache.Prefix("recipes")
	DetailFilter          = querycache.Prefix("recipes", "detail")
	SuggestFilter         = querycache.Prefix("recipes", "suggest")
	InfiniteSuggestFilter = querycache.Prefix("recipes", "suggest", infinite)
	InfiniteSearchFilter  = querycache.Prefix("recipes", "search", infinite)
	SavedFilter           = querycache.Exact("recipes", "saved")
	HistoryFilter         = querycache.Exact("recipes", "history")

	UserFilter = querycache.Exact("user", "me")

	// DashboardSuggestFilter is SuggestFilter without the infinite lists.
	DashboardSuggestFilter = SuggestFilter.Where(func(k querycache.Key) bool { return !k.Contains(infinite) })
)
