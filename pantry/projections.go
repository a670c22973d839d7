package pantry

import (
	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
)

type itemList = record.Paginated[record.PantryItem]

// itemViews rewrites item id in the list, search and expiring views.
func itemViews(id querycache.Identity, fn func(record.PantryItem) record.PantryItem) []querycache.Projection {
	inList := func(l itemList) (itemList, bool) {
		items, ok := querycache.MapMatching(l.Items, id, fn)
		l.Items = items
		return l, ok
	}
	return []querycache.Projection{
		querycache.Project(ItemsFilter, inList),
		querycache.Project(SearchFilter, inList),
		querycache.Project(ExpiringFilter, func(l []record.PantryItem) ([]record.PantryItem, bool) {
			return querycache.MapMatching(l, id, fn)
		}),
	}
}

// removeItemViews drops items from the list, search and expiring views.
// Items already absent are skipped.
func removeItemViews(ids ...querycache.Identity) []querycache.Projection {
	drop := func(items []record.PantryItem) ([]record.PantryItem, int) {
		n := 0
		for _, id := range ids {
			var ok bool
			if items, ok = querycache.RemoveMatching(items, id); ok {
				n++
			}
		}
		return items, n
	}
	inList := func(l itemList) (itemList, bool) {
		items, n := drop(l.Items)
		if n == 0 {
			return l, false
		}
		return itemList{Items: items, Count: max(l.Count-n, 0)}, true
	}
	return []querycache.Projection{
		querycache.Project(ItemsFilter, inList),
		querycache.Project(SearchFilter, inList),
		querycache.Project(ExpiringFilter, func(l []record.PantryItem) ([]record.PantryItem, bool) {
			items, n := drop(l)
			return items, n > 0
		}),
	}
}

func mapPages[P any](in querycache.Infinite[P], fn func(P) (P, bool)) (querycache.Infinite[P], bool) {
	pages := make([]P, len(in.Pages))
	changed := false
	for i, p := range in.Pages {
		np, ok := fn(p)
		pages[i] = np
		changed = changed || ok
	}
	if !changed {
		return in, false
	}
	in.Pages = pages
	return in, true
}

// savedViews flips IsSaved on every copy of the recipe: detail, dashboard
// suggestions, infinite suggestions and infinite search. Unsaving also
// removes the recipe from the saved list.
func savedViews(id querycache.Identity, saved bool) []querycache.Projection {
	flip := func(r record.RecipeSummary) record.RecipeSummary {
		r.IsSaved = saved
		return r
	}
	suggest := func(p record.SuggestPage) (record.SuggestPage, bool) {
		items, ok := querycache.MapMatching(p.Items, id, flip)
		p.Items = items
		return p, ok
	}
	search := func(p record.SearchPage) (record.SearchPage, bool) {
		items, ok := querycache.MapMatching(p.Items, id, flip)
		p.Items = items
		return p, ok
	}

	ps := []querycache.Projection{
		querycache.Project(DetailFilter, func(d record.RecipeDetail) (record.RecipeDetail, bool) {
			if !d.Identity().Matches(id) {
				return d, false
			}
			d.IsSaved = saved
			return d, true
		}),
		querycache.Project(DashboardSuggestFilter, suggest),
		querycache.Project(InfiniteSuggestFilter, func(in querycache.Infinite[record.SuggestPage]) (querycache.Infinite[record.SuggestPage], bool) {
			return mapPages(in, suggest)
		}),
		querycache.Project(InfiniteSearchFilter, func(in querycache.Infinite[record.SearchPage]) (querycache.Infinite[record.SearchPage], bool) {
			return mapPages(in, search)
		}),
	}
	if !saved {
		ps = append(ps, querycache.Project(SavedFilter, func(l record.Paginated[record.SavedRecipe]) (record.Paginated[record.SavedRecipe], bool) {
			items, ok := querycache.RemoveMatching(l.Items, id)
			if !ok {
				return l, false
			}
			return record.Paginated[record.SavedRecipe]{Items: items, Count: len(items)}, true
		}))
	}
	return ps
}

func userViews(p record.UserPatch) []querycache.Projection {
	return []querycache.Projection{
		querycache.Project(UserFilter, func(u record.User) (record.User, bool) {
			return p.Apply(u), !p.Empty()
		}),
	}
}
