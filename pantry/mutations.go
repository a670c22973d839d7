package pantry

import (
	"context"
	"net/url"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
	"github.com/unkn0wn-root/querycache/transport"
)

// Pantry writes change suggestions too, and every cached pantry view is
// refetched whether or not it is observed.
var pantrySettle = []querycache.Filter{PantryFilter, SuggestFilter}

// UpdateItem patches an item. The patched fields show up in every cached
// list, search and expiring view before the server answers; a failed write
// restores them.
func (s *Service) UpdateItem(ctx context.Context, id string, p record.PantryItemPatch) (querycache.Outcome[record.PantryItem], error) {
	if id == "" {
		return querycache.Outcome[record.PantryItem]{}, ErrNoID
	}
	return querycache.Mutate(ctx, s.coord, querycache.Mutation[record.PantryItem]{
		Name:       "pantry.update",
		Cancel:     []querycache.Filter{PantryFilter},
		Snapshot:   []querycache.Filter{ItemsFilter, SearchFilter, ExpiringFilter},
		Optimistic: itemViews(querycache.Identity{ID: id}, p.Apply),
		Write: func(ctx context.Context) (record.PantryItem, error) {
			return transport.Patch[record.PantryItem](ctx, s.api, "/pantry/"+url.PathEscape(id), p)
		},
		Revalidate: pantrySettle,
		RefetchAll: true,
	})
}

// AddItem creates an item or, when the ingredient is already stocked, tops
// it up. The server decides which, so nothing is projected.
func (s *Service) AddItem(ctx context.Context, in record.PantryItemInput) (record.PantryItemCreated, error) {
	out, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[record.PantryItemCreated]{
		Name: "pantry.add",
		Write: func(ctx context.Context) (record.PantryItemCreated, error) {
			return transport.Post[record.PantryItemCreated](ctx, s.api, "/pantry/", in)
		},
		Revalidate: pantrySettle,
		RefetchAll: true,
	})
	return out.Result, err
}

// UseItem consumes qty of an item; nil qty uses all of it.
func (s *Service) UseItem(ctx context.Context, id string, qty *record.Quantity) (record.PantryItem, error) {
	if id == "" {
		return record.PantryItem{}, ErrNoID
	}
	out, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[record.PantryItem]{
		Name: "pantry.use",
		Write: func(ctx context.Context) (record.PantryItem, error) {
			return transport.Post[record.PantryItem](ctx, s.api, "/pantry/"+url.PathEscape(id)+"/use", record.UseInput{Quantity: qty})
		},
		Revalidate: pantrySettle,
		RefetchAll: true,
	})
	return out.Result, err
}

// DeleteItem removes an item from every cached view, then deletes it
// remotely.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoID
	}
	_, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[struct{}]{
		Name:       "pantry.delete",
		Cancel:     []querycache.Filter{PantryFilter},
		Optimistic: removeItemViews(querycache.Identity{ID: id}),
		Write: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, transport.Delete(ctx, s.api, "/pantry/"+url.PathEscape(id))
		},
		Revalidate: pantrySettle,
		RefetchAll: true,
	})
	return err
}

func (s *Service) BulkDelete(ctx context.Context, ids []string) (record.BulkDeleteOutput, error) {
	idents := make([]querycache.Identity, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			idents = append(idents, querycache.Identity{ID: id})
		}
	}
	out, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[record.BulkDeleteOutput]{
		Name:       "pantry.bulk_delete",
		Cancel:     []querycache.Filter{PantryFilter},
		Optimistic: removeItemViews(idents...),
		Write: func(ctx context.Context) (record.BulkDeleteOutput, error) {
			return transport.Post[record.BulkDeleteOutput](ctx, s.api, "/pantry/bulk-delete", record.BulkDeleteInput{IDs: ids})
		},
		Revalidate: pantrySettle,
		RefetchAll: true,
	})
	return out.Result, err
}

// SaveRecipe marks a recipe saved everywhere it is cached. recipeID may be
// the recipe's id or its external id.
func (s *Service) SaveRecipe(ctx context.Context, recipeID, notes string) (querycache.Outcome[record.SavedRecipe], error) {
	if recipeID == "" {
		return querycache.Outcome[record.SavedRecipe]{}, ErrNoID
	}
	return querycache.Mutate(ctx, s.coord, querycache.Mutation[record.SavedRecipe]{
		Name:       "recipes.save",
		Cancel:     []querycache.Filter{RecipesFilter},
		Snapshot:   []querycache.Filter{RecipesFilter},
		Optimistic: savedViews(querycache.AnyID(recipeID), true),
		Write: func(ctx context.Context) (record.SavedRecipe, error) {
			var body any
			if notes != "" {
				body = record.SaveInput{Notes: notes}
			}
			return transport.Post[record.SavedRecipe](ctx, s.api, "/recipes/"+url.PathEscape(recipeID)+"/save", body)
		},
		Revalidate: []querycache.Filter{RecipesFilter},
	})
}

// UnsaveRecipe clears the saved flag everywhere and drops the recipe from
// the saved list. Unsaving a recipe that is not in the list leaves it as is.
func (s *Service) UnsaveRecipe(ctx context.Context, recipeID string) (querycache.Outcome[struct{}], error) {
	if recipeID == "" {
		return querycache.Outcome[struct{}]{}, ErrNoID
	}
	return querycache.Mutate(ctx, s.coord, querycache.Mutation[struct{}]{
		Name:       "recipes.unsave",
		Cancel:     []querycache.Filter{RecipesFilter},
		Snapshot:   []querycache.Filter{RecipesFilter},
		Optimistic: savedViews(querycache.AnyID(recipeID), false),
		Write: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, transport.Delete(ctx, s.api, "/recipes/"+url.PathEscape(recipeID)+"/save")
		},
		Revalidate: []querycache.Filter{RecipesFilter},
	})
}

// ToggleSaved saves or unsaves recipeID.
func (s *Service) ToggleSaved(ctx context.Context, recipeID string, saved bool) error {
	if saved {
		_, err := s.SaveRecipe(ctx, recipeID, "")
		return err
	}
	_, err := s.UnsaveRecipe(ctx, recipeID)
	return err
}

func (s *Service) LogCooking(ctx context.Context, recipeID string, in record.CookingLogInput) (record.CookingLog, error) {
	if recipeID == "" {
		return record.CookingLog{}, ErrNoID
	}
	out, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[record.CookingLog]{
		Name: "recipes.cooked",
		Write: func(ctx context.Context) (record.CookingLog, error) {
			return transport.Post[record.CookingLog](ctx, s.api, "/recipes/"+url.PathEscape(recipeID)+"/cooked", in)
		},
		Revalidate: []querycache.Filter{HistoryFilter},
	})
	return out.Result, err
}

// UpdateProfile patches the current user.
func (s *Service) UpdateProfile(ctx context.Context, p record.UserPatch) (record.User, error) {
	out, err := querycache.Mutate(ctx, s.coord, querycache.Mutation[record.User]{
		Name:       "user.update",
		Optimistic: userViews(p),
		Write: func(ctx context.Context) (record.User, error) {
			return transport.Patch[record.User](ctx, s.api, "/me", p)
		},
		Revalidate: []querycache.Filter{UserFilter},
	})
	return out.Result, err
}
