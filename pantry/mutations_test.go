package pantry

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
)

const patchItem = "PATCH /pantry/{id}"

func loadPantryViews(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Items(ctx, ItemFilters{})
	require.NoError(t, err)
	_, ok, err := h.svc.Search(ctx, "milk", ItemFilters{})
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.svc.Expiring(ctx, 0)
	require.NoError(t, err)
}

func pantryQuantities(t *testing.T, h *harness, id string) []float64 {
	t.Helper()
	return []float64{
		quantityOf(data[itemList](t, h, ItemsKey(ItemFilters{})).Items, id),
		quantityOf(data[itemList](t, h, SearchKey("milk", ItemFilters{})).Items, id),
		quantityOf(data[[]record.PantryItem](t, h, ExpiringKey(defaultExpiringDays)), id),
	}
}

func TestUpdateItemFailureRestoresEveryView(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{milk(500), eggs()}
	loadPantryViews(t, h)

	h.api.failWith(patchItem, http.StatusInternalServerError)
	g := h.api.block(patchItem)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.UpdateItem(context.Background(), "p1", record.PantryItemPatch{Quantity: record.Q(450)})
		done <- err
	}()

	<-g.entered
	assert.Equal(t, []float64{450, 450, 450}, pantryQuantities(t, h, "p1"))
	assert.Equal(t, 12.0, quantityOf(data[itemList](t, h, ItemsKey(ItemFilters{})).Items, "p2"))

	close(g.release)
	err := <-done
	var merr *querycache.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "pantry.update", merr.Name)
	assert.Equal(t, http.StatusInternalServerError, querycache.StatusOf(err))

	assert.Equal(t, []float64{500, 500, 500}, pantryQuantities(t, h, "p1"))
	h.qc.Executor().Wait()
	assert.Equal(t, []float64{500, 500, 500}, pantryQuantities(t, h, "p1"))
}

func TestUpdateItemCommitRefetchesAllPantryViews(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{milk(500), eggs()}
	loadPantryViews(t, h)
	_, err := h.svc.Summary(context.Background())
	require.NoError(t, err)
	summaryHits := h.api.hitCount("GET /pantry/summary")

	out, err := h.svc.UpdateItem(context.Background(), "p1", record.PantryItemPatch{Quantity: record.Q(450), Unit: record.Ptr("l")})
	require.NoError(t, err)
	assert.Equal(t, querycache.PhaseCommitted, out.Phase)
	assert.Equal(t, 3, out.Applied)
	assert.Equal(t, "l", out.Result.Unit)
	assert.Equal(t, []querycache.Phase{
		querycache.PhaseSnapshotting, querycache.PhaseApplied, querycache.PhaseCommitted, querycache.PhaseDone,
	}, out.Trace)

	h.qc.Executor().Wait()
	assert.Equal(t, []float64{450, 450, 450}, pantryQuantities(t, h, "p1"))
	// Unobserved entries are refetched too.
	assert.Equal(t, summaryHits+1, h.api.hitCount("GET /pantry/summary"))
}

func TestDeleteItemRemovesFromViews(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{milk(500), eggs()}
	loadPantryViews(t, h)

	g := h.api.block("DELETE /pantry/{id}")
	done := make(chan error, 1)
	go func() { done <- h.svc.DeleteItem(context.Background(), "p1") }()

	<-g.entered
	l := data[itemList](t, h, ItemsKey(ItemFilters{}))
	assert.Equal(t, 1, l.Count)
	assert.Equal(t, -1.0, quantityOf(l.Items, "p1"))
	assert.Empty(t, data[itemList](t, h, SearchKey("milk", ItemFilters{})).Items)

	close(g.release)
	require.NoError(t, <-done)
	h.qc.Executor().Wait()
	assert.Equal(t, []string{"p2"}, ids(data[itemList](t, h, ItemsKey(ItemFilters{})).Items))
}

func TestDeleteItemFailureRestoresCount(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{milk(500), eggs()}
	loadPantryViews(t, h)
	before := data[itemList](t, h, ItemsKey(ItemFilters{}))

	h.api.failWith("DELETE /pantry/{id}", http.StatusNotFound)
	err := h.svc.DeleteItem(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, before, data[itemList](t, h, ItemsKey(ItemFilters{})))
}

func TestBulkDelete(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{milk(500), eggs()}
	loadPantryViews(t, h)

	out, err := h.svc.BulkDelete(context.Background(), []string{"p1", "p2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.DeletedCount)

	h.qc.Executor().Wait()
	assert.Empty(t, data[itemList](t, h, ItemsKey(ItemFilters{})).Items)
}

func TestAddAndUseItemRevalidate(t *testing.T) {
	h := newHarness(t)
	h.api.items = []record.PantryItem{eggs()}
	_, err := h.svc.Items(context.Background(), ItemFilters{})
	require.NoError(t, err)

	created, err := h.svc.AddItem(context.Background(), record.PantryItemInput{IngredientName: "Flour", Quantity: record.Q(1)})
	require.NoError(t, err)
	assert.True(t, created.Created)
	h.qc.Executor().Wait()
	assert.Len(t, data[itemList](t, h, ItemsKey(ItemFilters{})).Items, 2)

	used, err := h.svc.UseItem(context.Background(), "p2", nil)
	require.NoError(t, err)
	assert.Equal(t, record.StatusUsedUp, used.Status)

	_, err = h.svc.UseItem(context.Background(), "", nil)
	require.ErrorIs(t, err, ErrNoID)
}

func loadRecipeViews(t *testing.T, h *harness) {
	t.Helper()
	h.api.detail["r1"] = record.RecipeDetail{ID: "r1", ExternalID: "spoon-1", Title: "Tomato Soup"}
	h.api.suggest = []record.RecipeSummary{
		{ExternalID: "spoon-1", Title: "Tomato Soup", UsedIngredients: []string{"tomato"}},
		{ID: "r2", ExternalID: "spoon-2", Title: "Pasta Bake", MissedIngredients: []string{"cheese"}},
	}
	ctx := context.Background()
	_, err := h.svc.Recipe(ctx, "r1")
	require.NoError(t, err)
	_, err = h.svc.Suggestions(ctx, 0)
	require.NoError(t, err)
	_, err = h.svc.SuggestionPager().First(ctx)
	require.NoError(t, err)
	_, err = h.svc.SearchPager(SearchParams{Q: "soup"}).First(ctx)
	require.NoError(t, err)
}

func savedFlags(t *testing.T, h *harness) []bool {
	t.Helper()
	ps := h.svc.PageSize()
	sug := data[record.SuggestPage](t, h, SuggestKey(ps))
	inf := data[querycache.Infinite[record.SuggestPage]](t, h, InfiniteSuggestKey(ps))
	srch := data[querycache.Infinite[record.SearchPage]](t, h, InfiniteSearchKey(SearchParams{Q: "soup", PageSize: ps}))
	return []bool{
		data[record.RecipeDetail](t, h, DetailKey("r1")).IsSaved,
		sug.Items[0].IsSaved,
		inf.Pages[0].Items[0].IsSaved,
		srch.Pages[0].Items[0].IsSaved,
		sug.Items[1].IsSaved,
	}
}

func TestSaveRecipeTogglesEveryCopy(t *testing.T) {
	h := newHarness(t)
	loadRecipeViews(t, h)

	g := h.api.block("POST /recipes/{id}/save")
	type result struct {
		out querycache.Outcome[record.SavedRecipe]
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.svc.SaveRecipe(context.Background(), "spoon-1", "")
		done <- result{out, err}
	}()

	<-g.entered
	assert.Equal(t, []bool{true, true, true, true, false}, savedFlags(t, h))

	close(g.release)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, querycache.PhaseCommitted, r.out.Phase)
	assert.Equal(t, 4, r.out.Applied)
	assert.Equal(t, "r1", r.out.Result.Recipe.ID)
}

func TestSaveRecipeFailureRestoresExactly(t *testing.T) {
	h := newHarness(t)
	loadRecipeViews(t, h)
	ctx := context.Background()

	before, err := h.qc.Store().Find(ctx, RecipesFilter)
	require.NoError(t, err)

	h.api.failWith("POST /recipes/{id}/save", http.StatusServiceUnavailable)
	out, err := h.svc.SaveRecipe(ctx, "spoon-1", "weeknight")
	require.Error(t, err)
	assert.Equal(t, querycache.PhaseRolledBack, out.Phase)

	after, err := h.qc.Store().Find(ctx, RecipesFilter)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Key, after[i].Key)
		assert.Equal(t, before[i].Data, after[i].Data)
	}
	assert.Equal(t, []bool{false, false, false, false, false}, savedFlags(t, h))
}

func TestUnsaveRemovesFromSavedList(t *testing.T) {
	h := newHarness(t)
	loadRecipeViews(t, h)
	ctx := context.Background()

	require.NoError(t, h.svc.ToggleSaved(ctx, "spoon-1", true))
	_, err := h.svc.Saved(ctx)
	require.NoError(t, err)
	require.Len(t, data[record.Paginated[record.SavedRecipe]](t, h, SavedKey()).Items, 1)

	require.NoError(t, h.svc.ToggleSaved(ctx, "spoon-1", false))
	saved := data[record.Paginated[record.SavedRecipe]](t, h, SavedKey())
	assert.Empty(t, saved.Items)
	assert.Zero(t, saved.Count)
	assert.False(t, savedFlags(t, h)[0])
}

func TestUnsaveAbsentRecipeLeavesSavedListUnchanged(t *testing.T) {
	h := newHarness(t)
	loadRecipeViews(t, h)
	ctx := context.Background()

	h.api.saved = []record.SavedRecipe{{ID: "s2", Recipe: record.RecipeDetail{ID: "r2", ExternalID: "spoon-2", IsSaved: true}}}
	before, err := h.svc.Saved(ctx)
	require.NoError(t, err)

	_, err = h.svc.UnsaveRecipe(ctx, "spoon-1")
	require.NoError(t, err)
	assert.Equal(t, before, data[record.Paginated[record.SavedRecipe]](t, h, SavedKey()))

	_, err = h.svc.UnsaveRecipe(ctx, "spoon-1")
	require.NoError(t, err)
	assert.Equal(t, before, data[record.Paginated[record.SavedRecipe]](t, h, SavedKey()))
}

func TestLogCookingRevalidatesHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.History(ctx)
	require.NoError(t, err)

	l, err := h.svc.LogCooking(ctx, "r1", record.CookingLogInput{Rating: record.Ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, *l.Rating)

	ent, ok, err := h.qc.Store().Get(ctx, HistoryKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ent.Stale)

	hist, err := h.svc.History(ctx)
	require.NoError(t, err)
	assert.Len(t, hist.Items, 1)
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	h.api.user = record.User{ID: "u1", DisplayName: "Sam", HouseholdSize: 1}
	ctx := context.Background()
	_, err := h.svc.Me(ctx)
	require.NoError(t, err)

	_, err = h.svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.api.hitCount("GET /me"))

	g := h.api.block("PATCH /me")
	done := make(chan error, 1)
	go func() {
		_, err := h.svc.UpdateProfile(ctx, record.UserPatch{HouseholdSize: record.Ptr(4)})
		done <- err
	}()
	<-g.entered
	assert.Equal(t, 4, data[record.User](t, h, UserKey()).HouseholdSize)
	close(g.release)
	require.NoError(t, <-done)

	me, err := h.svc.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, me.HouseholdSize)
	assert.Equal(t, "Sam", me.DisplayName)
}

func ids(items []record.PantryItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
