package pantry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/record"
	"github.com/unkn0wn-root/querycache/transport"
)

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// fakeAPI is an in-memory pantry backend. Routes can be made to fail or to
// block until released.
type fakeAPI struct {
	mu      sync.Mutex
	items   []record.PantryItem
	suggest []record.RecipeSummary
	total   *int
	detail  map[string]record.RecipeDetail
	saved   []record.SavedRecipe
	history []record.CookingLog
	user    record.User

	fail  map[string]int
	gates map[string]*gate
	hits  map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		detail: make(map[string]record.RecipeDetail),
		fail:   make(map[string]int),
		gates:  make(map[string]*gate),
		hits:   make(map[string]int),
	}
}

func (f *fakeAPI) failWith(pattern string, status int) {
	f.mu.Lock()
	f.fail[pattern] = status
	f.mu.Unlock()
}

// block holds the next request to pattern until release is closed.
func (f *fakeAPI) block(pattern string) *gate {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[pattern] = g
	f.mu.Unlock()
	return g
}

func (f *fakeAPI) hitCount(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[pattern]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) route(mux *http.ServeMux, pattern string, h func(w http.ResponseWriter, r *http.Request)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[pattern]++
		status := f.fail[pattern]
		g := f.gates[pattern]
		delete(f.gates, pattern)
		f.mu.Unlock()

		if g != nil {
			close(g.entered)
			<-g.release
		}
		if status != 0 {
			writeJSON(w, status, record.ErrorResponse{Detail: "failed: " + http.StatusText(status)})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		h(w, r)
	})
}

func paginate[T any](all []T, r *http.Request) []T {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	page = max(page, 1)
	if size <= 0 {
		return all
	}
	lo := min((page-1)*size, len(all))
	hi := min(lo+size, len(all))
	return all[lo:hi]
}

func (f *fakeAPI) recipe(id string) (record.RecipeDetail, bool) {
	for _, d := range f.detail {
		if d.ID == id || d.ExternalID == id {
			return d, true
		}
	}
	return record.RecipeDetail{}, false
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	f.route(mux, "GET /pantry", func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(r.URL.Query().Get("search"))
		status := r.URL.Query().Get("status")
		var out []record.PantryItem
		for _, it := range f.items {
			if q != "" && !strings.Contains(strings.ToLower(it.Ingredient.Name), q) {
				continue
			}
			if status != "" && it.Status != status {
				continue
			}
			out = append(out, it)
		}
		writeJSON(w, 200, record.Paginated[record.PantryItem]{Items: out, Count: len(out)})
	})
	f.route(mux, "GET /pantry/expiring", func(w http.ResponseWriter, r *http.Request) {
		var out []record.PantryItem
		for _, it := range f.items {
			if it.ExpiryDate != "" {
				out = append(out, it)
			}
		}
		writeJSON(w, 200, out)
	})
	f.route(mux, "GET /pantry/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, record.PantrySummary{TotalItems: len(f.items), TotalAvailable: len(f.items)})
	})
	f.route(mux, "POST /pantry/{$}", func(w http.ResponseWriter, r *http.Request) {
		var in record.PantryItemInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		it := record.PantryItem{
			ID:         "n" + strconv.Itoa(len(f.items)+1),
			Ingredient: record.Ingredient{Name: in.IngredientName},
			Quantity:   in.Quantity,
			Status:     record.StatusAvailable,
		}
		f.items = append(f.items, it)
		writeJSON(w, 201, record.PantryItemCreated{Item: it, Created: true})
	})
	f.route(mux, "PATCH /pantry/{id}", func(w http.ResponseWriter, r *http.Request) {
		var p record.PantryItemPatch
		_ = json.NewDecoder(r.Body).Decode(&p)
		for i, it := range f.items {
			if it.ID == r.PathValue("id") {
				f.items[i] = p.Apply(it)
				writeJSON(w, 200, f.items[i])
				return
			}
		}
		writeJSON(w, 404, record.ErrorResponse{Detail: "Item not found"})
	})
	f.route(mux, "POST /pantry/{id}/use", func(w http.ResponseWriter, r *http.Request) {
		for i, it := range f.items {
			if it.ID == r.PathValue("id") {
				f.items[i].Status = record.StatusUsedUp
				writeJSON(w, 200, f.items[i])
				return
			}
		}
		writeJSON(w, 404, record.ErrorResponse{Detail: "Item not found"})
	})
	f.route(mux, "DELETE /pantry/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.items = without(f.items, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	f.route(mux, "POST /pantry/bulk-delete", func(w http.ResponseWriter, r *http.Request) {
		var in record.BulkDeleteInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		before := len(f.items)
		for _, id := range in.IDs {
			f.items = without(f.items, id)
		}
		writeJSON(w, 200, record.BulkDeleteOutput{DeletedCount: before - len(f.items)})
	})

	f.route(mux, "GET /recipes/suggest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, record.SuggestPage{
			UsingPantryIngredients: true,
			Items:                  f.marked(paginate(f.suggest, r)),
			TotalResults:           f.total,
		})
	})
	f.route(mux, "GET /recipes/search", func(w http.ResponseWriter, r *http.Request) {
		q := strings.ToLower(r.URL.Query().Get("q"))
		var all []record.RecipeSummary
		for _, s := range f.suggest {
			if q == "" || strings.Contains(strings.ToLower(s.Title), q) {
				all = append(all, s)
			}
		}
		writeJSON(w, 200, record.SearchPage{Items: f.marked(paginate(all, r)), TotalResults: len(all)})
	})
	f.route(mux, "GET /recipes/saved", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, record.Paginated[record.SavedRecipe]{Items: f.saved, Count: len(f.saved)})
	})
	f.route(mux, "GET /recipes/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, record.Paginated[record.CookingLog]{Items: f.history, Count: len(f.history)})
	})
	f.route(mux, "GET /recipes/{id}", func(w http.ResponseWriter, r *http.Request) {
		d, ok := f.recipe(r.PathValue("id"))
		if !ok {
			writeJSON(w, 404, record.ErrorResponse{Detail: "Recipe not found"})
			return
		}
		d.IsSaved = f.isSaved(d.Identity())
		writeJSON(w, 200, d)
	})
	f.route(mux, "POST /recipes/{id}/save", func(w http.ResponseWriter, r *http.Request) {
		d, ok := f.recipe(r.PathValue("id"))
		if !ok {
			d = record.RecipeDetail{ID: "r-" + r.PathValue("id"), ExternalID: r.PathValue("id")}
		}
		d.IsSaved = true
		s := record.SavedRecipe{ID: "s-" + d.ID, Recipe: d}
		if !f.isSaved(d.Identity()) {
			f.saved = append(f.saved, s)
		}
		writeJSON(w, 201, s)
	})
	f.route(mux, "DELETE /recipes/{id}/save", func(w http.ResponseWriter, r *http.Request) {
		f.saved, _ = querycache.RemoveMatching(f.saved, querycache.AnyID(r.PathValue("id")))
		w.WriteHeader(http.StatusNoContent)
	})
	f.route(mux, "POST /recipes/{id}/cooked", func(w http.ResponseWriter, r *http.Request) {
		var in record.CookingLogInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		l := record.CookingLog{ID: "c" + strconv.Itoa(len(f.history)+1), RecipeID: r.PathValue("id"), Rating: in.Rating}
		f.history = append(f.history, l)
		writeJSON(w, 201, l)
	})

	f.route(mux, "GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, f.user)
	})
	f.route(mux, "PATCH /me", func(w http.ResponseWriter, r *http.Request) {
		var p record.UserPatch
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.user = p.Apply(f.user)
		writeJSON(w, 200, f.user)
	})
	return mux
}

func (f *fakeAPI) isSaved(id querycache.Identity) bool {
	for _, s := range f.saved {
		if s.Recipe.Identity().Matches(id) {
			return true
		}
	}
	return false
}

func (f *fakeAPI) marked(rs []record.RecipeSummary) []record.RecipeSummary {
	out := make([]record.RecipeSummary, len(rs))
	for i, r := range rs {
		r.IsSaved = f.isSaved(r.Identity())
		out[i] = r
	}
	return out
}

func without(items []record.PantryItem, id string) []record.PantryItem {
	out, _ := querycache.RemoveMatching(items, querycache.Identity{ID: id})
	return out
}

type harness struct {
	api      *fakeAPI
	svc      *Service
	qc       *querycache.Client
	unauthed atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{api: newFakeAPI()}
	srv := httptest.NewServer(h.api.handler())
	t.Cleanup(srv.Close)

	qc, err := querycache.New(querycache.Options{
		OnUnauthorized: func() { h.unauthed.Add(1) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = qc.Close(context.Background()) })

	api, err := transport.New(transport.Config{BaseURL: srv.URL, Token: transport.StaticToken("test")})
	require.NoError(t, err)

	h.qc = qc
	h.svc = New(qc, api, Options{RecipePageSize: 2, SearchDelay: 5 * time.Millisecond})
	return h
}

func milk(q float64) record.PantryItem {
	return record.PantryItem{
		ID:         "p1",
		Ingredient: record.Ingredient{ID: 1, Name: "Whole Milk", CategoryName: "Dairy"},
		Quantity:   record.Q(q),
		Unit:       "ml",
		ExpiryDate: "2026-10-20",
		Status:     record.StatusAvailable,
	}
}

func eggs() record.PantryItem {
	return record.PantryItem{
		ID:         "p2",
		Ingredient: record.Ingredient{ID: 2, Name: "Eggs", CategoryName: "Dairy"},
		Quantity:   record.Q(12),
		Status:     record.StatusAvailable,
	}
}

func data[T any](t *testing.T, h *harness, key querycache.Key) T {
	t.Helper()
	v, ok, err := querycache.GetData[T](context.Background(), h.qc.Store(), key)
	require.NoError(t, err)
	require.True(t, ok, "no entry for %s", key)
	return v
}

func quantityOf(items []record.PantryItem, id string) float64 {
	for _, it := range items {
		if it.ID == id && it.Quantity != nil {
			return float64(*it.Quantity)
		}
	}
	return -1
}
