package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/record"
)

type backend struct {
	mu       sync.Mutex
	lastQS   string
	lastBody string
	deleted  []string
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{}
	item := func(id, name string, qty float64) record.PantryItem {
		return record.PantryItem{
			ID:         id,
			Ingredient: record.Ingredient{ID: 1, Name: name},
			Quantity:   record.Q(qty),
			Unit:       "l",
			Status:     record.StatusAvailable,
		}
	}
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /pantry/summary", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, record.PantrySummary{
			TotalItems:     2,
			TotalAvailable: 2,
			Categories:     []record.CategorySummary{{CategoryName: "Dairy", AvailableCount: 2, TotalCount: 2}},
		})
	})
	mux.HandleFunc("GET /pantry", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastQS = r.URL.RawQuery
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, record.Paginated[record.PantryItem]{
			Items: []record.PantryItem{item("p1", "Whole Milk", 1), item("p2", "Oat Milk", 0.5)},
			Count: 2,
		})
	})
	mux.HandleFunc("PATCH /pantry/{id}", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.lastBody = string(raw)
		b.mu.Unlock()
		var p record.PantryItemPatch
		if err := json.Unmarshal(raw, &p); err != nil {
			writeJSON(w, http.StatusBadRequest, record.ErrorResponse{Detail: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, p.Apply(item(r.PathValue("id"), "Whole Milk", 1)))
	})
	mux.HandleFunc("DELETE /pantry/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("id"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, record.ErrorResponse{Detail: "Invalid token."})
			return
		}
		writeJSON(w, http.StatusOK, record.User{ID: "u1", Email: "cook@example.com", DisplayName: "Cook", HouseholdSize: 2})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func execute(t *testing.T, cfgYAML string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvLog, "")

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cfgYAML), 0o600))

	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithIO(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", p}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func configFor(url string) string {
	return "api:\n  url: " + url + "\nlog:\n  backend: none\n"
}

func TestSummaryTable(t *testing.T) {
	_, srv := newBackend(t)
	out, _, err := execute(t, configFor(srv.URL), "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "Dairy")
	assert.Contains(t, out, "all")
}

func TestItemsJSONSendsFilters(t *testing.T) {
	b, srv := newBackend(t)
	out, _, err := execute(t, configFor(srv.URL), "items", "-o", "json", "--status", "available", "--category", "4")
	require.NoError(t, err)

	var items []record.PantryItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Whole Milk", items[0].Ingredient.Name)

	b.mu.Lock()
	qs := b.lastQS
	b.mu.Unlock()
	assert.Contains(t, qs, "status=available")
	assert.Contains(t, qs, "category=4")
}

func TestUpdateRequiresAField(t *testing.T) {
	_, srv := newBackend(t)
	_, _, err := execute(t, configFor(srv.URL), "update", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestUpdateSendsOnlyChangedFields(t *testing.T) {
	b, srv := newBackend(t)
	out, _, err := execute(t, configFor(srv.URL), "update", "p1", "--qty", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 l")

	b.mu.Lock()
	body := b.lastBody
	b.mu.Unlock()
	assert.JSONEq(t, `{"quantity":2}`, body)
}

func TestDelete(t *testing.T) {
	b, srv := newBackend(t)
	out, _, err := execute(t, configFor(srv.URL), "delete", "p2")
	require.NoError(t, err)
	assert.Equal(t, "deleted p2\n", out)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"p2"}, b.deleted)
}

func TestMeUnauthorized(t *testing.T) {
	_, srv := newBackend(t)
	_, errOut, err := execute(t, configFor(srv.URL), "me")
	require.Error(t, err)
	assert.True(t, querycache.IsUnauthorized(err), "got %v", err)
	assert.Contains(t, err.Error(), "Invalid token.")
	assert.Contains(t, errOut, "session rejected")
}

func TestMeWithTokenAndMetrics(t *testing.T) {
	_, srv := newBackend(t)
	cfg := "api:\n  url: " + srv.URL + "\n  token: good\nlog:\n  backend: none\nhooks:\n  kind: prometheus\n"
	out, errOut, err := execute(t, cfg, "--metrics", "me", "-o", "json")
	require.NoError(t, err)

	var u record.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "u1", u.ID)
	assert.Contains(t, errOut, "querycache_provider_set_rejected_total 0")
}

func TestConfigViewRedactsToken(t *testing.T) {
	_, srv := newBackend(t)
	cfg := "api:\n  url: " + srv.URL + "\n  token: secret\nlog:\n  backend: none\n"
	out, _, err := execute(t, cfg, "config", "view")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, srv.URL)
}

func TestInvalidConfigAndOutput(t *testing.T) {
	_, _, err := execute(t, "log:\n  backend: none\n", "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, srv := newBackend(t)
	_, _, err = execute(t, configFor(srv.URL), "summary", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported --output")
}
