package querycache

import (
	"reflect"
	"testing"
)

func ids(rs []recipe) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID + "/" + r.ExternalID
	}
	return out
}

func TestMergeServerFirstThenNewCandidates(t *testing.T) {
	candidates := []recipe{{ID: "r1"}, {ID: "r2"}}
	server := []recipe{{ID: "r2"}}
	got := Merge(candidates, server)
	want := []recipe{{ID: "r2"}, {ID: "r1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", ids(got), ids(want))
	}
}

func TestMergeMatchesByExternalID(t *testing.T) {
	// Search results may carry only an external id until saved.
	candidates := []recipe{{ID: "r1", ExternalID: "e1"}, {ID: "r3", ExternalID: "e3"}}
	server := []recipe{{ExternalID: "e1", Title: "fresh"}, {ExternalID: "e2"}}
	got := Merge(candidates, server)
	want := []recipe{{ExternalID: "e1", Title: "fresh"}, {ExternalID: "e2"}, {ID: "r3", ExternalID: "e3"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", ids(got), ids(want))
	}
}

func TestMergeIdempotent(t *testing.T) {
	cases := []struct {
		name       string
		candidates []recipe
		server     []recipe
	}{
		{"overlap", []recipe{{ID: "r1"}, {ID: "r2"}}, []recipe{{ID: "r2"}}},
		{"disjoint", []recipe{{ID: "a"}}, []recipe{{ID: "b"}, {ID: "c"}}},
		{"no server", []recipe{{ID: "a"}, {ID: "b"}}, nil},
		{"no candidates", nil, []recipe{{ID: "a"}}},
		{"external ids", []recipe{{ExternalID: "x"}}, []recipe{{ID: "1", ExternalID: "x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Merge(tc.candidates, tc.server)
			twice := Merge(once, tc.server)
			if !reflect.DeepEqual(once, twice) {
				t.Fatalf("not idempotent: %v vs %v", ids(once), ids(twice))
			}
		})
	}
}

func TestRemoveAndMapMatching(t *testing.T) {
	rs := []recipe{{ID: "r1"}, {ID: "r2", ExternalID: "e2"}}

	out, changed := RemoveMatching(rs, AnyID("e2"))
	if !changed || len(out) != 1 || out[0].ID != "r1" {
		t.Fatalf("RemoveMatching: %v changed=%v", ids(out), changed)
	}
	if len(rs) != 2 {
		t.Fatalf("input modified")
	}
	again, changed := RemoveMatching(out, AnyID("e2"))
	if changed || !reflect.DeepEqual(again, out) {
		t.Fatalf("removing an absent record must be a no-op")
	}

	mapped, changed := MapMatching(rs, Identity{ID: "r1"}, func(r recipe) recipe { r.Title = "x"; return r })
	if !changed || mapped[0].Title != "x" || rs[0].Title != "" {
		t.Fatalf("MapMatching: %+v (input %+v)", mapped, rs)
	}
	if _, changed := MapMatching(rs, Identity{ID: "zz"}, func(r recipe) recipe { return r }); changed {
		t.Fatalf("MapMatching reported change without a match")
	}
	if !ContainsMatching(rs, AnyID("r2")) || ContainsMatching(rs, Identity{}) {
		t.Fatalf("ContainsMatching mismatch")
	}
}
