package querycache

import (
	"errors"
	"testing"
)

type listFilters struct {
	Status   string `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
}

func TestKeyEqualityIsStructural(t *testing.T) {
	cases := []struct {
		name string
		a, b Key
		want bool
	}{
		{"same parts", K("pantry", "items"), K("pantry", "items"), true},
		{"map order", K("x", map[string]any{"a": 1, "b": "2"}), K("x", map[string]any{"b": "2", "a": 1}), true},
		{"int widths", K("recipes", 7), K("recipes", int64(7)), true},
		{"struct values", K("pantry", listFilters{Status: "available"}), K("pantry", listFilters{Status: "available"}), true},
		{"struct differs", K("pantry", listFilters{Status: "available"}), K("pantry", listFilters{Status: "expired"}), false},
		{"length differs", K("pantry"), K("pantry", "items"), false},
		{"string vs int", K("recipes", "7"), K("recipes", 7), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Fatalf("Equal(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestKeyInvalidPart(t *testing.T) {
	k := K("bad", func() {})
	if _, err := k.canonical(); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if k.Equal(k) {
		t.Fatalf("unencodable key must not compare equal")
	}
}

func TestFilterMatching(t *testing.T) {
	items := K("pantry", "items", listFilters{Status: "available"})
	search := K("pantry", "search", "milk")
	detail := K("recipes", "abc")

	cases := []struct {
		name string
		f    Filter
		key  Key
		want bool
	}{
		{"all", All(), detail, true},
		{"prefix", Prefix("pantry"), items, true},
		{"prefix other root", Prefix("pantry"), detail, false},
		{"prefix two parts", Prefix("pantry", "search"), search, true},
		{"exact hit", Exact("recipes", "abc"), detail, true},
		{"exact longer key", Exact("pantry"), items, false},
		{"prefix longer than key", Prefix("recipes", "abc", "x"), detail, false},
		{"predicate", Prefix("pantry").Where(func(k Key) bool { return k.Contains("milk") }), search, true},
		{"predicate rejects", Prefix("pantry").Where(func(k Key) bool { return k.Contains("milk") }), items, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.Matches(tc.key); got != tc.want {
				t.Fatalf("%s.Matches(%s) = %v, want %v", tc.f, tc.key, got, tc.want)
			}
		})
	}
}

func TestKeyHasPrefix(t *testing.T) {
	k := K("recipes", "search", map[string]any{"q": "pasta"})
	if !k.HasPrefix(K("recipes", "search")) {
		t.Fatalf("expected prefix match")
	}
	if k.HasPrefix(K("recipes", "suggest")) {
		t.Fatalf("unexpected prefix match")
	}
}
