package util

import (
	"strings"
	"testing"
)

func TestStorageKeyStableAndPrefixed(t *testing.T) {
	a := StorageKey("q:pantry", []byte{0x83, 0x01})
	b := StorageKey("q:pantry", []byte{0x83, 0x01})
	if a != b {
		t.Fatalf("storage key not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "q:pantry:") || len(a) != len("q:pantry:")+64 {
		t.Fatalf("unexpected storage key shape %q", a)
	}
	if c := StorageKey("q:pantry", []byte{0x83, 0x02}); c == a {
		t.Fatalf("different identities share a storage key")
	}
}

func TestShortLength(t *testing.T) {
	if got := Short("pantry"); len(got) != 16 {
		t.Fatalf("Short length = %d", len(got))
	}
}
