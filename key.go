package querycache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Key is a query identity: an ordered list of parts such as
//
//	K("pantry", "items", Filters{Status: "available"})
//
// Two keys are equal iff their structural content is equal. Parts are compared
// by their canonical CBOR encoding, so map key order and the concrete integer
// type do not matter, and struct parts compare by field names and values.
type Key []any

// K builds a Key from parts.
func K(parts ...any) Key { return Key(parts) }

var canonicalEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// canonical returns the deterministic encoding of the whole key.
func (k Key) canonical() ([]byte, error) {
	b, err := canonicalEnc.Marshal([]any(k))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return b, nil
}

// partsCanonical returns the deterministic encoding of every part.
func (k Key) partsCanonical() ([][]byte, error) {
	out := make([][]byte, len(k))
	for i, p := range k {
		b, err := canonicalEnc.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d: %v", ErrInvalidKey, i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Equal reports structural equality. Keys that cannot be encoded are never equal.
func (k Key) Equal(o Key) bool {
	a, err := k.canonical()
	if err != nil {
		return false
	}
	b, err := o.canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// HasPrefix reports whether the leading parts of k structurally equal p.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	kp, err := k[:len(p)].partsCanonical()
	if err != nil {
		return false
	}
	pp, err := p.partsCanonical()
	if err != nil {
		return false
	}
	return prefixMatch(kp, pp)
}

func prefixMatch(parts, prefix [][]byte) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if !bytes.Equal(parts[i], prefix[i]) {
			return false
		}
	}
	return true
}

// Contains reports whether any part of k equals v.
func (k Key) Contains(v any) bool {
	want, err := canonicalEnc.Marshal(v)
	if err != nil {
		return false
	}
	parts, err := k.partsCanonical()
	if err != nil {
		return false
	}
	for _, p := range parts {
		if bytes.Equal(p, want) {
			return true
		}
	}
	return false
}

func (k Key) String() string {
	b, err := json.Marshal([]any(k))
	if err != nil {
		return fmt.Sprint([]any(k))
	}
	return string(b)
}

// Filter selects cache entries by identity.
// The zero Filter matches every entry.
type Filter struct {
	// Prefix restricts matches to keys starting with these parts.
	Prefix Key
	// Exact requires the key to equal Prefix rather than start with it.
	Exact bool
	// Predicate, when set, must also accept the key.
	Predicate func(Key) bool
}

// All matches every entry.
func All() Filter { return Filter{} }

// Prefix matches every key starting with parts.
func Prefix(parts ...any) Filter { return Filter{Prefix: Key(parts)} }

// Exact matches only the key made of parts.
func Exact(parts ...any) Filter { return Filter{Prefix: Key(parts), Exact: true} }

// Where returns a copy of f that additionally requires pred.
func (f Filter) Where(pred func(Key) bool) Filter {
	prev := f.Predicate
	f.Predicate = func(k Key) bool {
		if prev != nil && !prev(k) {
			return false
		}
		return pred(k)
	}
	return f
}

func (f Filter) String() string {
	s := f.Prefix.String()
	if f.Exact {
		s = "=" + s
	}
	if f.Predicate != nil {
		s += "+pred"
	}
	return s
}

// compiledFilter caches the prefix encoding for matching many slots.
type compiledFilter struct {
	f      Filter
	prefix [][]byte
}

func (f Filter) compile() (compiledFilter, error) {
	pp, err := f.Prefix.partsCanonical()
	if err != nil {
		return compiledFilter{}, err
	}
	return compiledFilter{f: f, prefix: pp}, nil
}

func (cf compiledFilter) match(key Key, parts [][]byte) bool {
	if cf.f.Exact && len(parts) != len(cf.prefix) {
		return false
	}
	if !prefixMatch(parts, cf.prefix) {
		return false
	}
	if cf.f.Predicate != nil && !cf.f.Predicate(key) {
		return false
	}
	return true
}

// Matches reports whether f selects key.
func (f Filter) Matches(key Key) bool {
	cf, err := f.compile()
	if err != nil {
		return false
	}
	parts, err := key.partsCanonical()
	if err != nil {
		return false
	}
	return cf.match(key, parts)
}
