package querycache

import "context"

// Identity names a tracked record. Records fetched from an external source may
// carry only ExternalID until they are stored server side.
type Identity struct {
	ID         string
	ExternalID string
}

// AnyID is an identity that matches a record by either of its identifiers.
func AnyID(id string) Identity { return Identity{ID: id, ExternalID: id} }

// Matches reports whether i and o share a non-empty ID or ExternalID.
func (i Identity) Matches(o Identity) bool {
	if i.ID != "" && i.ID == o.ID {
		return true
	}
	return i.ExternalID != "" && i.ExternalID == o.ExternalID
}

func (i Identity) IsZero() bool { return i.ID == "" && i.ExternalID == "" }

func (i Identity) String() string {
	if i.ID != "" {
		return i.ID
	}
	return "ext:" + i.ExternalID
}

// Identified is implemented by tracked records.
type Identified interface {
	Identity() Identity
}

// MapMatching returns items with fn applied to every record matching id.
// items is never modified; changed is false when nothing matched.
func MapMatching[T Identified](items []T, id Identity, fn func(T) T) ([]T, bool) {
	var out []T
	for i, it := range items {
		if !it.Identity().Matches(id) {
			continue
		}
		if out == nil {
			out = make([]T, len(items))
			copy(out, items)
		}
		out[i] = fn(it)
	}
	if out == nil {
		return items, false
	}
	return out, true
}

// RemoveMatching returns items without the records matching id. Removing a
// record that is not present is a no-op: items is returned with changed false.
func RemoveMatching[T Identified](items []T, id Identity) ([]T, bool) {
	idx := -1
	for i, it := range items {
		if it.Identity().Matches(id) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return items, false
	}
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:idx]...)
	for _, it := range items[idx+1:] {
		if !it.Identity().Matches(id) {
			out = append(out, it)
		}
	}
	return out, true
}

// ContainsMatching reports whether any record in items matches id.
func ContainsMatching[T Identified](items []T, id Identity) bool {
	for _, it := range items {
		if it.Identity().Matches(id) {
			return true
		}
	}
	return false
}

// Projection rewrites the copies of a record held in cache entries.
type Projection struct {
	filter Filter
	apply  func(t *txn) (int, error)
}

// Filter returns the entries the projection may touch.
func (p Projection) Filter() Filter { return p.filter }

// Project builds a projection over entries selected by f holding a P.
// rewrite returns the new payload and whether anything changed; entries of
// other types and absent slots are skipped.
func Project[P any](f Filter, rewrite func(P) (P, bool)) Projection {
	return Projection{
		filter: f,
		apply: func(t *txn) (int, error) {
			return setWhere(t, f, func(_ Key, v P) (P, bool) { return rewrite(v) })
		},
	}
}

// Projector writes projections into the store.
type Projector struct {
	store *Store
	log   Logger
}

// Apply runs every projection in one store update and returns the number of
// rewritten entries.
func (p *Projector) Apply(ctx context.Context, ps ...Projection) (int, error) {
	var n int
	err := p.store.update(ctx, func(t *txn) error {
		var err error
		n, err = applyAll(t, ps)
		return err
	})
	if err == nil {
		p.log.Debug("projections applied", Fields{"projections": len(ps), "entries": n})
	}
	return n, err
}

func applyAll(t *txn, ps []Projection) (int, error) {
	n := 0
	for _, p := range ps {
		if p.apply == nil {
			continue
		}
		m, err := p.apply(t)
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
