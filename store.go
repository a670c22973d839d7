package querycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	c "github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/internal/util"
	"github.com/unkn0wn-root/querycache/internal/wire"
	pr "github.com/unkn0wn-root/querycache/provider"
)

// RefetchType selects which invalidated entries are refetched in the background.
type RefetchType int

const (
	// RefetchActive refetches invalidated entries that a subscriber observes.
	RefetchActive RefetchType = iota
	// RefetchAll refetches every invalidated entry with a registered fetcher.
	RefetchAll
	// RefetchNone only marks entries stale.
	RefetchNone
)

// EventKind describes what happened to an entry.
type EventKind int

const (
	EventUpdated EventKind = iota + 1
	EventRemoved
	EventInvalidated
	EventFetching
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventInvalidated:
		return "invalidated"
	case EventFetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the write that caused it is complete.
type Event struct {
	Kind EventKind
	Key  Key
}

// Entry is a decoded copy of a cache slot. Mutating Data never affects the store.
type Entry struct {
	Key       Key
	Data      any
	FetchedAt time.Time
	UpdatedAt time.Time
	Stale     bool
	Fetching  bool
}

type slot struct {
	id    string
	key   Key
	parts [][]byte

	typ     reflect.Type
	rev     uint64
	hasData bool

	fetchedAt time.Time
	updatedAt time.Time
	stale     bool
	fetching  bool
}

type subscription struct {
	f  compiledFilter
	fn func(Event)
}

// Store is the keyed cache of server-derived results.
//
// Entry metadata lives in memory; payload bytes live in the Provider, framed with
// the entry revision. Every read decodes a fresh copy, so callers never share
// canonical state. All writes of one operation are applied under one lock and
// subscribers are notified only after it is released.
type Store struct {
	ns       string
	provider pr.Provider
	codec    c.Codec
	log      Logger
	hooks    Hooks
	now      func() time.Time

	mu     sync.Mutex
	slots  map[string]*slot
	rev    uint64
	closed bool

	subMu  sync.RWMutex
	subs   map[uint64]*subscription
	subSeq uint64

	// onStale is set by the executor; called outside the lock.
	onStale func(keys []Key)
}

func newStore(ns string, p pr.Provider, cd c.Codec, log Logger, hooks Hooks, now func() time.Time) *Store {
	return &Store{
		ns:       ns,
		provider: p,
		codec:    cd,
		log:      log,
		hooks:    hooks,
		now:      now,
		slots:    make(map[string]*slot),
		subs:     make(map[uint64]*subscription),
	}
}

var errRejected = errors.New("querycache: provider rejected write")

// txn is the state of one locked store operation.
type txn struct {
	s      *Store
	ctx    context.Context
	events []Event
}

// update runs fn under the store lock. Writes made before fn fails are kept.
func (s *Store) update(ctx context.Context, fn func(t *txn) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	t := &txn{s: s, ctx: ctx}
	err := fn(t)
	events := t.events
	s.mu.Unlock()
	s.notify(events)
	return err
}

func (s *Store) storageKey(canonical []byte) string {
	return util.StorageKey("q:"+s.ns, canonical)
}

func (t *txn) emit(kind EventKind, key Key) {
	t.events = append(t.events, Event{Kind: kind, Key: key})
}

// slot returns the slot for key, creating an empty one when create is set.
func (t *txn) slot(key Key, create bool) (*slot, error) {
	canon, err := key.canonical()
	if err != nil {
		return nil, err
	}
	id := t.s.storageKey(canon)
	if sl, ok := t.s.slots[id]; ok {
		return sl, nil
	}
	if !create {
		return nil, nil
	}
	parts, err := key.partsCanonical()
	if err != nil {
		return nil, err
	}
	sl := &slot{id: id, key: append(Key(nil), key...), parts: parts}
	t.s.slots[id] = sl
	return sl, nil
}

// match returns slots selected by any of filters, ordered by storage key.
func (t *txn) match(filters ...Filter) ([]*slot, error) {
	cfs := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		cf, err := f.compile()
		if err != nil {
			return nil, err
		}
		cfs = append(cfs, cf)
	}
	var out []*slot
	for _, sl := range t.s.slots {
		for _, cf := range cfs {
			if cf.match(sl.key, sl.parts) {
				out = append(out, sl)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// drop forgets an entry's data. A slot with a pending fetch stays as a placeholder.
func (t *txn) drop(sl *slot) {
	sl.hasData = false
	sl.typ = nil
	sl.stale = false
	if !sl.fetching {
		delete(t.s.slots, sl.id)
	}
	t.emit(EventRemoved, sl.key)
}

func (t *txn) heal(sl *slot, reason string) {
	_ = t.s.provider.Del(t.ctx, sl.id)
	t.s.hooks.SelfHeal(sl.id, reason)
	t.s.log.Debug("self-heal dropped entry", Fields{"key": sl.key.String(), "reason": reason})
	t.drop(sl)
}

// payload returns the validated payload bytes of sl.
func (t *txn) payload(sl *slot) ([]byte, bool, error) {
	if !sl.hasData {
		return nil, false, nil
	}
	raw, ok, err := t.s.provider.Get(t.ctx, sl.id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		t.heal(sl, "missing")
		return nil, false, nil
	}
	rev, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		t.heal(sl, "corrupt")
		return nil, false, nil
	}
	if rev != sl.rev {
		t.heal(sl, "rev_mismatch")
		return nil, false, nil
	}
	return payload, true, nil
}

func (t *txn) decode(sl *slot, payload []byte) (any, error) {
	if sl.typ == nil {
		return nil, nil
	}
	ptr := reflect.New(sl.typ)
	if err := t.s.codec.Decode(payload, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// read returns a fresh decoded copy of sl's data.
func (t *txn) read(sl *slot) (any, bool, error) {
	payload, ok, err := t.payload(sl)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := t.decode(sl, payload)
	if err != nil {
		t.heal(sl, "decode")
		return nil, false, nil
	}
	return v, true, nil
}

func (t *txn) entry(sl *slot, data any) Entry {
	return Entry{
		Key:       append(Key(nil), sl.key...),
		Data:      data,
		FetchedAt: sl.fetchedAt,
		UpdatedAt: sl.updatedAt,
		Stale:     sl.stale,
		Fetching:  sl.fetching,
	}
}

func (t *txn) put(sl *slot, data any) error {
	payload, err := t.s.codec.Encode(data)
	if err != nil {
		return err
	}
	return t.putRaw(sl, reflect.TypeOf(data), payload)
}

// putRaw stores payload under a new revision. On rejection the entry is
// evicted so that no older payload stays visible.
func (t *txn) putRaw(sl *slot, typ reflect.Type, payload []byte) error {
	t.s.rev++
	rev := t.s.rev
	ok, err := t.s.provider.Set(t.ctx, sl.id, wire.EncodeEntry(rev, payload), int64(len(payload)), 0)
	if err != nil {
		return err
	}
	if !ok {
		t.s.hooks.ProviderSetRejected(sl.id)
		t.s.log.Debug("provider rejected write; evicting entry", Fields{"key": sl.key.String()})
		_ = t.s.provider.Del(t.ctx, sl.id)
		if sl.hasData {
			t.drop(sl)
		} else if !sl.fetching {
			delete(t.s.slots, sl.id)
		}
		return errRejected
	}
	sl.typ = typ
	sl.rev = rev
	sl.hasData = true
	sl.updatedAt = t.s.now()
	t.emit(EventUpdated, sl.key)
	return nil
}

// seed writes data as a fresh result.
func (t *txn) seed(key Key, data any) error {
	sl, err := t.slot(key, true)
	if err != nil {
		return err
	}
	if err := t.put(sl, data); err != nil {
		if !sl.hasData && !sl.fetching {
			delete(t.s.slots, sl.id)
		}
		return err
	}
	sl.fetchedAt = sl.updatedAt
	sl.stale = false
	return nil
}

func (t *txn) setFetching(key Key, on bool) {
	sl, err := t.slot(key, on)
	if err != nil || sl == nil || sl.fetching == on {
		return
	}
	sl.fetching = on
	if !on && !sl.hasData {
		delete(t.s.slots, sl.id)
	}
	t.emit(EventFetching, sl.key)
}

// Get returns a decoded copy of the entry for key.
func (s *Store) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		e  Entry
		ok bool
	)
	err := s.update(ctx, func(t *txn) error {
		sl, err := t.slot(key, false)
		if err != nil || sl == nil {
			return err
		}
		v, found, err := t.read(sl)
		if err != nil || !found {
			return err
		}
		e, ok = t.entry(sl, v), true
		return nil
	})
	return e, ok, err
}

// GetData returns the data cached under key as T.
// An entry holding another type yields ErrTypeMismatch.
func GetData[T any](ctx context.Context, s *Store, key Key) (T, bool, error) {
	var zero T
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := cast[T](e.Data)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func cast[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	if v == nil {
		// nil data is a valid cached absent value (e.g. 204 responses).
		return zero, nil
	}
	return zero, fmt.Errorf("%w: have %T, want %T", ErrTypeMismatch, v, zero)
}

// Set writes data under key as a freshly fetched result.
func (s *Store) Set(ctx context.Context, key Key, data any) error {
	return s.update(ctx, func(t *txn) error {
		err := t.seed(key, data)
		if errors.Is(err, errRejected) {
			return nil
		}
		return err
	})
}

// SetWhere applies fn to every entry selected by f whose data is a T.
// Absent slots and entries of other types are skipped. fn reports whether it
// changed the value; unchanged entries are not rewritten. Returns the number
// of rewritten entries.
func SetWhere[T any](ctx context.Context, s *Store, f Filter, fn func(Key, T) (T, bool)) (int, error) {
	var n int
	err := s.update(ctx, func(t *txn) error {
		var err error
		n, err = setWhere(t, f, fn)
		return err
	})
	return n, err
}

func setWhere[T any](t *txn, f Filter, fn func(Key, T) (T, bool)) (int, error) {
	want := reflect.TypeFor[T]()
	slots, err := t.match(f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sl := range slots {
		if !sl.hasData || sl.typ != want {
			continue
		}
		v, ok, err := t.read(sl)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		next, changed := fn(sl.key, v.(T))
		if !changed {
			continue
		}
		if err := t.put(sl, next); err != nil {
			if errors.Is(err, errRejected) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Find returns decoded copies of every entry selected by f.
func (s *Store) Find(ctx context.Context, f Filter) ([]Entry, error) {
	var out []Entry
	err := s.update(ctx, func(t *txn) error {
		slots, err := t.match(f)
		if err != nil {
			return err
		}
		for _, sl := range slots {
			v, ok, err := t.read(sl)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, t.entry(sl, v))
			}
		}
		return nil
	})
	return out, err
}

// Keys lists the keys of entries selected by f that hold data.
func (s *Store) Keys(f Filter) []Key {
	var out []Key
	_ = s.update(context.Background(), func(t *txn) error {
		slots, err := t.match(f)
		if err != nil {
			return err
		}
		for _, sl := range slots {
			if sl.hasData {
				out = append(out, append(Key(nil), sl.key...))
			}
		}
		return nil
	})
	return out
}

// Invalidate marks entries selected by f stale and schedules background
// refetches according to refetch. Returns the number of entries marked.
func (s *Store) Invalidate(ctx context.Context, f Filter, refetch RefetchType) (int, error) {
	return s.invalidate(ctx, refetch, f)
}

// invalidate marks the union of filters in one pass, so an entry selected by
// several filters is refetched once.
func (s *Store) invalidate(ctx context.Context, refetch RefetchType, filters ...Filter) (int, error) {
	if len(filters) == 0 {
		return 0, nil
	}
	var (
		n    int
		keys []Key
	)
	err := s.update(ctx, func(t *txn) error {
		slots, err := t.match(filters...)
		if err != nil {
			return err
		}
		for _, sl := range slots {
			if !sl.hasData {
				continue
			}
			sl.stale = true
			n++
			t.emit(EventInvalidated, sl.key)
			switch refetch {
			case RefetchAll:
				keys = append(keys, sl.key)
			case RefetchActive:
				if s.Observed(sl.key) {
					keys = append(keys, sl.key)
				}
			}
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	if len(keys) > 0 && s.onStale != nil {
		s.onStale(keys)
	}
	s.log.Debug("invalidated entries", Fields{"filters": len(filters), "count": n, "refetch": len(keys)})
	return n, nil
}

// Remove evicts entries selected by f.
func (s *Store) Remove(ctx context.Context, f Filter) (int, error) {
	var n int
	err := s.update(ctx, func(t *txn) error {
		slots, err := t.match(f)
		if err != nil {
			return err
		}
		for _, sl := range slots {
			if !sl.hasData {
				continue
			}
			_ = s.provider.Del(ctx, sl.id)
			t.drop(sl)
			n++
		}
		return nil
	})
	return n, err
}

// Len returns the number of entries holding data.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.hasData {
			n++
		}
	}
	return n
}

// Subscribe registers fn for events on keys selected by f and marks those keys
// observed. fn runs synchronously on the writing goroutine after the write
// completes; it may read the store. Call the returned func to unsubscribe.
func (s *Store) Subscribe(f Filter, fn func(Event)) (func(), error) {
	cf, err := f.compile()
	if err != nil {
		return nil, err
	}
	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = &subscription{f: cf, fn: fn}
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}, nil
}

// Observed reports whether any subscriber currently observes key.
func (s *Store) Observed(key Key) bool {
	parts, err := key.partsCanonical()
	if err != nil {
		return false
	}
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, sub := range s.subs {
		if sub.f.match(key, parts) {
			return true
		}
	}
	return false
}

func (s *Store) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.RLock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	for _, ev := range events {
		parts, err := ev.Key.partsCanonical()
		if err != nil {
			continue
		}
		for _, sub := range subs {
			if sub.f.match(ev.Key, parts) {
				sub.fn(ev)
			}
		}
	}
}

// Close drops every entry and closes the provider.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id := range s.slots {
		_ = s.provider.Del(ctx, id)
	}
	s.slots = make(map[string]*slot)
	s.mu.Unlock()
	return s.provider.Close(ctx)
}

// Snapshot is an immutable capture of entries, restorable verbatim.
type Snapshot struct {
	entries []snapEntry
}

type snapEntry struct {
	id        string
	key       Key
	parts     [][]byte
	typ       reflect.Type
	payload   []byte
	fetchedAt time.Time
	updatedAt time.Time
	stale     bool
}

// Len returns the number of captured entries.
func (sn *Snapshot) Len() int {
	if sn == nil {
		return 0
	}
	return len(sn.entries)
}

// Keys lists the captured keys in capture order.
func (sn *Snapshot) Keys() []Key {
	if sn == nil {
		return nil
	}
	out := make([]Key, len(sn.entries))
	for i, e := range sn.entries {
		out[i] = append(Key(nil), e.key...)
	}
	return out
}

// Capture snapshots every entry selected by any of filters.
func (s *Store) Capture(ctx context.Context, filters ...Filter) (*Snapshot, error) {
	var sn *Snapshot
	err := s.update(ctx, func(t *txn) error {
		var err error
		sn, err = t.capture(filters)
		return err
	})
	return sn, err
}

// Restore writes a snapshot back verbatim.
func (s *Store) Restore(ctx context.Context, sn *Snapshot) error {
	return s.update(ctx, func(t *txn) error { return t.restore(sn) })
}

func (t *txn) capture(filters []Filter) (*Snapshot, error) {
	slots, err := t.match(filters...)
	if err != nil {
		return nil, err
	}
	sn := &Snapshot{entries: make([]snapEntry, 0, len(slots))}
	for _, sl := range slots {
		payload, ok, err := t.payload(sl)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		sn.entries = append(sn.entries, snapEntry{
			id:        sl.id,
			key:       sl.key,
			parts:     sl.parts,
			typ:       sl.typ,
			payload:   append([]byte(nil), payload...),
			fetchedAt: sl.fetchedAt,
			updatedAt: sl.updatedAt,
			stale:     sl.stale,
		})
	}
	return sn, nil
}

// restore writes every captured entry back. Entries that cannot be written
// are evicted rather than left holding speculative data.
func (t *txn) restore(sn *Snapshot) error {
	if sn == nil {
		return nil
	}
	var errs []error
	for _, e := range sn.entries {
		sl, ok := t.s.slots[e.id]
		if !ok {
			sl = &slot{id: e.id, key: e.key, parts: e.parts}
			t.s.slots[e.id] = sl
		}
		if err := t.putRaw(sl, e.typ, e.payload); err != nil {
			if !errors.Is(err, errRejected) {
				_ = t.s.provider.Del(t.ctx, sl.id)
				if sl.hasData {
					t.drop(sl)
				} else if !sl.fetching {
					delete(t.s.slots, sl.id)
				}
			}
			errs = append(errs, fmt.Errorf("restore %s: %w", e.key, err))
			continue
		}
		sl.fetchedAt = e.fetchedAt
		sl.updatedAt = e.updatedAt
		sl.stale = e.stale
	}
	return errors.Join(errs...)
}
