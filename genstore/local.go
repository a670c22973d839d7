package genstore

import (
	"context"
	"sync"
	"time"
)

type slotGen struct {
	gen    uint64
	bumped time.Time
}

// LocalGenStore keeps slot generations in process memory.
//
// When both sweepEvery and retention are positive a background sweep drops
// slots not bumped within retention. A dropped slot reads as 0 again, which
// only affects fetches that have been in flight for longer than retention.
type LocalGenStore struct {
	mu    sync.RWMutex
	slots map[string]slotGen
	now   func() time.Time

	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(sweepEvery, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{slots: make(map[string]slotGen), now: time.Now}
	if sweepEvery <= 0 || retention <= 0 {
		return s
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go s.sweep(ctx, sweepEvery, retention)
	return s
}

func (s *LocalGenStore) sweep(ctx context.Context, every, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup(retention)
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, slot string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[slot].gen, nil
}

func (s *LocalGenStore) Bump(ctx context.Context, slot string) (uint64, error) {
	gens, err := s.BumpMany(ctx, []string{slot})
	return gens[slot], err
}

func (s *LocalGenStore) BumpMany(_ context.Context, slots []string) (map[string]uint64, error) {
	at := s.now()
	out := make(map[string]uint64, len(slots))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range slots {
		if _, seen := out[slot]; seen {
			continue
		}
		g := s.slots[slot].gen + 1
		s.slots[slot] = slotGen{gen: g, bumped: at}
		out[slot] = g
	}
	return out, nil
}

// Cleanup drops slots whose last bump is older than retention.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot, g := range s.slots {
		if g.bumped.Before(cutoff) {
			delete(s.slots, slot)
		}
	}
}

// Len is the number of tracked slots.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Close stops the sweep. Generations stay readable.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
			<-s.done
		}
	})
	return nil
}
