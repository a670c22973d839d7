package querycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Phase is the state of one mutation.
//
//	Idle -> Snapshotting -> Applied -> {Committed | RolledBack} -> Done
//
// Snapshotting may go straight to RolledBack when the optimistic update
// cannot be prepared.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSnapshotting
	PhaseApplied
	PhaseCommitted
	PhaseRolledBack
	PhaseDone
)

var phaseNames = [...]string{"idle", "snapshotting", "applied", "committed", "rolled_back", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

var transitions = map[Phase][]Phase{
	PhaseIdle:         {PhaseSnapshotting},
	PhaseSnapshotting: {PhaseApplied, PhaseRolledBack},
	PhaseApplied:      {PhaseCommitted, PhaseRolledBack},
	PhaseCommitted:    {PhaseDone},
	PhaseRolledBack:   {PhaseDone},
}

// CanTransition reports whether a mutation in p may move to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, to := range transitions[p] {
		if to == next {
			return true
		}
	}
	return false
}

// ErrPhase is returned when a mutation attempts an invalid phase transition.
var ErrPhase = errors.New("querycache: invalid mutation phase transition")

type mutationState struct {
	phase   Phase
	trace   []Phase
	onPhase func(Phase)
}

func (m *mutationState) advance(next Phase) error {
	if !m.phase.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrPhase, m.phase, next)
	}
	m.phase = next
	m.trace = append(m.trace, next)
	if m.onPhase != nil {
		m.onPhase(next)
	}
	return nil
}

// Mutation describes an optimistic remote write.
type Mutation[R any] struct {
	// Name labels the mutation in logs, hooks and errors.
	Name string
	// Cancel selects in-flight fetches to abort before the optimistic write.
	// nil => Snapshot plus every projection filter.
	Cancel []Filter
	// Snapshot selects the entries captured for rollback.
	// nil => every projection filter.
	Snapshot []Filter
	// Optimistic projections applied before the remote write completes.
	Optimistic []Projection
	// Write performs the remote write. It starts while the optimistic
	// projections are being applied.
	Write func(ctx context.Context) (R, error)
	// Revalidate selects entries invalidated once the mutation settles,
	// whatever the outcome. nil => Snapshot.
	Revalidate []Filter
	// RefetchAll refetches every revalidated entry, not only observed ones.
	RefetchAll bool
	// OnPhase is called after every phase transition.
	OnPhase func(Phase)
}

// Outcome reports how a mutation settled.
type Outcome[R any] struct {
	ID     string
	Result R
	// Phase is PhaseCommitted or PhaseRolledBack.
	Phase Phase
	// Trace lists every phase the mutation went through.
	Trace []Phase
	// Captured is the number of entries in the rollback snapshot.
	Captured int
	// Applied is the number of entries rewritten optimistically.
	Applied int
}

// Coordinator runs mutations against the store.
type Coordinator struct {
	store          *Store
	exec           *Executor
	log            Logger
	hooks          Hooks
	onUnauthorized func()
}

// Mutate runs m: abort racing fetches, capture the snapshot, apply the
// optimistic projections while the remote write starts, then commit or roll
// back. Snapshot capture and optimistic apply happen in one store update, so a
// later mutation on the same records snapshots this one's projected state.
//
// On a failed write every captured entry is restored and a *MutationError is
// returned. Revalidation runs after either outcome.
func Mutate[R any](ctx context.Context, c *Coordinator, m Mutation[R]) (Outcome[R], error) {
	st := &mutationState{onPhase: m.OnPhase}
	out := Outcome[R]{ID: uuid.NewString()}
	if m.Write == nil {
		return out, fmt.Errorf("querycache: mutation %q has no Write", m.Name)
	}

	snapFilters := m.Snapshot
	if snapFilters == nil {
		snapFilters = projectionFilters(m.Optimistic)
	}
	cancelFilters := m.Cancel
	if cancelFilters == nil {
		cancelFilters = append(append([]Filter(nil), snapFilters...), projectionFilters(m.Optimistic)...)
	}
	revalidate := m.Revalidate
	if revalidate == nil {
		revalidate = snapFilters
	}
	fields := Fields{"mutation": m.Name, "id": out.ID}

	if err := st.advance(PhaseSnapshotting); err != nil {
		return out, err
	}

	type result struct {
		v   R
		err error
	}
	done := make(chan result, 1)
	var (
		sn      *Snapshot
		started bool
	)
	prepErr := c.store.update(ctx, func(t *txn) error {
		if _, err := c.exec.cancelTx(t, cancelFilters); err != nil {
			return err
		}
		var err error
		if sn, err = t.capture(snapFilters); err != nil {
			return err
		}
		started = true
		go func() {
			v, err := m.Write(ctx)
			done <- result{v: v, err: err}
		}()
		out.Applied, err = applyAll(t, m.Optimistic)
		return err
	})
	out.Captured = sn.Len()

	if prepErr != nil && !started {
		_ = st.advance(PhaseRolledBack)
		_ = st.advance(PhaseDone)
		out.Phase, out.Trace = PhaseRolledBack, st.trace
		c.hooks.MutationSettled(m.Name, PhaseRolledBack, prepErr)
		c.log.Warn("mutation not started", Fields{"mutation": m.Name, "id": out.ID, "err": prepErr})
		return out, &MutationError{Name: m.Name, ID: out.ID, Err: prepErr}
	}
	if prepErr == nil {
		if err := st.advance(PhaseApplied); err != nil {
			return out, err
		}
	}

	r := <-done
	werr := r.err
	if werr == nil && prepErr != nil {
		// The write landed but the optimistic state is partial; roll back and
		// let revalidation fetch the committed state.
		werr = prepErr
	}

	var err error
	if werr != nil {
		if aerr := st.advance(PhaseRolledBack); aerr != nil {
			return out, aerr
		}
		rerr := c.store.update(context.WithoutCancel(ctx), func(t *txn) error { return t.restore(sn) })
		err = &MutationError{Name: m.Name, ID: out.ID, Err: werr, RestoreErr: rerr}
		out.Phase = PhaseRolledBack
		c.log.Warn("mutation rolled back", Fields{"mutation": m.Name, "id": out.ID, "entries": out.Captured, "err": werr})
		if rerr != nil {
			c.log.Error("mutation restore incomplete", Fields{"mutation": m.Name, "id": out.ID, "err": rerr})
		}
		if IsUnauthorized(werr) && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	} else {
		if aerr := st.advance(PhaseCommitted); aerr != nil {
			return out, aerr
		}
		out.Result = r.v
		out.Phase = PhaseCommitted
		c.log.Debug("mutation committed", fields)
	}
	c.hooks.MutationSettled(m.Name, out.Phase, werr)

	refetch := RefetchActive
	if m.RefetchAll {
		refetch = RefetchAll
	}
	if _, ierr := c.store.invalidate(context.WithoutCancel(ctx), refetch, revalidate...); ierr != nil {
		c.log.Warn("mutation revalidate failed", Fields{"mutation": m.Name, "id": out.ID, "err": ierr})
	}

	_ = st.advance(PhaseDone)
	out.Trace = st.trace
	return out, err
}

func projectionFilters(ps []Projection) []Filter {
	out := make([]Filter, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.filter)
	}
	return out
}
