// Package genstore keeps a generation counter per cache slot.
//
// The executor snapshots a slot's generation when a fetch starts and writes the
// result only if the generation is unchanged when the fetch completes. Aborting
// reads (before an optimistic write, or on explicit cancel) bumps the
// generation, so a late completion can never clobber newer state.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, slot string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, slot string) (uint64, error)
	// BumpMany bumps every slot under one lock and returns the new generations.
	BumpMany(ctx context.Context, slots []string) (map[string]uint64, error)
	// Cleanup prunes generations not bumped within retention.
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
