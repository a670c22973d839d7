// Package querycache is a client-side cache of server-derived query results
// that keeps every denormalized copy of a record consistent across views.
//
// Components:
//   - Store: keyed entries with staleness, subscriber notification and
//     snapshot/restore. Payload bytes live in a Provider (memory, Ristretto,
//     BigCache) and are decoded into a fresh copy on every read.
//   - Executor: resolves queries from the store or the network, coalescing
//     identical in-flight fetches. A per-slot generation (GenStore) fences
//     completions, so an aborted fetch never writes.
//   - Projector: rewrites every cached copy of a record given its Identity.
//   - Coordinator: optimistic mutations (snapshot, apply, write, commit or
//     roll back, revalidate).
//   - Merge and Pager: instant-feedback search and incremental pagination.
//
// Keys:
//
//	K("pantry", "items", Filters{Status: "available"})
//
// Keys compare structurally; payloads are stored as
//
//	q:<ns>:<sha256(canonical key)>
//
// Mutation pattern:
//
//	out, err := querycache.Mutate(ctx, client.Coordinator(), querycache.Mutation[Item]{
//		Name:       "pantry.update",
//		Optimistic: []querycache.Projection{patchItems},
//		Write:      func(ctx context.Context) (Item, error) { return api.Update(ctx, id, patch) },
//	})
package querycache
