package querycache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths, sometimes while holding internal locks.
type Hooks interface {
	// An entry was dropped by the store on read.
	// reason ∈ {"corrupt", "rev_mismatch", "decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A read joined an identical in-flight fetch instead of issuing one.
	FetchCoalesced(key string)

	// A fetch failed; the last cached value (if any) was kept.
	FetchFailed(key string, err error)

	// A fetch completed after being aborted and its result was dropped.
	FetchDiscarded(key string)

	// A mutation settled. phase ∈ {PhaseCommitted, PhaseRolledBack}.
	MutationSettled(name string, phase Phase, err error)

	// GenStore bump failed; the affected reads could not be fenced.
	GenBumpError(slot string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)              {}
func (NopHooks) ProviderSetRejected(string)           {}
func (NopHooks) FetchCoalesced(string)                {}
func (NopHooks) FetchFailed(string, error)            {}
func (NopHooks) FetchDiscarded(string)                {}
func (NopHooks) MutationSettled(string, Phase, error) {}
func (NopHooks) GenBumpError(string, error)           {}
