package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/querycache/codec"
	gen "github.com/unkn0wn-root/querycache/genstore"
	pr "github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/memory"
)

const (
	defaultNamespace    = "qc"
	defaultStaleTime    = 2 * time.Minute
	defaultSweep        = time.Hour
	defaultGenRetention = 24 * time.Hour
	defaultRefetchLimit = 4
)

// Options tune a Client. Every field is optional.
type Options struct {
	Namespace string      // storage key namespace; "" => "qc"
	Provider  pr.Provider // payload byte store; nil => provider/memory
	Codec     c.Codec     // payload codec; nil => CBOR

	GenStore        gen.GenStore  // nil => LocalGenStore (in-process)
	CleanupInterval time.Duration // generation sweep for the default GenStore; 0 => 1h
	GenRetention    time.Duration // 0 => 24h

	StaleTime          time.Duration // default query stale time; 0 => 2m
	RefetchConcurrency int           // background refetch fan-out; 0 => 4

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// OnUnauthorized is called when a fetch or mutation write fails with a
	// 401 status, typically to tear down the session.
	OnUnauthorized func()

	// Now is the clock used for staleness; nil => time.Now.
	Now func() time.Time
}

// Client bundles the store, executor, projector and coordinator that share
// one cache. Construct one per session and Close it at session end.
type Client struct {
	store *Store
	exec  *Executor
	proj  *Projector
	coord *Coordinator

	gens    gen.GenStore
	ownGens bool
	log     Logger
}

// New builds a Client.
func New(opts Options) (*Client, error) {
	if opts.RefetchConcurrency < 0 {
		return nil, fmt.Errorf("querycache: refetch concurrency must be >= 0")
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	provider := opts.Provider
	if provider == nil {
		provider = memory.New()
	}
	codec := opts.Codec
	if codec == nil {
		codec = c.MustCBOR(false)
	}

	cl := &Client{log: log}
	cl.gens = opts.GenStore
	if cl.gens == nil {
		cl.gens = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
		cl.ownGens = true
	}

	cl.store = newStore(coalesce(opts.Namespace, defaultNamespace), provider, codec, log, hooks, now)
	cl.exec = newExecutor(
		cl.store, cl.gens, log, hooks,
		coalesce(opts.StaleTime, defaultStaleTime),
		coalesce(opts.RefetchConcurrency, defaultRefetchLimit),
		opts.OnUnauthorized,
	)
	cl.proj = &Projector{store: cl.store, log: log}
	cl.coord = &Coordinator{
		store:          cl.store,
		exec:           cl.exec,
		log:            log,
		hooks:          hooks,
		onUnauthorized: opts.OnUnauthorized,
	}
	return cl, nil
}

func (cl *Client) Store() *Store             { return cl.store }
func (cl *Client) Executor() *Executor       { return cl.exec }
func (cl *Client) Projector() *Projector     { return cl.proj }
func (cl *Client) Coordinator() *Coordinator { return cl.coord }

// Close aborts in-flight fetches, drops every entry and releases the provider
// and the default GenStore.
func (cl *Client) Close(ctx context.Context) error {
	var errs []error
	if err := cl.exec.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := cl.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if cl.ownGens {
		if err := cl.gens.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
