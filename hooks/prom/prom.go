// Package prom counts querycache hook events with Prometheus.
//
// Metrics (namespace "querycache" unless overridden):
//   - self_heal_total{reason}
//   - provider_set_rejected_total
//   - fetch_coalesced_total
//   - fetch_failed_total{status}
//   - fetch_discarded_total
//   - mutations_total{mutation, outcome}   outcome: committed | rolled_back
//   - gen_bump_errors_total
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/querycache"
)

const defaultNamespace = "querycache"

type Hooks struct {
	selfHeal       *prometheus.CounterVec
	setRejected    prometheus.Counter
	coalesced      prometheus.Counter
	fetchFailed    *prometheus.CounterVec
	fetchDiscarded prometheus.Counter
	mutations      *prometheus.CounterVec
	genBumpErrors  prometheus.Counter
}

var _ querycache.Hooks = (*Hooks)(nil)

// New registers the counters with reg. An empty namespace uses "querycache".
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if namespace == "" {
		namespace = defaultNamespace
	}
	f := promauto.With(reg)
	return &Hooks{
		selfHeal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heal_total",
			Help:      "Entries dropped on read because their stored payload was unusable.",
		}, []string{"reason"}),
		setRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_set_rejected_total",
			Help:      "Writes rejected by the payload provider.",
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_coalesced_total",
			Help:      "Queries that joined an identical in-flight fetch.",
		}),
		fetchFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failed_total",
			Help:      "Failed fetches by remote status (0 when unknown).",
		}, []string{"status"}),
		fetchDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_discarded_total",
			Help:      "Fetch results dropped because the fetch was aborted.",
		}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Settled mutations by name and outcome.",
		}, []string{"mutation", "outcome"}),
		genBumpErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gen_bump_errors_total",
			Help:      "Generation bumps that failed.",
		}),
	}
}

func (h *Hooks) SelfHeal(_ string, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)        { h.setRejected.Inc() }
func (h *Hooks) FetchCoalesced(string)             { h.coalesced.Inc() }
func (h *Hooks) FetchDiscarded(string)             { h.fetchDiscarded.Inc() }
func (h *Hooks) GenBumpError(string, error)        { h.genBumpErrors.Inc() }

func (h *Hooks) FetchFailed(_ string, err error) {
	h.fetchFailed.WithLabelValues(strconv.Itoa(querycache.StatusOf(err))).Inc()
}

func (h *Hooks) MutationSettled(name string, phase querycache.Phase, _ error) {
	h.mutations.WithLabelValues(name, phase.String()).Inc()
}
