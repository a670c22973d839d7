// Package sloghooks reports querycache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	CoalescedEvery uint64
	// Optional key redactor for storage keys. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	coalescedCtr atomic.Uint64
}

var _ querycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("querycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) FetchCoalesced(key string) {
	if h.l == nil || !sample(h.opts.CoalescedEvery, &h.coalescedCtr) {
		return
	}
	h.l.Debug("querycache.fetch_coalesced", "query", key)
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.fetch_failed",
		"query", key,
		"status", querycache.StatusOf(err),
		"err", err)
}

func (h *Hooks) FetchDiscarded(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("querycache.fetch_discarded", "query", key)
}

func (h *Hooks) MutationSettled(name string, phase querycache.Phase, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("querycache.mutation_settled",
			"mutation", name,
			"phase", phase.String(),
			"err", err)
		return
	}
	h.l.Info("querycache.mutation_settled",
		"mutation", name,
		"phase", phase.String())
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("querycache.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}
