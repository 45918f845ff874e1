// Package budget tracks estimated spend per provider and gates admission
// against daily and monthly caps. It is the only state shared across
// concurrent requests, so every check-and-reserve happens under the
// provider's lock. Period rollover is owned by the external dashboard
// ledger; accumulators here only ever grow.
package budget

import (
	"sync"

	"github.com/openclaw/claw-router/internal/config"
)

type Manager struct {
	cfg       *config.Config
	providers map[string]*providerState
}

type providerState struct {
	mu         sync.Mutex
	enabled    bool
	dailyUSD   float64
	monthlyUSD float64
	pendingUSD float64
	calls      int64
}

// ProviderSpend is one provider's entry in a budget snapshot.
type ProviderSpend struct {
	Enabled             bool    `json:"enabled"`
	DailyCostEstimate   float64 `json:"daily_cost_estimate"`
	MonthlyCostEstimate float64 `json:"monthly_cost_estimate"`
	Calls               int64   `json:"calls"`
}

func NewManager(cfg *config.Config) *Manager {
	providers := make(map[string]*providerState, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		providers[name] = &providerState{enabled: pc.IsEnabled()}
	}
	return &Manager{cfg: cfg, providers: providers}
}

// Enabled reports whether the provider exists and is administratively enabled.
func (m *Manager) Enabled(provider string) bool {
	ps, ok := m.providers[provider]
	if !ok {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.enabled
}

// EstimateCost applies the cost formula: (prompt+completion)/1000 * rate,
// with the configured fallback rate when the model has no table entry.
// Estimation never refuses; an unknown provider still gets the fallback rate.
func (m *Manager) EstimateCost(provider, model string, promptTokens, completionTokens int) float64 {
	rate := m.cfg.Budget.FallbackCostPer1KUSD
	if models, ok := m.cfg.Budget.CostPer1KTokensUSD[provider]; ok {
		if r, ok := models[model]; ok {
			rate = r
		}
	}
	return float64(promptTokens+completionTokens) / 1000.0 * rate
}

// CanSpend reports whether the provider can absorb the estimated cost of
// this call without exceeding its daily or monthly cap. Pending
// reservations count against the caps. No mutation.
func (m *Manager) CanSpend(provider, model string, promptTokens, completionTokens int) bool {
	ps, ok := m.providers[provider]
	if !ok {
		return false
	}
	est := m.EstimateCost(provider, model, promptTokens, completionTokens)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.admits(est, m.cfg.Budget)
}

// admits must be called with ps.mu held.
func (ps *providerState) admits(est float64, bcfg config.BudgetConfig) bool {
	if !ps.enabled {
		return false
	}
	if ps.dailyUSD+ps.pendingUSD+est > bcfg.DailyCapPerProviderUSD {
		return false
	}
	if ps.monthlyUSD+ps.pendingUSD+est > bcfg.MonthlyCapPerProviderUSD {
		return false
	}
	return true
}

// Admit performs the cap check and reserves the estimate in one atomic step,
// so two concurrent admissions cannot both squeeze under the same cap. The
// returned reservation must be settled exactly once: Commit after a
// dispatched call, Release if the call never went out.
func (m *Manager) Admit(provider, model string, promptTokens, completionTokens int) (*Reservation, bool) {
	ps, ok := m.providers[provider]
	if !ok {
		return nil, false
	}
	est := m.EstimateCost(provider, model, promptTokens, completionTokens)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.admits(est, m.cfg.Budget) {
		return nil, false
	}
	ps.pendingUSD += est
	return &Reservation{manager: m, state: ps, provider: provider, model: model, estimate: est}, true
}

// RecordSpend unconditionally adds the estimated cost of the call to both
// accumulators. Callers are expected to have passed CanSpend (or hold a
// reservation) and to record only calls that were actually dispatched.
func (m *Manager) RecordSpend(provider, model string, promptTokens, completionTokens int) {
	ps, ok := m.providers[provider]
	if !ok {
		return
	}
	est := m.EstimateCost(provider, model, promptTokens, completionTokens)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dailyUSD += est
	ps.monthlyUSD += est
	ps.calls++
}

// Snapshot returns per-provider accumulated estimates.
func (m *Manager) Snapshot() map[string]ProviderSpend {
	out := make(map[string]ProviderSpend, len(m.providers))
	for name, ps := range m.providers {
		ps.mu.Lock()
		out[name] = ProviderSpend{
			Enabled:             ps.enabled,
			DailyCostEstimate:   ps.dailyUSD,
			MonthlyCostEstimate: ps.monthlyUSD,
			Calls:               ps.calls,
		}
		ps.mu.Unlock()
	}
	return out
}

// Reservation holds admitted-but-uncommitted spend against a provider's caps.
type Reservation struct {
	manager  *Manager
	state    *providerState
	provider string
	model    string
	estimate float64
	settled  bool
}

// Commit replaces the reserved estimate with the cost computed from the
// final token counts and adds it to both accumulators.
func (r *Reservation) Commit(promptTokens, completionTokens int) {
	final := r.manager.EstimateCost(r.provider, r.model, promptTokens, completionTokens)
	r.settle(final)
}

// CommitZero settles the reservation at zero cost while still counting the
// call. Local inference has no marginal dollar cost but keeps its slot
// bookkeeping.
func (r *Reservation) CommitZero() {
	r.settle(0)
}

// Release drops the reservation without recording anything. Used when the
// admitted call was never dispatched; rejected or failed attempts must not
// move the accumulators.
func (r *Reservation) Release() {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if r.settled {
		return
	}
	r.settled = true
	r.state.pendingUSD -= r.estimate
}

func (r *Reservation) settle(cost float64) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if r.settled {
		return
	}
	r.settled = true
	r.state.pendingUSD -= r.estimate
	r.state.dailyUSD += cost
	r.state.monthlyUSD += cost
	r.state.calls++
}
