package budget

import (
	"sync"
	"testing"

	"github.com/openclaw/claw-router/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	disabled := false
	cfg.Providers = map[string]config.ProviderConfig{
		"openrouter": {Type: "aggregator"},
		"local":      {Type: "local"},
		"anthropic":  {Type: "placeholder", Enabled: &disabled},
	}
	cfg.Budget.DailyCapPerProviderUSD = 2.0
	cfg.Budget.MonthlyCapPerProviderUSD = 60.0
	cfg.Budget.FallbackCostPer1KUSD = 0.5
	cfg.Budget.CostPer1KTokensUSD = map[string]map[string]float64{
		"openrouter": {"openrouter/auto": 0.02},
		"local":      {},
	}
	return cfg
}

func TestEnabled(t *testing.T) {
	m := NewManager(testConfig())

	if !m.Enabled("openrouter") {
		t.Error("openrouter should be enabled")
	}
	if m.Enabled("anthropic") {
		t.Error("anthropic is configured disabled")
	}
	if m.Enabled("nonexistent") {
		t.Error("unknown provider should not be enabled")
	}
}

func TestEstimateCost(t *testing.T) {
	m := NewManager(testConfig())

	tests := []struct {
		provider string
		model    string
		prompt   int
		compl    int
		want     float64
	}{
		{"openrouter", "openrouter/auto", 1000, 1000, 0.04},
		{"openrouter", "unknown-model", 1000, 0, 0.5}, // fallback rate
		{"nope", "nope", 2000, 0, 1.0},                // unknown provider, fallback rate
		{"openrouter", "openrouter/auto", 0, 0, 0},
	}
	for _, tt := range tests {
		got := m.EstimateCost(tt.provider, tt.model, tt.prompt, tt.compl)
		if got != tt.want {
			t.Errorf("EstimateCost(%s, %s, %d, %d) = %v, want %v",
				tt.provider, tt.model, tt.prompt, tt.compl, got, tt.want)
		}
	}
}

func TestCanSpendCapCheck(t *testing.T) {
	m := NewManager(testConfig())

	// Accumulate $1.90 against the $2.00 daily cap.
	m.RecordSpend("openrouter", "expensive", 3800, 0) // 3800/1000 * 0.5 = 1.90

	// A $0.50 estimate must be rejected: 1.90 + 0.50 > 2.00.
	if m.CanSpend("openrouter", "expensive", 1000, 0) {
		t.Error("expected rejection when accumulated + estimate exceeds daily cap")
	}

	// A cheap call still fits: 1000 tokens at 0.02/1k = $0.02.
	if !m.CanSpend("openrouter", "openrouter/auto", 1000, 0) {
		t.Error("expected admission for a cheap call under the cap")
	}

	if m.CanSpend("anthropic", "any", 1, 0) {
		t.Error("disabled provider must never admit")
	}
}

func TestRecordSpendMatchesCanSpendEstimate(t *testing.T) {
	m := NewManager(testConfig())

	est := m.EstimateCost("openrouter", "openrouter/auto", 1500, 500)
	m.RecordSpend("openrouter", "openrouter/auto", 1500, 500)

	snap := m.Snapshot()["openrouter"]
	if snap.DailyCostEstimate != est {
		t.Errorf("daily = %v, want %v", snap.DailyCostEstimate, est)
	}
	if snap.MonthlyCostEstimate != est {
		t.Errorf("monthly = %v, want %v", snap.MonthlyCostEstimate, est)
	}
	if snap.Calls != 1 {
		t.Errorf("calls = %d, want 1", snap.Calls)
	}
}

func TestAdmitReservesAgainstCap(t *testing.T) {
	m := NewManager(testConfig())

	// Each reservation is $1.00 (2000 tokens at fallback 0.5/1k); the daily
	// cap is $2.00, so two fit and a third must be rejected even though
	// nothing is committed yet.
	r1, ok := m.Admit("openrouter", "big", 2000, 0)
	if !ok {
		t.Fatal("first admit should pass")
	}
	r2, ok := m.Admit("openrouter", "big", 2000, 0)
	if !ok {
		t.Fatal("second admit should pass")
	}
	if _, ok := m.Admit("openrouter", "big", 2000, 0); ok {
		t.Fatal("third admit should be rejected by pending reservations")
	}

	// Releasing frees the slot without touching the accumulators.
	r1.Release()
	if snap := m.Snapshot()["openrouter"]; snap.DailyCostEstimate != 0 {
		t.Errorf("release must not record spend, daily = %v", snap.DailyCostEstimate)
	}
	if _, ok := m.Admit("openrouter", "big", 2000, 0); !ok {
		t.Error("admit should pass again after release")
	}

	// Committing converts the reservation into recorded spend.
	r2.Commit(2000, 0)
	if snap := m.Snapshot()["openrouter"]; snap.DailyCostEstimate != 1.0 {
		t.Errorf("daily after commit = %v, want 1.0", snap.DailyCostEstimate)
	}
}

func TestCommitZeroCountsCallOnly(t *testing.T) {
	m := NewManager(testConfig())

	r, ok := m.Admit("local", "qwen3-8b", 4000, 512)
	if !ok {
		t.Fatal("admit failed")
	}
	r.CommitZero()

	snap := m.Snapshot()["local"]
	if snap.DailyCostEstimate != 0 || snap.MonthlyCostEstimate != 0 {
		t.Errorf("zero-cost commit moved accumulators: %+v", snap)
	}
	if snap.Calls != 1 {
		t.Errorf("calls = %d, want 1", snap.Calls)
	}
}

func TestReservationSettlesOnce(t *testing.T) {
	m := NewManager(testConfig())

	r, _ := m.Admit("openrouter", "big", 2000, 0)
	r.Commit(2000, 0)
	r.Commit(2000, 0)
	r.Release()

	if snap := m.Snapshot()["openrouter"]; snap.DailyCostEstimate != 1.0 {
		t.Errorf("double settle changed accumulators, daily = %v", snap.DailyCostEstimate)
	}
}

func TestConcurrentAdmitNeverOverCommits(t *testing.T) {
	cfg := testConfig()
	cfg.Budget.DailyCapPerProviderUSD = 5.0
	m := NewManager(cfg)

	// 50 goroutines each try to reserve $1.00; only 5 may win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, ok := m.Admit("openrouter", "big", 2000, 0); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
				r.Commit(2000, 0)
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("admitted %d reservations, want exactly 5", admitted)
	}
	if snap := m.Snapshot()["openrouter"]; snap.DailyCostEstimate > 5.0 {
		t.Errorf("daily spend %v exceeds cap", snap.DailyCostEstimate)
	}
}

func TestSnapshotMonotonic(t *testing.T) {
	m := NewManager(testConfig())

	var prev float64
	for i := 0; i < 5; i++ {
		m.RecordSpend("openrouter", "openrouter/auto", 500, 100)
		cur := m.Snapshot()["openrouter"].DailyCostEstimate
		if cur < prev {
			t.Fatalf("daily accumulator decreased: %v -> %v", prev, cur)
		}
		prev = cur
	}
}
