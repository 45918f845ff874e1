package router

import (
	"errors"
	"reflect"
	"testing"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	disabled := false
	cfg.Providers = map[string]config.ProviderConfig{
		"openrouter": {
			Type: "aggregator",
			Tiers: map[string]config.TierConfig{
				"fast": {DefaultModel: "openrouter/auto"},
				"deep": {DefaultModel: "anthropic/claude-sonnet"},
			},
		},
		"lmstudio": {
			Type: "local",
			Tiers: map[string]config.TierConfig{
				"fast": {DefaultModel: "auto"},
			},
		},
		"anthropic": {
			Type:    "placeholder",
			Enabled: &disabled,
			Tiers: map[string]config.TierConfig{
				"deep": {DefaultModel: "claude-opus"},
			},
		},
	}
	cfg.Routing.IntentKeywords = map[string][]string{
		"code":      {"refactor", "compile", "stack trace"},
		"reasoning": {"prove", "step by step"},
		"verify":    {"double-check"},
	}
	cfg.Routing.FallbackChain = map[string][]config.ChainLink{
		"chat": {
			{Provider: "lmstudio", Tier: "fast"},
			{Provider: "openrouter", Tier: "fast"},
		},
		"code": {
			{Provider: "anthropic", Tier: "deep"},
			{Provider: "openrouter", Tier: "deep"},
			{Provider: "lmstudio", Tier: "fast"},
		},
		"vision": {
			{Provider: "openrouter", Tier: "fast"},
		},
	}
	return cfg
}

func request(content string, meta *types.Metadata) *types.ChatRequest {
	return &types.ChatRequest{
		Model:    "auto",
		Messages: []types.Message{{Role: "user", Content: content}},
		Metadata: meta,
	}
}

func TestDecideDeterministic(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)
	req := request("please refactor this function", nil)

	first, err := Decide(req, cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Decide(req, cfg, gate, false)
		if err != nil {
			t.Fatalf("Decide failed on repeat: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("non-deterministic decision: %+v vs %+v", first, again)
		}
	}
}

func TestDecideCodeIntentSkipsDisabled(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)

	// "code" chain starts with the disabled anthropic provider; the first
	// enabled candidate is openrouter/deep. Priority falls back to default.
	dec, err := Decide(request("there is a stack trace in the build", nil), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Intent != types.IntentCode {
		t.Errorf("intent = %s, want code", dec.Intent)
	}
	if dec.Priority != types.PriorityNormal {
		t.Errorf("priority = %s, want normal default", dec.Priority)
	}
	if dec.Provider != "openrouter" || dec.Tier != "deep" {
		t.Errorf("resolved %s/%s, want openrouter/deep", dec.Provider, dec.Tier)
	}
	if dec.Model != "anthropic/claude-sonnet" {
		t.Errorf("model = %s, want tier default", dec.Model)
	}
	if dec.Forced {
		t.Error("no override was requested")
	}
}

func TestDecideMetadataIntentWins(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)

	dec, err := Decide(request("please refactor this", &types.Metadata{Intent: "chat", Priority: "high"}), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Intent != types.IntentChat {
		t.Errorf("intent = %s, metadata should win over keywords", dec.Intent)
	}
	if dec.Priority != types.PriorityHigh {
		t.Errorf("priority = %s, want high", dec.Priority)
	}
	if dec.Provider != "lmstudio" {
		t.Errorf("provider = %s, want lmstudio (first chat candidate)", dec.Provider)
	}
}

func TestDecideVisionHeuristic(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)

	dec, err := Decide(request("what is in this screenshot?", nil), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Intent != types.IntentVision {
		t.Errorf("intent = %s, want vision", dec.Intent)
	}
}

func TestDecideForcedRouteAndModel(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)

	dec, err := Decide(request("refactor this", &types.Metadata{Route: "openrouter", Model: "mistral-large"}), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Provider != "openrouter" {
		t.Errorf("provider = %s, want forced openrouter", dec.Provider)
	}
	if dec.Model != "mistral-large" {
		t.Errorf("model = %s, want forced mistral-large", dec.Model)
	}
	if !dec.Forced {
		t.Error("decision should be tagged forced")
	}
	if dec.ForcedProvider != "openrouter" || dec.ForcedModel != "mistral-large" {
		t.Errorf("forced fields not recorded: %+v", dec)
	}
}

func TestDecideOverridePolicyDenied(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Overrides.AllowRouteOverride = false
	cfg.Routing.Overrides.AllowModelOverride = false
	gate := budget.NewManager(cfg)

	dec, err := Decide(request("hello there", &types.Metadata{Route: "anthropic", Model: "claude-opus"}), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Forced {
		t.Error("overrides are policy-denied, decision must not be forced")
	}
	if dec.Provider != "lmstudio" {
		t.Errorf("provider = %s, want chain primary", dec.Provider)
	}
}

func TestDecideForceDifferentProvider(t *testing.T) {
	cfg := testConfig()
	gate := budget.NewManager(cfg)
	req := request("hello", nil)

	primary, err := Decide(req, cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	alternate, err := Decide(req, cfg, gate, true)
	if err != nil {
		t.Fatalf("re-route failed: %v", err)
	}
	if alternate.Provider == primary.Provider {
		t.Errorf("re-route returned the same provider %s", alternate.Provider)
	}
	if alternate.Provider != "openrouter" {
		t.Errorf("alternate = %s, want openrouter", alternate.Provider)
	}
}

func TestDecideNoChainForIntent(t *testing.T) {
	cfg := testConfig()
	delete(cfg.Routing.FallbackChain, "chat")
	gate := budget.NewManager(cfg)

	_, err := Decide(request("hello", nil), cfg, gate, false)
	if !errors.Is(err, ErrNoViableRoute) {
		t.Fatalf("err = %v, want ErrNoViableRoute", err)
	}
}

func TestDecideAllCandidatesDisabled(t *testing.T) {
	cfg := testConfig()
	disabled := false
	for name, pc := range cfg.Providers {
		pc.Enabled = &disabled
		cfg.Providers[name] = pc
	}
	gate := budget.NewManager(cfg)

	_, err := Decide(request("hello", nil), cfg, gate, false)
	if !errors.Is(err, ErrNoViableRoute) {
		t.Fatalf("err = %v, want ErrNoViableRoute", err)
	}
}

func TestDecideSkipsTierWithoutModel(t *testing.T) {
	cfg := testConfig()
	// Remove the lmstudio fast tier model; the chat chain should fall
	// through to openrouter instead of returning an empty model.
	pc := cfg.Providers["lmstudio"]
	pc.Tiers = map[string]config.TierConfig{}
	cfg.Providers["lmstudio"] = pc
	gate := budget.NewManager(cfg)

	dec, err := Decide(request("hello", nil), cfg, gate, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if dec.Model == "" {
		t.Fatal("decision model must never be empty")
	}
	if dec.Provider != "openrouter" {
		t.Errorf("provider = %s, want openrouter", dec.Provider)
	}
}
