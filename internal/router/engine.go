package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/types"
)

// ErrNoViableRoute is returned when an intent has no configured chain or
// every candidate in it is disabled or has no default model.
var ErrNoViableRoute = errors.New("no viable route")

// BudgetGate answers whether a provider is administratively enabled. The
// budget manager satisfies this.
type BudgetGate interface {
	Enabled(provider string) bool
}

// intentScanOrder fixes the order keyword lists are consulted so that
// detection is deterministic regardless of config map iteration.
var intentScanOrder = []types.Intent{
	types.IntentCode,
	types.IntentReasoning,
	types.IntentVision,
	types.IntentVerify,
	types.IntentChat,
}

// Decide resolves a request to a (provider, model, tier) candidate.
//
// Resolution order: intent (metadata, else keyword scan of the latest user
// message, else a vision heuristic, else chat), priority (metadata else
// configured default), overrides (caller-forced provider rewrites the whole
// chain; caller-forced model replaces the tier default), then the first
// chain candidate whose provider is enabled and whose model is non-empty.
// When forceDifferentProvider is set, every candidate sharing the chain's
// first provider is removed before walking, so a budget re-route can never
// land on the provider that was just rejected.
//
// Given identical config and request fields the result is identical.
func Decide(req *types.ChatRequest, cfg *config.Config, gate BudgetGate, forceDifferentProvider bool) (*RouteDecision, error) {
	meta := req.Metadata

	intent := detectIntent(req, cfg)
	if meta != nil {
		if v, ok := types.ParseIntent(meta.Intent); ok {
			intent = v
		}
	}

	priority := normalizePriority(meta, cfg)

	var (
		forcedProvider string
		forcedModel    string
		forced         bool
	)
	if meta != nil {
		if meta.Route != "" && cfg.Routing.Overrides.AllowRouteOverride {
			forcedProvider = meta.Route
			forced = true
		}
		if meta.Model != "" && cfg.Routing.Overrides.AllowModelOverride {
			forcedModel = meta.Model
			forced = true
		}
	}

	chain := cfg.Routing.FallbackChain[string(intent)]
	if forcedProvider != "" {
		rewritten := make([]config.ChainLink, len(chain))
		for i, link := range chain {
			rewritten[i] = config.ChainLink{Provider: forcedProvider, Tier: link.Tier}
		}
		chain = rewritten
	}

	if forceDifferentProvider && len(chain) > 0 {
		primary := chain[0].Provider
		var kept []config.ChainLink
		for _, link := range chain {
			if link.Provider != primary {
				kept = append(kept, link)
			}
		}
		chain = kept
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("intent %q: %w", intent, ErrNoViableRoute)
	}

	for _, link := range chain {
		model := forcedModel
		if model == "" {
			model = cfg.Providers[link.Provider].Tiers[link.Tier].DefaultModel
		}
		if model == "" {
			continue
		}
		if !gate.Enabled(link.Provider) {
			continue
		}

		reason := fmt.Sprintf("intent=%s, priority=%s, tier=%s", intent, priority, link.Tier)
		if forced {
			reason += ", forced override"
		}

		slog.Debug("route decision",
			"provider", link.Provider,
			"model", model,
			"tier", link.Tier,
			"intent", string(intent),
			"priority", string(priority),
			"forced", forced,
		)

		return &RouteDecision{
			Provider:       link.Provider,
			Model:          model,
			Tier:           link.Tier,
			Intent:         intent,
			Priority:       priority,
			Forced:         forced,
			ForcedProvider: forcedProvider,
			ForcedModel:    forcedModel,
			Reason:         reason,
		}, nil
	}

	return nil, fmt.Errorf("intent %q: chain exhausted: %w", intent, ErrNoViableRoute)
}

// detectIntent scans the most recent user message against the configured
// keyword lists, then falls back to an image/vision heuristic, then chat.
func detectIntent(req *types.ChatRequest, cfg *config.Config) types.Intent {
	last := req.LastUserMessage()
	if last == nil {
		return types.IntentChat
	}

	content := strings.ToLower(last.Content)
	for _, intent := range intentScanOrder {
		for _, kw := range cfg.Routing.IntentKeywords[string(intent)] {
			if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				return intent
			}
		}
	}

	for _, kw := range []string{"image", "screenshot", "vision"} {
		if strings.Contains(content, kw) {
			return types.IntentVision
		}
	}

	return types.IntentChat
}

func normalizePriority(meta *types.Metadata, cfg *config.Config) types.Priority {
	if meta != nil {
		if p, ok := types.ParsePriority(meta.Priority); ok {
			return p
		}
	}
	if p, ok := types.ParsePriority(cfg.Routing.DefaultPriority); ok {
		return p
	}
	return types.PriorityNormal
}
