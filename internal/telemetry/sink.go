package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openclaw/claw-router/internal/config"
)

// RoutingCall is one completed model invocation reported to the
// command center.
type RoutingCall struct {
	Provider    string  `json:"provider"`
	ModelName   string  `json:"model_name"`
	ActualModel string  `json:"actual_model"`
	AgentName   string  `json:"agent_name"`
	TokensIn    int     `json:"tokens_in"`
	TokensOut   int     `json:"tokens_out"`
	CostUSD     float64 `json:"cost_usd"`
	LatencyMs   int64   `json:"latency_ms"`
}

// Sink delivers routing calls to the command center, falling back to
// the local SQLite ledger when the POST fails. Record never propagates
// an error to the request path.
type Sink struct {
	url    string
	agent  string
	client *http.Client
	store  *Store
	logger *slog.Logger
}

// NewSink builds a sink from config. The store may be nil, in which
// case failed deliveries are only logged.
func NewSink(cfg config.TelemetryConfig, store *Store, logger *slog.Logger) *Sink {
	return &Sink{
		url:    cfg.CommandCenterURL,
		agent:  cfg.AgentName,
		client: &http.Client{Timeout: 2 * time.Second},
		store:  store,
		logger: logger,
	}
}

// NormalizeProvider maps local inference engines onto the single
// "local" provider name the command center accounts under.
func NormalizeProvider(provider string) string {
	switch provider {
	case "lmstudio", "ollama":
		return "local"
	default:
		return provider
	}
}

// Record reports one routing call. Delivery is best effort and any
// failure is swallowed after the fallback write.
func (s *Sink) Record(ctx context.Context, call RoutingCall) {
	call.Provider = NormalizeProvider(call.Provider)
	if call.AgentName == "" {
		call.AgentName = s.agent
	}

	if err := s.post(ctx, call); err == nil {
		return
	} else if s.logger != nil {
		s.logger.Debug("command center unreachable, using local ledger",
			"url", s.url, "error", err)
	}

	if s.store == nil {
		return
	}
	if err := s.store.Insert(ctx, call); err != nil && s.logger != nil {
		s.logger.Warn("telemetry fallback write failed",
			"provider", call.Provider, "error", err)
	}
}

func (s *Sink) post(ctx context.Context, call RoutingCall) error {
	if s.url == "" {
		return fmt.Errorf("no command center URL configured")
	}

	body, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshal routing call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post routing call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("command center returned HTTP %d", resp.StatusCode)
	}
	return nil
}
