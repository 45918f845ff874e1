// Package gateway is the HTTP surface of the router: the chat completion
// orchestrator plus the health and log-tail endpoints the dashboard polls.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/dispatch"
	"github.com/openclaw/claw-router/internal/httputil"
	"github.com/openclaw/claw-router/internal/obslog"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/telemetry"
	"github.com/openclaw/claw-router/internal/types"
)

// defaultCompletionEstimate is assumed for admission when the request does
// not carry max_tokens.
const defaultCompletionEstimate = 512

// Handler holds dependencies for the router HTTP handlers.
type Handler struct {
	cfg       func() *config.Config
	budget    *budget.Manager
	registry  *dispatch.Registry
	builder   *prompt.Builder
	logs      *obslog.Logs
	metrics   *telemetry.Metrics
	sink      *telemetry.Sink
	startedAt time.Time
}

func NewHandler(cfg func() *config.Config, bm *budget.Manager, registry *dispatch.Registry, builder *prompt.Builder, logs *obslog.Logs, metrics *telemetry.Metrics, sink *telemetry.Sink) *Handler {
	return &Handler{
		cfg:       cfg,
		budget:    bm,
		registry:  registry,
		builder:   builder,
		logs:      logs,
		metrics:   metrics,
		sink:      sink,
		startedAt: time.Now(),
	}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()
	cfg := h.cfg()

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}

	decision, err := router.Decide(&req, cfg, h.budget, false)
	if err != nil {
		h.writeRouteFailure(w, reqID, err)
		return
	}

	messages, info := h.builder.Build(&req, cfg)

	completionEstimate := defaultCompletionEstimate
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		completionEstimate = *req.MaxTokens
	}

	res, ok := h.budget.Admit(decision.Provider, decision.Model, info.EstimatedPromptTokens, completionEstimate)
	if !ok {
		if h.metrics != nil {
			h.metrics.RecordBudgetRejection(decision.Provider)
		}
		slog.Info("budget rejected primary route, trying alternate provider",
			"request_id", reqID,
			"provider", decision.Provider,
			"model", decision.Model,
		)

		decision, err = router.Decide(&req, cfg, h.budget, true)
		if err != nil {
			httputil.WriteBudgetExceededError(w, reqID,
				"Provider spend cap reached and no alternate provider is available")
			return
		}
		res, ok = h.budget.Admit(decision.Provider, decision.Model, info.EstimatedPromptTokens, completionEstimate)
		if !ok {
			if h.metrics != nil {
				h.metrics.RecordBudgetRejection(decision.Provider)
			}
			httputil.WriteBudgetExceededError(w, reqID,
				"Provider spend caps reached for all viable providers")
			return
		}
		decision.Reason += ", budget re-route"
	}

	resp, err := h.registry.Dispatch(r.Context(), &req, messages, decision, res, info)
	if err != nil {
		res.Release()
		if h.logs != nil {
			h.logs.WriteError(err, map[string]any{
				"request_id": reqID,
				"provider":   decision.Provider,
				"model":      decision.Model,
			})
		}
		h.recordMetrics(decision, info, nil, receivedAt, "error")

		slog.Error("dispatch failed",
			"request_id", reqID,
			"provider", decision.Provider,
			"model", decision.Model,
			"error", err,
		)
		if errors.Is(err, dispatch.ErrProviderUnavailable) {
			httputil.WriteServiceUnavailableError(w, reqID, "Provider temporarily unavailable")
			return
		}
		httputil.WriteUpstreamError(w, reqID, "Provider request failed")
		return
	}

	duration := time.Since(receivedAt)

	if h.logs != nil {
		h.logs.WriteRequest(obslog.RequestRecord{
			Provider:          decision.Provider,
			Model:             decision.Model,
			Tier:              decision.Tier,
			Intent:            string(decision.Intent),
			Priority:          string(decision.Priority),
			ForcedRoute:       decision.Forced,
			ForcedProvider:    decision.ForcedProvider,
			ForcedModel:       decision.ForcedModel,
			EstimatedTokensIn: info.EstimatedPromptTokens,
			Reason:            decision.Reason,
		})
	}
	h.recordMetrics(decision, info, resp, receivedAt, "ok")
	h.reportCall(decision, resp, duration)

	slog.Info("request completed",
		"request_id", reqID,
		"provider", decision.Provider,
		"model", decision.Model,
		"model_served", resp.Model,
		"intent", string(decision.Intent),
		"priority", string(decision.Priority),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"trimmed_messages", info.TrimmedMessages,
		"duration_ms", duration.Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeRouteFailure(w http.ResponseWriter, reqID string, err error) {
	if h.logs != nil {
		h.logs.WriteError(err, map[string]any{"request_id": reqID})
	}
	if errors.Is(err, router.ErrNoViableRoute) {
		httputil.WriteServiceUnavailableError(w, reqID, "No provider can serve this request: "+err.Error())
		return
	}
	httputil.WriteInternalError(w, reqID, "Routing failed")
}

func (h *Handler) recordMetrics(decision *router.RouteDecision, info *prompt.Info, resp *types.ChatResponse, receivedAt time.Time, status string) {
	if h.metrics == nil {
		return
	}
	labels := telemetry.RequestLabels{
		Provider:        decision.Provider,
		Model:           decision.Model,
		Intent:          string(decision.Intent),
		Priority:        string(decision.Priority),
		Status:          status,
		DurationMs:      float64(time.Since(receivedAt).Milliseconds()),
		TrimmedMessages: info.TrimmedMessages,
	}
	if resp != nil {
		labels.PromptTokens = resp.Usage.PromptTokens
		labels.CompletionTokens = resp.Usage.CompletionTokens
		labels.CostUSD = h.callCost(decision, resp)
	}
	h.metrics.RecordRequest(labels)
}

// reportCall ships the completed call to the command center off the
// request path.
func (h *Handler) reportCall(decision *router.RouteDecision, resp *types.ChatResponse, duration time.Duration) {
	if h.sink == nil {
		return
	}
	call := telemetry.RoutingCall{
		Provider:    decision.Provider,
		ModelName:   decision.Model,
		ActualModel: resp.Model,
		TokensIn:    resp.Usage.PromptTokens,
		TokensOut:   resp.Usage.CompletionTokens,
		CostUSD:     h.callCost(decision, resp),
		LatencyMs:   duration.Milliseconds(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.sink.Record(ctx, call)
	}()
}

// callCost prefers the cost the provider itself reported and falls back to
// the rate-table estimate.
func (h *Handler) callCost(decision *router.RouteDecision, resp *types.ChatResponse) float64 {
	if resp.Usage.Cost > 0 {
		return resp.Usage.Cost
	}
	return h.budget.EstimateCost(decision.Provider, decision.Model,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
}
