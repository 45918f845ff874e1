// Package dispatch performs the upstream provider calls for resolved
// routes. The variant set is closed: aggregator (remote, paid), local
// (self-hosted, free), and placeholder (not yet integrated). Which variant
// serves a provider is fixed at startup from configuration.
package dispatch

import (
	"context"
	"errors"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/types"
)

var (
	// ErrProviderUnavailable means the provider's circuit is open.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNoModelLoaded means a local backend has nothing loaded to serve.
	ErrNoModelLoaded = errors.New("no model loaded")
)

// Dispatcher performs one upstream call for a resolved route. The
// reservation is committed by the dispatcher once the call has actually
// gone out; callers release it when Dispatch returns an error.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, req *types.ChatRequest, messages []types.Message, decision *router.RouteDecision, res *budget.Reservation, info *prompt.Info) (*types.ChatResponse, error)
}

// chatPayload is the OpenAI-style request body shared by all HTTP variants.
type chatPayload struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

func buildPayload(req *types.ChatRequest, messages []types.Message, model string) chatPayload {
	return chatPayload{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// usageOrEstimate extracts token counts from an upstream response, falling
// back to the context builder's estimate when usage is absent.
func usageOrEstimate(u types.Usage, info *prompt.Info) (promptTokens, completionTokens int) {
	promptTokens = u.PromptTokens
	if promptTokens == 0 && info != nil {
		promptTokens = info.EstimatedPromptTokens
	}
	return promptTokens, u.CompletionTokens
}
