package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/types"
)

// Placeholder serves providers that are configured but not yet integrated.
// It returns a synthetic response and still settles the reservation so the
// budget ledger and telemetry stay consistent before a real integration
// exists.
type Placeholder struct {
	name string
}

func NewPlaceholder(name string) *Placeholder {
	return &Placeholder{name: name}
}

func (p *Placeholder) Name() string { return p.name }

func (p *Placeholder) Dispatch(_ context.Context, _ *types.ChatRequest, _ []types.Message, decision *router.RouteDecision, res *budget.Reservation, info *prompt.Info) (*types.ChatResponse, error) {
	now := time.Now().Unix()

	promptTokens := 0
	if info != nil {
		promptTokens = info.EstimatedPromptTokens
	}
	res.Commit(promptTokens, 0)

	return &types.ChatResponse{
		ID:      fmt.Sprintf("chatcmpl-local-%d", now),
		Object:  "chat.completion",
		Created: now,
		Model:   decision.Model,
		Choices: []types.Choice{{
			Index: 0,
			Message: types.Message{
				Role:    "assistant",
				Content: "This is a stubbed response from the router (no upstream call yet).",
			},
			FinishReason: "stop",
		}},
		Usage: types.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: 0,
			TotalTokens:      promptTokens,
		},
	}, nil
}
