package router

import (
	"github.com/openclaw/claw-router/internal/types"
)

// RouteDecision is the immutable outcome of one routing attempt. A budget
// re-route produces a second decision, never a mutation of the first.
type RouteDecision struct {
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Tier           string         `json:"tier"`
	Intent         types.Intent   `json:"intent"`
	Priority       types.Priority `json:"priority"`
	Forced         bool           `json:"forced"`
	ForcedProvider string         `json:"forced_provider,omitempty"`
	ForcedModel    string         `json:"forced_model,omitempty"`
	Reason         string         `json:"reason"`
}
