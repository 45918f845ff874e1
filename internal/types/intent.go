package types

// Intent is a coarse classification of a request's purpose, used to select
// a fallback chain.
type Intent string

const (
	IntentChat      Intent = "chat"
	IntentCode      Intent = "code"
	IntentReasoning Intent = "reasoning"
	IntentVision    Intent = "vision"
	IntentVerify    Intent = "verify"
)

func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentChat, IntentCode, IntentReasoning, IntentVision, IntentVerify:
		return Intent(s), true
	default:
		return "", false
	}
}

// Priority selects the token budget pair applied when building context.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), true
	default:
		return "", false
	}
}
