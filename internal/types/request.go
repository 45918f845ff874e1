package types

// ChatRequest is the canonical inbound chat-completion request. The model
// field may be symbolic (e.g. "auto"); the provider and concrete model are
// chosen by the routing engine, not the caller.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata carries optional routing hints. Any field may be empty; absent
// values are inferred or defaulted downstream.
type Metadata struct {
	Intent   string `json:"intent,omitempty"`
	Priority string `json:"priority,omitempty"`
	Route    string `json:"route,omitempty"`
	Model    string `json:"model,omitempty"`
}

// LastUserMessage returns the most recent user-authored message, or nil.
func (r *ChatRequest) LastUserMessage() *Message {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return &r.Messages[i]
		}
	}
	return nil
}
