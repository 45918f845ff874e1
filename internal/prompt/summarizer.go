package prompt

import (
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/types"
)

// Summarizer is the seam where older non-protected content would be
// compressed into a single system message once the estimate exceeds the
// target budget, with the summary persisted to a dated note file.
type Summarizer interface {
	// Summarize returns the (possibly compressed) message list and the
	// method label recorded in the context log.
	Summarize(messages []types.Message, limits config.TokenLimits, priority types.Priority) ([]types.Message, string)
}

// KeepSummarizer performs no compression and reports "keep". It exists so
// the decision is logged even while no real summarizer is plugged in.
type KeepSummarizer struct{}

func (KeepSummarizer) Summarize(messages []types.Message, _ config.TokenLimits, _ types.Priority) ([]types.Message, string) {
	return messages, "keep"
}
