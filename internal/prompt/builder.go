// Package prompt assembles the message list sent upstream: pinned context
// injection, token estimation, and oldest-first trimming down to the
// priority's hard cap. System-role messages are protected and never trimmed.
package prompt

import (
	"log/slog"
	"os"

	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/obslog"
	"github.com/openclaw/claw-router/internal/types"
)

// Info records what the builder did to one request's context.
type Info struct {
	Method                      string `json:"method"`
	EstimatedPromptTokensBefore int    `json:"estimated_prompt_tokens_before"`
	EstimatedPromptTokens       int    `json:"estimated_prompt_tokens"`
	TargetInputTokens           int    `json:"target_input_tokens"`
	HardMaxInputTokens          int    `json:"hard_max_input_tokens"`
	PinnedIncluded              bool   `json:"pinned_included"`
	TrimmedMessages             int    `json:"trimmed_messages"`
}

type Builder struct {
	estimator  Estimator
	summarizer Summarizer
	logs       *obslog.Logs
}

// NewBuilder wires the estimation and summarization strategies. Nil
// arguments select the heuristic estimator and the no-op summarizer.
func NewBuilder(estimator Estimator, summarizer Summarizer, logs *obslog.Logs) *Builder {
	if estimator == nil {
		estimator = HeuristicEstimator{}
	}
	if summarizer == nil {
		summarizer = KeepSummarizer{}
	}
	return &Builder{estimator: estimator, summarizer: summarizer, logs: logs}
}

// Build returns the trimmed message list and its bookkeeping. It never
// fails: on an internal panic it degrades to the original messages with a
// best-effort Info.
func (b *Builder) Build(req *types.ChatRequest, cfg *config.Config) (messages []types.Message, info *Info) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("context build panicked, returning messages unmodified", "panic", r)
			messages = req.Messages
			info = &Info{
				Method:                      "keep",
				EstimatedPromptTokensBefore: b.estimator.Estimate(req.Messages),
				EstimatedPromptTokens:       b.estimator.Estimate(req.Messages),
			}
		}
	}()

	priority := resolvePriority(req.Metadata, cfg)
	limits := cfg.Tokens.Limits(string(priority))

	messages = make([]types.Message, len(req.Messages))
	copy(messages, req.Messages)

	pins := loadPins(cfg.Memory.PinsFile)
	if len(pins) > 0 {
		pinned := "Pinned context:\n"
		for i, p := range pins {
			if i > 0 {
				pinned += "\n"
			}
			pinned += p
		}
		messages = append([]types.Message{{Role: "system", Content: pinned}}, messages...)
	}

	before := b.estimator.Estimate(messages)

	trimmed := 0
	for b.estimator.Estimate(messages) > limits.HardMaxInputTokens {
		idx := oldestUnprotected(messages)
		if idx < 0 {
			// Only protected messages remain; fail open rather than
			// destroying pinned context.
			break
		}
		messages = append(messages[:idx], messages[idx+1:]...)
		trimmed++
	}

	if cfg.Memory.SummariesDir != "" {
		// The summarizer seam persists dated notes here once it does real work.
		_ = os.MkdirAll(cfg.Memory.SummariesDir, 0o755)
	}
	messages, method := b.summarizer.Summarize(messages, limits, priority)

	info = &Info{
		Method:                      method,
		EstimatedPromptTokensBefore: before,
		EstimatedPromptTokens:       b.estimator.Estimate(messages),
		TargetInputTokens:           limits.TargetInputTokens,
		HardMaxInputTokens:          limits.HardMaxInputTokens,
		PinnedIncluded:              len(pins) > 0,
		TrimmedMessages:             trimmed,
	}

	if b.logs != nil {
		b.logs.WriteContext(info)
	}
	return messages, info
}

// oldestUnprotected returns the index of the oldest message that may be
// trimmed, or -1 when every remaining message is protected.
func oldestUnprotected(messages []types.Message) int {
	for i, m := range messages {
		if m.Role != "system" {
			return i
		}
	}
	return -1
}

func resolvePriority(meta *types.Metadata, cfg *config.Config) types.Priority {
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
