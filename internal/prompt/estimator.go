package prompt

import "github.com/openclaw/claw-router/internal/types"

// Estimator approximates the token count of a message list. It is a named
// strategy so a real tokenizer can replace the heuristic without touching
// trimming logic.
type Estimator interface {
	Estimate(messages []types.Message) int
}

// HeuristicEstimator divides the total text length by four. Cheap and
// deterministic; not a real tokenizer.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(messages []types.Message) int {
	total := 0
	for i, m := range messages {
		if i > 0 {
			total++ // joining newline
		}
		total += len(m.Content)
	}
	n := total / 4
	if n < 1 {
		n = 1
	}
	return n
}
