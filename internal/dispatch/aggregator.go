package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/types"
)

const defaultAggregatorAttempts = 3

// Aggregator calls a hosted multi-model API with an OpenAI-style payload.
// Transient failures (connection errors, 5xx, 429) are retried with capped
// exponential backoff; other 4xx responses are terminal.
type Aggregator struct {
	name     string
	cfg      config.ProviderConfig
	client   *http.Client
	attempts int

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(time.Duration)
}

func NewAggregator(name string, cfg config.ProviderConfig, client *http.Client) *Aggregator {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = defaultAggregatorAttempts
	}
	return &Aggregator{
		name:     name,
		cfg:      cfg,
		client:   client,
		attempts: attempts,
		sleep:    time.Sleep,
	}
}

func (a *Aggregator) Name() string { return a.name }

func (a *Aggregator) Dispatch(ctx context.Context, req *types.ChatRequest, messages []types.Message, decision *router.RouteDecision, res *budget.Reservation, info *prompt.Info) (*types.ChatResponse, error) {
	apiKey := os.Getenv(a.cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s is not set in the environment", a.name, a.cfg.APIKeyEnv)
	}

	body, err := json.Marshal(buildPayload(req, messages, decision.Model))
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", a.name, err)
	}
	url := a.cfg.BaseURL + "/chat/completions"

	var lastErr error
	for attempt := 0; attempt < a.attempts; attempt++ {
		if attempt > 0 {
			a.sleep(backoffDelay(attempt - 1))
		}

		resp, err := a.send(ctx, url, apiKey, body)
		if err != nil {
			lastErr = err
			slog.Warn("aggregator request failed",
				"provider", a.name, "attempt", attempt+1, "error", err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read %s response: %w", a.name, readErr)
			continue
		}

		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("%s returned HTTP %d", a.name, resp.StatusCode)
			slog.Warn("aggregator returned error status",
				"provider", a.name, "attempt", attempt+1,
				"status", resp.StatusCode, "body", truncate(string(respBody), 2000))
			// 4xx other than 429 will not get better on retry.
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			continue
		}

		var out types.ChatResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			lastErr = fmt.Errorf("decode %s response: %w", a.name, err)
			continue
		}

		promptTokens, completionTokens := usageOrEstimate(out.Usage, info)
		res.Commit(promptTokens, completionTokens)
		return &out, nil
	}

	return nil, fmt.Errorf("%s: retries exhausted: %w", a.name, lastErr)
}

func (a *Aggregator) send(ctx context.Context, url, apiKey string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	return a.client.Do(httpReq)
}

// backoffDelay caps exponential backoff at five seconds.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
