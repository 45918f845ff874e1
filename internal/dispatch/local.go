package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/types"
)

const defaultDiscoveryTimeout = 4 * time.Second

// Local calls a self-hosted OpenAI-compatible backend. When the routed
// model is symbolic it first discovers the currently loaded model from the
// backend's model-listing endpoint. No retry loop: local backends do not
// rate-limit, so a single longer timeout suffices. Spend is recorded at
// zero cost.
type Local struct {
	name      string
	cfg       config.ProviderConfig
	client    *http.Client
	discovery *http.Client
}

func NewLocal(name string, cfg config.ProviderConfig, client *http.Client) *Local {
	dt := cfg.DiscoveryTimeout
	if dt <= 0 {
		dt = defaultDiscoveryTimeout
	}
	return &Local{
		name:      name,
		cfg:       cfg,
		client:    client,
		discovery: &http.Client{Timeout: dt},
	}
}

func (l *Local) Name() string { return l.name }

func (l *Local) Dispatch(ctx context.Context, req *types.ChatRequest, messages []types.Message, decision *router.RouteDecision, res *budget.Reservation, info *prompt.Info) (*types.ChatResponse, error) {
	model := decision.Model
	if l.isSymbolic(model) {
		discovered, err := l.loadedModel(ctx)
		if err != nil {
			return nil, err
		}
		model = discovered
	}

	body, err := json.Marshal(buildPayload(req, messages, model))
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", l.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", l.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", l.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", l.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d", l.name, resp.StatusCode)
	}

	var out types.ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", l.name, err)
	}

	res.CommitZero()
	return &out, nil
}

// isSymbolic reports whether the routed model asks for whatever the
// backend currently has loaded.
func (l *Local) isSymbolic(model string) bool {
	switch model {
	case "", "auto", "local", l.name:
		return true
	default:
		return false
	}
}

type modelList struct {
	Data []struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"data"`
}

// loadedModel returns the first currently-loaded model ID, failing fast
// when the backend has nothing loaded.
func (l *Local) loadedModel(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.ModelsURL, nil)
	if err != nil {
		return "", fmt.Errorf("create %s discovery request: %w", l.name, err)
	}
	resp, err := l.discovery.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s model discovery: %w", l.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s model discovery returned HTTP %d", l.name, resp.StatusCode)
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("decode %s model list: %w", l.name, err)
	}
	for _, m := range list.Data {
		if m.State == "loaded" && m.ID != "" {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("%s: %w", l.name, ErrNoModelLoaded)
}
