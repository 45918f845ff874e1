package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const probeTimeout = 3 * time.Second

// ProbeResult is the outcome of one read-only backend reachability probe.
type ProbeResult struct {
	Status     string   `json:"status"`
	Models     []string `json:"models,omitempty"`
	HTTPStatus int      `json:"http_status,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type Prober struct {
	client *http.Client
}

func NewProber() *Prober {
	return &Prober{client: &http.Client{Timeout: probeTimeout}}
}

// Probe fetches a backend's model-listing endpoint and reports its model
// inventory. Read-only and bounded; never used on the dispatch path.
func (p *Prober) Probe(ctx context.Context, modelsURL string) ProbeResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return ProbeResult{Status: "down", Error: truncate(err.Error(), 120)}
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ProbeResult{Status: "down", Error: truncate(err.Error(), 120)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ProbeResult{Status: "error", HTTPStatus: resp.StatusCode}
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return ProbeResult{Status: "error", Error: truncate(err.Error(), 120)}
	}
	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return ProbeResult{Status: "up", Models: models}
}
