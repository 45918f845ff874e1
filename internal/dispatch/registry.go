package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/prompt"
	"github.com/openclaw/claw-router/internal/router"
	"github.com/openclaw/claw-router/internal/types"
)

// Execution records where the most recent dispatched call went.
type Execution struct {
	Target    string `json:"target"`
	Host      string `json:"host"`
	Mode      string `json:"mode"`
	Timestamp string `json:"timestamp"`
}

type providerMeta struct {
	mode      string
	host      string
	modelsURL string
}

// Registry maps provider names to their dispatch variant, built once at
// startup from configuration. It wraps every call with circuit-breaker
// accounting and last-execution bookkeeping.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[string]Dispatcher
	meta        map[string]providerMeta
	health      *HealthTracker
	lastExec    *Execution
}

func NewRegistry(health *HealthTracker) *Registry {
	if health == nil {
		health = NewHealthTracker(0, 0)
	}
	return &Registry{
		dispatchers: make(map[string]Dispatcher),
		meta:        make(map[string]providerMeta),
		health:      health,
	}
}

func (r *Registry) Register(name string, d Dispatcher, meta providerMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers[name] = d
	r.meta[name] = meta
}

func (r *Registry) Get(name string) (Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dispatchers[name]
	return d, ok
}

func (r *Registry) Health() *HealthTracker { return r.health }

// BuildFromConfig builds the dispatcher set for all configured providers.
// Unknown types fall back to the placeholder variant so the wiring can be
// exercised before a real integration exists.
func BuildFromConfig(cfg *config.Config) *Registry {
	registry := NewRegistry(NewHealthTracker(0, 0))
	for name, pc := range cfg.Providers {
		timeout := pc.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client := &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var (
			d    Dispatcher
			mode string
		)
		switch pc.Type {
		case "aggregator":
			d = NewAggregator(name, pc, client)
			mode = "remote"
		case "local":
			d = NewLocal(name, pc, client)
			mode = "local"
		default:
			d = NewPlaceholder(name)
			mode = "stub"
		}
		registry.Register(name, d, providerMeta{
			mode:      mode,
			host:      pc.BaseURL,
			modelsURL: pc.ModelsURL,
		})
	}
	return registry
}

// Dispatch runs the provider call for a resolved route, with breaker
// accounting around it. The caller is responsible for releasing the
// reservation when an error comes back.
func (r *Registry) Dispatch(ctx context.Context, req *types.ChatRequest, messages []types.Message, decision *router.RouteDecision, res *budget.Reservation, info *prompt.Info) (*types.ChatResponse, error) {
	d, ok := r.Get(decision.Provider)
	if !ok {
		return nil, fmt.Errorf("no dispatcher for provider %q", decision.Provider)
	}
	if !r.health.Allow(decision.Provider) {
		return nil, fmt.Errorf("provider %s: %w", decision.Provider, ErrProviderUnavailable)
	}

	resp, err := d.Dispatch(ctx, req, messages, decision, res, info)
	if err != nil {
		r.health.RecordFailure(decision.Provider)
		return nil, err
	}
	r.health.RecordSuccess(decision.Provider)
	r.recordExecution(decision.Provider)
	return resp, nil
}

func (r *Registry) recordExecution(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta := r.meta[provider]
	r.lastExec = &Execution{
		Target:    provider,
		Host:      meta.host,
		Mode:      meta.mode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// LastExecution returns the most recent dispatch record, or nil before the
// first call.
func (r *Registry) LastExecution() *Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastExec
}

// ProbeLocals runs a read-only reachability probe against every local
// backend that exposes a model-listing endpoint.
func (r *Registry) ProbeLocals(ctx context.Context) map[string]ProbeResult {
	r.mu.RLock()
	targets := make(map[string]string)
	for name, meta := range r.meta {
		if meta.mode == "local" && meta.modelsURL != "" {
			targets[name] = meta.modelsURL
		}
	}
	r.mu.RUnlock()

	prober := NewProber()
	out := make(map[string]ProbeResult, len(targets))
	for name, url := range targets {
		out[name] = prober.Probe(ctx, url)
	}
	return out
}
