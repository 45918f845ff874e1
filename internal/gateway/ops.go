package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/claw-router/internal/budget"
	"github.com/openclaw/claw-router/internal/dispatch"
	"github.com/openclaw/claw-router/internal/httputil"
	"github.com/openclaw/claw-router/internal/obslog"
)

const (
	defaultLogTail = 50
	maxLogTail     = 200
)

type healthResponse struct {
	Status        string                          `json:"status"`
	UptimeSeconds int64                           `json:"uptime_seconds"`
	Budget        map[string]budget.ProviderSpend `json:"budget"`
	Breakers      map[string]string               `json:"breakers"`
	Probes        map[string]dispatch.ProbeResult `json:"probes"`
	LastExecution *dispatch.Execution             `json:"last_execution"`
}

// Health handles GET /health (and its /ui/health alias).
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Budget:        h.budget.Snapshot(),
		Breakers:      h.registry.Health().States(),
		Probes:        h.registry.ProbeLocals(r.Context()),
		LastExecution: h.registry.LastExecution(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type logTailResponse struct {
	Type  string   `json:"type"`
	Limit int      `json:"limit"`
	Lines []string `json:"lines"`
}

// UILogs handles GET /ui/logs?type=requests|errors|context&limit=N
func (h *Handler) UILogs(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	kind, ok := obslog.ParseKind(r.URL.Query().Get("type"))
	if !ok {
		httputil.WriteBadRequestError(w, reqID, "type must be one of: requests, errors, context")
		return
	}

	limit := defaultLogTail
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLogTail {
			httputil.WriteBadRequestError(w, reqID, "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	lines, err := h.logs.Tail(kind, limit)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Failed to read log")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logTailResponse{
		Type:  string(kind),
		Limit: limit,
		Lines: lines,
	})
}
