// Package obslog writes the append-only plain-text logs tailed by the
// operator dashboard: one record per routing decision, per internal error,
// and per context-trimming decision. The router never reads these back
// except to serve the dashboard's tail endpoint.
package obslog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/claw-router/internal/config"
)

type Kind string

const (
	KindRequests Kind = "requests"
	KindErrors   Kind = "errors"
	KindContext  Kind = "context"
)

// ParseKind validates a dashboard-supplied log type.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindRequests, KindErrors, KindContext:
		return Kind(s), true
	default:
		return "", false
	}
}

// Logs owns the three append-only log files. Writes are serialized and
// never propagate failures to callers.
type Logs struct {
	mu    sync.Mutex
	paths map[Kind]string
}

func New(cfg config.LoggingConfig) *Logs {
	return &Logs{
		paths: map[Kind]string{
			KindRequests: cfg.RequestLog,
			KindErrors:   cfg.ErrorLog,
			KindContext:  cfg.ContextLog,
		},
	}
}

// RequestRecord is one completed routing decision.
type RequestRecord struct {
	Timestamp         string `json:"timestamp"`
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	Tier              string `json:"tier"`
	Intent            string `json:"intent"`
	Priority          string `json:"priority"`
	ForcedRoute       bool   `json:"forced_route"`
	ForcedProvider    string `json:"forced_provider,omitempty"`
	ForcedModel       string `json:"forced_model,omitempty"`
	EstimatedTokensIn int    `json:"estimated_tokens_in"`
	Reason            string `json:"reason"`
}

func (l *Logs) WriteRequest(rec RequestRecord) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	l.appendJSON(KindRequests, rec)
}

func (l *Logs) WriteError(err error, extra map[string]any) {
	rec := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"error":     err.Error(),
	}
	for k, v := range extra {
		rec[k] = v
	}
	l.appendJSON(KindErrors, rec)
}

func (l *Logs) WriteContext(info any) {
	l.appendJSON(KindContext, info)
}

func (l *Logs) appendJSON(kind Kind, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("obslog marshal failed", "kind", string(kind), "error", err)
		return
	}
	l.appendLine(kind, data)
}

func (l *Logs) appendLine(kind Kind, line []byte) {
	path, ok := l.paths[kind]
	if !ok || path == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Warn("obslog mkdir failed", "path", path, "error", err)
			return
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("obslog open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("obslog write failed", "path", path, "error", err)
	}
}

// Tail returns the last limit lines of the given log. A missing file is an
// empty tail, not an error.
func (l *Logs) Tail(kind Kind, limit int) ([]string, error) {
	path, ok := l.paths[kind]
	if !ok || path == "" {
		return nil, fmt.Errorf("unknown log kind %q", kind)
	}

	l.mu.Lock()
	data, err := os.ReadFile(path)
	l.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
