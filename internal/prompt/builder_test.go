package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/claw-router/internal/config"
	"github.com/openclaw/claw-router/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Memory.PinsFile = filepath.Join(dir, "pins.md")
	cfg.Memory.SummariesDir = filepath.Join(dir, "summaries")
	return cfg
}

func msg(role string, n int) types.Message {
	return types.Message{Role: role, Content: strings.Repeat("x", n)}
}

func TestBuildUnderBudgetUntouched(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(nil, nil, nil)

	req := &types.ChatRequest{Messages: []types.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	}}

	out, info := b.Build(req, cfg)
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2", len(out))
	}
	if info.TrimmedMessages != 0 {
		t.Errorf("trimmed %d, want 0", info.TrimmedMessages)
	}
	if info.Method != "keep" {
		t.Errorf("method = %s, want keep", info.Method)
	}
	if info.PinnedIncluded {
		t.Error("no pins file exists, pinned should be false")
	}
}

func TestBuildTrimsOldestFirst(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(nil, nil, nil)

	// ~12k estimated tokens against a 10k hard cap (normal priority):
	// three user messages of 16000 chars each, ~4000 tokens apiece.
	req := &types.ChatRequest{Messages: []types.Message{
		{Role: "system", Content: "keep me"},
		msg("user", 16000),
		msg("assistant", 16000),
		{Role: "user", Content: "latest question"},
	}}

	out, info := b.Build(req, cfg)

	if info.EstimatedPromptTokens > info.HardMaxInputTokens {
		t.Errorf("estimate %d exceeds hard cap %d", info.EstimatedPromptTokens, info.HardMaxInputTokens)
	}
	if out[0].Role != "system" || out[0].Content != "keep me" {
		t.Error("protected system message was trimmed")
	}
	last := out[len(out)-1]
	if last.Content != "latest question" {
		t.Error("most recent message should survive trimming")
	}
	if info.TrimmedMessages == 0 {
		t.Error("expected at least one trimmed message")
	}
	if info.EstimatedPromptTokensBefore <= info.EstimatedPromptTokens {
		t.Errorf("before %d should exceed after %d",
			info.EstimatedPromptTokensBefore, info.EstimatedPromptTokens)
	}
}

func TestBuildIdempotent(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(nil, nil, nil)

	req := &types.ChatRequest{Messages: []types.Message{
		{Role: "system", Content: "keep me"},
		msg("user", 16000),
		msg("assistant", 16000),
		msg("user", 16000),
	}}

	once, _ := b.Build(req, cfg)
	twice, info := b.Build(&types.ChatRequest{Messages: once}, cfg)

	if len(twice) != len(once) {
		t.Errorf("second pass removed messages: %d -> %d", len(once), len(twice))
	}
	if info.TrimmedMessages != 0 {
		t.Errorf("second pass trimmed %d messages, want 0", info.TrimmedMessages)
	}
}

func TestBuildProtectedOnlyFailsOpen(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(nil, nil, nil)

	// A single giant system message cannot be trimmed; the builder must
	// stop rather than destroy protected context.
	req := &types.ChatRequest{Messages: []types.Message{
		msg("system", 100000),
	}}

	out, info := b.Build(req, cfg)
	if len(out) != 1 {
		t.Fatalf("protected message removed, got %d messages", len(out))
	}
	if info.EstimatedPromptTokens <= info.HardMaxInputTokens {
		t.Error("expected estimate to remain above the hard cap")
	}
}

func TestBuildInjectsPins(t *testing.T) {
	cfg := testConfig(t)
	pins := "the user's name is Randal\n\nprefers metric units\n"
	if err := os.WriteFile(cfg.Memory.PinsFile, []byte(pins), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(nil, nil, nil)

	req := &types.ChatRequest{Messages: []types.Message{
		{Role: "user", Content: "hello"},
	}}

	out, info := b.Build(req, cfg)
	if !info.PinnedIncluded {
		t.Fatal("pinned flag not set")
	}
	if out[0].Role != "system" || !strings.HasPrefix(out[0].Content, "Pinned context:\n") {
		t.Fatalf("first message should be the synthetic pin message, got %+v", out[0])
	}
	if !strings.Contains(out[0].Content, "prefers metric units") {
		t.Error("pin line missing from synthetic message")
	}
	if strings.Contains(out[0].Content, "\n\n") {
		t.Error("blank pin lines should be dropped")
	}
}

func TestBuildPinnedMessageSurvivesTrim(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Memory.PinsFile, []byte("important fact"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(nil, nil, nil)

	req := &types.ChatRequest{Messages: []types.Message{
		msg("user", 16000),
		msg("assistant", 16000),
		msg("user", 16000),
	}}

	out, _ := b.Build(req, cfg)
	if out[0].Role != "system" || !strings.Contains(out[0].Content, "important fact") {
		t.Error("pinned system message must survive trimming")
	}
}

func TestHeuristicEstimator(t *testing.T) {
	est := HeuristicEstimator{}

	if got := est.Estimate(nil); got != 1 {
		t.Errorf("empty list estimate = %d, want 1", got)
	}

	// Two messages of 10 chars joined by a newline: 21/4 = 5.
	msgs := []types.Message{
		{Role: "user", Content: "aaaaaaaaaa"},
		{Role: "assistant", Content: "bbbbbbbbbb"},
	}
	if got := est.Estimate(msgs); got != 5 {
		t.Errorf("estimate = %d, want 5", got)
	}
}

func TestBuildPriorityBudgets(t *testing.T) {
	cfg := testConfig(t)
	b := NewBuilder(nil, nil, nil)

	req := &types.ChatRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
		Metadata: &types.Metadata{Priority: "high"},
	}
	_, info := b.Build(req, cfg)

	want := cfg.Tokens.Limits("high")
	if info.HardMaxInputTokens != want.HardMaxInputTokens {
		t.Errorf("hard max = %d, want %d", info.HardMaxInputTokens, want.HardMaxInputTokens)
	}
	if info.TargetInputTokens != want.TargetInputTokens {
		t.Errorf("target = %d, want %d", info.TargetInputTokens, want.TargetInputTokens)
	}
}
