package config

import "time"

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Routing   RoutingConfig             `yaml:"routing"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Budget    BudgetConfig              `yaml:"budget"`
	Tokens    TokensConfig              `yaml:"tokens"`
	Memory    MemoryConfig              `yaml:"memory"`
	Logging   LoggingConfig             `yaml:"logging"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RoutingConfig struct {
	DefaultPriority string                 `yaml:"default_priority"`
	IntentKeywords  map[string][]string    `yaml:"intent_keywords"`
	FallbackChain   map[string][]ChainLink `yaml:"fallback_chain"`
	Overrides       OverridePolicy         `yaml:"overrides"`
}

// ChainLink is one (provider, tier) candidate in an intent's fallback chain.
type ChainLink struct {
	Provider string `yaml:"provider"`
	Tier     string `yaml:"tier"`
}

type OverridePolicy struct {
	AllowRouteOverride bool `yaml:"allow_route_override"`
	AllowModelOverride bool `yaml:"allow_model_override"`
}

type ProviderConfig struct {
	// Type selects the dispatch behavior: aggregator, local, or placeholder.
	Type             string                `yaml:"type"`
	Enabled          *bool                 `yaml:"enabled"`
	BaseURL          string                `yaml:"base_url"`
	ModelsURL        string                `yaml:"models_url,omitempty"`
	APIKeyEnv        string                `yaml:"api_key_env,omitempty"`
	Headers          map[string]string     `yaml:"headers,omitempty"`
	Timeout          time.Duration         `yaml:"timeout"`
	DiscoveryTimeout time.Duration         `yaml:"discovery_timeout,omitempty"`
	MaxRetries       int                   `yaml:"max_retries,omitempty"`
	Tiers            map[string]TierConfig `yaml:"tiers"`
}

// IsEnabled treats an absent enabled flag as true.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type TierConfig struct {
	DefaultModel string `yaml:"default_model"`
}

type BudgetConfig struct {
	DailyCapPerProviderUSD   float64                       `yaml:"daily_cap_per_provider_usd"`
	MonthlyCapPerProviderUSD float64                       `yaml:"monthly_cap_per_provider_usd"`
	CostPer1KTokensUSD       map[string]map[string]float64 `yaml:"cost_per_1k_tokens_usd"`
	FallbackCostPer1KUSD     float64                       `yaml:"fallback_cost_per_1k_usd"`
}

type TokensConfig struct {
	Priorities map[string]TokenLimits `yaml:"priorities"`
}

type TokenLimits struct {
	TargetInputTokens  int `yaml:"target_input_tokens"`
	HardMaxInputTokens int `yaml:"hard_max_input_tokens"`
}

// Limits returns the token budget pair for a priority, falling back to the
// "normal" entry and then to fixed defaults.
func (t TokensConfig) Limits(priority string) TokenLimits {
	if l, ok := t.Priorities[priority]; ok {
		return l
	}
	if l, ok := t.Priorities["normal"]; ok {
		return l
	}
	return TokenLimits{TargetInputTokens: 6000, HardMaxInputTokens: 10000}
}

type MemoryConfig struct {
	PinsFile     string `yaml:"pins_file"`
	SummariesDir string `yaml:"summaries_dir"`
}

type LoggingConfig struct {
	RequestLog string `yaml:"request_log"`
	ErrorLog   string `yaml:"error_log"`
	ContextLog string `yaml:"context_log"`
}

type TelemetryConfig struct {
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	CommandCenterURL string `yaml:"command_center_url"`
	CommandCenterDB  string `yaml:"command_center_db"`
	AgentName        string `yaml:"agent_name"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     180 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Routing: RoutingConfig{
			DefaultPriority: "normal",
			Overrides: OverridePolicy{
				AllowRouteOverride: true,
				AllowModelOverride: true,
			},
		},
		Budget: BudgetConfig{
			DailyCapPerProviderUSD:   2.0,
			MonthlyCapPerProviderUSD: 60.0,
			FallbackCostPer1KUSD:     0.5,
		},
		Tokens: TokensConfig{
			Priorities: map[string]TokenLimits{
				"low":    {TargetInputTokens: 3000, HardMaxInputTokens: 6000},
				"normal": {TargetInputTokens: 6000, HardMaxInputTokens: 10000},
				"high":   {TargetInputTokens: 9000, HardMaxInputTokens: 16000},
			},
		},
		Memory: MemoryConfig{
			PinsFile:     "memory/pins.md",
			SummariesDir: "memory/router-summaries",
		},
		Logging: LoggingConfig{
			RequestLog: "logs/router-requests.log",
			ErrorLog:   "logs/router-errors.log",
			ContextLog: "logs/router-context.log",
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			LogFormat:        "json",
			CommandCenterURL: "http://127.0.0.1:3000/api/routing",
			CommandCenterDB:  "command_center.db",
			AgentName:        "claw",
		},
	}
}
