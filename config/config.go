// Package config loads the TrendSpark configuration from TOML plus
// environment overrides.
package config

// Config is the root TrendSpark configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bluesky   BlueskyConfig   `mapstructure:"bluesky"`
	X         XConfig         `mapstructure:"x"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the metrics/health HTTP listener
type ServerConfig struct {
	Port *int `mapstructure:"port"` // nil = default 8090, 0 is invalid (omit for default)
}

// DefaultServerPort is used when server.port is omitted.
const DefaultServerPort = 8090

// LogConfig configures the global logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// ScoringConfig tunes the virality bonus heuristics. The base weighting
// formulas are fixed; only the cap and additive bonuses are configurable.
type ScoringConfig struct {
	Cap                    float64 `mapstructure:"cap"`                      // normalization divisor (default: 10.0)
	PriorityMatchBonus     float64 `mapstructure:"priority_match_bonus"`     // keyword match + watchlisted author (default: 0.1)
	TrendBonus             float64 `mapstructure:"trend_bonus"`              // text contains a live trending hashtag (default: 0.08)
	FreshnessBonus         float64 `mapstructure:"freshness_bonus"`          // created within the freshness window (default: 0.05)
	FreshnessWindowMinutes int     `mapstructure:"freshness_window_minutes"` // default: 10
}

// TrendingConfig tunes the trending state machine
type TrendingConfig struct {
	MinEngagementMix int     `mapstructure:"min_engagement_mix"` // base engagement floor (default: 20)
	ScaleBandMin     float64 `mapstructure:"scale_band_min"`     // per-author ratio lower clamp (default: 0.5)
	ScaleBandMax     float64 `mapstructure:"scale_band_max"`     // per-author ratio upper clamp (default: 2.5)
	ExpireMinutes    int     `mapstructure:"expire_minutes"`     // force-expire trending posts after this (default: 60)
	RecentMinutes    int     `mapstructure:"recent_minutes"`     // ranking cutoff window, 0 = no cutoff (default: 30)
}

// AlertsConfig tunes alert selection
type AlertsConfig struct {
	TopN          int `mapstructure:"top_n"`          // trending posts considered per cycle (default: 5)
	LookbackHours int `mapstructure:"lookback_hours"` // creation-time lookback (default: 24)
}

// SchedulerConfig configures the job scheduler service
type SchedulerConfig struct {
	TickerIntervalSeconds  int  `mapstructure:"ticker_interval_seconds"`  // due-entry poll interval (default: 1)
	AtomicLeases           bool `mapstructure:"atomic_leases"`            // single-transaction lease acquire (default: false)
	FailureThreshold       int  `mapstructure:"failure_threshold"`        // consecutive errors before escalation (default: 3)
	FailureCooldownMinutes int  `mapstructure:"failure_cooldown_minutes"` // min gap between escalations per kind (default: 30)
}

// BlueskyConfig configures the Bluesky ingestion source
type BlueskyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"` // PDS endpoint (default: https://bsky.social)
	Handle         string `mapstructure:"handle"`
	AppPassword    string `mapstructure:"app_password"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// XConfig configures the X search source and trending-hashtag supplier
type XConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	BaseURL               string `mapstructure:"base_url"`
	BearerToken           string `mapstructure:"bearer_token"`
	TrendsCacheTTLMinutes int    `mapstructure:"trends_cache_ttl_minutes"` // default: 15
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
}

// TelegramConfig configures the outbound notification channel
type TelegramConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BotToken       string `mapstructure:"bot_token"`
	ChatID         string `mapstructure:"chat_id"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpenAIConfig configures the reply/idea generation client. Any
// OpenAI-compatible chat-completions endpoint works via base_url.
type OpenAIConfig struct {
	APIKey         string   `mapstructure:"api_key"` // empty disables generation
	BaseURL        string   `mapstructure:"base_url"`
	Model          string   `mapstructure:"model"`
	Temperature    float64  `mapstructure:"temperature"`
	MaxTokens      int      `mapstructure:"max_tokens"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Tones          []string `mapstructure:"tones"` // reply draft tones, in priority order
}
