package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "trendspark.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	// Scoring defaults
	v.SetDefault("scoring.cap", 10.0)                   // empirical normalization constant
	v.SetDefault("scoring.priority_match_bonus", 0.1)   // keyword + watchlist author
	v.SetDefault("scoring.trend_bonus", 0.08)           // live trending hashtag in text
	v.SetDefault("scoring.freshness_bonus", 0.05)       // very recent post
	v.SetDefault("scoring.freshness_window_minutes", 10)

	// Trending state machine defaults
	v.SetDefault("trending.min_engagement_mix", 20)
	v.SetDefault("trending.scale_band_min", 0.5)
	v.SetDefault("trending.scale_band_max", 2.5)
	v.SetDefault("trending.expire_minutes", 60)
	v.SetDefault("trending.recent_minutes", 30)

	// Alert selection defaults
	v.SetDefault("alerts.top_n", 5)
	v.SetDefault("alerts.lookback_hours", 24)

	// Scheduler defaults
	v.SetDefault("scheduler.ticker_interval_seconds", 1)
	v.SetDefault("scheduler.atomic_leases", false)
	v.SetDefault("scheduler.failure_threshold", 3)
	v.SetDefault("scheduler.failure_cooldown_minutes", 30)

	// Bluesky source defaults
	v.SetDefault("bluesky.enabled", false)
	v.SetDefault("bluesky.host", "https://bsky.social")
	v.SetDefault("bluesky.timeout_seconds", 30)

	// X source defaults
	v.SetDefault("x.enabled", false)
	v.SetDefault("x.base_url", "https://api.twitter.com")
	v.SetDefault("x.trends_cache_ttl_minutes", 15)
	v.SetDefault("x.timeout_seconds", 30)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.timeout_seconds", 15)

	// Generation defaults
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 600)
	v.SetDefault("openai.timeout_seconds", 60)
	v.SetDefault("openai.tones", []string{"witty", "insightful", "supportive"})
}

// BindSensitiveEnvVars explicitly binds credentials to environment variables
// so they never need to live in the TOML file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("bluesky.handle", "TRENDSPARK_BLUESKY_HANDLE")
	v.BindEnv("bluesky.app_password", "TRENDSPARK_BLUESKY_APP_PASSWORD")
	v.BindEnv("x.bearer_token", "TRENDSPARK_X_BEARER_TOKEN")
	v.BindEnv("telegram.bot_token", "TRENDSPARK_TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TRENDSPARK_TELEGRAM_CHAT_ID")
	v.BindEnv("openai.api_key", "TRENDSPARK_OPENAI_API_KEY")
}
