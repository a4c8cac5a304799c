package config

import "github.com/teranos/trendspark/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	if c.Scoring.Cap <= 0 {
		return errors.Newf("scoring.cap must be > 0, got %f", c.Scoring.Cap)
	}
	for name, bonus := range map[string]float64{
		"scoring.priority_match_bonus": c.Scoring.PriorityMatchBonus,
		"scoring.trend_bonus":          c.Scoring.TrendBonus,
		"scoring.freshness_bonus":      c.Scoring.FreshnessBonus,
	} {
		if bonus < 0 || bonus > 1 {
			return errors.Newf("%s must be within [0, 1], got %f", name, bonus)
		}
	}
	if c.Scoring.FreshnessWindowMinutes < 0 {
		return errors.Newf("scoring.freshness_window_minutes must be >= 0, got %d", c.Scoring.FreshnessWindowMinutes)
	}

	if c.Trending.MinEngagementMix < 1 {
		return errors.Newf("trending.min_engagement_mix must be >= 1, got %d", c.Trending.MinEngagementMix)
	}
	if c.Trending.ScaleBandMin <= 0 || c.Trending.ScaleBandMax < c.Trending.ScaleBandMin {
		return errors.Newf("trending scale band must satisfy 0 < min <= max, got [%f, %f]",
			c.Trending.ScaleBandMin, c.Trending.ScaleBandMax)
	}
	if c.Trending.ExpireMinutes <= 0 {
		return errors.Newf("trending.expire_minutes must be > 0, got %d", c.Trending.ExpireMinutes)
	}
	// recent_minutes: 0 = no cutoff window, negative = invalid
	if c.Trending.RecentMinutes < 0 {
		return errors.Newf("trending.recent_minutes must be >= 0, got %d", c.Trending.RecentMinutes)
	}

	if c.Alerts.TopN < 1 {
		return errors.Newf("alerts.top_n must be >= 1, got %d", c.Alerts.TopN)
	}
	if c.Alerts.LookbackHours < 1 {
		return errors.Newf("alerts.lookback_hours must be >= 1, got %d", c.Alerts.LookbackHours)
	}

	if c.Scheduler.TickerIntervalSeconds < 1 {
		return errors.Newf("scheduler.ticker_interval_seconds must be >= 1, got %d", c.Scheduler.TickerIntervalSeconds)
	}
	if c.Scheduler.FailureThreshold < 1 {
		return errors.Newf("scheduler.failure_threshold must be >= 1, got %d", c.Scheduler.FailureThreshold)
	}
	if c.Scheduler.FailureCooldownMinutes < 0 {
		return errors.Newf("scheduler.failure_cooldown_minutes must be >= 0, got %d", c.Scheduler.FailureCooldownMinutes)
	}

	if c.Bluesky.Enabled {
		if c.Bluesky.Host == "" {
			return errors.New("bluesky.host cannot be empty when enabled")
		}
		if c.Bluesky.Handle == "" || c.Bluesky.AppPassword == "" {
			return errors.New("bluesky.handle and bluesky.app_password are required when enabled")
		}
	}
	if c.X.Enabled && c.X.BearerToken == "" {
		return errors.New("x.bearer_token is required when enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
			return errors.New("telegram.bot_token and telegram.chat_id are required when enabled")
		}
	}

	return nil
}
