// Package growth manages targeting profiles: named bundles of keywords,
// watchlisted authors, and a niche that parameterize ingestion, scoring
// bonuses, and content generation.
package growth

import "time"

// Profile is one targeting profile.
type Profile struct {
	ID        int64
	Name      string
	Niche     string
	Keywords  []string
	Watchlist []string
	IsDefault bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
