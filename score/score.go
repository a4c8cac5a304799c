// Package score computes virality and velocity scores for posts.
// Everything here is pure: no I/O, no failure modes, degenerate inputs
// clamp to zero.
package score

import (
	"math"
	"strings"
	"time"

	"github.com/teranos/trendspark/config"
)

// Metrics are the engagement counters of one post.
type Metrics struct {
	Likes   int
	Replies int
	Reposts int
	Quotes  int
	Views   int
}

// Engine scores posts. The weighting formulas are fixed; the cap and the
// additive virality bonuses come from configuration.
type Engine struct {
	cap                float64
	priorityMatchBonus float64
	trendBonus         float64
	freshnessBonus     float64
	freshnessWindow    time.Duration
}

// NewEngine builds an Engine from scoring configuration.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{
		cap:                cfg.Cap,
		priorityMatchBonus: cfg.PriorityMatchBonus,
		trendBonus:         cfg.TrendBonus,
		freshnessBonus:     cfg.FreshnessBonus,
		freshnessWindow:    time.Duration(cfg.FreshnessWindowMinutes) * time.Minute,
	}
}

// Virality is the normalized, age-invariant spread-potential score in [0,1].
// Reposts and quotes count together as amplification.
func (e *Engine) Virality(m Metrics) float64 {
	raw := 0.4*ln1p(m.Likes) +
		1.0*ln1p(m.Reposts+m.Quotes) +
		0.9*ln1p(m.Replies) +
		0.2*ln1p(m.Views)
	return math.Min(1, raw/e.cap)
}

// Velocity is the normalized, age-decayed momentum score in [0,1]. The
// decay has a 24-hour half-life relative to the post's creation time.
func (e *Engine) Velocity(m Metrics, createdAt, now time.Time) float64 {
	base := 0.5*ln1p(m.Likes) +
		0.8*ln1p(m.Reposts+m.Quotes) +
		0.7*ln1p(m.Replies) +
		0.3*ln1p(m.Views)

	ageHours := now.UTC().Sub(createdAt.UTC()).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	decay := 1 / (1 + ageHours/24)

	return math.Min(1, base*decay/e.cap)
}

// Bonus sums the applicable additive virality bonuses for a post.
// Bonuses are independent; the caller clamps the boosted score to 1.
func (e *Engine) Bonus(text, author string, createdAt, now time.Time, keywords, watchlist, trendingHashtags []string) float64 {
	var bonus float64
	if MatchesPriority(text, author, keywords, watchlist) {
		bonus += e.priorityMatchBonus
	}
	if ContainsTrendingHashtag(text, trendingHashtags) {
		bonus += e.trendBonus
	}
	if IsFresh(createdAt, now, e.freshnessWindow) {
		bonus += e.freshnessBonus
	}
	return bonus
}

// Boost applies a bonus to a virality score, clamping to 1.
func Boost(virality, bonus float64) float64 {
	return math.Min(1, virality+bonus)
}

// MatchesPriority reports whether the post text contains any configured
// keyword AND its author is on the watchlist. Both checks are
// case-insensitive.
func MatchesPriority(text, author string, keywords, watchlist []string) bool {
	if len(keywords) == 0 || len(watchlist) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	keywordHit := false
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			keywordHit = true
			break
		}
	}
	if !keywordHit {
		return false
	}
	loweredAuthor := strings.ToLower(author)
	for _, handle := range watchlist {
		if loweredAuthor == strings.ToLower(handle) {
			return true
		}
	}
	return false
}

// ContainsTrendingHashtag reports whether the lowercased text contains any
// of the given tags as "#tag".
func ContainsTrendingHashtag(text string, hashtags []string) bool {
	if len(hashtags) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, tag := range hashtags {
		if tag == "" {
			continue
		}
		if strings.Contains(lowered, "#"+strings.ToLower(tag)) {
			return true
		}
	}
	return false
}

// IsFresh reports whether the post was created within the freshness window
// of now. Future-dated posts count as fresh.
func IsFresh(createdAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	age := now.Sub(createdAt)
	return age <= window
}

// ln1p is log(1+n) with negative counters treated as zero.
func ln1p(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Log1p(float64(n))
}
