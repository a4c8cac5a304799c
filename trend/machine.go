// Package trend advances posts through the trending lifecycle:
// none -> candidate -> trending, with expiry and per-author adaptive
// thresholds providing hysteresis against single-sample spikes.
package trend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/metrics"
	"github.com/teranos/trendspark/post"
	"github.com/teranos/trendspark/score"
)

// Options carries the per-cycle targeting inputs.
type Options struct {
	// Now overrides wall-clock time; zero means time.Now().
	Now time.Time

	Keywords         []string
	Watchlist        []string
	TrendingHashtags []string
}

// Machine runs ranking cycles over the post store.
type Machine struct {
	posts  *post.Store
	engine *score.Engine
	cfg    config.TrendingConfig
	log    *zap.SugaredLogger
}

// NewMachine creates a trend state machine.
func NewMachine(posts *post.Store, engine *score.Engine, cfg config.TrendingConfig, log *zap.SugaredLogger) *Machine {
	return &Machine{posts: posts, engine: engine, cfg: cfg, log: log}
}

// Cycle recomputes scores and trending state for the full active post set
// inside one transaction. Returns the number of posts whose trending
// status flipped.
func (m *Machine) Cycle(ctx context.Context, opts Options) (int, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	var cutoff *time.Time
	if m.cfg.RecentMinutes > 0 {
		c := now.Add(-time.Duration(m.cfg.RecentMinutes) * time.Minute)
		cutoff = &c
	}

	tx, err := m.posts.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin ranking transaction")
	}
	defer tx.Rollback()

	ps := m.posts.WithTx(tx)

	// The full set, not the cutoff window: trending posts created before
	// the cutoff still need to expire.
	posts, err := ps.ListSince(nil)
	if err != nil {
		return 0, err
	}

	authorAvg, globalAvg := authorStats(posts)

	expireAfter := time.Duration(m.cfg.ExpireMinutes) * time.Minute
	flips := 0

	for _, p := range posts {
		wasTrending := p.Trending

		metricsIn := score.Metrics{
			Likes:   p.LikeCount,
			Replies: p.ReplyCount,
			Reposts: p.RepostCount,
			Quotes:  p.QuoteCount,
			Views:   p.ViewCount,
		}
		virality := m.engine.Virality(metricsIn)
		bonus := m.engine.Bonus(p.Text, p.Author, p.CreatedAt, now,
			opts.Keywords, opts.Watchlist, opts.TrendingHashtags)
		p.ViralityScore = score.Boost(virality, bonus)
		p.VelocityScore = m.engine.Velocity(metricsIn, p.CreatedAt, now)

		// Expiry: a post continuously trending past the window is forced
		// back to none before qualification runs.
		if p.Trending && p.TrendingSince != nil && now.Sub(*p.TrendingSince) >= expireAfter {
			p.Trending = false
			p.TrendingSince = nil
		}

		// An author with no history scales at ratio 1, so the threshold
		// stays at the base floor instead of collapsing to the band minimum.
		required := m.cfg.MinEngagementMix
		if required < 1 {
			required = 1
		}
		if avg, ok := authorAvg[p.Author]; ok {
			required = score.RequiredEngagement(avg, globalAvg,
				m.cfg.MinEngagementMix, m.cfg.ScaleBandMin, m.cfg.ScaleBandMax)
		}
		qualifies := p.EngagementMix() >= required &&
			(cutoff == nil || !p.CreatedAt.Before(*cutoff))

		// Candidacy predating the cutoff is stale; discard it.
		if cutoff != nil && p.TrendingCandidateSince != nil && p.TrendingCandidateSince.Before(*cutoff) {
			p.TrendingCandidateSince = nil
		}

		if qualifies && p.TrendingCandidateSince == nil && !p.Trending {
			t := now
			p.TrendingCandidateSince = &t
		}
		if !qualifies {
			p.TrendingCandidateSince = nil
		}

		// Candidacy started this pass counts immediately, so a
		// first-time-qualifying post confirms within the same cycle.
		trending := (p.Trending && p.TrendingSince != nil) ||
			(p.TrendingCandidateSince != nil && qualifies)

		origin := p.TrendingSince
		if origin == nil {
			origin = p.TrendingCandidateSince
		}
		// A trend whose origin predates the cutoff window is suppressed.
		if cutoff != nil && origin != nil && origin.Before(*cutoff) {
			trending = false
		}

		if trending {
			if p.TrendingSince == nil {
				p.TrendingSince = origin
			}
			p.Trending = true
			p.TrendingCandidateSince = nil
		} else {
			p.Trending = false
			p.TrendingSince = nil
		}

		if p.Trending != wasTrending {
			flips++
			if p.Trending {
				metrics.TrendFlips.WithLabelValues("up").Inc()
			} else {
				metrics.TrendFlips.WithLabelValues("down").Inc()
			}
		}

		if err := ps.UpdateRanking(p); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit ranking transaction")
	}

	m.log.Debugw("ranking cycle complete", "posts", len(posts), "flips", flips)
	return flips, nil
}

// TopConversations returns the highest-ranked posts, trending first.
func (m *Machine) TopConversations(limit int) ([]*post.Post, error) {
	var cutoff *time.Time
	if m.cfg.RecentMinutes > 0 {
		c := time.Now().UTC().Add(-time.Duration(m.cfg.RecentMinutes) * time.Minute)
		cutoff = &c
	}
	return m.posts.TopConversations(limit, cutoff)
}

// authorStats computes each author's average engagement mix and the
// population-wide average over the loaded post set. Posts without an
// author count toward the population average only.
func authorStats(posts []*post.Post) (map[string]float64, float64) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var total float64

	for _, p := range posts {
		mix := float64(p.EngagementMix())
		total += mix
		if p.Author == "" {
			continue
		}
		sums[p.Author] += mix
		counts[p.Author]++
	}

	avgs := make(map[string]float64, len(sums))
	for author, sum := range sums {
		avgs[author] = sum / float64(counts[author])
	}

	var globalAvg float64
	if len(posts) > 0 {
		globalAvg = total / float64(len(posts))
	}
	return avgs, globalAvg
}
