// Package alert selects which trending posts merit an outbound alert and
// assembles exactly one alert batch per cycle.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/internal/util"
	"github.com/teranos/trendspark/metrics"
	"github.com/teranos/trendspark/post"
)

// dedupEpsilon is the virality delta below which a previously alerted post
// is never re-alerted.
const dedupEpsilon = 1e-3

// Alert batch kinds.
const (
	KindTrending   = "trending"
	KindMonitoring = "monitoring"
)

// ReplyGenerator drafts tone-tagged replies for a post. A degraded
// generator returns an empty slice, never an error the selector must act on.
type ReplyGenerator interface {
	Drafts(ctx context.Context, p *post.Post, tones []string) ([]post.ReplySuggestion, error)
}

// Notifier delivers one outbound message. It reports success as a bool;
// delivery failure is degradation, not an error.
type Notifier interface {
	Send(ctx context.Context, message, category string, payload map[string]any) bool
}

// Batch is the single alert produced by one selection cycle.
type Batch struct {
	Kind    string
	Message string
	Posts   []*post.Post
}

// Selector scans trending posts and emits alerts.
type Selector struct {
	posts     *post.Store
	generator ReplyGenerator
	notifier  Notifier
	cfg       config.AlertsConfig
	tones     []string
	log       *zap.SugaredLogger
}

// NewSelector creates an alert selector.
func NewSelector(posts *post.Store, generator ReplyGenerator, notifier Notifier, cfg config.AlertsConfig, tones []string, log *zap.SugaredLogger) *Selector {
	return &Selector{
		posts:     posts,
		generator: generator,
		notifier:  notifier,
		cfg:       cfg,
		tones:     tones,
		log:       log,
	}
}

// Run performs one selection cycle: either a full alert over the qualifying
// top trending posts, or a lower-urgency monitoring alert for the best
// fallback candidate. Returns nil when nothing at all is available.
func (s *Selector) Run(ctx context.Context, now time.Time) (*Batch, error) {
	now = now.UTC()
	lookback := now.Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)

	top, err := s.posts.TopTrending(s.cfg.TopN, lookback)
	if err != nil {
		return nil, err
	}

	var selected []*post.Post
	var lines []string
	for _, p := range top {
		if !needsAlert(p) {
			continue
		}

		s.ensureReplyDrafts(ctx, p)

		lines = append(lines, fmt.Sprintf("%s @%s — virality %.2f, velocity %.2f\n%s",
			strings.ToUpper(p.Platform), p.Author, p.ViralityScore, p.VelocityScore, snippet(p.Text)))
		if err := s.posts.MarkAlerted(p.ID, now, p.ViralityScore); err != nil {
			return nil, err
		}
		selected = append(selected, p)
	}

	if len(selected) > 0 {
		batch := &Batch{
			Kind:    KindTrending,
			Message: fmt.Sprintf("🔥 %d trending conversation(s)\n\n%s", len(selected), strings.Join(lines, "\n\n")),
			Posts:   selected,
		}
		s.deliver(ctx, batch)
		return batch, nil
	}

	return s.fallback(ctx, now, lookback)
}

// fallback emits a monitoring alert for the highest-engagement recent post
// that has never been alerted, guaranteeing a non-empty signal per cycle.
func (s *Selector) fallback(ctx context.Context, now, lookback time.Time) (*Batch, error) {
	candidate, err := s.posts.FallbackCandidate(lookback)
	if errors.IsNotFoundError(err) {
		s.log.Debugw("alert cycle produced nothing", "lookback_hours", s.cfg.LookbackHours)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		Kind: KindMonitoring,
		Message: fmt.Sprintf("👀 Monitoring: @%s on %s is gathering engagement (%d interactions)\n%s",
			candidate.Author, candidate.Platform, candidate.EngagementMix(), snippet(candidate.Text)),
		Posts: []*post.Post{candidate},
	}

	// Mark it so successive cycles rotate through fresh candidates instead
	// of repeating the same post.
	if err := s.posts.MarkAlerted(candidate.ID, now, candidate.ViralityScore); err != nil {
		return nil, err
	}

	s.deliver(ctx, batch)
	return batch, nil
}

func (s *Selector) deliver(ctx context.Context, batch *Batch) {
	payload := map[string]any{
		"kind":  batch.Kind,
		"count": len(batch.Posts),
	}
	if s.notifier.Send(ctx, batch.Message, batch.Kind, payload) {
		metrics.AlertDeliveries.WithLabelValues(batch.Kind, "ok").Inc()
	} else {
		metrics.AlertDeliveries.WithLabelValues(batch.Kind, "failed").Inc()
		s.log.Warnw("alert delivery degraded", "kind", batch.Kind)
	}
}

// ensureReplyDrafts requests drafts from the generator when a post has
// none; generation failure is absorbed and the post alerts without drafts.
func (s *Selector) ensureReplyDrafts(ctx context.Context, p *post.Post) {
	if p.HasReplySuggestions() {
		return
	}

	drafts, err := s.generator.Drafts(ctx, p, s.tones)
	if err != nil || len(drafts) == 0 {
		if err != nil && !errors.Is(err, errors.ErrGenerationDisabled) {
			s.log.Warnw("reply generation degraded", "post_id", p.PostID, "error", err)
		}
		return
	}

	if err := s.posts.SetReplySuggestions(p.ID, drafts, s.tones); err != nil {
		s.log.Warnw("failed to persist reply drafts", "post_id", p.PostID, "error", err)
		return
	}
	p.ReplySuggestions = drafts
	p.Tones = s.tones
}

// needsAlert applies the dedup rule: unchanged virality never re-alerts.
func needsAlert(p *post.Post) bool {
	if p.LastAlertedAt == nil || p.LastAlertedVirality == nil {
		return true
	}
	return util.AbsFloat64(*p.LastAlertedVirality-p.ViralityScore) >= dedupEpsilon
}

func snippet(text string) string {
	return util.Truncate(strings.TrimSpace(text), 160)
}
