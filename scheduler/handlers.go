package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/alert"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/ingest"
	"github.com/teranos/trendspark/metrics"
	"github.com/teranos/trendspark/notify"
	"github.com/teranos/trendspark/post"
	"github.com/teranos/trendspark/replies"
	"github.com/teranos/trendspark/trend"
)

// HandlerDeps bundles everything the standard handlers touch.
type HandlerDeps struct {
	Posts    *post.Store
	Ingest   *ingest.Runner
	Hashtags ingest.HashtagSupplier
	Trends   *trend.Machine
	Alerts   *alert.Selector
	Replies  replies.Generator
	Ideas    *replies.IdeaStore
	Notifier notify.Sender
	Tones    []string
	Log      *zap.SugaredLogger
}

// NewHandlerRegistry wires the fixed job kinds to their implementations.
func NewHandlerRegistry(deps HandlerDeps) map[string]Handler {
	return map[string]Handler{
		JobKindIngestRank: deps.ingestRank,
		JobKindGenReplies: deps.genReplies,
		JobKindDailyIdeas: deps.dailyIdeas,
	}
}

// ingestRank is the main pipeline pass: fetch from every enabled source,
// re-rank the corpus, then emit alerts for what changed.
func (d HandlerDeps) ingestRank(ctx context.Context, job *Job) error {
	keywords := paramStrings(job.Params, "keywords")
	watchlist := paramStrings(job.Params, "watchlist")

	result, err := d.Ingest.Run(ctx, ingest.FetchOptions{
		Keywords: keywords,
		Limit:    paramInt(job.Params, "max_x", 30),
	})
	if err != nil {
		return err
	}
	d.Log.Infow("ingest cycle complete",
		"cycle_id", result.CycleID,
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"correlation_id", job.CorrelationID)

	var hashtags []string
	if d.Hashtags != nil {
		hashtags = d.Hashtags.Trending(ctx)
	}

	flips, err := d.Trends.Cycle(ctx, trend.Options{
		Keywords:         keywords,
		Watchlist:        watchlist,
		TrendingHashtags: hashtags,
	})
	if err != nil {
		return err
	}

	batch, err := d.Alerts.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if trending, err := d.Posts.CountTrending(); err == nil {
		metrics.QueueBacklog.WithLabelValues("trending_posts").Set(float64(trending))
	}
	if missing, err := d.Posts.CountMissingReplies(); err == nil {
		metrics.QueueBacklog.WithLabelValues("missing_replies").Set(float64(missing))
	}

	alerted := 0
	if batch != nil {
		alerted = len(batch.Posts)
	}
	d.Log.Infow("rank cycle complete",
		"trend_flips", flips, "alerted", alerted,
		"correlation_id", job.CorrelationID)
	return nil
}

// genReplies backfills reply drafts for trending posts that lack them.
// A disabled generator is a no-op, not a failure.
func (d HandlerDeps) genReplies(ctx context.Context, job *Job) error {
	limit := paramInt(job.Params, "limit", 10)

	posts, err := d.Posts.ListMissingReplies(limit)
	if err != nil {
		return err
	}

	generated := 0
	for _, p := range posts {
		suggestions, err := d.Replies.Drafts(ctx, p, d.Tones)
		if errors.Is(err, errors.ErrGenerationDisabled) {
			d.Log.Debugw("reply generation disabled, skipping backlog")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed to draft replies for post %d", p.ID)
		}
		if err := d.Posts.SetReplySuggestions(p.ID, suggestions, d.Tones); err != nil {
			return err
		}
		generated++
	}

	if generated > 0 {
		d.Log.Infow("reply drafts generated",
			"posts", generated, "correlation_id", job.CorrelationID)
	}
	return nil
}

// dailyIdeas generates at most one idea set per UTC day and optionally
// announces it.
func (d HandlerDeps) dailyIdeas(ctx context.Context, job *Job) error {
	day := replies.DayKey(time.Now().UTC())

	exists, err := d.Ideas.Exists(day)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	niche := paramString(job.Params, "niche", "general")
	ideas, err := d.Replies.DailyIdeas(ctx, niche, 5)
	if errors.Is(err, errors.ErrGenerationDisabled) {
		d.Log.Debugw("idea generation disabled, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if len(ideas) == 0 {
		return nil
	}

	if err := d.Ideas.Save(day, ideas); err != nil {
		return err
	}

	if paramBool(job.Params, "announce", false) {
		var b strings.Builder
		fmt.Fprintf(&b, "💡 Content ideas for %s (%s):\n", day, niche)
		for i, idea := range ideas {
			fmt.Fprintf(&b, "%d. %s\n", i+1, idea)
		}
		d.Notifier.Send(ctx, b.String(), "daily_ideas", map[string]any{
			"day":   day,
			"niche": niche,
		})
	}

	d.Log.Infow("daily ideas generated",
		"day", day, "count", len(ideas), "correlation_id", job.CorrelationID)
	return nil
}

// Param helpers. JSON round-trips numbers as float64 and string lists as
// []any, so every accessor normalizes both representations.

func paramInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func paramBool(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func paramStrings(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
