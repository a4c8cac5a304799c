package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/alert"
	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/ingest"
	qtesting "github.com/teranos/trendspark/internal/testing"
	"github.com/teranos/trendspark/post"
	"github.com/teranos/trendspark/replies"
	"github.com/teranos/trendspark/score"
	"github.com/teranos/trendspark/trend"
)

type stubGenerator struct {
	disabled bool
	drafted  int
	ideas    []string
}

func (g *stubGenerator) Drafts(_ context.Context, _ *post.Post, tones []string) ([]post.ReplySuggestion, error) {
	if g.disabled {
		return nil, errors.ErrGenerationDisabled
	}
	g.drafted++
	out := make([]post.ReplySuggestion, len(tones))
	for i, tone := range tones {
		out[i] = post.ReplySuggestion{Tone: tone, Text: "draft in " + tone + " tone"}
	}
	return out, nil
}

func (g *stubGenerator) DailyIdeas(context.Context, string, int) ([]string, error) {
	if g.disabled {
		return nil, errors.ErrGenerationDisabled
	}
	return g.ideas, nil
}

func newHandlerFixture(t *testing.T, gen *stubGenerator) (HandlerDeps, *recordingSender) {
	t.Helper()
	db := qtesting.CreateTestDB(t)
	log := zap.NewNop().Sugar()

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)

	posts := post.NewStore(db)
	engine := score.NewEngine(cfg.Scoring)
	sender := &recordingSender{}

	return HandlerDeps{
		Posts:    posts,
		Ingest:   ingest.NewRunner(nil, posts, ingest.NewAuditStore(db), log),
		Trends:   trend.NewMachine(posts, engine, cfg.Trending, log),
		Alerts:   alert.NewSelector(posts, gen, sender, cfg.Alerts, cfg.OpenAI.Tones, log),
		Replies:  gen,
		Ideas:    replies.NewIdeaStore(db),
		Notifier: sender,
		Tones:    []string{"witty", "insightful"},
		Log:      log,
	}, sender
}

func seedTrendingPost(t *testing.T, posts *post.Store, postID string) *post.Post {
	t.Helper()
	now := time.Now().UTC()
	p := &post.Post{
		Platform:    post.PlatformBluesky,
		PostID:      postID,
		Author:      "alice.bsky.social",
		Text:        "shipping a new model today",
		CreatedAt:   now.Add(-5 * time.Minute),
		CollectedAt: now,
		LikeCount:   120,
		RepostCount: 40,
		ReplyCount:  30,
	}
	created, err := posts.Upsert(p)
	require.NoError(t, err)
	require.True(t, created)

	since := now.Add(-10 * time.Minute)
	p.Trending = true
	p.TrendingSince = &since
	p.ViralityScore = 0.8
	p.VelocityScore = 0.7
	require.NoError(t, posts.UpdateRanking(p))
	return p
}

func TestIngestRankHandlerRunsFullPipeline(t *testing.T) {
	gen := &stubGenerator{}
	deps, _ := newHandlerFixture(t, gen)

	job := &Job{
		Config:        &JobConfig{JobKind: JobKindIngestRank},
		Params:        map[string]any{"keywords": []any{"ai"}, "max_x": float64(20)},
		CorrelationID: "corr-pipeline",
	}
	require.NoError(t, deps.ingestRank(context.Background(), job))
}

func TestGenRepliesBackfillsDrafts(t *testing.T) {
	gen := &stubGenerator{}
	deps, _ := newHandlerFixture(t, gen)

	seedTrendingPost(t, deps.Posts, "at://post/1")
	seedTrendingPost(t, deps.Posts, "at://post/2")

	job := &Job{
		Config: &JobConfig{JobKind: JobKindGenReplies},
		Params: map[string]any{"limit": float64(10)},
	}
	require.NoError(t, deps.genReplies(context.Background(), job))
	assert.Equal(t, 2, gen.drafted)

	missing, err := deps.Posts.CountMissingReplies()
	require.NoError(t, err)
	assert.Zero(t, missing)

	// Nothing left to backfill on the second pass.
	require.NoError(t, deps.genReplies(context.Background(), job))
	assert.Equal(t, 2, gen.drafted)
}

func TestGenRepliesHonorsLimit(t *testing.T) {
	gen := &stubGenerator{}
	deps, _ := newHandlerFixture(t, gen)

	seedTrendingPost(t, deps.Posts, "at://post/1")
	seedTrendingPost(t, deps.Posts, "at://post/2")
	seedTrendingPost(t, deps.Posts, "at://post/3")

	job := &Job{
		Config: &JobConfig{JobKind: JobKindGenReplies},
		Params: map[string]any{"limit": float64(2)},
	}
	require.NoError(t, deps.genReplies(context.Background(), job))
	assert.Equal(t, 2, gen.drafted)
}

func TestGenRepliesDisabledGeneratorIsNoop(t *testing.T) {
	gen := &stubGenerator{disabled: true}
	deps, _ := newHandlerFixture(t, gen)

	seedTrendingPost(t, deps.Posts, "at://post/1")

	job := &Job{Config: &JobConfig{JobKind: JobKindGenReplies}, Params: map[string]any{}}
	require.NoError(t, deps.genReplies(context.Background(), job))

	missing, err := deps.Posts.CountMissingReplies()
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
}

func TestDailyIdeasOncePerDayWithAnnouncement(t *testing.T) {
	gen := &stubGenerator{ideas: []string{"thread on agents", "benchmark recap"}}
	deps, sender := newHandlerFixture(t, gen)

	job := &Job{
		Config: &JobConfig{JobKind: JobKindDailyIdeas},
		Params: map[string]any{"announce": true, "niche": "machine learning"},
	}
	require.NoError(t, deps.dailyIdeas(context.Background(), job))

	day := replies.DayKey(time.Now().UTC())
	saved, err := deps.Ideas.Get(day)
	require.NoError(t, err)
	assert.Equal(t, gen.ideas, saved)

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "machine learning")
	assert.Contains(t, sender.messages[0], "thread on agents")
	assert.Equal(t, "daily_ideas", sender.categories[0])

	// Idempotent within the same day.
	require.NoError(t, deps.dailyIdeas(context.Background(), job))
	assert.Len(t, sender.messages, 1)
}

func TestDailyIdeasWithoutAnnounceStaysQuiet(t *testing.T) {
	gen := &stubGenerator{ideas: []string{"one idea"}}
	deps, sender := newHandlerFixture(t, gen)

	job := &Job{Config: &JobConfig{JobKind: JobKindDailyIdeas}, Params: map[string]any{}}
	require.NoError(t, deps.dailyIdeas(context.Background(), job))

	assert.Empty(t, sender.messages)
	_, err := deps.Ideas.Get(replies.DayKey(time.Now().UTC()))
	assert.NoError(t, err)
}
