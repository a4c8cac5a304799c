package alert

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	qtesting "github.com/teranos/trendspark/internal/testing"
	"github.com/teranos/trendspark/post"
)

type fakeGenerator struct {
	calls  int
	drafts []post.ReplySuggestion
	err    error
}

func (g *fakeGenerator) Drafts(_ context.Context, _ *post.Post, tones []string) ([]post.ReplySuggestion, error) {
	g.calls++
	return g.drafts, g.err
}

type fakeNotifier struct {
	sent     []string
	category []string
	ok       bool
}

func (n *fakeNotifier) Send(_ context.Context, message, category string, _ map[string]any) bool {
	n.sent = append(n.sent, message)
	n.category = append(n.category, category)
	return n.ok
}

func newTestSelector(t *testing.T) (*Selector, *post.Store, *fakeGenerator, *fakeNotifier) {
	t.Helper()
	db := qtesting.CreateTestDB(t)
	store := post.NewStore(db)

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)

	gen := &fakeGenerator{drafts: []post.ReplySuggestion{{Tone: "witty", Text: "ha"}}}
	notifier := &fakeNotifier{ok: true}
	sel := NewSelector(store, gen, notifier, cfg.Alerts, cfg.OpenAI.Tones, zap.NewNop().Sugar())
	return sel, store, gen, notifier
}

func seedTrending(t *testing.T, store *post.Store, id string, createdAt time.Time, virality float64) *post.Post {
	t.Helper()
	p := &post.Post{
		Platform:    post.PlatformX,
		PostID:      id,
		Author:      "author-" + id,
		Text:        "trending post " + id,
		CreatedAt:   createdAt,
		CollectedAt: createdAt,
		LikeCount:   40,
	}
	_, err := store.Upsert(p)
	require.NoError(t, err)
	p.ViralityScore = virality
	p.Trending = true
	since := createdAt
	p.TrendingSince = &since
	require.NoError(t, store.UpdateRanking(p))
	return p
}

func TestFullAlertBatch(t *testing.T) {
	sel, store, gen, notifier := newTestSelector(t)
	now := time.Now().UTC().Truncate(time.Second)

	seedTrending(t, store, "a", now.Add(-time.Hour), 0.9)
	seedTrending(t, store, "b", now.Add(-time.Hour), 0.7)

	batch, err := sel.Run(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, KindTrending, batch.Kind)
	assert.Len(t, batch.Posts, 2)
	assert.Equal(t, 1, len(notifier.sent), "exactly one batch per cycle")
	assert.Equal(t, KindTrending, notifier.category[0])
	assert.Equal(t, 2, gen.calls, "drafts requested for posts lacking them")

	// Both posts now carry alert markers and drafts.
	for _, p := range batch.Posts {
		got, err := store.Get(p.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.LastAlertedAt)
		assert.True(t, got.HasReplySuggestions())
	}
}

func TestDedupSuppressesUnchangedVirality(t *testing.T) {
	sel, store, _, notifier := newTestSelector(t)
	now := time.Now().UTC().Truncate(time.Second)

	seedTrending(t, store, "a", now.Add(-time.Hour), 0.9)

	batch, err := sel.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, KindTrending, batch.Kind)

	// Unchanged virality: the trending post is suppressed and selection
	// falls through to the monitoring path, which finds nothing un-alerted.
	batch, err = sel.Run(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.Len(t, notifier.sent, 1)
}

func TestViralityDriftReAlerts(t *testing.T) {
	sel, store, _, _ := newTestSelector(t)
	now := time.Now().UTC().Truncate(time.Second)

	p := seedTrending(t, store, "a", now.Add(-time.Hour), 0.9)

	_, err := sel.Run(context.Background(), now)
	require.NoError(t, err)

	// Virality moved by more than the dedup epsilon.
	p.ViralityScore = 0.95
	require.NoError(t, store.UpdateRanking(p))

	batch, err := sel.Run(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, KindTrending, batch.Kind)
}

func TestFallbackMonitoringAlert(t *testing.T) {
	sel, store, _, notifier := newTestSelector(t)
	now := time.Now().UTC().Truncate(time.Second)

	// No trending posts; one recent post with engagement.
	p := &post.Post{
		Platform:    post.PlatformBluesky,
		PostID:      "at://post/1",
		Author:      "alice",
		Text:        "quietly taking off",
		CreatedAt:   now.Add(-2 * time.Hour),
		CollectedAt: now,
		LikeCount:   15,
		RepostCount: 3,
	}
	_, err := store.Upsert(p)
	require.NoError(t, err)

	batch, err := sel.Run(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, KindMonitoring, batch.Kind)
	require.Len(t, batch.Posts, 1)
	assert.Equal(t, "alice", batch.Posts[0].Author)
	assert.Equal(t, KindMonitoring, notifier.category[0])

	// The fallback is marked alerted so the next cycle rotates.
	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastAlertedAt)

	batch, err = sel.Run(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestGeneratorDegradationStillAlerts(t *testing.T) {
	sel, store, gen, notifier := newTestSelector(t)
	gen.drafts = nil
	now := time.Now().UTC().Truncate(time.Second)

	seedTrending(t, store, "a", now.Add(-time.Hour), 0.8)

	batch, err := sel.Run(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, KindTrending, batch.Kind)
	assert.Len(t, notifier.sent, 1)

	got, err := store.Get(batch.Posts[0].ID)
	require.NoError(t, err)
	assert.False(t, got.HasReplySuggestions())
}

func TestNotifierFailureDoesNotError(t *testing.T) {
	sel, store, _, notifier := newTestSelector(t)
	notifier.ok = false
	now := time.Now().UTC().Truncate(time.Second)

	seedTrending(t, store, "a", now.Add(-time.Hour), 0.8)

	batch, err := sel.Run(context.Background(), now)
	require.NoError(t, err)
	assert.NotNil(t, batch)
}
