package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/internal/httpclient"
	"github.com/teranos/trendspark/post"
)

// XSource searches recent posts on X via the v2 recent-search endpoint.
type XSource struct {
	client      *httpclient.SaferClient
	baseURL     string
	bearerToken string
	log         *zap.SugaredLogger
}

// NewXSource creates an X search source.
func NewXSource(cfg config.XConfig, log *zap.SugaredLogger) *XSource {
	return &XSource{
		client:      httpclient.New(time.Duration(cfg.TimeoutSeconds) * time.Second),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		log:         log,
	}
}

// Name implements Source.
func (s *XSource) Name() string {
	return post.PlatformX
}

type xSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount    int `json:"retweet_count"`
			ReplyCount      int `json:"reply_count"`
			LikeCount       int `json:"like_count"`
			QuoteCount      int `json:"quote_count"`
			ImpressionCount int `json:"impression_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// Fetch implements Source. Keywords are OR-combined into one recent-search
// query; with no keywords the source yields nothing.
func (s *XSource) Fetch(ctx context.Context, opts FetchOptions) ([]*post.Post, error) {
	if len(opts.Keywords) == 0 {
		return nil, nil
	}

	limit := opts.Limit
	if limit < 10 {
		limit = 10 // API minimum for max_results
	}
	if limit > 100 {
		limit = 100
	}

	query := "(" + strings.Join(opts.Keywords, " OR ") + ") -is:retweet lang:en"
	params := url.Values{
		"query":        {query},
		"max_results":  {fmt.Sprintf("%d", limit)},
		"tweet.fields": {"public_metrics,created_at,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"username"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/2/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build X search request")
	}
	req.Header.Set("Authorization", "Bearer "+s.bearerToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "X search request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read X search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("X search returned status %d", resp.StatusCode)
	}

	var parsed xSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode X search response")
	}

	usernames := make(map[string]string, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		usernames[u.ID] = u.Username
	}

	now := time.Now().UTC()
	var posts []*post.Post
	for _, item := range parsed.Data {
		createdAt, err := time.Parse(time.RFC3339, item.CreatedAt)
		if err != nil {
			s.log.Debugw("skipping tweet with unparseable created_at", "id", item.ID)
			continue
		}
		author := usernames[item.AuthorID]
		posts = append(posts, &post.Post{
			Platform:    post.PlatformX,
			PostID:      item.ID,
			Author:      author,
			URL:         "https://x.com/" + author + "/status/" + item.ID,
			Text:        item.Text,
			CreatedAt:   createdAt.UTC(),
			CollectedAt: now,
			LikeCount:   item.PublicMetrics.LikeCount,
			ReplyCount:  item.PublicMetrics.ReplyCount,
			RepostCount: item.PublicMetrics.RetweetCount,
			QuoteCount:  item.PublicMetrics.QuoteCount,
			ViewCount:   item.PublicMetrics.ImpressionCount,
		})
	}
	return posts, nil
}

// XTrends supplies currently trending hashtags with a TTL cache. Upstream
// failures are absorbed: stale tags (or none) are returned instead.
type XTrends struct {
	client      *httpclient.SaferClient
	baseURL     string
	bearerToken string
	ttl         time.Duration
	log         *zap.SugaredLogger

	mu        sync.Mutex
	tags      []string
	fetchedAt time.Time
}

// NewXTrends creates the trending-hashtag supplier.
func NewXTrends(cfg config.XConfig, log *zap.SugaredLogger) *XTrends {
	return &XTrends{
		client:      httpclient.New(time.Duration(cfg.TimeoutSeconds) * time.Second),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		ttl:         time.Duration(cfg.TrendsCacheTTLMinutes) * time.Minute,
		log:         log,
	}
}

type xTrendsResponse []struct {
	Trends []struct {
		Name string `json:"name"`
	} `json:"trends"`
}

// Trending implements HashtagSupplier. Tags are lowercase, without the
// leading '#'.
func (t *XTrends) Trending(ctx context.Context) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.fetchedAt) < t.ttl && t.tags != nil {
		return t.tags
	}

	tags, err := t.fetch(ctx)
	if err != nil {
		t.log.Warnw("trending hashtag fetch degraded", "error", err)
		return t.tags // possibly stale, possibly nil
	}

	t.tags = tags
	t.fetchedAt = time.Now()
	return t.tags
}

func (t *XTrends) fetch(ctx context.Context) ([]string, error) {
	// Worldwide trends (WOEID 1).
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.baseURL+"/1.1/trends/place.json?id=1", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build trends request")
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "trends request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read trends response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("trends endpoint returned status %d", resp.StatusCode)
	}

	var parsed xTrendsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode trends response")
	}

	var tags []string
	for _, place := range parsed {
		for _, trend := range place.Trends {
			name := strings.ToLower(strings.TrimPrefix(trend.Name, "#"))
			if name != "" {
				tags = append(tags, name)
			}
		}
	}
	return tags, nil
}
