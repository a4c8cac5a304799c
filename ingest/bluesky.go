package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/post"
)

// BlueskySource pulls the authenticated account's home timeline from a
// Bluesky PDS.
type BlueskySource struct {
	host        string
	identifier  string
	appPassword string
	log         *zap.SugaredLogger

	mu     sync.Mutex
	client *xrpc.Client
}

// NewBlueskySource creates a Bluesky timeline source.
func NewBlueskySource(cfg config.BlueskyConfig, log *zap.SugaredLogger) *BlueskySource {
	return &BlueskySource{
		host:        cfg.Host,
		identifier:  cfg.Handle,
		appPassword: cfg.AppPassword,
		log:         log,
	}
}

// Name implements Source.
func (s *BlueskySource) Name() string {
	return post.PlatformBluesky
}

// Fetch implements Source.
func (s *BlueskySource) Fetch(ctx context.Context, opts FetchOptions) ([]*post.Post, error) {
	client, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	limit := int64(opts.Limit)
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	resp, err := appbsky.FeedGetTimeline(ctx, client, "", "", limit)
	if err != nil {
		// Expired access token: drop the session and retry once.
		s.resetSession()
		client, err = s.session(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = appbsky.FeedGetTimeline(ctx, client, "", "", limit)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch bluesky timeline")
		}
	}

	now := time.Now().UTC()
	var posts []*post.Post
	for _, item := range resp.Feed {
		if item.Post == nil || item.Post.Author == nil {
			continue
		}
		p := s.normalize(item.Post, now)
		if p != nil {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (s *BlueskySource) normalize(view *appbsky.FeedDefs_PostView, collectedAt time.Time) *post.Post {
	record, ok := view.Record.Val.(*appbsky.FeedPost)
	if !ok {
		return nil
	}

	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		s.log.Debugw("skipping post with unparseable created_at",
			"uri", view.Uri, "created_at", record.CreatedAt)
		return nil
	}

	p := &post.Post{
		Platform:    post.PlatformBluesky,
		PostID:      view.Uri,
		Author:      view.Author.Handle,
		URL:         postURL(view.Author.Handle, view.Uri),
		Text:        record.Text,
		CreatedAt:   createdAt.UTC(),
		CollectedAt: collectedAt,
	}
	if view.LikeCount != nil {
		p.LikeCount = int(*view.LikeCount)
	}
	if view.ReplyCount != nil {
		p.ReplyCount = int(*view.ReplyCount)
	}
	if view.RepostCount != nil {
		p.RepostCount = int(*view.RepostCount)
	}
	if view.QuoteCount != nil {
		p.QuoteCount = int(*view.QuoteCount)
	}
	return p
}

// Poll runs a continuous timeline consumer until the context is
// cancelled, feeding each fetched post to sink. Transport failures return
// an error so a Supervisor can restart the loop with backoff.
func (s *BlueskySource) Poll(ctx context.Context, interval time.Duration, sink func(*post.Post) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		posts, err := s.Fetch(ctx, FetchOptions{Limit: 50})
		if err != nil {
			return err
		}
		for _, p := range posts {
			if err := sink(p); err != nil {
				return err
			}
		}
	}
}

func (s *BlueskySource) session(ctx context.Context) (*xrpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client := &xrpc.Client{
		Host: s.host,
	}

	input := &comatproto.ServerCreateSession_Input{
		Identifier: s.identifier,
		Password:   s.appPassword,
	}

	session, err := comatproto.ServerCreateSession(ctx, client, input)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session with PDS %s for %s", s.host, s.identifier)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	s.client = client
	return client, nil
}

func (s *BlueskySource) resetSession() {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
}

// postURL builds the bsky.app permalink from an at:// URI.
func postURL(handle, uri string) string {
	// at://did:plc:xyz/app.bsky.feed.post/rkey -> last path segment
	idx := strings.LastIndex(uri, "/")
	if idx < 0 || idx == len(uri)-1 {
		return ""
	}
	return "https://bsky.app/profile/" + handle + "/post/" + uri[idx+1:]
}
