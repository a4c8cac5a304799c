// Package ingest pulls normalized posts from platform sources into the
// post store. Source failures are absorbed: a degraded source yields an
// empty batch, never a cycle failure.
package ingest

import (
	"context"

	"github.com/teranos/trendspark/post"
)

// FetchOptions parameterizes one fetch from a source.
type FetchOptions struct {
	// Keywords narrows search-based sources; timeline sources ignore it.
	Keywords []string
	// Limit caps the number of items returned.
	Limit int
}

// Source yields normalized posts from one platform.
type Source interface {
	Name() string
	Fetch(ctx context.Context, opts FetchOptions) ([]*post.Post, error)
}

// HashtagSupplier returns the currently trending lowercase tags.
// Implementations cache with a TTL and absorb upstream failures.
type HashtagSupplier interface {
	Trending(ctx context.Context) []string
}
