// Package post holds the observed social post model and its SQLite store.
package post

import (
	"encoding/json"
	"time"
)

// Platform identifiers for the supported sources.
const (
	PlatformBluesky = "bluesky"
	PlatformX       = "x"
)

// ReplySuggestion is one generated reply draft attached to a post.
type ReplySuggestion struct {
	Tone string `json:"tone"`
	Text string `json:"text"`
}

// Post is one observed social item, keyed by (platform, external post id).
type Post struct {
	ID          int64
	Platform    string
	PostID      string
	Author      string
	URL         string
	Text        string
	CreatedAt   time.Time
	CollectedAt time.Time

	LikeCount   int
	ReplyCount  int
	RepostCount int
	QuoteCount  int
	ViewCount   int

	ViralityScore float64
	VelocityScore float64

	// TrendingSince is non-nil iff Trending is true.
	Trending               bool
	TrendingSince          *time.Time
	TrendingCandidateSince *time.Time

	LastAlertedAt       *time.Time
	LastAlertedVirality *float64

	Tones            []string
	ReplySuggestions []ReplySuggestion
}

// EngagementMix is the like+repost+reply total used for author baselines,
// trending qualification, and fallback-alert selection.
func (p *Post) EngagementMix() int {
	return p.LikeCount + p.RepostCount + p.ReplyCount
}

// HasReplySuggestions reports whether reply drafts are attached.
func (p *Post) HasReplySuggestions() bool {
	return len(p.ReplySuggestions) > 0
}

func marshalSuggestions(s []ReplySuggestion) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalTones(tones []string) (string, error) {
	if len(tones) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tones)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
