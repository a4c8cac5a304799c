// Package replies drafts reply suggestions and daily content ideas
// through an OpenAI-compatible chat-completions endpoint.
package replies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/internal/httpclient"
	"github.com/teranos/trendspark/metrics"
	"github.com/teranos/trendspark/post"
)

// Generator produces tone-tagged reply drafts and daily content ideas.
type Generator interface {
	Drafts(ctx context.Context, p *post.Post, tones []string) ([]post.ReplySuggestion, error)
	DailyIdeas(ctx context.Context, niche string, count int) ([]string, error)
}

// Client talks to an OpenAI-compatible chat-completions API. With no API
// key configured it is disabled and every call returns
// errors.ErrGenerationDisabled.
type Client struct {
	client      *httpclient.SaferClient
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	log         *zap.SugaredLogger
}

// NewClient creates a generation client from configuration.
func NewClient(cfg config.OpenAIConfig, log *zap.SugaredLogger) *Client {
	return &Client{
		client:      httpclient.New(time.Duration(cfg.TimeoutSeconds) * time.Second),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         log,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Drafts generates one reply draft per requested tone.
func (c *Client) Drafts(ctx context.Context, p *post.Post, tones []string) ([]post.ReplySuggestion, error) {
	if !c.Enabled() {
		return nil, errors.ErrGenerationDisabled
	}

	system := "You draft short, natural social media replies. " +
		"Respond with a JSON array of objects shaped {\"tone\": string, \"text\": string}, nothing else."
	user := fmt.Sprintf("Post by @%s on %s:\n%q\n\nWrite one reply per tone: %s. Keep each under 280 characters.",
		p.Author, p.Platform, p.Text, strings.Join(tones, ", "))

	content, err := c.complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var drafts []post.ReplySuggestion
	if err := json.Unmarshal([]byte(extractJSON(content)), &drafts); err != nil {
		return nil, errors.Wrap(err, "failed to parse reply drafts")
	}
	return drafts, nil
}

// DailyIdeas generates count content ideas for the given niche.
func (c *Client) DailyIdeas(ctx context.Context, niche string, count int) ([]string, error) {
	if !c.Enabled() {
		return nil, errors.ErrGenerationDisabled
	}

	if niche == "" {
		niche = "general tech and internet culture"
	}
	system := "You suggest social media content ideas. " +
		"Respond with a JSON array of strings, nothing else."
	user := fmt.Sprintf("Suggest %d fresh post ideas for the niche: %s.", count, niche)

	content, err := c.complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var ideas []string
	if err := json.Unmarshal([]byte(extractJSON(content)), &ideas); err != nil {
		return nil, errors.Wrap(err, "failed to parse content ideas")
	}
	return ideas, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.GenerationRequests.WithLabelValues("error").Inc()
		return "", errors.Wrap(err, "chat completion request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.GenerationRequests.WithLabelValues("error").Inc()
		return "", errors.Wrap(err, "failed to read chat response")
	}
	if resp.StatusCode != http.StatusOK {
		metrics.GenerationRequests.WithLabelValues("error").Inc()
		return "", errors.Newf("chat completion returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.GenerationRequests.WithLabelValues("error").Inc()
		return "", errors.Wrap(err, "failed to decode chat response")
	}
	if len(parsed.Choices) == 0 {
		metrics.GenerationRequests.WithLabelValues("error").Inc()
		return "", errors.New("chat completion returned no choices")
	}

	metrics.GenerationRequests.WithLabelValues("ok").Inc()
	metrics.GenerationTokens.Add(float64(parsed.Usage.TotalTokens))
	return parsed.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences and surrounding prose so a slightly
// chatty model response still parses.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
