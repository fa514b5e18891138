package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by every call when no API key is set.
var ErrNotConfigured = errors.New("ai: text generation not configured")

// validQueryTypes are the classifications Classify may return.
var validQueryTypes = map[string]bool{
	"GENERAL": true, "COUNT": true, "SEARCH": true, "TEMPORAL": true, "CONTEXTUAL": true,
}

// Client implements Generator against an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	endpoint  string
	apiKey    string
	modelName string
	maxTokens int
	http      *http.Client
	log       *zap.Logger
}

// NewClient creates a text-generation client. An empty apiKey yields a
// client whose calls all return ErrNotConfigured, which callers treat
// like any other enrichment failure.
func NewClient(endpoint, apiKey, modelName string, maxTokens int, log *zap.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		modelName: modelName,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize produces a prose summary of an analyzed media item.
func (c *Client) Summarize(ctx context.Context, mc MediaContext) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize this media analysis:\n- File: %s (%s)\n- People detected: %d\n- Objects detected: %d\n- Books detected: %d\n- Duration: %s\nHighlight notable activity and key observations.",
		mc.FileName, mc.Kind, mc.PeopleCount, mc.ObjectCount, mc.BookCount, formatDuration(mc.Duration))
	return c.chat(ctx, "You are an expert media analyst.", prompt)
}

// EnhanceAnswer rewrites the deterministic answer conversationally.
func (c *Client) EnhanceAnswer(ctx context.Context, query string, matches []model.QueryMatch, mc MediaContext) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\nSearch results:\n", query)
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s: %s (%.0f%% confidence) at %.2fs\n",
			m.Type, m.Description, m.Confidence*100, m.Timestamp)
	}
	fmt.Fprintf(&b, "\nMedia context: %d people, %d objects, %d books.\n",
		mc.PeopleCount, mc.ObjectCount, mc.BookCount)
	b.WriteString("\nProvide a natural, conversational answer to the query based on the results.")
	return c.chat(ctx, "You are an assistant helping users understand their media content.", b.String())
}

// Suggest proposes up to five follow-up queries.
func (c *Client) Suggest(ctx context.Context, mc MediaContext) ([]string, error) {
	prompt := fmt.Sprintf(
		"Based on this media analysis, suggest 5 questions a user might ask:\n- %d people detected\n- %d objects detected\n- %d books detected\nFormat as a numbered list.",
		mc.PeopleCount, mc.ObjectCount, mc.BookCount)
	raw, err := c.chat(ctx, "You are a helpful assistant suggesting relevant questions.", prompt)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.) ")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 5 {
			break
		}
	}
	return out, nil
}

// Classify buckets a query into one of the fixed query types.
func (c *Client) Classify(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(
		"Classify this query into one of: GENERAL, COUNT, SEARCH, TEMPORAL, CONTEXTUAL. Query: %q. Reply with only the classification.",
		query)
	raw, err := c.chat(ctx, "You are a query classifier.", prompt)
	if err != nil {
		return "", err
	}
	kind := strings.ToUpper(strings.TrimSpace(raw))
	if !validQueryTypes[kind] {
		return "", fmt.Errorf("ai: unexpected classification %q", kind)
	}
	return kind, nil
}

func (c *Client) chat(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	body := chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.maxTokens,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: chat call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ai: chat status %d: %s", resp.StatusCode, snippet)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("ai: empty completion")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
