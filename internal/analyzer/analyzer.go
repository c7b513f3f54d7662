package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reservation-backend/config"
)

// ErrDisabled is reported when no analyzer is configured.
var ErrDisabled = errors.New("transcript analyzer is disabled")

// maxReplyBytes caps how much of the upstream reply is read.
const maxReplyBytes = 1 << 20

// Analyzer turns a free-text transcript into structured data.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (any, error)
}

// Client talks to an Ollama-compatible chat endpoint.
type Client struct {
	cfg    config.AnalyzerConfig
	client *http.Client
}

// NewClient creates an analyzer client from config.
func NewClient(cfg config.AnalyzerConfig) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid analyzer proxy URL; connecting directly")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Analyze sends the transcript as a single user message and returns the
// reply content decoded as JSON. A reply that is not JSON is wrapped as
// {"response": <text>}.
func (c *Client) Analyze(ctx context.Context, transcript string) (any, error) {
	content, err := c.chat(ctx, transcript)
	if err != nil {
		return nil, err
	}
	return Reshape(content), nil
}

// Reshape decodes content as JSON, falling back to {"response": content}.
func Reshape(content string) any {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return map[string]any{"response": content}
	}
	return decoded
}

func (c *Client) chat(ctx context.Context, transcript string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: transcript}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("analyzer returned an error: %s", chatResp.Error)
	}

	log.Ctx(ctx).Debug().Str("model", chatResp.Model).Int("reply_bytes", len(chatResp.Message.Content)).Msg("transcript analyzed")
	return chatResp.Message.Content, nil
}
