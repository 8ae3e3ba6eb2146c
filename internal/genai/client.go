package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/npcmind/pkg/config"
	"github.com/pulsefeed/npcmind/pkg/logging"
	"github.com/pulsefeed/npcmind/pkg/telemetry"
)

// Client talks to an OpenAI-compatible generation API
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	imageModel string
	imageSize    string
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// New creates a new generation provider client
func New(cfg *config.ProviderConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider_url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider_api_key is required")
	}

	logger := logging.GetLogger().With(zap.String("component", "genai-client"))

	client := &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		imageModel:   cfg.ImageModel,
		imageSize:    cfg.ImageSize,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: time.Second,
		httpClient:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:       logger,
	}

	logger.Info("Generation provider client initialized", zap.String("url", cfg.URL), zap.String("model", cfg.Model))

	return client, nil
}

// GeneratePost asks the provider for one post as the given persona
func (c *Client) GeneratePost(ctx context.Context, req PostRequest) (*PostResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "genai.generate_post")
	defer span.End()

	system := fmt.Sprintf(
		"You are %s, a social media user. %s Write a single %s post in a %s tone. Respond with the post text only.",
		req.PersonaName, req.PersonaPrompt, req.PostType, orDefault(req.Tone, "natural"))

	var user strings.Builder
	if len(req.Topics) > 0 {
		fmt.Fprintf(&user, "Topics you care about: %s.\n", strings.Join(req.Topics, ", "))
	}
	if len(req.PreviousPosts) > 0 {
		user.WriteString("Avoid repeating these recent posts:\n")
		for _, p := range req.PreviousPosts {
			fmt.Fprintf(&user, "- %s\n", p)
		}
	}
	user.WriteString("Write the post now.")

	content, err := c.chat(ctx, orDefault(req.Model, c.model), req.Temperature, system, user.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate post: %w", err)
	}

	return &PostResult{Content: content, PostType: req.PostType}, nil
}

// GenerateComment asks the provider for one comment on another user's post
func (c *Client) GenerateComment(ctx context.Context, req CommentRequest) (*CommentResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "genai.generate_comment")
	defer span.End()

	system := fmt.Sprintf(
		"You are %s, a social media user. %s Write a short %s reply to the post below. Respond with the comment text only.",
		req.PersonaName, req.PersonaPrompt, orDefault(req.EngagementStyle, "friendly"))

	user := fmt.Sprintf("Post (%s):\n%s\n\nWrite your comment now.", req.PostType, req.PostContent)

	content, err := c.chat(ctx, orDefault(req.Model, c.model), req.Temperature, system, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate comment: %w", err)
	}

	return &CommentResult{Content: content}, nil
}

// DeriveVisualPersona asks the provider to condense a free-text persona
// description into a structured visual descriptor
func (c *Client) DeriveVisualPersona(ctx context.Context, description string) (*VisualPersona, error) {
	ctx, span := telemetry.StartSpan(ctx, "genai.derive_visual_persona")
	defer span.End()

	system := "Derive a consistent visual persona from the description. " +
		`Respond with JSON only: {"gender":"","age_range":"","appearance":"","style":"","setting":""}.`

	content, err := c.chat(ctx, c.model, 0.2, system, description)
	if err != nil {
		return nil, fmt.Errorf("failed to derive visual persona: %w", err)
	}

	var vp VisualPersona
	if err := json.Unmarshal([]byte(extractJSON(content)), &vp); err != nil {
		return nil, fmt.Errorf("failed to parse visual persona response: %w", err)
	}
	if vp.Appearance == "" {
		return nil, fmt.Errorf("visual persona response missing appearance")
	}

	return &vp, nil
}

// GenerateImage renders an image for the prompt and returns the raw bytes
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "genai.generate_image")
	defer span.End()

	if c.imageModel == "" {
		return nil, fmt.Errorf("provider_image_model is not configured")
	}

	body := map[string]interface{}{
		"model":           c.imageModel,
		"prompt":          prompt,
		"size":            c.imageSize,
		"n":               1,
		"response_format": "b64_json",
	}

	var resp struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := c.do(ctx, "/v1/images/generations", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image response contained no data")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return raw, nil
}

// chat performs one chat-completion round trip and returns the text content
func (c *Client) chat(ctx context.Context, model string, temperature float64, system, user string) (string, error) {
	body := map[string]interface{}{
		"model":       model,
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.do(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("provider returned empty content")
	}
	return content, nil
}

// do posts a JSON body and decodes the response, retrying transient failures
// with exponential backoff
func (c *Client) do(ctx context.Context, path string, body, out interface{}) error {
	backoff := c.retryBackoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, status, err := c.doOnce(ctx, path, body)
		if err == nil {
			return json.Unmarshal(raw, out)
		}
		lastErr = err

		if !retryable(status) || attempt == c.maxRetries {
			return err
		}

		c.logger.Warn("Provider request retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Int("status", status),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("provider http %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return raw, resp.StatusCode, nil
}

// retryable reports whether a status code is worth another attempt.
// Status 0 means the request never completed (network error).
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

// extractJSON strips markdown code fences some models wrap JSON output in
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
