package ai

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
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	analyzePrompt = "You are a business proposal reviewer. Assess the proposal for clarity, " +
		"structure, persuasiveness and missing sections. Answer with concise, actionable feedback."
	rewritePrompt = "You are a business writing assistant. Rewrite the given proposal text " +
		"following the instruction. Answer with the rewritten text only."
)

var _ Generator = (*Client)(nil)

// Client talks to an OpenAI compatible chat completions API. Outbound calls
// go through a token bucket shared by every caller of the client.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.Timeout = d }
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.Model = m
		}
	}
}

// WithRateLimit caps outbound calls at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = defaultBaseURL
	}

	c := &Client{
		BaseURL: url,
		APIKey:  strings.TrimSpace(apiKey),
		Model:   defaultModel,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	text, model, err := c.complete(ctx, analyzePrompt, req.Content)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return &AnalyzeResult{Analysis: text, Model: model}, nil
}

func (c *Client) Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResult, error) {
	user := req.Text
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		user = "Instruction: " + instr + "\n\nText:\n" + req.Text
	}

	text, model, err := c.complete(ctx, rewritePrompt, user)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	return &RewriteResult{Rewritten: text, Model: model}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, string, error) {
	if c.APIKey == "" {
		return "", "", fmt.Errorf("api key is required")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("wait for provider slot: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("ai provider call",
		zap.String("model", c.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", "", &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", "", ErrEmptyCompletion
	}

	model := parsed.Model
	if model == "" {
		model = c.Model
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), model, nil
}
