// Package openai implements the reasoning oracle over an OpenAI-compatible
// chat-completions API. It is used for both OpenAI and Groq.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/attest/internal/logging"
	"github.com/aretw0/attest/pkg/domain"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
)

const (
	DefaultMaxRetries = 3
	DefaultMaxTokens  = 2000
	DefaultTimeout    = 60 * time.Second
)

type preset struct {
	baseURL string
	model   string
}

var presets = map[string]preset{
	ProviderOpenAI: {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	ProviderGroq:   {baseURL: "https://api.groq.com/openai/v1", model: "openai/gpt-oss-120b"},
}

// Client talks to a chat-completions endpoint. It retries transport errors,
// 429 and 5xx responses up to its attempt budget; the loop never retries.
type Client struct {
	provider    string
	model       string
	baseURL     string
	apiKey      string
	maxAttempts int
	maxTokens   int
	timeout     time.Duration
	retryWait   time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	http *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider's API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel overrides the provider's default model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithMaxRetries sets the total attempt budget per call, clamped to 1..3.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxAttempts = min(max(n, 1), DefaultMaxRetries)
	}
}

// WithMaxTokens bounds the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryWait sets the base backoff between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.retryWait = d
	}
}

// WithRequestsPerSecond limits outgoing calls. Zero means unlimited.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for provider ("openai" or "groq").
func New(provider, apiKey string, opts ...Option) (*Client, error) {
	p, ok := presets[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported oracle provider %q", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", provider)
	}

	c := &Client{
		provider:    provider,
		model:       p.model,
		baseURL:     p.baseURL,
		apiKey:      apiKey,
		maxAttempts: DefaultMaxRetries,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
		retryWait:   500 * time.Millisecond,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(c.maxAttempts - 1).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return c, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the model name.
func (c *Client) Model() string { return c.model }

// ProposeNextAction implements ports.ReasoningOracle.
func (c *Client) ProposeNextAction(ctx context.Context, conv domain.Conversation, tools []domain.ToolDefinition, temperature float64) (domain.OracleResponse, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    toMessages(conv),
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}
	if len(tools) > 0 {
		req.Tools = toTools(tools)
		req.ToolChoice = "auto"
	}

	msg, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeMessage(msg), nil
}

// Complete implements ports.Completer using JSON mode.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.chat(ctx, chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: string(domain.RoleSystem), Content: system},
			{Role: string(domain.RoleUser), Content: prompt},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (c *Client) chat(ctx context.Context, body chatRequest) (responseMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return responseMessage{}, &domain.OracleError{Err: err}
		}
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")

	attempts := 1
	if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
		attempts = resp.Request.Attempt
	}
	if err != nil {
		c.logger.Warn("Oracle request failed", "provider", c.provider, "attempts", attempts, "err", err)
		return responseMessage{}, &domain.OracleError{Attempts: attempts, Err: err}
	}
	if resp.IsError() {
		err := fmt.Errorf("%s returned %s: %s", c.provider, resp.Status(), truncate(resp.String(), 200))
		c.logger.Warn("Oracle request failed", "provider", c.provider, "attempts", attempts, "status", resp.StatusCode())
		return responseMessage{}, &domain.OracleError{Attempts: attempts, Err: err}
	}
	if len(out.Choices) == 0 {
		return responseMessage{}, &domain.OracleError{Attempts: attempts, Err: errors.New("response has no choices")}
	}
	return out.Choices[0].Message, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
