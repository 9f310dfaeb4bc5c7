// Package llm talks to an OpenAI compatible chat completions endpoint behind a circuit
// breaker.
package llm

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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 1024
	maxResponseBytes = 1 << 20
)

var (
	// ErrDisabled is returned when no provider is configured.
	ErrDisabled = errors.New("llm: disabled")
	// ErrUnavailable wraps provider failures and breaker rejections.
	ErrUnavailable = errors.New("llm: unavailable")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a reply for a conversation. purpose labels metrics and logs.
type Completer interface {
	Complete(ctx context.Context, purpose string, messages []Message) (string, error)
}

// BreakerConfig tunes the circuit breaker. It trips once MinRequests calls were made in
// the current interval and at least FailureRatio of them failed.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// Config configures the provider.
type Config struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Breaker     BreakerConfig
	HTTPClient  *http.Client
}

// DefaultBreakerConfig mirrors the settings used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  2,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a Completer for OpenAI compatible APIs.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient validates cfg. A disabled config yields a client whose calls return ErrDisabled.
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Enabled {
		if cfg.BaseURL == "" {
			return nil, errors.New("llm: base url is required")
		}
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, errors.New("llm: model is required")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log := logger.WithModule("llm")
	breakerCfg := cfg.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerCfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller giving up says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{cfg: cfg, http: httpClient, breaker: breaker, log: log}, nil
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled
}

// State exposes the breaker state for health reporting.
func (c *Client) State() string {
	if !c.Enabled() {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Complete sends messages and returns the trimmed reply of the first choice.
func (c *Client) Complete(ctx context.Context, purpose string, messages []Message) (string, error) {
	if !c.Enabled() {
		metrics.LLMRequests.WithLabelValues(purpose, "disabled").Inc()
		return "", ErrDisabled
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, messages)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.LLMRequests.WithLabelValues(purpose, outcome).Inc()
		c.log.Warn("completion failed",
			zap.String("purpose", purpose),
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	metrics.LLMRequests.WithLabelValues(purpose, "success").Inc()
	c.log.Debug("completion finished",
		zap.String("purpose", purpose),
		zap.Duration("duration", time.Since(start)),
	)
	return result.(string), nil
}

func (c *Client) send(ctx context.Context, messages []Message) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("provider error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("no completion returned")
	}

	reply := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("empty completion")
	}
	return reply, nil
}
