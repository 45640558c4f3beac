// Package llm provides the OpenRouter-compatible chat completion client
// used by planning, agent reasoning, and synthesis.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lancerhq/lancer/pkg/domain"
)

const (
	refererHeader = "https://github.com/lancerhq/lancer"
	titleHeader   = "Lancer"

	maxRetries = 3
)

// Client talks to an OpenAI-compatible chat completions endpoint.
// Transient upstream errors are retried with exponential backoff.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client

	retryInitial time.Duration
	retryMax     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient creates an LLM client for the given endpoint and default model.
func NewClient(baseURL, apiKey, model string, temperature float64, maxTokens int, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},

		retryInitial: 2 * time.Second,
		retryMax:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type chatCompletion struct {
	Choices []chatChoice     `json:"choices"`
	Usage   domain.TokenUsage `json:"usage"`
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// statusError distinguishes retryable HTTP failures from permanent ones.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm: status %d: %s", e.code, e.body)
}

func (c *Client) resolve(opts domain.ChatOptions) (model string, temperature float64, maxTokens int) {
	model = c.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature = c.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens = c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return model, temperature, maxTokens
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", refererHeader)
	req.Header.Set("X-Title", titleHeader)
	return req, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxInterval = c.retryMax
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries-1), ctx)
}

// Chat implements domain.LLMClient.
func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("llm: api key not set: %w", domain.ErrConfig)
	}
	model, temperature, maxTokens := c.resolve(opts)
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: failed to encode request: %w", err)
	}

	var completion chatCompletion
	operation := func() error {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &statusError{code: resp.StatusCode, body: string(raw)}
			if retryableStatus(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}

		if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
			return backoff.Permanent(fmt.Errorf("llm: failed to decode response: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return nil, err
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm: response contained no choices")
	}

	return &domain.ChatResponse{
		Content:      completion.Choices[0].Message.Content,
		Usage:        completion.Usage,
		FinishReason: completion.Choices[0].FinishReason,
	}, nil
}

// Stream implements domain.LLMClient. Chunks are delivered on the returned
// channel; the final chunk has Done set and the channel is then closed.
func (c *Client) Stream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.ChatStreamResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("llm: api key not set: %w", domain.ErrConfig)
	}
	model, temperature, maxTokens := c.resolve(opts)
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: failed to encode request: %w", err)
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: string(raw)}
	}

	out := make(chan domain.ChatStreamResponse)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				out <- domain.ChatStreamResponse{Done: true}
				return
			}

			var chunk chatCompletion
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				// Skip malformed keep-alive fragments.
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}

			select {
			case out <- domain.ChatStreamResponse{Content: content}:
			case <-ctx.Done():
				out <- domain.ChatStreamResponse{Done: true, Err: ctx.Err()}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			out <- domain.ChatStreamResponse{Done: true, Err: fmt.Errorf("llm: stream read failed: %w", err)}
			return
		}
		out <- domain.ChatStreamResponse{Done: true}
	}()

	return out, nil
}
