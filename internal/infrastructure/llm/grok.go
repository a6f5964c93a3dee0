package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"CryptoNewsAnalyzer/internal/config"
	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/metrics"
	"CryptoNewsAnalyzer/internal/ports"
	"CryptoNewsAnalyzer/internal/retry"
)

const probeTimeout = 10 * time.Second

// GrokClient implements ports.Classifier backed by an OpenAI-compatible chat completions API.
type GrokClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	useWebSearch bool
	temperature  float64
	maxTokens    int
	policy       retry.Policy
	sleep        retry.Sleeper
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ ports.Classifier = (*GrokClient)(nil)

// Option customises a GrokClient.
type Option func(*GrokClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *GrokClient) { c.httpClient = hc }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *GrokClient) { c.sleep = s }
}

// NewGrokClient builds a client from configuration.
func NewGrokClient(cfg config.GrokConfig, logger *slog.Logger, opts ...Option) *GrokClient {
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = retry.DefaultPolicy.BaseDelay
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = retry.DefaultPolicy.MaxAttempts
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	c := &GrokClient{
		endpoint:     strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: prompt,
		useWebSearch: cfg.UseWebSearch,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		policy: retry.Policy{
			MaxAttempts: attempts,
			BaseDelay:   base,
			MaxDelay:    retry.DefaultPolicy.MaxDelay,
		},
		sleep:      retry.ContextSleeper,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchParameters struct {
	Mode string `json:"mode"`
}

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []chatMessage     `json:"messages"`
	Temperature      float64           `json:"temperature"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	SearchParameters *searchParameters `json:"search_parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type postPayload struct {
	Text string `json:"text"`
}

// attemptError is one failed round trip with its coarse cause.
type attemptError struct {
	cause domain.FailureCause
	err   error
}

func (e *attemptError) Error() string { return fmt.Sprintf("%s: %v", e.cause, e.err) }

func (e *attemptError) Unwrap() error { return e.err }

// Classify returns exactly one classification per post, in input order.
func (c *GrokClient) Classify(ctx context.Context, posts []domain.Post) ([]domain.Classification, error) {
	if len(posts) == 0 {
		return []domain.Classification{}, nil
	}

	payload := make([]postPayload, len(posts))
	for i, p := range posts {
		payload[i] = postPayload{Text: cleanText(p.Text)}
	}
	userContent, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal posts: %w", domain.ErrClassifier, err)
	}
	req := c.buildRequest(string(userContent))

	var items []json.RawMessage
	err = retry.Do(ctx, c.policy, c.sleep, isRetryable, func(ctx context.Context, attempt int) error {
		started := time.Now()
		got, err := c.complete(ctx, req)
		metrics.ClassifierLatency.Observe(time.Since(started).Seconds())
		if err != nil {
			metrics.ClassifierAttempts.WithLabelValues(string(causeOf(err))).Inc()
			c.logger.Warn("classification attempt failed",
				"attempt", attempt+1,
				"max_attempts", c.policy.MaxAttempts,
				"error", err,
			)
			return err
		}
		metrics.ClassifierAttempts.WithLabelValues("ok").Inc()
		items = got
		return nil
	})
	if err != nil {
		var exhausted *retry.Exhausted
		attempts := 1
		last := err
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
			last = exhausted.Last
		}
		cause := causeOf(last)
		return nil, &domain.ClassificationError{
			Attempts:  attempts,
			Cause:     cause,
			Retryable: cause.Transient(),
			Err:       last,
		}
	}

	if len(items) != len(posts) {
		c.logger.Warn("classifier returned mismatched count",
			"expected", len(posts),
			"got", len(items),
		)
	}
	return repair(items, len(posts)), nil
}

// TestConnection issues a minimal request and reports whether a JSON array came back.
func (c *GrokClient) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: probePrompt},
			{Role: "user", Content: "[]"},
		},
		MaxTokens: 16,
	}
	if _, err := c.complete(ctx, req); err != nil {
		c.logger.Warn("classifier connection test failed", "error", err)
		return false
	}
	return true
}

func (c *GrokClient) buildRequest(userContent string) chatRequest {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if c.useWebSearch {
		req.SearchParameters = &searchParameters{Mode: "auto"}
	}
	return req
}

func (c *GrokClient) complete(ctx context.Context, payload chatRequest) ([]json.RawMessage, error) {
	if c.apiKey == "" || c.model == "" {
		return nil, &attemptError{cause: domain.CauseAuth, err: errors.New("grok client misconfigured")}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &attemptError{cause: domain.CauseMalformed, err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &attemptError{cause: domain.CauseNetwork, err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &attemptError{cause: transportCause(err), err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &attemptError{
			cause: statusCause(resp.StatusCode, string(msg)),
			err:   fmt.Errorf("grok error %s: %s", resp.Status, strings.TrimSpace(string(msg))),
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &attemptError{cause: domain.CauseMalformed, err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return nil, &attemptError{cause: domain.CauseMalformed, err: errors.New("empty response content")}
	}

	items, err := parseArray(decoded.Choices[0].Message.Content)
	if err != nil {
		return nil, &attemptError{cause: domain.CauseMalformed, err: err}
	}
	return items, nil
}

func isRetryable(err error) bool {
	return causeOf(err).Transient()
}

func causeOf(err error) domain.FailureCause {
	var ae *attemptError
	if errors.As(err, &ae) {
		return ae.cause
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CauseTimeout
	}
	return domain.CauseNetwork
}

func statusCause(status int, body string) domain.FailureCause {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.CauseAuth
	case status == http.StatusPaymentRequired:
		return domain.CauseQuota
	case status == http.StatusTooManyRequests:
		if strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient") || strings.Contains(lower, "credit") {
			return domain.CauseQuota
		}
		return domain.CauseRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.CauseTimeout
	default:
		return domain.CauseNetwork
	}
}

func transportCause(err error) domain.FailureCause {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.CauseTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.CauseTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return domain.CauseConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.CauseConnection
	}
	return domain.CauseNetwork
}
