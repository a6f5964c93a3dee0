package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CryptoNewsAnalyzer/internal/config"
	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/ports"
)

const testMessage = "*Тест криптоанализатора* 🧪\nСистема работает\\!"

// Client talks to the Telegram Bot API for one destination channel.
type Client struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
	logger   *slog.Logger
}

var (
	_ ports.ChatSender = (*Client)(nil)
	_ ports.ChatProbe  = (*Client)(nil)
)

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// NewClient registers bot token and channel identifier.
func NewClient(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &Client{
		baseURL:  base,
		botToken: cfg.BotToken,
		chatID:   cfg.ChannelID,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger.With("component", "telegram"),
	}
}

// Send posts a MarkdownV2 message with link previews disabled.
func (c *Client) Send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "MarkdownV2")
	form.Set("disable_web_page_preview", "true")

	_, err := c.call(ctx, "sendMessage", form)
	return err
}

// Identity returns the bot username reported by getMe.
func (c *Client) Identity(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return "", err
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(result, &me); err != nil {
		return "", &domain.DeliveryError{Kind: domain.DeliveryAPI, Err: fmt.Errorf("decode getMe: %w", err)}
	}
	return me.Username, nil
}

// SendTest delivers a short test message and reports success.
func (c *Client) SendTest(ctx context.Context) bool {
	if err := c.Send(ctx, testMessage); err != nil {
		c.logger.Warn("test message failed", "error", err)
		return false
	}
	c.logger.Info("test message sent", "chat_id", c.chatID)
	return true
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	if c.botToken == "" || c.chatID == "" || c.client == nil {
		return nil, &domain.DeliveryError{Kind: domain.DeliveryAPI, Description: "telegram client misconfigured"}
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &domain.DeliveryError{Kind: domain.DeliveryNetwork, Err: fmt.Errorf("new request: %w", err)}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.DeliveryError{Kind: domain.DeliveryNetwork, Err: fmt.Errorf("do request: %w", redactToken(err, c.botToken))}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.DeliveryError{Kind: domain.DeliveryNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	var decoded apiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &domain.DeliveryError{Kind: kindFor(resp.StatusCode, ""), Description: resp.Status}
		}
		return nil, &domain.DeliveryError{Kind: domain.DeliveryAPI, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK || !decoded.OK {
		code := decoded.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return nil, &domain.DeliveryError{
			Kind:        kindFor(code, decoded.Description),
			Description: decoded.Description,
			RetryAfter:  time.Duration(decoded.Parameters.RetryAfter) * time.Second,
		}
	}
	return decoded.Result, nil
}

func kindFor(code int, description string) domain.DeliveryFailure {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "chat not found"):
		return domain.DeliveryDestinationNotFound
	case code == http.StatusForbidden &&
		(strings.Contains(lower, "blocked") || strings.Contains(lower, "kicked") || strings.Contains(lower, "deactivated")):
		return domain.DeliverySenderBlocked
	case strings.Contains(lower, "message is too long"):
		return domain.DeliveryMessageTooLong
	case code == http.StatusTooManyRequests:
		return domain.DeliveryRateLimited
	case code >= http.StatusInternalServerError:
		return domain.DeliveryNetwork
	default:
		return domain.DeliveryAPI
	}
}

// redactToken keeps the bot token out of logged transport errors.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
