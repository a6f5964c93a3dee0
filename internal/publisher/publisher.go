package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/metrics"
	"CryptoNewsAnalyzer/internal/ports"
	"CryptoNewsAnalyzer/internal/retry"
)

const maxRetryAfter = time.Minute

// Publisher renders valuable pairs and delivers the messages in order.
type Publisher struct {
	renderer *Renderer
	sender   ports.ChatSender
	pacing   time.Duration
	sleep    retry.Sleeper
	logger   *slog.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

// Options tune delivery pacing.
type Options struct {
	Pacing time.Duration
	Sleep  retry.Sleeper
	Logger *slog.Logger
}

// New wires a renderer with a chat sender.
func New(renderer *Renderer, sender ports.ChatSender, opts Options) *Publisher {
	if opts.Sleep == nil {
		opts.Sleep = retry.ContextSleeper
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Publisher{
		renderer: renderer,
		sender:   sender,
		pacing:   opts.Pacing,
		sleep:    opts.Sleep,
		logger:   opts.Logger.With("component", "publisher"),
	}
}

// Publish sends every rendered message. Destination and sender failures abort the
// remaining sends; other failures are logged and skipped. Zero delivered messages
// out of a non-empty render is an error.
func (p *Publisher) Publish(ctx context.Context, pairs []domain.Pair) (domain.PublishResult, error) {
	messages := p.renderer.Render(pairs)
	result := domain.PublishResult{Messages: len(messages)}
	if len(messages) == 0 {
		p.logger.Info("nothing to publish")
		return result, nil
	}

	var lastErr error
	for i, msg := range messages {
		if i > 0 && p.pacing > 0 {
			if err := p.sleep(ctx, p.pacing); err != nil {
				return result, fmt.Errorf("%w: publish interrupted: %w", domain.ErrDelivery, err)
			}
		}

		err := p.send(ctx, msg)
		if err == nil {
			result.Sent++
			metrics.MessagesSent.WithLabelValues("sent").Inc()
			p.logger.Debug("message sent", "index", i+1, "total", len(messages), "length", Length(msg))
			continue
		}

		result.Failed++
		lastErr = err
		var de *domain.DeliveryError
		if errors.As(err, &de) {
			metrics.MessagesSent.WithLabelValues(string(de.Kind)).Inc()
			if de.Fatal() {
				p.logger.Error("publish aborted", "index", i+1, "kind", de.Kind, "error", err)
				return result, fmt.Errorf("publish aborted after %d of %d messages: %w", result.Sent, len(messages), err)
			}
		} else {
			metrics.MessagesSent.WithLabelValues("error").Inc()
		}
		p.logger.Warn("message delivery failed", "index", i+1, "total", len(messages), "error", err)
	}

	if result.Sent == 0 {
		return result, fmt.Errorf("%w: none of %d messages delivered: %w", domain.ErrDelivery, len(messages), lastErr)
	}
	p.logger.Info("publish finished", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// send retries once when the API asks to back off for a bounded time.
func (p *Publisher) send(ctx context.Context, msg string) error {
	err := p.sender.Send(ctx, msg)
	var de *domain.DeliveryError
	if err == nil || !errors.As(err, &de) || de.Kind != domain.DeliveryRateLimited {
		return err
	}
	if de.RetryAfter <= 0 || de.RetryAfter > maxRetryAfter {
		return err
	}
	p.logger.Warn("rate limited, waiting", "retry_after", de.RetryAfter)
	if serr := p.sleep(ctx, de.RetryAfter); serr != nil {
		return err
	}
	return p.sender.Send(ctx, msg)
}
