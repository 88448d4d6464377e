package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

const maxRetryBackoff = 10 * time.Second

// Publisher writes trade events to the log, keyed by symbol so every
// record for one symbol lands on the same partition in order. Writes are
// synchronous: when the broker is slow the caller blocks, which is the
// backpressure path back to the feed adapter's bounded buffer.
type Publisher struct {
	logger       *zap.Logger
	writer       KafkaWriter
	clock        Clock
	maxAttempts  int
	retryBackoff time.Duration
}

func NewPublisher(logger *zap.Logger, writer KafkaWriter, clock Clock, maxAttempts int, retryBackoff time.Duration) *Publisher {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Publisher{
		logger:       logger,
		writer:       writer,
		clock:        clock,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
	}
}

// Publish appends one event to the log. Transient broker errors are
// retried with exponential backoff up to the attempt budget; the caller
// gets a *PublishError when the budget is spent, never a silent drop.
func (p *Publisher) Publish(ctx context.Context, event models.TradeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return &PublishError{Kind: KindRejected, Symbol: event.Symbol, Attempts: 0, Err: err}
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol), // Key ensures partition ordering
		Value: payload,
	}

	backoff := p.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("Publish recovered after retry", zap.String("symbol", event.Symbol), zap.Int("attempt", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isTransient(err) {
			return &PublishError{Kind: KindRejected, Symbol: event.Symbol, Attempts: attempt, Err: err}
		}

		lastErr = err
		p.logger.Warn("Transient publish error, retrying",
			zap.String("symbol", event.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if attempt < p.maxAttempts {
			p.clock.Sleep(backoff)
			backoff *= 2
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		}
	}

	return &PublishError{Kind: KindExhausted, Symbol: event.Symbol, Attempts: p.maxAttempts, Err: lastErr}
}

func (p *Publisher) Close() error { return p.writer.Close() }

// isTransient decides whether another attempt can succeed. Broker-side
// errors carry their own retryable flag; network-level failures (dial,
// reset, timeout) are always worth retrying.
func isTransient(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return true
}
