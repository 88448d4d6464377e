package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/processor/internal/view"
	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

const (
	reconnectBase = 1 * time.Second
	reconnectCap  = 30 * time.Second
)

// Consumer tails the trade log and folds every record into the view.
// One pull-apply loop, no concurrent handlers: per-partition order is
// preserved and cancellation has a single suspension point (the fetch).
type Consumer struct {
	logger     Logger
	store      view.Store
	newFetcher FetcherFactory
	clock      Clock
	dedup      *dedupWindow

	state     State
	malformed atomic.Int64
	skipped   atomic.Int64
	applied   atomic.Int64
}

func NewConsumer(logger Logger, store view.Store, newFetcher FetcherFactory, clock Clock, dedupWindowSize int) *Consumer {
	return &Consumer{
		logger:     logger,
		store:      store,
		newFetcher: newFetcher,
		clock:      clock,
		dedup:      newDedupWindow(dedupWindowSize),
		state:      StateDisconnected,
	}
}

// State reports the current lifecycle state. Safe for logging and health
// checks; it is only written from the Run goroutine.
func (c *Consumer) State() State { return c.state }

// DroppedMalformed is the count of log records skipped because their
// payload failed schema validation.
func (c *Consumer) DroppedMalformed() int64 { return c.malformed.Load() }

// Applied is the count of records that changed the view.
func (c *Consumer) Applied() int64 { return c.applied.Load() }

// Run subscribes, consumes until the subscription fails, and resubscribes
// with backoff. It returns only when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := reconnectBase

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.transition(StateSubscribing)
		fetcher := c.newFetcher()

		err := c.consume(ctx, fetcher)

		if closeErr := fetcher.Close(); closeErr != nil {
			c.logger.Warn("Error closing log subscription", zap.Error(closeErr))
		}
		c.transition(StateDisconnected)

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			c.logger.Info("Consumer stopped")
			return nil
		}

		// Transient: log connection lost. The view simply stops
		// updating until the subscription is back.
		c.logger.Warn("Log connection lost, resubscribing", zap.Error(err), zap.Duration("backoff", backoff))
		c.clock.Sleep(backoff)
		backoff *= 2
		if backoff > reconnectCap {
			backoff = reconnectCap
		}
	}
}

func (c *Consumer) consume(ctx context.Context, fetcher Fetcher) error {
	c.transition(StateCatchingUp)

	for {
		m, err := fetcher.FetchMessage(ctx)
		if err != nil {
			return err
		}

		c.apply(m.Partition, m.Offset, m.Value)

		// Commit after apply: a crash here replays the record, which
		// the merge rule absorbs.
		if err := fetcher.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Offset commit failed", zap.Error(err), zap.Int64("offset", m.Offset))
		}

		if lag := fetcher.Lag(); lag <= 0 {
			c.transition(StateLive)
		} else {
			c.transition(StateCatchingUp)
		}
	}
}

func (c *Consumer) apply(partition int, offset int64, payload []byte) {
	var trade models.TradeEvent
	if err := json.Unmarshal(payload, &trade); err != nil {
		c.malformed.Add(1)
		c.logger.Error("Malformed log record skipped", zap.Error(err), zap.Int64("offset", offset))
		return
	}
	trade.Normalize()
	if err := trade.Validate(); err != nil {
		c.malformed.Add(1)
		c.logger.Error("Invalid trade skipped", zap.Error(err), zap.Int64("offset", offset))
		return
	}

	if c.dedup.Seen(trade.IngestID) {
		c.skipped.Add(1)
		c.logger.Debug("Duplicate ingest id skipped", zap.String("symbol", trade.Symbol), zap.String("ingest_id", trade.IngestID))
		return
	}

	outcome := c.store.Apply(view.Record{Partition: partition, Offset: offset, Trade: trade})
	switch outcome {
	case view.Applied:
		c.applied.Add(1)
	case view.DuplicateOffset:
		c.skipped.Add(1)
	}
	c.logger.Debug("Record processed",
		zap.String("symbol", trade.Symbol),
		zap.Int64("offset", offset),
		zap.String("outcome", outcome.String()),
	)
}

func (c *Consumer) transition(next State) {
	if c.state == next {
		return
	}
	c.logger.Info("Consumer state changed",
		zap.String("from", c.state.String()),
		zap.String("to", next.String()),
	)
	c.state = next
}
