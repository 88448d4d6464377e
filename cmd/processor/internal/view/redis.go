package view

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

const (
	keyPrefix     = "price:"
	channelPrefix = "prices."
)

// Key returns the Redis key a symbol's entry is stored under.
func Key(symbol string) string { return keyPrefix + symbol }

// Channel returns the pub/sub channel a symbol's updates fan out on.
func Channel(symbol string) string { return channelPrefix + symbol }

// RedisClient abstracts the Redis connection for the write-through sink
type RedisClient interface {
	Pipeline() redis.Pipeliner
}

// Compile-time check to ensure RedisSink implements Store
var _ Store = (*RedisSink)(nil)

// RedisSink wraps an in-process Store and mirrors every state change into
// Redis. The whole entry is written as one JSON value per key, so readers
// never observe price and event time from different updates. A failed
// write is logged and healed by the next applied record for that symbol.
type RedisSink struct {
	inner  Store
	rdb    RedisClient
	logger *zap.Logger
}

func NewRedisSink(inner Store, rdb RedisClient, logger *zap.Logger) *RedisSink {
	return &RedisSink{inner: inner, rdb: rdb, logger: logger}
}

func (s *RedisSink) Get(symbol string) (models.ViewEntry, bool) {
	return s.inner.Get(symbol)
}

func (s *RedisSink) Apply(rec Record) Outcome {
	outcome := s.inner.Apply(rec)
	if outcome == DuplicateOffset {
		return outcome
	}

	symbol := rec.Trade.Symbol
	entry, ok := s.inner.Get(symbol)
	if !ok {
		// evicted between apply and read; nothing to mirror
		return outcome
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("Marshal view entry failed", zap.Error(err), zap.String("symbol", symbol))
		return outcome
	}

	// Background context: an in-flight mirror write should not be cut
	// short by consumer shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, Key(symbol), payload, 0)
	if outcome == Applied {
		pipe.Publish(ctx, Channel(symbol), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", symbol))
	}
	return outcome
}

func (s *RedisSink) Symbols() []string { return s.inner.Symbols() }

func (s *RedisSink) SetCapacity(n int) { s.inner.SetCapacity(n) }
