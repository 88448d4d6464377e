package consumer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Logger abstracts the logging library
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	Sync() error
}

// Fetcher abstracts one subscription to the log: fetch records, commit
// offsets, report lag. A real implementation wraps kafka.Reader.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Lag() int64
	Close() error
}

// FetcherFactory dials a fresh subscription. The consumer calls it on
// start and after every disconnect.
type FetcherFactory func() Fetcher

// Clock is swapped for a fake in tests so reconnect backoff is instant
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// ReaderFetcher adapts a *kafka.Reader to the Fetcher interface
type ReaderFetcher struct{ *kafka.Reader }

func (r *ReaderFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return r.Reader.FetchMessage(ctx)
}

func (r *ReaderFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return r.Reader.CommitMessages(ctx, msgs...)
}

// Lag reads the reader's lag gauge. Group readers keep it current as
// messages are fetched.
func (r *ReaderFetcher) Lag() int64 { return r.Reader.Stats().Lag }

func (r *ReaderFetcher) Close() error { return r.Reader.Close() }
