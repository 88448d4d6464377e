package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/feed"
	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/publisher"
	"github.com/vineet4007/crypto-streaming-platform/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Ensure the trade topic exists before the first publish
	creator := publisher.NewTopicCreator(logger, &publisher.RealKafkaDialer{Dialer: kafka.DefaultDialer}, publisher.RealClock{})
	creator.Ensure(cfg.Kafka.Brokers, cfg.Kafka.TradeTopic, cfg.Kafka.Partitions)

	// Synchronous writer: a slow broker blocks Publish, which is the
	// backpressure boundary protecting the adapter's bounded buffer
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.TradeTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	pub := publisher.NewPublisher(logger, writer, publisher.RealClock{}, cfg.Producer.MaxAttempts, cfg.Producer.RetryBackoff)

	wsDialer := *websocket.DefaultDialer
	wsDialer.HandshakeTimeout = 10 * time.Second

	adapter := feed.NewAdapter(
		logger,
		feed.GorillaDialer{Dialer: &wsDialer},
		feed.RealClock{},
		feed.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		feed.Config{
			Endpoint:    cfg.Feed.Endpoint,
			Source:      cfg.Feed.Source,
			IdleTimeout: cfg.Feed.IdleTimeout,
			BufferSize:  cfg.Feed.BufferSize,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	adapterDone := make(chan struct{})
	go func() {
		logger.Info("Ingestor Started",
			zap.String("endpoint", cfg.Feed.Endpoint),
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.TradeTopic),
		)
		adapter.Run(ctx)
		close(adapterDone)
	}()

	publishDone := make(chan struct{})
	go func() {
		defer close(publishDone)
		var exhaustedDrops int64
		for event := range adapter.Events() {
			if err := pub.Publish(ctx, event); err != nil {
				var pubErr *publisher.PublishError
				if errors.As(err, &pubErr) {
					// retry budget spent; drop with a count rather
					// than buffering unbounded
					exhaustedDrops++
					logger.Error("Publish gave up, dropping event",
						zap.String("symbol", pubErr.Symbol),
						zap.String("kind", pubErr.Kind.String()),
						zap.Int64("dropped_total", exhaustedDrops),
						zap.Error(err),
					)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logger.Error("Publish failed", zap.Error(err))
			}
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received")
	cancel()

	select {
	case <-adapterDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out waiting for feed adapter")
	}
	<-publishDone

	// Flush Kafka Buffer (CRITICAL)
	if err := pub.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}

	logger.Info("Ingestor exited cleanly",
		zap.Int64("malformed_dropped", adapter.DroppedMalformed()),
		zap.Int64("overflow_dropped", adapter.DroppedOverflow()),
	)
}
