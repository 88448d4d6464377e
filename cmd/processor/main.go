package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/processor/internal/consumer"
	"github.com/vineet4007/crypto-streaming-platform/cmd/processor/internal/view"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	startOffset := kafka.LastOffset
	if cfg.Processor.StartOffset == "earliest" {
		startOffset = kafka.FirstOffset
	}

	newFetcher := func() consumer.Fetcher {
		return &consumer.ReaderFetcher{Reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.TradeTopic,
			GroupID:     cfg.Kafka.GroupID,
			StartOffset: startOffset,
			MinBytes:    200,
			MaxBytes:    10e6,
			MaxWait:     200 * time.Millisecond,
			// Rebalancing: 3s heartbeat, 10s session timeout for responsive scaling
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    10 * time.Second,
		})}
	}

	store := view.NewRedisSink(view.NewMemory(), rdb, logger)

	proc := consumer.NewConsumer(logger, store, newFetcher, consumer.RealClock{}, cfg.Processor.DedupWindow)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		logger.Info("Processor Started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.TradeTopic),
			zap.String("start_offset", cfg.Processor.StartOffset),
		)
		proc.Run(ctx)
		close(done)
	}()

	<-sigChan
	logger.Info("Shutdown signal received, stopping processor...")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out waiting for consumer to drain")
	}

	logger.Info("Closing Redis...")
	rdb.Close()

	logger.Info("Processor exited cleanly",
		zap.Int64("applied", proc.Applied()),
		zap.Int64("malformed_dropped", proc.DroppedMalformed()),
	)
}
