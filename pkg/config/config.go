package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for every service in the pipeline. Each
// service reads only the sections it needs.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Producer  ProducerConfig  `mapstructure:"producer"`
	Processor ProcessorConfig `mapstructure:"processor"`
	News      NewsConfig      `mapstructure:"news"`
	Query     QueryConfig     `mapstructure:"query"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	TradeTopic string   `mapstructure:"trade_topic"`
	NewsTopic  string   `mapstructure:"news_topic"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FeedConfig configures the exchange websocket adapter.
type FeedConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Source      string        `mapstructure:"source"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	BufferSize  int           `mapstructure:"buffer_size"`
}

type ProducerConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type ProcessorConfig struct {
	// StartOffset is the resume policy when no committed group offset
	// exists: "earliest" or "latest".
	StartOffset string `mapstructure:"start_offset"`
	DedupWindow int    `mapstructure:"dedup_window"`
}

type NewsConfig struct {
	FeedURL      string        `mapstructure:"feed_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type QueryConfig struct {
	ValidSymbols []string `mapstructure:"valid_symbols"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	// This ensures variables like APP_PORT are available as real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults (12-Factor App: Dev/Prod Parity)
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.trade_topic", "raw.trades")
	v.SetDefault("kafka.news_topic", "news.events")
	v.SetDefault("kafka.group_id", "stream-processor")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("feed.endpoint", "wss://stream.binance.com:9443/ws/btcusdt@trade")
	v.SetDefault("feed.source", "binance")
	v.SetDefault("feed.idle_timeout", 60*time.Second)
	v.SetDefault("feed.buffer_size", 1024)

	v.SetDefault("producer.max_attempts", 5)
	v.SetDefault("producer.retry_backoff", 500*time.Millisecond)

	v.SetDefault("processor.start_offset", "latest")
	v.SetDefault("processor.dedup_window", 4096)

	v.SetDefault("news.feed_url", "https://www.investing.com/rss/news_285.rss")
	v.SetDefault("news.poll_interval", time.Minute)

	v.SetDefault("query.valid_symbols", []string{"BTCUSDT", "ETHUSDT"})

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "feed.endpoint" -> "FEED_ENDPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	// This is crucial for Viper to map flat Env Vars (APP_PORT) to nested structs (App.Port)
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level")
	bindEnv(v, "kafka.brokers", "kafka.trade_topic", "kafka.news_topic", "kafka.group_id", "kafka.partitions")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "feed.endpoint", "feed.source", "feed.idle_timeout", "feed.buffer_size")
	bindEnv(v, "producer.max_attempts", "producer.retry_backoff")
	bindEnv(v, "processor.start_offset", "processor.dedup_window")
	bindEnv(v, "news.feed_url", "news.poll_interval")
	bindEnv(v, "query.valid_symbols")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation — misconfiguration must fail here, before any
	// connection is attempted
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Feed.Endpoint == "" {
		return nil, fmt.Errorf("feed endpoint cannot be empty")
	}
	if cfg.News.FeedURL == "" {
		return nil, fmt.Errorf("news feed url cannot be empty")
	}
	if s := cfg.Processor.StartOffset; s != "earliest" && s != "latest" {
		return nil, fmt.Errorf("processor start_offset must be 'earliest' or 'latest', got %q", s)
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
