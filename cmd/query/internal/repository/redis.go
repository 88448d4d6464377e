package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// Key and channel layout written by the stream processor.
const (
	keyPrefix     = "price:"
	channelPrefix = "prices."
)

var _ PriceStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	pubsub *redis.PubSub
	mu     sync.Mutex // serializes Subscribe/Unsubscribe on the shared pubsub
}

func NewRedisStore(client *redis.Client) *RedisStore {
	ps := client.Subscribe(context.Background())
	return &RedisStore{
		client: client,
		pubsub: ps,
	}
}

// GetEntry fetches the materialized view entry for a single symbol.
// The second return value is false when no price has been recorded yet.
func (r *RedisStore) GetEntry(ctx context.Context, symbol string) (models.ViewEntry, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+symbol).Result()
	if errors.Is(err, redis.Nil) {
		return models.ViewEntry{}, false, nil
	}
	if err != nil {
		return models.ViewEntry{}, false, err
	}

	var entry models.ViewEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return models.ViewEntry{}, false, err
	}
	return entry, true, nil
}

// GetSnapshots fetches the latest stored payloads for a list of symbols (MGET).
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, val := range results {
		if payload, ok := val.(string); ok && payload != "" {
			snapshots = append(snapshots, payload)
		}
	}
	return snapshots, nil
}

// SubscribeToFeed starts receiving live updates for the symbol's channel.
func (r *RedisStore) SubscribeToFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pubsub.Subscribe(ctx, channelPrefix+symbol)
}

// UnsubscribeFromFeed stops live updates for the symbol's channel.
func (r *RedisStore) UnsubscribeFromFeed(ctx context.Context, symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pubsub.Unsubscribe(ctx, channelPrefix+symbol)
}

// RunPubSub blocks, reading published updates and invoking the callback with
// the symbol (recovered from the channel name) and the raw payload.
func (r *RedisStore) RunPubSub(ctx context.Context, onMessage func(symbol string, payload string)) {
	ch := r.pubsub.Channel()

	for msg := range ch {
		symbol, ok := strings.CutPrefix(msg.Channel, channelPrefix)
		if !ok || symbol == "" {
			continue
		}
		onMessage(symbol, msg.Payload)
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}
