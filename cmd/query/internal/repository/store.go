package repository

import (
	"context"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// PriceStore is the read side of the materialized price view kept in Redis.
// GetEntry serves point lookups for the REST surface; the remaining methods
// back the websocket hub's fan-out (snapshots plus live pub/sub).
type PriceStore interface {
	GetEntry(ctx context.Context, symbol string) (models.ViewEntry, bool, error)
	GetSnapshots(ctx context.Context, symbols []string) ([]string, error)
	SubscribeToFeed(ctx context.Context, symbol string) error
	UnsubscribeFromFeed(ctx context.Context, symbol string) error
	RunPubSub(ctx context.Context, onMessage func(symbol string, payload string))
	Close() error
}
