package models

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// TradeEvent is the canonical form of a single market tick, as published to
// the trade topic. Price and Quantity use decimals so values survive the
// JSON round-trip without float drift.
type TradeEvent struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	EventTime int64           `json:"eventTime"` // origin timestamp, unix millis
	Source    string          `json:"source"`
	IngestID  string          `json:"ingestId,omitempty"` // origin trade id, empty if the feed has none
}

var (
	ErrEmptySymbol   = errors.New("symbol is empty")
	ErrNegativePrice = errors.New("price is negative")
	ErrNegativeQty   = errors.New("quantity is negative")
	ErrBadEventTime  = errors.New("event time is not positive")
)

// Normalize uppercases the symbol so every downstream key agrees.
func (t *TradeEvent) Normalize() {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
}

// Validate rejects events that would corrupt the view: empty merge key,
// negative amounts, or a missing origin timestamp.
func (t *TradeEvent) Validate() error {
	if t.Symbol == "" {
		return ErrEmptySymbol
	}
	if t.Price.IsNegative() {
		return ErrNegativePrice
	}
	if t.Quantity.IsNegative() {
		return ErrNegativeQty
	}
	if t.EventTime <= 0 {
		return ErrBadEventTime
	}
	return nil
}
