package models

import "github.com/shopspring/decimal"

// ViewEntry is the latest known value for one symbol. It is stored as a
// single JSON document in Redis so readers always see price and event time
// replaced together, never a half-written pair.
type ViewEntry struct {
	Symbol            string          `json:"symbol"`
	Price             decimal.Decimal `json:"price"`
	EventTime         int64           `json:"eventTime"`
	LastAppliedOffset int64           `json:"lastAppliedOffset"`
}
