package view

import (
	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// Record is one committed log record as handed to the view: the
// log-assigned position plus the decoded trade.
type Record struct {
	Partition int
	Offset    int64
	Trade     models.TradeEvent
}

// Outcome reports what applying a record did to the view.
type Outcome int

const (
	// Applied means price and event time were replaced.
	Applied Outcome = iota
	// StaleEventTime means the record was a late tick from an earlier
	// real-world instant: the offset advanced but the price was kept.
	StaleEventTime
	// DuplicateOffset means the record was already applied (replay or
	// duplicate delivery) and nothing changed.
	DuplicateOffset
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case StaleEventTime:
		return "stale_event_time"
	case DuplicateOffset:
		return "duplicate_offset"
	default:
		return "unknown"
	}
}

// Store is the latest-value-per-symbol cache. Single writer (the consumer
// loop), many readers.
type Store interface {
	Get(symbol string) (models.ViewEntry, bool)
	Apply(rec Record) Outcome
	Symbols() []string
	// SetCapacity bounds the number of symbols kept; 0 means unbounded.
	SetCapacity(n int)
}
