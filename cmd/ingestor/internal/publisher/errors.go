package publisher

import "fmt"

// Kind classifies why a publish gave up.
type Kind int

const (
	// KindExhausted means the retry budget was spent on transient
	// broker errors. The event was not written; the caller decides
	// whether to drop, buffer, or alert.
	KindExhausted Kind = iota
	// KindRejected means the broker refused the message for a
	// non-retryable reason (e.g., message too large).
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindExhausted:
		return "exhausted"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// PublishError reports a publish that did not reach the log.
type PublishError struct {
	Kind     Kind
	Symbol   string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %s after %d attempt(s): %v", e.Symbol, e.Kind, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
