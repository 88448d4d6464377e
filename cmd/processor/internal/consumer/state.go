package consumer

// State is the consumer's position in its connection lifecycle.
//
//	Disconnected -> Subscribing -> CatchingUp -> Live
//
// Any fetch failure drops back to Disconnected; Live returns to
// CatchingUp whenever the log end moves faster than records are applied.
type State int

const (
	StateDisconnected State = iota
	StateSubscribing
	StateCatchingUp
	StateLive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSubscribing:
		return "subscribing"
	case StateCatchingUp:
		return "catching_up"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}
