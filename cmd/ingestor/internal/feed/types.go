package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// for deterministic backoff jitter
type Rand interface {
	Float64() float64
}

// Conn is the slice of a websocket connection the adapter uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a websocket connection to the feed endpoint.
type Dialer interface {
	DialContext(ctx context.Context, endpoint string) (Conn, error)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// GorillaDialer adapts *websocket.Dialer to the Dialer interface
type GorillaDialer struct{ *websocket.Dialer }

func (d GorillaDialer) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	conn, _, err := d.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
