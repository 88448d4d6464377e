package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// Config holds the adapter settings for one exchange feed.
type Config struct {
	Endpoint    string
	Source      string
	IdleTimeout time.Duration
	BufferSize  int
}

// Adapter owns the websocket lifecycle for one exchange feed: it connects,
// reconnects with jittered exponential backoff, and turns raw frames into
// trade events on a bounded buffer.
//
// The buffer never blocks the read loop. When it is full the oldest
// buffered event is evicted to make room: for a latest-price view a fresh
// tick is always worth more than a stale one.
type Adapter struct {
	logger *zap.Logger
	dialer Dialer
	parser *Parser
	clock  Clock
	rand   Rand
	cfg    Config

	out chan models.TradeEvent

	droppedMalformed atomic.Int64
	droppedOverflow  atomic.Int64
	lastFrame        atomic.Int64 // unix nanos of last received frame
}

func NewAdapter(logger *zap.Logger, dialer Dialer, clock Clock, rnd Rand, cfg Config) *Adapter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &Adapter{
		logger: logger,
		dialer: dialer,
		parser: NewParser(cfg.Source),
		clock:  clock,
		rand:   rnd,
		cfg:    cfg,
		out:    make(chan models.TradeEvent, cfg.BufferSize),
	}
}

// Events is the adapter's output stream. It is closed when Run returns.
func (a *Adapter) Events() <-chan models.TradeEvent { return a.out }

// DroppedMalformed is the count of frames dropped for schema violations.
func (a *Adapter) DroppedMalformed() int64 { return a.droppedMalformed.Load() }

// DroppedOverflow is the count of events evicted under backpressure.
func (a *Adapter) DroppedOverflow() int64 { return a.droppedOverflow.Load() }

// Run drives the connect/read/reconnect loop until ctx is cancelled.
// Disconnects are expected transient states, logged and retried; they
// never propagate out.
func (a *Adapter) Run(ctx context.Context) {
	defer close(a.out)

	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := a.dialer.DialContext(ctx, a.cfg.Endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("Feed dial failed", zap.String("endpoint", a.cfg.Endpoint), zap.Duration("backoff", backoff), zap.Error(err))
			a.sleepJittered(ctx, backoff)
			backoff = nextBackoff(backoff)
			continue
		}

		frames := a.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		if frames > 0 {
			// a session that delivered data resets the backoff
			backoff = backoffBase
		}
		a.logger.Warn("Feed disconnected, reconnecting",
			zap.String("endpoint", a.cfg.Endpoint),
			zap.Int64("frames", frames),
			zap.Duration("backoff", backoff),
		)
		a.sleepJittered(ctx, backoff)
		backoff = nextBackoff(backoff)
	}
}

// readLoop consumes one connection until it fails, returning how many
// frames it saw. A healthy connection is one that has produced at least
// one frame since the handshake.
func (a *Adapter) readLoop(ctx context.Context, conn Conn) int64 {
	a.lastFrame.Store(a.clock.Now().UnixNano())

	// The transport-level deadline is what actually detects a dead peer;
	// the idle window below only warns.
	deadline := 2 * a.cfg.IdleTimeout
	conn.SetReadDeadline(a.clock.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(a.clock.Now().Add(deadline))
	})

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go a.watchdog(ctx, conn, watchdogDone)

	var frames int64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("Feed read error", zap.Error(err))
			}
			return frames
		}

		frames++
		if frames == 1 {
			a.logger.Info("Feed connected", zap.String("endpoint", a.cfg.Endpoint))
		}
		a.lastFrame.Store(a.clock.Now().UnixNano())
		conn.SetReadDeadline(a.clock.Now().Add(deadline))

		event, err := a.parser.Parse(data)
		if err != nil {
			if errors.Is(err, errControlFrame) {
				continue
			}
			a.droppedMalformed.Add(1)
			a.logger.Debug("Malformed frame dropped", zap.Error(err))
			continue
		}

		a.emit(event)
	}
}

// watchdog pings the peer and warns when the feed goes quiet. Silence
// alone is not a reconnect trigger; only the transport deadline is.
func (a *Adapter) watchdog(ctx context.Context, conn Conn, done <-chan struct{}) {
	interval := a.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			// force the blocked ReadMessage to return
			conn.Close()
			return
		case <-ticker.C:
			conn.WriteControl(websocket.PingMessage, nil, a.clock.Now().Add(5*time.Second))
			idle := time.Duration(a.clock.Now().UnixNano() - a.lastFrame.Load())
			if idle > a.cfg.IdleTimeout {
				a.logger.Warn("Feed idle, no frames received",
					zap.Duration("idle", idle),
					zap.Duration("threshold", a.cfg.IdleTimeout),
				)
			}
		}
	}
}

// emit hands an event to the publisher side without ever blocking the
// read loop. Drop-oldest under overflow.
func (a *Adapter) emit(event models.TradeEvent) {
	select {
	case a.out <- event:
		return
	default:
	}

	select {
	case <-a.out:
		a.droppedOverflow.Add(1)
	default:
	}

	select {
	case a.out <- event:
	default:
		a.droppedOverflow.Add(1)
	}
}

func (a *Adapter) sleepJittered(ctx context.Context, d time.Duration) {
	if ctx.Err() != nil {
		return
	}
	// full jitter: sleep a uniform fraction of the backoff window
	a.clock.Sleep(time.Duration(a.rand.Float64() * float64(d)))
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		d = backoffCap
	}
	return d
}
