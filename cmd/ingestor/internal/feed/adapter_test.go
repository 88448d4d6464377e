package feed_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/feed"
	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/testutils"
	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
	"go.uber.org/zap"
)

func tradeFrame(symbol, price string, eventTime int64) []byte {
	return []byte(`{"e":"trade","s":"` + symbol + `","t":1,"p":"` + price + `","q":"0.5","T":` + strconv.FormatInt(eventTime, 10) + `}`)
}

func newAdapter(dialer feed.Dialer, bufferSize int) *feed.Adapter {
	return feed.NewAdapter(zap.NewNop(), dialer, &testutils.MockClock{CurrentTime: time.Unix(0, 0)}, &testutils.MockRand{ValFloat: 0.5}, feed.Config{
		Endpoint:    "wss://example/ws/btcusdt@trade",
		Source:      "binance",
		IdleTimeout: 60 * time.Second,
		BufferSize:  bufferSize,
	})
}

func collect(a *feed.Adapter) <-chan []models.TradeEvent {
	out := make(chan []models.TradeEvent, 1)
	go func() {
		var events []models.TradeEvent
		for ev := range a.Events() {
			events = append(events, ev)
		}
		out <- events
	}()
	return out
}

func TestAdapter_EmitsParsedTrades(t *testing.T) {
	conn := &testutils.ScriptedConn{Frames: [][]byte{
		tradeFrame("BTCUSDT", "65000.5", 1000),
		tradeFrame("BTCUSDT", "65010.0", 1001),
	}}
	dialer := &testutils.ScriptedDialer{Conns: []*testutils.ScriptedConn{conn}}
	a := newAdapter(dialer, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := collect(a)
	a.Run(ctx)

	events := <-done
	require.Len(t, events, 2)
	assert.Equal(t, "BTCUSDT", events[0].Symbol)
	assert.Equal(t, int64(1001), events[1].EventTime)
	assert.Equal(t, int64(0), a.DroppedMalformed())
}

func TestAdapter_ReconnectsAndResumes(t *testing.T) {
	// connection drops after one trade; the adapter must dial again and
	// keep emitting without being restarted
	first := &testutils.ScriptedConn{Frames: [][]byte{tradeFrame("BTCUSDT", "100", 1000)}}
	second := &testutils.ScriptedConn{Frames: [][]byte{tradeFrame("BTCUSDT", "101", 1001)}}
	dialer := &testutils.ScriptedDialer{Conns: []*testutils.ScriptedConn{first, second}}
	a := newAdapter(dialer, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := collect(a)
	a.Run(ctx)

	events := <-done
	require.Len(t, events, 2, "events from both sessions must come through")

	dialer.Mu.Lock()
	defer dialer.Mu.Unlock()
	assert.GreaterOrEqual(t, dialer.Dials, 2)
}

func TestAdapter_DropsMalformedFrames(t *testing.T) {
	conn := &testutils.ScriptedConn{Frames: [][]byte{
		[]byte(`{broken`),
		[]byte(`{"e":"trade","s":"BTCUSDT","p":"abc","q":"1","T":1000}`),
		tradeFrame("BTCUSDT", "100", 1000),
	}}
	dialer := &testutils.ScriptedDialer{Conns: []*testutils.ScriptedConn{conn}}
	a := newAdapter(dialer, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := collect(a)
	a.Run(ctx)

	events := <-done
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), a.DroppedMalformed())
}

func TestAdapter_OverflowDropsOldest(t *testing.T) {
	conn := &testutils.ScriptedConn{Frames: [][]byte{
		tradeFrame("BTCUSDT", "1", 1000),
		tradeFrame("BTCUSDT", "2", 1001),
		tradeFrame("BTCUSDT", "3", 1002),
		tradeFrame("BTCUSDT", "4", 1003),
	}}
	dialer := &testutils.ScriptedDialer{Conns: []*testutils.ScriptedConn{conn}}
	a := newAdapter(dialer, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// nobody reads until the run is over, so the buffer must overflow
	a.Run(ctx)

	var events []models.TradeEvent
	for ev := range a.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, int64(1002), events[0].EventTime, "oldest events are the ones evicted")
	assert.Equal(t, int64(1003), events[1].EventTime)
	assert.Equal(t, int64(2), a.DroppedOverflow())
}
