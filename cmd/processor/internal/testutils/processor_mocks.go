package testutils

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MockFetcher replays a fixed slice of log records to the consumer loop.
type MockFetcher struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Closed simulates a closed connection or end of stream
	Closed bool
	// FailAfter, when > 0, returns io.EOF after that many fetches to
	// simulate a dropped log connection
	FailAfter int

	Committed []int64
	fetched   int
}

func (m *MockFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}

	if m.FailAfter > 0 && m.fetched >= m.FailAfter {
		return kafka.Message{}, io.EOF
	}

	if m.Index >= len(m.Messages) {
		// Block until cancellation to simulate an idle live stream
		m.Mu.Unlock()
		<-ctx.Done()
		m.Mu.Lock()
		return kafka.Message{}, ctx.Err()
	}

	msg := m.Messages[m.Index]
	m.Index++
	m.fetched++
	return msg, nil
}

func (m *MockFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, msg := range msgs {
		m.Committed = append(m.Committed, msg.Offset)
	}
	return nil
}

// Lag reports how many queued messages have not been fetched yet.
func (m *MockFetcher) Lag() int64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return int64(len(m.Messages) - m.Index)
}

func (m *MockFetcher) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// FakeClock makes reconnect backoff instant in tests.
type FakeClock struct {
	CurrentTime time.Time
	Slept       []time.Duration
	Mu          sync.Mutex
}

func (c *FakeClock) Now() time.Time {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.CurrentTime
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Slept = append(c.Slept, d)
	c.CurrentTime = c.CurrentTime.Add(d)
}
