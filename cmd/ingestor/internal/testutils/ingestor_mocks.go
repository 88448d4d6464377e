package testutils

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/feed"
	"github.com/vineet4007/crypto-streaming-platform/cmd/ingestor/internal/publisher"
)

type MockKafkaWriter struct {
	Messages []kafka.Message
	Mu       sync.Mutex
	// FailTimes makes the first n writes fail with Errs (or a generic
	// error when Errs is shorter)
	FailTimes int
	Errs      []error
	calls     int
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.calls++
	if m.calls <= m.FailTimes {
		if len(m.Errs) >= m.calls {
			return m.Errs[m.calls-1]
		}
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

func (m *MockKafkaWriter) Calls() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.calls
}

type MockClock struct {
	CurrentTime time.Time
	Slept       []time.Duration
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Sleep(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Slept = append(m.Slept, d)
	m.CurrentTime = m.CurrentTime.Add(d)
}

type MockRand struct {
	ValFloat float64
}

func (m *MockRand) Float64() float64 { return m.ValFloat }

type MockKafkaConn struct {
	CreatedTopics []string
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	// Simulate "Ready" state immediately
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (publisher.KafkaConn, error) {
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}

// ScriptedConn feeds a fixed sequence of frames to the adapter's read
// loop, then fails like a dropped connection.
type ScriptedConn struct {
	Frames [][]byte
	Mu     sync.Mutex
	index  int
	closed bool
}

func (c *ScriptedConn) ReadMessage() (int, []byte, error) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.closed || c.index >= len(c.Frames) {
		return 0, nil, io.ErrUnexpectedEOF
	}
	frame := c.Frames[c.index]
	c.index++
	return 1, frame, nil
}

func (c *ScriptedConn) SetReadDeadline(t time.Time) error         { return nil }
func (c *ScriptedConn) SetPongHandler(h func(string) error)       {}
func (c *ScriptedConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *ScriptedConn) Close() error {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.closed = true
	return nil
}

// ScriptedDialer returns its conns in order, one per dial.
type ScriptedDialer struct {
	Conns []*ScriptedConn
	Mu    sync.Mutex
	Dials int
}

func (d *ScriptedDialer) DialContext(ctx context.Context, endpoint string) (feed.Conn, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	if d.Dials >= len(d.Conns) {
		d.Dials++
		return nil, errors.New("dial failed: no more scripted connections")
	}
	conn := d.Conns[d.Dials]
	d.Dials++
	return conn, nil
}
