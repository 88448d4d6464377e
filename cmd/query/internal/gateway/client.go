package gateway

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/hub"
	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
	sendBufferSize = 256

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// ClientAdapter owns one websocket connection. Reads run on readPump; all
// writes are funneled through the send channel so only writePump touches
// the conn.
type ClientAdapter struct {
	conn         net.Conn
	hub          *hub.Hub
	send         chan []byte
	logger       *zap.Logger
	validSymbols map[string]bool
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, validSymbols map[string]bool) *ClientAdapter {
	return &ClientAdapter{
		conn:         conn,
		hub:          h,
		send:         make(chan []byte, sendBufferSize),
		logger:       logger,
		validSymbols: validSymbols,
	}
}

func (c *ClientAdapter) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }

// Close only closes the channel; writePump owns closing the conn.
func (c *ClientAdapter) Close() { close(c.send) }

func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		c.send <- b
	}
}

// SendBytes drops the message when the buffer is full. A slow reader loses
// updates rather than stalling the hub.
func (c *ClientAdapter) SendBytes(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		payload, opCode, err := c.readFrame()
		if err != nil {
			return
		}

		switch opCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			wsutil.WriteServerMessage(c.conn, ws.OpPong, payload)
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		case ws.OpText:
			c.handleCommand(payload)
		}
	}
}

// readFrame reads one complete frame off the wire, enforcing the size cap
// and rejecting fragmented messages.
func (c *ClientAdapter) readFrame() ([]byte, ws.OpCode, error) {
	header, err := ws.ReadHeader(c.conn)
	if err != nil {
		return nil, 0, err
	}

	if header.Length > int64(maxMessageSize) {
		c.logger.Warn("Client frame too large", zap.Int64("size", header.Length))
		return nil, 0, io.ErrShortBuffer
	}
	if !header.Fin {
		c.logger.Warn("Client sent fragmented frame (not supported)")
		return nil, 0, io.ErrUnexpectedEOF
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, 0, err
	}
	if header.Masked {
		ws.Cipher(payload, header.Mask, 0)
	}

	return payload, header.OpCode, nil
}

func (c *ClientAdapter) handleCommand(payload []byte) {
	var req protocol.WSRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.SendJSON(protocol.WSResponse{Type: "error", Message: "Invalid JSON"})
		return
	}

	for i, s := range req.Payload.Symbols {
		req.Payload.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	c.hub.HandleCommand(c, req, c.validSymbols)
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
