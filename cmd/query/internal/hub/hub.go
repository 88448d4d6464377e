package hub

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/protocol"
	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/repository"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// Hub fans live price updates out to websocket clients. Upstream Redis
// subscriptions are ref-counted per symbol so a channel is only held open
// while at least one client wants it.
type Hub struct {
	store  repository.PriceStore
	logger *zap.Logger

	mu        sync.RWMutex
	bySymbol  map[string]map[ClientInterface]bool
	byClient  map[ClientInterface]map[string]bool
	upstreams map[string]int // symbol -> subscriber count
}

func NewHub(store repository.PriceStore, logger *zap.Logger) *Hub {
	h := &Hub{
		store:     store,
		logger:    logger,
		bySymbol:  make(map[string]map[ClientInterface]bool),
		byClient:  make(map[ClientInterface]map[string]bool),
		upstreams: make(map[string]int),
	}

	go h.store.RunPubSub(context.Background(), h.Broadcast)

	return h
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest, validSymbols map[string]bool) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req, validSymbols)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		h.handleUnsubscribeAll(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest, validSymbols map[string]bool) {
	h.mu.Lock()

	accepted := h.filterNewSymbols(client, req.Payload.Symbols, validSymbols)
	if len(accepted) == 0 {
		h.mu.Unlock()
		h.sendError(client, req.ID, "No valid/new symbols provided")
		return
	}

	if h.byClient[client] == nil {
		h.byClient[client] = make(map[string]bool)
	}
	for _, sym := range accepted {
		h.byClient[client][sym] = true
		if h.bySymbol[sym] == nil {
			h.bySymbol[sym] = make(map[ClientInterface]bool)
		}
		h.bySymbol[sym][client] = true
		h.retainUpstream(sym)
	}
	h.mu.Unlock()

	h.sendAck(client, req.ID, "success", fmt.Sprintf("Subscribed to %v", accepted))

	// Snapshots are fetched off the lock; a slow MGET must not block the hub
	go func(targets []string) {
		snapshots, err := h.store.GetSnapshots(context.Background(), targets)
		if err != nil {
			h.logger.Warn("Snapshot fetch failed", zap.Error(err))
			return
		}
		for _, snap := range snapshots {
			client.SendBytes([]byte(snap))
		}
	}(accepted)
}

// filterNewSymbols keeps symbols that are in the allowed universe and not
// already held by this client. Caller holds the lock.
func (h *Hub) filterNewSymbols(client ClientInterface, symbols []string, validSymbols map[string]bool) []string {
	var out []string
	for _, s := range symbols {
		if !validSymbols[s] {
			continue
		}
		if h.byClient[client] != nil && h.byClient[client][s] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()

	var removed []string
	if subs, ok := h.byClient[client]; ok {
		for _, sym := range req.Payload.Symbols {
			if subs[sym] {
				delete(subs, sym)
				delete(h.bySymbol[sym], client)
				removed = append(removed, sym)
				h.releaseUpstream(sym)
			}
		}
	}
	h.mu.Unlock()

	if len(removed) > 0 {
		h.sendAck(client, req.ID, "success", fmt.Sprintf("Unsubscribed from %v", removed))
	} else {
		h.sendError(client, req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
	}
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	if subs, ok := h.byClient[client]; ok {
		for sym := range subs {
			delete(h.bySymbol[sym], client)
			h.releaseUpstream(sym)
		}
		// Clear the map but keep the client registered
		h.byClient[client] = make(map[string]bool)
	}
	h.mu.Unlock()

	h.sendAck(client, req.ID, "success", "Unsubscribed from all symbols")
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if subs, ok := h.byClient[client]; ok {
		for sym := range subs {
			delete(h.bySymbol[sym], client)
			h.releaseUpstream(sym)
		}
		delete(h.byClient, client)
	}
	h.mu.Unlock()

	client.Close()
}

func (h *Hub) Broadcast(symbol string, payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.bySymbol[symbol]; ok {
		msgBytes := []byte(payload)
		for client := range clients {
			client.SendBytes(msgBytes)
		}
	}
}

// retainUpstream opens the Redis subscription on the first subscriber.
// Caller holds the lock.
func (h *Hub) retainUpstream(symbol string) {
	h.upstreams[symbol]++
	if h.upstreams[symbol] == 1 {
		if err := h.store.SubscribeToFeed(context.Background(), symbol); err != nil {
			h.logger.Error("Failed to subscribe upstream", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// releaseUpstream closes the Redis subscription when the last subscriber
// leaves. Caller holds the lock.
func (h *Hub) releaseUpstream(symbol string) {
	h.upstreams[symbol]--
	if h.upstreams[symbol] <= 0 {
		if err := h.store.UnsubscribeFromFeed(context.Background(), symbol); err != nil {
			h.logger.Error("Failed to unsubscribe upstream", zap.String("symbol", symbol), zap.Error(err))
		}
		delete(h.upstreams, symbol)
		delete(h.bySymbol, symbol)
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "ack", ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Message: msg})
}
