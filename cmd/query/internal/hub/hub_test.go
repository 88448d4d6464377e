package hub_test

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/hub"
	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/protocol"
	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/testutils"
)

func setup() (*hub.Hub, *testutils.MockPriceStore) {
	store := testutils.NewMockStore()
	logger := zap.NewNop()
	return hub.NewHub(store, logger), store
}

var validSymbols = map[string]bool{"BTCUSDT": true, "ETHUSDT": true, "SOLUSDT": true}

func TestHub_Subscribe_Success(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1")

	req := protocol.WSRequest{
		Action:  "subscribe",
		Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}},
		ID:      "req-1",
	}

	h.HandleCommand(client, req, validSymbols)

	if client.LastMsgType() != "ack" {
		t.Errorf("Expected ack, got %s", client.LastMsgType())
	}

	if store.SubscribedChannels["BTCUSDT"] != 1 {
		t.Errorf("Expected Redis subscription to BTCUSDT")
	}
}

func TestHub_Subscribe_MixedValidity(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	req := protocol.WSRequest{
		Action:  "subscribe",
		Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT", "NOTAPAIR"}},
		ID:      "req-2",
	}

	h.HandleCommand(client, req, validSymbols)

	lastMsg := client.Messages[len(client.Messages)-1]
	if lastMsg.Status != "success" {
		t.Errorf("Expected success for partial valid subscription")
	}
	if !strings.Contains(lastMsg.Message, "BTCUSDT") {
		t.Errorf("Response should contain accepted symbol BTCUSDT")
	}
	if strings.Contains(lastMsg.Message, "NOTAPAIR") {
		t.Errorf("Response should NOT contain invalid symbol")
	}
}

func TestHub_Subscribe_Idempotency(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1")
	req := protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}},
	}

	h.HandleCommand(client, req, validSymbols)

	h.HandleCommand(client, req, validSymbols)

	// Redis should still have count 1, not 2
	if store.SubscribedChannels["BTCUSDT"] != 1 {
		t.Errorf("Redis should only subscribe once per unique symbol")
	}
}

func TestHub_Unsubscribe_Logic(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT", "ETHUSDT"}},
	}, validSymbols)

	h.HandleCommand(client, protocol.WSRequest{
		Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}},
	}, validSymbols)

	if store.SubscribedChannels["BTCUSDT"] != 0 {
		t.Errorf("Redis should be unsubscribed from BTCUSDT")
	}
	if store.SubscribedChannels["ETHUSDT"] != 1 {
		t.Errorf("Redis should still be subscribed to ETHUSDT")
	}
}

func TestHub_Unsubscribe_NotSubscribed(t *testing.T) {
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"SOLUSDT"}},
		ID: "err-check",
	}, validSymbols)

	lastMsg := client.Messages[len(client.Messages)-1]
	if lastMsg.Type != "error" {
		t.Errorf("Expected error response for unsubscribing non-watched symbol")
	}
}

func TestHub_UnsubscribeAll(t *testing.T) {
	h, store := setup()
	client := testutils.NewMockClient("c1")

	h.HandleCommand(client, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT", "ETHUSDT"}},
	}, validSymbols)

	h.HandleCommand(client, protocol.WSRequest{Action: "unsubscribe_all"}, validSymbols)

	if len(store.SubscribedChannels) != 0 {
		t.Errorf("Store should be empty after unsubscribe_all")
	}
}

func TestHub_Broadcast_OnlyReachesSubscribers(t *testing.T) {
	h, _ := setup()
	subscribed := testutils.NewMockClient("c1")
	other := testutils.NewMockClient("c2")

	h.HandleCommand(subscribed, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}},
	}, validSymbols)
	h.HandleCommand(other, protocol.WSRequest{
		Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"ETHUSDT"}},
	}, validSymbols)

	h.Broadcast("BTCUSDT", `{"symbol":"BTCUSDT","price":"65010.0"}`)

	subscribed.Mu.Lock()
	got := len(subscribed.RawBytes)
	subscribed.Mu.Unlock()
	if got == 0 {
		t.Errorf("Subscriber should have received the broadcast")
	}

	other.Mu.Lock()
	for _, raw := range other.RawBytes {
		if strings.Contains(raw, "65010.0") {
			t.Errorf("Non-subscriber received BTCUSDT broadcast")
		}
	}
	other.Mu.Unlock()
}

func TestHub_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	h, _ := setup()
	client := testutils.NewMockClient("c1")

	go func() {
		h.HandleCommand(client, protocol.WSRequest{Action: "subscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}}}, validSymbols)
	}()
	go func() {
		h.HandleCommand(client, protocol.WSRequest{Action: "unsubscribe", Payload: protocol.RequestPayload{Symbols: []string{"BTCUSDT"}}}, validSymbols)
	}()
	go func() {
		h.Unregister(client)
	}()
}
