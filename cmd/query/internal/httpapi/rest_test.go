package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/httpapi"
	"github.com/vineet4007/crypto-streaming-platform/cmd/query/internal/testutils"
	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

func newServer(store *testutils.MockPriceStore) *httptest.Server {
	mux := http.NewServeMux()
	httpapi.NewHandler(store, zap.NewNop()).Register(mux)
	return httptest.NewServer(mux)
}

func TestPriceEndpoint_Found(t *testing.T) {
	store := testutils.NewMockStore()
	store.Entries["BTCUSDT"] = models.ViewEntry{
		Symbol:            "BTCUSDT",
		Price:             decimal.RequireFromString("65010.5"),
		EventTime:         1700000001000,
		LastAppliedOffset: 7,
	}
	srv := newServer(store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/price/btcusdt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
		Ts     int64           `json:"ts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "BTCUSDT", body.Symbol)
	assert.True(t, body.Price.Equal(decimal.RequireFromString("65010.5")))
	assert.Equal(t, int64(1700000001000), body.Ts)
}

func TestPriceEndpoint_NotFound(t *testing.T) {
	srv := newServer(testutils.NewMockStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/price/ETHUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "price not available", body["error"])
}

func TestPriceEndpoint_EmptySymbol(t *testing.T) {
	srv := newServer(testutils.NewMockStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/price/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newServer(testutils.NewMockStore())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
