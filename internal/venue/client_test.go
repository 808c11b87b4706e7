package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stateResponse = `{
  "assetPositions": [
    {"position": {"coin": "BTC", "szi": "2.5", "entryPx": "61250.4", "positionValue": "155000.25"}},
    {"position": {"coin": "ETH", "szi": "-10", "entryPx": "3100", "positionValue": "31000"}},
    {"position": {"coin": "SOL", "szi": "not-a-number", "entryPx": "150", "positionValue": "0"}},
    {"position": {"coin": "", "szi": "1", "entryPx": "1", "positionValue": "1"}}
  ],
  "marginSummary": {"accountValue": "1250000.50"}
}`

func TestPositionsParsesClearinghouseState(t *testing.T) {
	var gotBody infoRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/info", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(stateResponse))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	snap, err := c.Positions(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "clearinghouseState", gotBody.Type)
	assert.Equal(t, "0xabc", gotBody.User)

	// Malformed rows (bad size, missing coin) are skipped, good rows kept.
	require.Len(t, snap.Holdings, 2)

	btc := snap.Holdings["BTC"]
	assert.Equal(t, "2.5", btc.Size.String())
	assert.Equal(t, "61250.4", btc.EntryPrice.String())
	assert.Equal(t, "155000.25", btc.ValueUSD.String())

	eth := snap.Holdings["ETH"]
	assert.True(t, eth.Size.IsNegative(), "short positions keep their sign")

	require.True(t, snap.HasAccountValue)
	assert.Equal(t, "1250000.5", snap.AccountValue.String())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestPositionsEmptyAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"assetPositions": [], "marginSummary": {}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	snap, err := c.Positions(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Empty(t, snap.Holdings)
	assert.False(t, snap.HasAccountValue)
}

func TestPositionsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Positions(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestPositionsRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Positions(ctx, "0xabc")
	require.Error(t, err)
}
