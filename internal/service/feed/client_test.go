package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/pkg/logger"
)

const tradeFrame = `{"type":"trade","data":[{"id":"t1","symbol":"AAPL240419C00180000","underlying":"AAPL","contract_type":"call","strike":180,"expiration":"2024-04-19T00:00:00Z","premium":2.5,"size":300,"price":2.5,"timestamp":"2024-03-15T14:30:00Z","venue":"CBOE","side":"ask","is_aggressive":true}]}`

func TestClient_SubscribeAndRead(t *testing.T) {
	subscribed := make(chan string, 4)
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub.Symbol

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tradeFrame))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("secret", wsURL, []string{"AAPL"}, 10*time.Millisecond, time.Second, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "AAPL", <-subscribed)

	trades, errs := c.Read(ctx)
	select {
	case tr := <-trades:
		require.NotNil(t, tr)
		assert.Equal(t, "t1", tr.ID)
		assert.Equal(t, "AAPL", tr.Underlying)
		assert.Equal(t, int64(300), tr.Size)
		assert.True(t, tr.IsAggressive)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for trade")
	}
	assert.Equal(t, "secret", gotToken)

	// server closes after the frames; the read loop reports it
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for close")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestClient_SubscribeWithoutConnect(t *testing.T) {
	c := New("", "ws://127.0.0.1:1", nil, time.Millisecond, time.Second, logger.Nop())
	assert.Error(t, c.Subscribe(context.Background()))
}
