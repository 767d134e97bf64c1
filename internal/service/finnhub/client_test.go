package finnhub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, subscribed chan<- string) *httptest.Server {
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub map[string]string
		require.NoError(t, conn.ReadJSON(&sub))
		subscribed <- sub["symbol"]

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		msg, _ := json.Marshal(map[string]interface{}{
			"type": "trade",
			"data": []map[string]interface{}{{"s": "QQQ", "p": 512.5, "v": 10, "t": 1700000000123}},
		})
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		time.Sleep(200 * time.Millisecond)
	}))
}

func TestClient_ReadsTrades(t *testing.T) {
	subscribed := make(chan string, 1)
	srv := fakeServer(t, subscribed)
	defer srv.Close()

	c := New(Config{
		APIKey:       "secret",
		WebSocketURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:      []string{"QQQ"},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "QQQ", <-subscribed)
	assert.True(t, c.IsConnected())

	quotes, _ := c.Read(ctx)
	q, ok := <-quotes
	require.True(t, ok)
	assert.Equal(t, "QQQ", q.Symbol)
	assert.Equal(t, 512.5, q.Price)
	assert.Equal(t, int64(1700000000123), q.Timestamp.UnixMilli())

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}

func TestClient_SubscribeWithoutConnection(t *testing.T) {
	c := New(Config{WebSocketURL: "ws://127.0.0.1:1", Symbols: []string{"SPY"}}, nil)
	assert.Error(t, c.Subscribe(context.Background()))
}
