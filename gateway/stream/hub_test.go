package stream

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"rwalend/core/events"
	"rwalend/crypto"
)

func holder(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestSubscribeReplaysBacklogAfterCursor(t *testing.T) {
	hub := NewHub(nil, 2)
	for i := int64(1); i <= 3; i++ {
		hub.Emit(events.TokenMinted{Symbol: "xUSD", To: holder(1), Amount: big.NewInt(i)})
	}

	_, backlog, cancel := hub.Subscribe(0, nil)
	defer cancel()
	require.Len(t, backlog, 2)
	require.Equal(t, uint64(2), backlog[0].Seq)

	_, backlog, cancel2 := hub.Subscribe(2, nil)
	defer cancel2()
	require.Len(t, backlog, 1)
	require.Equal(t, "3", backlog[0].Attributes["amount"])
}

func TestSubscribeFiltersTypes(t *testing.T) {
	hub := NewHub(nil, 0)
	updates, _, cancel := hub.Subscribe(0, []string{events.TypeTokenBurned})
	defer cancel()

	hub.Emit(events.TokenMinted{Symbol: "xUSD", To: holder(1), Amount: big.NewInt(1)})
	hub.Emit(events.TokenBurned{Symbol: "xUSD", From: holder(1), Amount: big.NewInt(1)})

	select {
	case msg := <-updates:
		require.Equal(t, events.TypeTokenBurned, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("expected burn event")
	}
	require.Empty(t, updates)
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	hub := NewHub(nil, 0)
	hub.Emit(events.TokenMinted{Symbol: "xUSD", To: holder(7), Amount: big.NewInt(42)})
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?cursor=0"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, events.TypeTokenMinted, msg.Type)
	require.Equal(t, "42", msg.Attributes["amount"])
}
