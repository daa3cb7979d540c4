package ws

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

	"github.com/busqai/internal/model"
)

// roomServer поднимает хаб; chat и user берутся из query.
func roomServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(10, Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, r.URL.Query().Get("chat"), r.URL.Query().Get("user"))
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, chat, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?chat=" + chat + "&user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (EventType, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env struct {
		Type    EventType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	return env.Type, env.Payload
}

func noEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestPublishMessageReachesRoomOnly(t *testing.T) {
	hub, srv := roomServer(t)
	buyer := dial(t, srv, "c1", "buyer")
	seller := dial(t, srv, "c1", "seller")
	other := dial(t, srv, "c2", "x")
	require.Eventually(t, func() bool { return hub.RoomSize("c1") == 2 && hub.RoomSize("c2") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.PublishMessage(model.NegotiationMessage{ID: "m1", ChatID: "c1", SenderID: "buyer", Kind: model.KindOffer, OfferAmount: model.Price(90)})

	for _, conn := range []*websocket.Conn{buyer, seller} {
		typ, payload := readEvent(t, conn)
		assert.Equal(t, EventNewMessage, typ)
		var m model.NegotiationMessage
		require.NoError(t, json.Unmarshal(payload, &m))
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, 90.0, m.Amount())
	}
	noEvent(t, other)
}

func TestTypingRelayedToOthers(t *testing.T) {
	hub, srv := roomServer(t)
	buyer := dial(t, srv, "c1", "buyer")
	seller := dial(t, srv, "c1", "seller")
	require.Eventually(t, func() bool { return hub.RoomSize("c1") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, buyer.WriteJSON(IncomingMessage{Type: EventTyping, ChatID: "c1", UserID: "spoofed"}))

	typ, payload := readEvent(t, seller)
	assert.Equal(t, EventTyping, typ)
	var p TypingPayload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, TypingPayload{ChatID: "c1", UserID: "buyer"}, p)
	noEvent(t, buyer)
}

func TestUnknownEventGetsError(t *testing.T) {
	hub, srv := roomServer(t)
	conn := dial(t, srv, "c1", "buyer")
	require.Eventually(t, func() bool { return hub.RoomSize("c1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "reaction_added"}))
	typ, _ := readEvent(t, conn)
	assert.Equal(t, EventError, typ)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	hub, srv := roomServer(t)
	conn := dial(t, srv, "c1", "buyer")
	require.Eventually(t, func() bool { return hub.RoomSize("c1") == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize("c1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
