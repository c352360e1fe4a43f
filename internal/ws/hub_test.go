package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T, configure ...func(*Hub)) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t))
	for _, c := range configure {
		c(hub)
	}
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := strings.TrimPrefix(r.URL.Path, "/")
		hub.ServeWS(w, r, room, "snapshot", map[string]string{"hello": room})
	}))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, room string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_GreetingAndBroadcast(t *testing.T) {
	hub, srv := startHub(t)

	cpu := dial(t, srv, "cpu")
	mem := dial(t, srv, "memory")

	greeting := readMessage(t, cpu)
	assert.Equal(t, "snapshot", greeting.Type)
	assert.Equal(t, "cpu", greeting.Room)
	assert.Equal(t, map[string]interface{}{"hello": "cpu"}, greeting.Data)
	readMessage(t, mem)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize("cpu"))

	hub.BroadcastToRoom("cpu", "snapshot", map[string]int{"revision": 2})

	msg := readMessage(t, cpu)
	assert.Equal(t, map[string]interface{}{"revision": float64(2)}, msg.Data)

	// the other room sees nothing
	require.NoError(t, mem.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := mem.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "cpu")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RoomLimit(t *testing.T) {
	hub, srv := startHub(t, func(h *Hub) { h.maxRoomSize = 1 })

	conn := dial(t, srv, "cpu")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.RoomSize("cpu") == 1 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/cpu"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
