package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub, userID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleConnection(hub, w, r, userID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInboundMotionDispatch(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var mu sync.Mutex
	var got []InboundMessage
	hub.OnInbound(func(userID string, msg InboundMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	srv := newTestServer(t, hub, "u1")
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: TypeMotion, Magnitude: 13.2}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TypeMotion, got[0].Type)
	assert.InDelta(t, 13.2, got[0].Magnitude, 0.001)
}

func TestSendCommandReachesDevice(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := newTestServer(t, hub, "u2")
	conn := dial(t, srv)

	require.Eventually(t, func() bool { return hub.Connected("u2") }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.SendCommand("u2", Command{Type: CmdSirenOn}))

	var cmd Command
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&cmd))
	assert.Equal(t, CmdSirenOn, cmd.Type)
}

func TestSendCommandWithoutConnection(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	assert.Error(t, hub.SendCommand("nobody", Command{Type: CmdFlashOn}))
}
