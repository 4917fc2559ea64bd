package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"group-voting-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	exists := func(c *gin.Context, pollID string) bool { return pollID == "poll-1" }
	router := gin.New()
	router.GET("/api/polls/:id/ws", NewHandler(hub, exists, nil).HandleWebSocketConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleWebSocketConnection_ReceivesBroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := setupServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/polls/poll-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("poll-1") == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToPoll("poll-1", &models.WebSocketMessage{Type: "poll_updated", PollID: "poll-1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "poll_updated", msg.Type)
	assert.Equal(t, "poll-1", msg.PollID)

	// 客户端断开后从Hub注销
	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount("poll-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocketConnection_UnknownPoll(t *testing.T) {
	srv := setupServer(t, NewHub(nil))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/polls/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
