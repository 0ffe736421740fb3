package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/insight_go_server/internal/pkg/jwt"
	"github.com/qs3c/insight_go_server/internal/pkg/ws"
)

const wsTestSecret = "ws-test-secret"

func startWebSocketServer(t *testing.T, hub *ws.Hub, origins []string) string {
	t.Helper()

	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(hub, wsTestSecret, origins).Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func TestWebSocketHandler_RegistersUser(t *testing.T) {
	hub := ws.NewHub()
	url := startWebSocketServer(t, hub, nil)

	token, err := jwt.GenerateToken(42, wsTestSecret, 1)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hub.IsOnline(42) }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsOnline(42) }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RejectsBadToken(t *testing.T) {
	hub := ws.NewHub()
	url := startWebSocketServer(t, hub, nil)

	for _, query := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url+query, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestWebSocketHandler_ChecksOrigin(t *testing.T) {
	hub := ws.NewHub()
	url := startWebSocketServer(t, hub, []string{"https://app.example.com"})

	token, err := jwt.GenerateToken(7, wsTestSecret, 1)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url+"?token="+token, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return hub.IsOnline(7) }, time.Second, 10*time.Millisecond)
}
