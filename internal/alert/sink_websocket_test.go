package alert

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
	"go.uber.org/zap"
	"wisefido-vision/internal/models"
)

// newConnectedHub 启动 hub 并接入一个测试客户端
func newConnectedHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestWebSocketSink_DeliversWithinCtxDeadline(t *testing.T) {
	hub, conn := newConnectedHub(t)
	sink := NewWebSocketSink(hub)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n := Notification{
		Kind: KindAlert,
		Alert: &models.ScoredAlert{
			OccurrenceID: "occ-1",
			Type:         models.EventFall,
			Score:        0.62,
			Level:        models.LevelWarning,
			TriggeredAt:  time.Unix(1700000000, 0),
		},
		Initial:   true,
		EmittedAt: time.Unix(1700000000, 0),
	}
	require.NoError(t, sink.Notify(ctx, n))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), string(models.EventFall))
}

func TestHub_BroadcastExpiredDeadlineRemovesClient(t *testing.T) {
	hub, _ := newConnectedHub(t)

	// 截止时间已过，写入立即超时，阻塞的客户端被摘除而不是拖住广播
	hub.Broadcast([]byte(`{"kind":"alert"}`), time.Now().Add(-time.Second))
	assert.Equal(t, 0, hub.ClientCount())
}
