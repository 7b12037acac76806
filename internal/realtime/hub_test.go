package realtime

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
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Subscribe(conn, r.URL.Query().Get("topic")).Run()
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestPublishReachesTopicSubscribers(t *testing.T) {
	hub, url := startHub(t)

	a := dial(t, url+"?topic=conversation:1")
	defer a.Close()
	b := dial(t, url+"?topic=conversation:2")
	defer b.Close()
	waitFor(t, func() bool { return hub.Subscribers("conversation:1") == 1 && hub.Subscribers("conversation:2") == 1 })

	hub.Publish("conversation:1", "message.created", map[string]string{"body": "Are the peaches ripe?"})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Event   string            `json:"event"`
		Topic   string            `json:"topic"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "message.created", event.Event)
	assert.Equal(t, "conversation:1", event.Topic)
	assert.Equal(t, "Are the peaches ripe?", event.Payload["body"])

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = b.ReadMessage()
	assert.Error(t, err)
}

func TestSubscriptionReleasedOnClose(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url+"?topic=conversation:9")
	waitFor(t, func() bool { return hub.Subscribers("conversation:9") == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, func() bool { return hub.Subscribers("conversation:9") == 0 })
	hub.Publish("conversation:9", "message.created", "nobody listening")
}
