// Package realtime fans out change events to WebSocket subscribers, one topic
// per conversation.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Event is the envelope written to subscribers.
type Event struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
}

// Client is one WebSocket connection subscribed to a single topic.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	send  chan []byte
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Client]struct{})}
}

// Subscribe registers conn on topic. Call Run to pump messages.
func (h *Hub) Subscribe(conn *websocket.Conn, topic string) *Client {
	client := &Client{
		hub:   h,
		conn:  conn,
		topic: topic,
		send:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][client] = struct{}{}
	h.mu.Unlock()

	return client
}

func (h *Hub) unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[c.topic]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.topics, c.topic)
	}
}

// Publish sends an event to every subscriber of topic. Slow subscribers whose
// buffer is full are disconnected.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(Event{Type: "broadcast", Event: event, Topic: topic, Payload: payload})
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Error("Failed to encode realtime event")
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logrus.WithField("topic", topic).Warn("Dropping slow realtime subscriber")
		c.close()
	}
}

// Subscribers returns the number of clients on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Run blocks until the connection closes, then releases the subscription.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) close() {
	c.once.Do(func() {
		c.hub.unsubscribe(c)
		close(c.send)
	})
}

// readPump only consumes control frames; clients publish through the HTTP API.
func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("topic", c.topic).Debug("Realtime connection closed")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
