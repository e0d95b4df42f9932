// ws/feed.go
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rocketcrash/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Feed is the one-way round event broadcaster. Clients get every phase
// transition the engine commits; they never send anything back except
// pongs. The engine stays fully usable without a single subscriber.
type Feed struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]bool
	log        *logrus.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed creates the hub. Call Run in its own goroutine.
func NewFeed(log *logrus.Logger) *Feed {
	return &Feed{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]bool),
		log:        log,
	}
}

// Run owns the client set. All membership changes and fan-out go through
// this single goroutine, so no locks are needed.
func (f *Feed) Run() {
	for {
		select {
		case c := <-f.register:
			f.clients[c] = true
			f.log.WithField("clients", len(f.clients)).Debug("🔗 Feed client connected")

		case c := <-f.unregister:
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
				f.log.WithField("clients", len(f.clients)).Debug("🔌 Feed client disconnected")
			}

		case message := <-f.broadcast:
			for c := range f.clients {
				select {
				case c.send <- message:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(f.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast fans a payload out to every connected client. Marshal errors
// are logged and dropped; the feed is best-effort.
func (f *Feed) Broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		f.log.WithError(err).Error("❌ Failed to marshal feed payload")
		return
	}
	select {
	case f.broadcast <- payload:
	default:
		f.log.Warn("⚠️ Feed broadcast buffer full, dropping event")
	}
}

// HandleUpgrade handles GET /ws/feed.
func (f *Feed) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.WithError(err).Warn("⚠️ WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	f.register <- c

	go c.writePump(f)
	go c.readPump(f)
}

func (c *client) writePump(f *Feed) {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards everything the client sends and detects the close.
func (c *client) readPump(f *Feed) {
	defer func() {
		f.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(config.WSPingInterval * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.WSPingInterval * 2))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
