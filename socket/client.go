package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"collabdocs/pkg/logger"
	"collabdocs/store"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second // Must be less than pongWait
	maxMessageSize = 1 << 20
)

type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	DocID string
	User  store.User
	Local bool // The store's own user, already counted as present
	Send  chan []byte
}

// Handler upgrades requests on /ws?docId=...&peerId=...&name=...&color=...
// into presence sockets. allowedOrigin "*" accepts any origin.
func Handler(hub *Hub, allowedOrigin string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowedOrigin == "*" || r.Header.Get("Origin") == allowedOrigin
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, &upgrader, w, r)
	}
}

func ServeWs(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	doc, ok := hub.docs.Document(docID)
	if !ok {
		logger.Sugar.Warnf("Connection rejected: Document %s not found", docID)
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	user, local := peerFromRequest(r, hub.docs.CurrentUser())
	if !hub.visible(doc, user.ID) {
		logger.Sugar.Warnf("Connection rejected: Document %s is private", docID)
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:   hub,
		Conn:  conn,
		DocID: docID,
		User:  user,
		Local: local,
		Send:  make(chan []byte, 256),
	}

	select {
	case hub.Register <- client:
	case <-hub.done:
		client.close(websocket.CloseGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// peerFromRequest builds the peer identity from the query string. A peerId
// equal to the store's current user marks the local editor tab.
func peerFromRequest(r *http.Request, current store.User) (store.User, bool) {
	q := r.URL.Query()
	if id := q.Get("peerId"); id != "" && id == current.ID {
		return current, true
	}

	user := store.GenerateUser()
	if id := q.Get("peerId"); id != "" {
		user.ID = id
	}
	if name := q.Get("name"); name != "" {
		user.Name = name
	}
	if color := q.Get("color"); color != "" {
		user.Color = color
	}
	return user, false
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Set server-authoritative fields to prevent spoofing.
		msg.DocID = c.DocID
		msg.UserID = c.User.ID

		select {
		case c.Hub.Broadcast <- msg:
		case <-c.Hub.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}

// close sends a close frame with the given code and drops the connection.
func (c *Client) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Conn.Close()
}
