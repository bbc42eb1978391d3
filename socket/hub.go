package socket

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"collabdocs/internal/presence"
	"collabdocs/pkg/logger"
	"collabdocs/pkg/metrics"
	"collabdocs/store"

	"github.com/gorilla/websocket"
)

const (
	UpdateType          = "UPDATE"           // Document content changed
	CursorType          = "CURSOR"           // User moved their cursor
	PresenceUpdateType  = "PRESENCE_UPDATE"  // A user joined or left the room
	MetadataType        = "METADATA"         // Document title/visibility, sent on join
	DocumentChangedType = "DOCUMENT_CHANGED" // Title/visibility/updated_at changed

	// CloseDocumentDeleted is the close code sent when the room's document is deleted.
	CloseDocumentDeleted = 4404
	// CloseDocumentPrivate is sent to other users' peers when the document is made private.
	CloseDocumentPrivate = 4403
)

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type UpdatePayload struct {
	Content string `json:"content"`
}

type Metadata struct {
	Title     string    `json:"title"`
	IsPublic  bool      `json:"is_public"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentStore is the part of the store the hub reads and writes.
type DocumentStore interface {
	Document(id string) (store.Document, bool)
	CurrentUser() store.User
	UpdateDocument(id string, patch store.DocumentPatch) (store.Document, bool)
}

type roomPeer struct {
	user  store.User
	conns int
	seq   int
}

type peerState struct {
	user  store.User
	conns int
	local bool
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	docs     DocumentStore
	listener presence.Listener

	mu       sync.Mutex
	Presence map[string]map[string]*roomPeer // docID -> userID -> peer
	peers    map[string]*peerState           // userID -> sockets across all rooms
	seq      int

	done     chan struct{}
	doneOnce sync.Once
}

// NewHub creates a hub over docs. Presence changes are reported to listener,
// which may be nil.
func NewHub(docs DocumentStore, listener presence.Listener) *Hub {
	if listener == nil {
		listener = presence.Funcs{}
	}
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		docs:       docs,
		listener:   listener,
		Presence:   make(map[string]map[string]*roomPeer),
		peers:      make(map[string]*peerState),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and messages until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.Broadcast:
			h.handleMessage(msg)
		}
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	// The document may have been deleted or made private since ServeWs checked
	// it. Checking under h.mu orders this against HandleChange.
	doc, found := h.docs.Document(client.DocID)
	if !found || !h.visible(doc, client.User.ID) {
		h.mu.Unlock()
		code, reason := CloseDocumentDeleted, "document deleted"
		if found {
			code, reason = CloseDocumentPrivate, "document is private"
		}
		logger.Sugar.Warnf("Peer %s rejected from document %s: %s", client.User.ID, client.DocID, reason)
		client.close(code, reason)
		close(client.Send)
		return
	}

	if h.Rooms[client.DocID] == nil {
		h.Rooms[client.DocID] = make(map[*Client]bool)
		h.Presence[client.DocID] = make(map[string]*roomPeer)
	}
	h.Rooms[client.DocID][client] = true

	rp := h.Presence[client.DocID][client.User.ID]
	if rp == nil {
		h.seq++
		rp = &roomPeer{user: client.User, seq: h.seq}
		h.Presence[client.DocID][client.User.ID] = rp
	}
	rp.conns++

	ps := h.peers[client.User.ID]
	if ps == nil {
		ps = &peerState{user: client.User, local: client.Local}
		h.peers[client.User.ID] = ps
	}
	ps.conns++
	firstConn := ps.conns == 1

	// Send the current document state to the user who just joined.
	h.sendLocked(client, encode(MetadataType, doc.ID, client.User.ID, metadataOf(doc)))
	h.sendLocked(client, encode(UpdateType, doc.ID, "", UpdatePayload{Content: doc.Content}))
	h.mu.Unlock()

	metrics.SocketConnections.Inc()
	logger.Sugar.Infof("Peer %s joined document %s", client.User.ID, client.DocID)
	if firstConn && !client.Local {
		h.listener.OnPeerJoined(client.User)
	}
	h.broadcastPresenceUpdate(client.DocID)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	docID := client.DocID
	if _, ok := h.Rooms[docID][client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.Rooms[docID], client)
	close(client.Send)

	if rp := h.Presence[docID][client.User.ID]; rp != nil {
		rp.conns--
		if rp.conns == 0 {
			delete(h.Presence[docID], client.User.ID)
		}
	}

	lastConn := false
	if ps := h.peers[client.User.ID]; ps != nil {
		ps.conns--
		if ps.conns == 0 {
			delete(h.peers, client.User.ID)
			lastConn = true
		}
	}

	roomOpen := len(h.Rooms[docID]) > 0
	if !roomOpen {
		delete(h.Rooms, docID)
		delete(h.Presence, docID)
		logger.Sugar.Infof("Closed and cleaned up empty room: %s", docID)
	}
	h.mu.Unlock()

	metrics.SocketConnections.Dec()
	logger.Sugar.Infof("Peer %s left document %s", client.User.ID, docID)
	if lastConn && !client.Local {
		h.listener.OnPeerLeft(client.User.ID)
	}
	if roomOpen {
		h.broadcastPresenceUpdate(docID)
	}
}

func (h *Hub) handleMessage(msg WSMessage) {
	if doc, ok := h.docs.Document(msg.DocID); !ok || !h.visible(doc, msg.UserID) {
		logger.Sugar.Warnf("Dropping %s from %s: document %s is not available to them", msg.Type, msg.UserID, msg.DocID)
		metrics.SocketMessagesTotal.WithLabelValues(msg.Type, "rejected").Inc()
		return
	}

	switch msg.Type {
	case UpdateType:
		var p UpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			logger.Sugar.Warnf("Dropping malformed update from %s: %v", msg.UserID, err)
			metrics.SocketMessagesTotal.WithLabelValues(msg.Type, "rejected").Inc()
			return
		}
		// Last write wins; the store holds whatever arrived most recently.
		if _, ok := h.docs.UpdateDocument(msg.DocID, store.DocumentPatch{Content: &p.Content}); !ok {
			logger.Sugar.Warnf("Dropping update for missing document %s", msg.DocID)
			metrics.SocketMessagesTotal.WithLabelValues(msg.Type, "rejected").Inc()
			return
		}
	case CursorType:
	default:
		logger.Sugar.Warnf("Dropping unknown message type %q from %s", msg.Type, msg.UserID)
		metrics.SocketMessagesTotal.WithLabelValues("unknown", "rejected").Inc()
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
		return
	}

	h.mu.Lock()
	for client := range h.Rooms[msg.DocID] {
		if client.User.ID != msg.UserID { // Don't echo back to the sender.
			h.sendLocked(client, payload)
		}
	}
	h.mu.Unlock()
	metrics.SocketMessagesTotal.WithLabelValues(msg.Type, "relayed").Inc()
}

// HandleChange pushes store changes to the affected room. Subscribe it to the
// store so edits made over HTTP reach open editors. Making a document private
// disconnects everyone but its author.
func (h *Hub) HandleChange(c store.Change) {
	switch c.Kind {
	case store.DocumentUpdated:
		payload := encode(DocumentChangedType, c.Document.ID, "", metadataOf(c.Document))
		h.mu.Lock()
		for client := range h.Rooms[c.Document.ID] {
			if !h.visible(c.Document, client.User.ID) {
				client.close(CloseDocumentPrivate, "document is private")
				continue
			}
			h.sendLocked(client, payload)
		}
		h.mu.Unlock()
	case store.DocumentDeleted:
		h.RemoveDocument(c.Document.ID)
	}
}

// RemoveDocument disconnects everyone in the document's room. The read pumps
// unregister the clients, which also reports their departure.
func (h *Hub) RemoveDocument(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.Rooms[docID] {
		client.close(CloseDocumentDeleted, "document deleted")
	}
}

// RoomPeers lists the users connected to a document in arrival order.
func (h *Hub) RoomPeers(docID string) []store.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomPeersLocked(docID)
}

func (h *Hub) roomPeersLocked(docID string) []store.User {
	peers := make([]*roomPeer, 0, len(h.Presence[docID]))
	for _, rp := range h.Presence[docID] {
		peers = append(peers, rp)
	}
	slices.SortFunc(peers, func(a, b *roomPeer) int { return a.seq - b.seq })

	users := make([]store.User, 0, len(peers))
	for _, rp := range peers {
		users = append(users, rp.user)
	}
	return users
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Rooms[docID]) == 0 {
		return
	}
	payload := encode(PresenceUpdateType, docID, "", h.roomPeersLocked(docID))
	for client := range h.Rooms[docID] {
		h.sendLocked(client, payload)
	}
}

// sendLocked queues payload without blocking. A client whose buffer is full is
// disconnected; its read pump then unregisters it. Must be called with h.mu
// held, which also keeps the send from racing unregister's close.
func (h *Hub) sendLocked(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Disconnecting.", client.User.ID)
		client.Conn.Close()
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	var departed []string
	for docID, clients := range h.Rooms {
		for client := range clients {
			// Close frame first so the write pump cannot send its own.
			client.close(websocket.CloseGoingAway, "server shutting down")
			close(client.Send)
			metrics.SocketConnections.Dec()
		}
		delete(h.Rooms, docID)
		delete(h.Presence, docID)
	}
	for id, ps := range h.peers {
		if !ps.local {
			departed = append(departed, id)
		}
		delete(h.peers, id)
	}
	h.mu.Unlock()

	for _, id := range departed {
		h.listener.OnPeerLeft(id)
	}
	// Pumps blocked on the hub's channels give up once done is closed.
	h.doneOnce.Do(func() { close(h.done) })
	logger.Sugar.Info("Presence hub stopped")
}

// visible reports whether userID may see doc: public documents are open to
// everyone, private ones only to the local user who wrote them.
func (h *Hub) visible(doc store.Document, userID string) bool {
	if doc.IsPublic {
		return true
	}
	current := h.docs.CurrentUser()
	return userID == current.ID && doc.CreatedBy == current.ID
}

func metadataOf(doc store.Document) Metadata {
	return Metadata{
		Title:     doc.Title,
		IsPublic:  doc.IsPublic,
		CreatedBy: doc.CreatedBy,
		UpdatedAt: doc.UpdatedAt,
	}
}

func encode(msgType, docID, userID string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", msgType, err)
		raw = []byte("null")
	}
	out, _ := json.Marshal(WSMessage{Type: msgType, DocID: docID, UserID: userID, Payload: raw})
	return out
}
