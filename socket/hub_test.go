package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collabdocs/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var owner = store.User{ID: "owner", Name: "Olive", Color: "#96CEB4"}

type testEnv struct {
	store  *store.Store
	hub    *Hub
	server *httptest.Server
	wsURL  string
	cancel context.CancelFunc
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	st := store.New(store.WithCurrentUser(owner), store.WithDocuments(store.DefaultDocuments(time.Now())...))
	hub := NewHub(st, st)
	unsubscribe := st.Subscribe(hub.HandleChange)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(Handler(hub, "*"))
	env := &testEnv{
		store:  st,
		hub:    hub,
		server: server,
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		unsubscribe()
		server.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL+"/ws?"+query, nil)
	require.NoError(t, err, "failed to connect with %s", query)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal WSMessage JSON")
	return msg
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) WSMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readMessage(t, conn); msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)
	return WSMessage{}
}

func presenceIDs(t *testing.T, msg WSMessage) []string {
	t.Helper()
	var users []store.User
	require.NoError(t, json.Unmarshal(msg.Payload, &users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func onlineIDs(s *store.Store) []string {
	ids := []string{}
	for _, u := range s.OnlineUsers() {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestHubIntegration(t *testing.T) {
	env := setup(t)

	// Client 1 joins and gets the document state first.
	conn1 := env.dial(t, "docId=1&peerId=user1&name=Ann")

	meta := readMessage(t, conn1)
	assert.Equal(t, MetadataType, meta.Type)
	var md Metadata
	require.NoError(t, json.Unmarshal(meta.Payload, &md))
	assert.Equal(t, "Welcome to CollabDocs", md.Title)
	assert.True(t, md.IsPublic)

	initial := readMessage(t, conn1)
	assert.Equal(t, UpdateType, initial.Type)
	assert.Equal(t, "1", initial.DocID)
	var content UpdatePayload
	require.NoError(t, json.Unmarshal(initial.Payload, &content))
	assert.Contains(t, content.Content, "<h1>Welcome to CollabDocs</h1>")

	assert.Equal(t, []string{"user1"}, presenceIDs(t, readUntil(t, conn1, PresenceUpdateType)))

	// Client 2 joins the same room.
	conn2 := env.dial(t, "docId=1&peerId=user2&name=Ben")
	assert.Equal(t, []string{"user1", "user2"}, presenceIDs(t, readUntil(t, conn2, PresenceUpdateType)))
	assert.Equal(t, []string{"user1", "user2"}, presenceIDs(t, readUntil(t, conn1, PresenceUpdateType)))
	assert.Equal(t, []string{"user1", "user2"}, onlineIDs(env.store))
	assert.Equal(t, "Ann", env.hub.RoomPeers("1")[0].Name)

	// Client 2 edits the document.
	update, _ := json.Marshal(UpdatePayload{Content: "<p>hello</p>"})
	out, _ := json.Marshal(WSMessage{Type: UpdateType, UserID: "spoofed", Payload: update})
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, out))

	changed := readUntil(t, conn1, DocumentChangedType)
	assert.Equal(t, "1", changed.DocID)

	relayed := readUntil(t, conn1, UpdateType)
	assert.Equal(t, "user2", relayed.UserID, "sender id is server-authoritative")
	assert.JSONEq(t, string(update), string(relayed.Payload))

	doc, ok := env.store.Document("1")
	require.True(t, ok)
	assert.Equal(t, "<p>hello</p>", doc.Content)

	// Client 2 leaves.
	require.NoError(t, conn2.Close())
	assert.Equal(t, []string{"user1"}, presenceIDs(t, readUntil(t, conn1, PresenceUpdateType)))
	assert.Eventually(t, func() bool {
		ids := onlineIDs(env.store)
		return len(ids) == 1 && ids[0] == "user1"
	}, time.Second, 10*time.Millisecond)
}

func TestCursorRelayedAndUnknownDropped(t *testing.T) {
	env := setup(t)
	conn1 := env.dial(t, "docId=2&peerId=a")
	conn2 := env.dial(t, "docId=2&peerId=b")
	readUntil(t, conn1, PresenceUpdateType)
	readUntil(t, conn1, PresenceUpdateType)

	unknown, _ := json.Marshal(WSMessage{Type: "SHOUT", Payload: json.RawMessage(`{}`)})
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, unknown))
	cursor, _ := json.Marshal(WSMessage{Type: CursorType, Payload: json.RawMessage(`{"index":4}`)})
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, cursor))

	msg := readMessage(t, conn1)
	assert.Equal(t, CursorType, msg.Type, "unknown types are never relayed")
	assert.Equal(t, "b", msg.UserID)
	assert.JSONEq(t, `{"index":4}`, string(msg.Payload))
}

func TestSamePeerInTwoRoomsJoinsOnce(t *testing.T) {
	env := setup(t)
	conn1 := env.dial(t, "docId=1&peerId=multi")
	readUntil(t, conn1, PresenceUpdateType)
	conn2 := env.dial(t, "docId=2&peerId=multi")
	readUntil(t, conn2, PresenceUpdateType)

	assert.Equal(t, []string{"multi"}, onlineIDs(env.store))

	require.NoError(t, conn1.Close())
	assert.Eventually(t, func() bool { return len(env.hub.RoomPeers("1")) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"multi"}, onlineIDs(env.store), "still connected to the other room")

	require.NoError(t, conn2.Close())
	assert.Eventually(t, func() bool { return len(env.store.OnlineUsers()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestLocalUserIsNotAddedToOnlineUsers(t *testing.T) {
	env := setup(t)
	conn := env.dial(t, "docId=1&peerId="+owner.ID)
	msg := readUntil(t, conn, PresenceUpdateType)

	assert.Equal(t, []string{owner.ID}, presenceIDs(t, msg))
	assert.Empty(t, env.store.OnlineUsers())
}

func TestPrivateDocumentOnlyForAuthor(t *testing.T) {
	env := setup(t)
	doc, ok := env.store.CreateDocument("Secret", false)
	require.True(t, ok)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL+"/ws?docId="+doc.ID+"&peerId=intruder", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := env.dial(t, "docId="+doc.ID+"&peerId="+owner.ID)
	assert.Equal(t, MetadataType, readMessage(t, conn).Type)
}

func TestRejectsMissingDocument(t *testing.T) {
	env := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL+"/ws?docId=nope", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(env.wsURL+"/ws", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTitleChangeReachesRoom(t *testing.T) {
	env := setup(t)
	conn := env.dial(t, "docId=2&peerId=viewer")
	readUntil(t, conn, PresenceUpdateType)

	title := "Renamed Guide"
	env.store.UpdateDocument("2", store.DocumentPatch{Title: &title})

	msg := readUntil(t, conn, DocumentChangedType)
	var md Metadata
	require.NoError(t, json.Unmarshal(msg.Payload, &md))
	assert.Equal(t, title, md.Title)
}

func TestDeletingDocumentClosesRoom(t *testing.T) {
	env := setup(t)
	conn := env.dial(t, "docId=2&peerId=viewer")
	readUntil(t, conn, PresenceUpdateType)
	require.Len(t, env.store.OnlineUsers(), 1)

	require.True(t, env.store.DeleteDocument("2"))

	var closeErr *websocket.CloseError
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		if err != nil {
			require.ErrorAs(t, err, &closeErr)
			break
		}
	}
	assert.Equal(t, CloseDocumentDeleted, closeErr.Code)
	assert.Eventually(t, func() bool { return len(env.store.OnlineUsers()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestShutdownReleasesEverything(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := store.New(store.WithCurrentUser(owner), store.WithDocuments(store.DefaultDocuments(time.Now())...))
	hub := NewHub(st, st)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	server := httptest.NewServer(Handler(hub, "*"))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?docId=1&peerId=p1", nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, PresenceUpdateType)
	require.Len(t, st.OnlineUsers(), 1)

	cancel()
	<-hub.Done()

	var closeErr *websocket.CloseError
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			require.ErrorAs(t, err, &closeErr)
			break
		}
	}
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Empty(t, st.OnlineUsers())
}

// readUntilClosed reads until the server closes the connection and returns the
// close error along with the messages received before it.
func readUntilClosed(t *testing.T, conn *websocket.Conn) (*websocket.CloseError, []WSMessage) {
	t.Helper()
	var msgs []WSMessage
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, p, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			return closeErr, msgs
		}
		var msg WSMessage
		require.NoError(t, json.Unmarshal(p, &msg))
		msgs = append(msgs, msg)
	}
}

func TestMakingDocumentPrivateDisconnectsOthers(t *testing.T) {
	env := setup(t)
	doc, ok := env.store.CreateDocument("Shared plan", true)
	require.True(t, ok)

	stranger := env.dial(t, "docId="+doc.ID+"&peerId=stranger")
	readUntil(t, stranger, PresenceUpdateType)
	author := env.dial(t, "docId="+doc.ID+"&peerId="+owner.ID)
	readUntil(t, author, PresenceUpdateType)
	readUntil(t, stranger, PresenceUpdateType)
	require.Equal(t, []string{"stranger"}, onlineIDs(env.store))

	_, ok = env.store.UpdateDocument(doc.ID, store.DocumentPatch{IsPublic: ptr(false)})
	require.True(t, ok)

	closeErr, seen := readUntilClosed(t, stranger)
	assert.Equal(t, CloseDocumentPrivate, closeErr.Code)
	for _, msg := range seen {
		assert.NotEqual(t, DocumentChangedType, msg.Type, "metadata of a private document leaked")
	}

	changed := readUntil(t, author, DocumentChangedType)
	var md Metadata
	require.NoError(t, json.Unmarshal(changed.Payload, &md))
	assert.False(t, md.IsPublic)

	assert.Eventually(t, func() bool { return len(env.store.OnlineUsers()) == 0 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		peers := env.hub.RoomPeers(doc.ID)
		return len(peers) == 1 && peers[0].ID == owner.ID
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateFromOtherUserRejectedOnPrivateDocument(t *testing.T) {
	env := setup(t)
	doc, ok := env.store.CreateDocument("Diary", false)
	require.True(t, ok)

	content, _ := json.Marshal(UpdatePayload{Content: "<p>overwritten</p>"})
	env.hub.Broadcast <- WSMessage{Type: UpdateType, DocID: doc.ID, UserID: "stranger", Payload: content}
	// Run handles messages one at a time, so once this is accepted the update above is done.
	env.hub.Broadcast <- WSMessage{Type: CursorType, DocID: doc.ID, UserID: "stranger", Payload: json.RawMessage(`{}`)}

	got, ok := env.store.Document(doc.ID)
	require.True(t, ok)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.UpdatedAt, got.UpdatedAt)

	env.hub.Broadcast <- WSMessage{Type: UpdateType, DocID: doc.ID, UserID: owner.ID, Payload: content}
	env.hub.Broadcast <- WSMessage{Type: CursorType, DocID: doc.ID, UserID: owner.ID, Payload: json.RawMessage(`{}`)}

	got, _ = env.store.Document(doc.ID)
	assert.Equal(t, "<p>overwritten</p>", got.Content, "the author may still edit")
}

func TestRegisterRechecksDocument(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, st *store.Store) string
		code    int
	}{
		{
			name: "deleted after handshake",
			prepare: func(t *testing.T, st *store.Store) string {
				require.True(t, st.DeleteDocument("2"))
				return "2"
			},
			code: CloseDocumentDeleted,
		},
		{
			name: "made private after handshake",
			prepare: func(t *testing.T, st *store.Store) string {
				doc, ok := st.CreateDocument("Secret", false)
				require.True(t, ok)
				return doc.ID
			},
			code: CloseDocumentPrivate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			docID := tt.prepare(t, env.store)

			// Registers without the checks ServeWs makes, as if the document
			// changed between the handshake and registration.
			upgrader := websocket.Upgrader{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				client := &Client{
					Hub:   env.hub,
					Conn:  conn,
					DocID: docID,
					User:  store.User{ID: "late", Name: "Late"},
					Send:  make(chan []byte, 256),
				}
				env.hub.Register <- client
				go client.writePump()
				go client.readPump()
			}))
			t.Cleanup(server.Close)

			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
			require.NoError(t, err)
			defer conn.Close()

			closeErr, seen := readUntilClosed(t, conn)
			assert.Equal(t, tt.code, closeErr.Code)
			assert.Empty(t, seen)
			assert.Empty(t, env.hub.RoomPeers(docID))
			assert.Empty(t, env.store.OnlineUsers())
		})
	}
}

func ptr[T any](v T) *T { return &v }
