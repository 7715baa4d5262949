package server

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowrite/cowrite/commons"
	"github.com/cowrite/cowrite/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := newTestHub(storage.NewMemoryStore())
	auth := StaticAuthenticator{
		"tok-ada":     {UserID: "u1", Username: "ada"},
		"tok-brendan": {UserID: "u2", Username: "brendan"},
	}
	acl := StaticAccessController{
		Documents: map[string]DocumentACL{
			"doc": {Owner: "u1", Collaborators: []string{"u2"}},
		},
	}

	engine := gin.New()
	NewTransport(hub, auth, acl, quietLogger()).Register(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) commons.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg commons.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readWireType(t *testing.T, conn *websocket.Conn, want commons.MessageType) commons.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := readWire(t, conn); msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return commons.Message{}
}

// expectCloseCode dials and asserts the connection is refused with the
// given close code.
func expectCloseCode(t *testing.T, srv *httptest.Server, path string, want int) {
	t.Helper()
	conn := dial(t, srv, path)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "err = %v, want close error", err)
	assert.Equal(t, want, closeErr.Code)
}

func TestTransport_RefusalCloseCodes(t *testing.T) {
	srv := newTestServer(t)

	expectCloseCode(t, srv, "/ws/doc", commons.CloseNoIdentity)
	expectCloseCode(t, srv, "/ws/doc?token=wrong", commons.CloseAuthError)
	expectCloseCode(t, srv, "/ws/ghost?token=tok-ada", commons.CloseDocumentMissing)

	// brendan is a collaborator on "doc" but nothing else; a document that
	// exists without granting access closes with 4003.
	srvDenied := func() *httptest.Server {
		gin.SetMode(gin.TestMode)
		hub := newTestHub(storage.NewMemoryStore())
		auth := StaticAuthenticator{"tok-x": {UserID: "u9", Username: "mallory"}}
		acl := StaticAccessController{
			Documents: map[string]DocumentACL{"doc": {Owner: "u1"}},
		}
		engine := gin.New()
		NewTransport(hub, auth, acl, quietLogger()).Register(engine)
		s := httptest.NewServer(engine)
		t.Cleanup(s.Close)
		return s
	}()
	expectCloseCode(t, srvDenied, "/ws/doc?token=tok-x", commons.CloseAccessDenied)
}

func TestTransport_EditSession(t *testing.T) {
	srv := newTestServer(t)

	ada := dial(t, srv, "/ws/doc?token=tok-ada")
	init := readWireType(t, ada, commons.InitMessage)
	assert.Equal(t, "u1", init.UserID)
	require.NotNil(t, init.State)
	assert.Equal(t, "", init.State.Text)

	brendan := dial(t, srv, "/ws/doc?token=tok-brendan")
	readWireType(t, brendan, commons.InitMessage)
	readWireType(t, ada, commons.PresenceJoinMessage)

	// ada types; brendan sees the delta.
	require.NoError(t, ada.WriteJSON(commons.Message{
		Type: commons.InsertMessage, Index: intp(0), Value: "h",
	}))
	update := readWireType(t, brendan, commons.UpdateMessage)
	require.Len(t, update.Characters, 1)
	assert.Equal(t, "h", update.Characters[0].Value)
	assert.Equal(t, "u1", update.UserID)

	// brendan resyncs and sees the committed text.
	require.NoError(t, brendan.WriteJSON(commons.Message{Type: commons.SyncRequestMessage}))
	resp := readWireType(t, brendan, commons.SyncResponseMessage)
	require.NotNil(t, resp.State)
	assert.Equal(t, "h", resp.State.Text)

	// An undecodable frame is dropped without ending the session.
	require.NoError(t, ada.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, ada.WriteJSON(commons.Message{
		Type: commons.InsertMessage, Index: intp(1), Value: "i",
	}))
	update = readWireType(t, brendan, commons.UpdateMessage)
	require.Len(t, update.Characters, 1)
	assert.Equal(t, "i", update.Characters[0].Value)

	// brendan leaves; ada hears about it.
	require.NoError(t, brendan.Close())
	leave := readWireType(t, ada, commons.PresenceLeaveMessage)
	assert.Equal(t, "u2", leave.UserID)
}

func TestTransport_CursorFanout(t *testing.T) {
	srv := newTestServer(t)

	ada := dial(t, srv, "/ws/doc?token=tok-ada")
	readWireType(t, ada, commons.InitMessage)
	brendan := dial(t, srv, "/ws/doc?token=tok-brendan")
	readWireType(t, brendan, commons.InitMessage)

	require.NoError(t, brendan.WriteJSON(commons.Message{
		Type: commons.CursorMessage, Position: intp(5),
	}))

	cursor := readWireType(t, ada, commons.CursorMessage)
	require.NotNil(t, cursor.Position)
	assert.Equal(t, 5, *cursor.Position)
	assert.Equal(t, "u2", cursor.UserID)
	assert.NotEmpty(t, cursor.Color)
}
