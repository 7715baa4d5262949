package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cowrite/cowrite/commons"
)

// Upgrader instance used for all incoming connections. Origin checking is
// the deployment's reverse proxy's concern.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Transport terminates one WebSocket per (participant, document) pair,
// decodes wire messages into the document's mailbox and drains the
// participant's outbound buffer back onto the wire.
type Transport struct {
	hub  *Hub
	auth Authenticator
	acl  AccessController
	log  *logrus.Logger
}

func NewTransport(hub *Hub, auth Authenticator, acl AccessController, log *logrus.Logger) *Transport {
	return &Transport{hub: hub, auth: auth, acl: acl, log: log}
}

// Register mounts the collaboration endpoint.
func (t *Transport) Register(r gin.IRouter) {
	r.GET("/ws/:documentID", t.handleWS)
}

func (t *Transport) handleWS(c *gin.Context) {
	documentID := c.Param("documentID")
	token := c.Query("token")

	// Upgrade first; refusals are delivered as close codes so the client
	// can tell them apart.
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.log.WithError(err).Error("failed to upgrade connection")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()

	identity, err := t.auth.Authenticate(ctx, token)
	if err != nil {
		t.refuse(conn, err)
		return
	}
	if err := t.acl.Authorize(ctx, documentID, identity.UserID); err != nil {
		t.refuse(conn, err)
		return
	}

	cl := newClient(identity, t.hub.cfg.SendBuffer, func() { conn.Close() })
	log := t.log.WithField("document", documentID).WithField("user", identity.UserID)
	log.Info("participant connected")

	router := t.hub.Attach(documentID, cl)
	defer t.hub.Detach(documentID, cl)

	done := make(chan struct{})
	defer close(done)
	go t.writePump(conn, cl, done, log)

	t.readPump(conn, cl, router, log)
	log.Info("participant disconnected")
}

// refuse closes a refused connection with the close code matching the
// error, so that 4001/4002/4003/4004/4000 reach the client.
func (t *Transport) refuse(conn *websocket.Conn, err error) {
	code := closeCodeFor(err)
	t.log.WithError(err).WithField("code", code).Warn("connection refused")

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, err.Error()), deadline)
}

func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrNoIdentity):
		return commons.CloseNoIdentity
	case errors.Is(err, ErrInvalidToken):
		return commons.CloseAuthError
	case errors.Is(err, ErrAccessDenied):
		return commons.CloseAccessDenied
	case errors.Is(err, ErrDocumentNotFound):
		return commons.CloseDocumentMissing
	default:
		return commons.CloseServerError
	}
}

// readPump feeds inbound messages into the router until the connection
// drops. Undecodable frames are dropped without ending the session, and a
// flooding connection has its excess messages shed.
func (t *Transport) readPump(conn *websocket.Conn, cl *client, router *documentRouter, log *logrus.Entry) {
	limiter := rate.NewLimiter(t.hub.cfg.MessageRate, t.hub.cfg.MessageBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("connection closed unexpectedly")
			}
			return
		}

		var msg commons.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithError(err).Debug("dropped undecodable message")
			continue
		}
		if !limiter.Allow() {
			log.Warn("message rate exceeded, dropping")
			continue
		}

		// Stamp the sender; client-supplied identity fields are ignored.
		msg.UserID = cl.identity.UserID
		msg.Username = cl.identity.Username
		msg.DocumentID = ""

		router.enqueue(event{kind: evMessage, c: cl, msg: msg})
	}
}

// writePump drains the participant's outbound buffer onto the wire.
func (t *Transport) writePump(conn *websocket.Conn, cl *client, done <-chan struct{}, log *logrus.Entry) {
	for {
		select {
		case msg := <-cl.send:
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("write failed, closing connection")
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
