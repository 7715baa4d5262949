package server

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/cowrite/cowrite/commons"
)

// palette holds the cursor colors handed out to participants.
var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46a6b0", "#f032e6", "#808000",
}

// colorFor picks a stable color for a user.
func colorFor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return palette[int(h.Sum32())%len(palette)]
}

// client is the router's handle on one connected participant: its identity
// plus a buffered outbound channel drained by the transport's write pump.
type client struct {
	connID   string
	identity Identity
	color    string

	send chan commons.Message

	closeOnce sync.Once
	closeFn   func()
}

// newClient creates a client handle with the given outbound buffer size.
// closeFn, if set, force-closes the underlying channel; the router uses it
// to drop participants evicted by the inactivity sweep.
func newClient(identity Identity, sendBuffer int, closeFn func()) *client {
	return &client{
		connID:   uuid.NewString(),
		identity: identity,
		color:    colorFor(identity.UserID),
		send:     make(chan commons.Message, sendBuffer),
		closeFn:  closeFn,
	}
}

// trySend enqueues a message without blocking the router. A full buffer
// means a consumer that cannot keep up; the message is dropped and the
// caller decides whether that matters.
func (c *client) trySend(msg commons.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close force-closes the participant's channel, at most once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeFn()
		}
	})
}
