package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cowrite/cowrite/commons"
	"github.com/cowrite/cowrite/crdt"
)

type eventKind int

const (
	evMessage eventKind = iota
	evJoin
	evLeave
)

// event is one unit of work in a document's mailbox.
type event struct {
	kind eventKind
	c    *client
	msg  commons.Message
}

type routerState int

const (
	stateUnloaded routerState = iota
	stateActive
	stateDraining
)

func (s routerState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateDraining:
		return "draining"
	default:
		return "unloaded"
	}
}

// documentRouter is the serialization point for one document. Every inbound
// message, join and leave funnels through its mailbox and is processed one
// at a time by the run goroutine, so the replicated sequence and the
// session registry never see concurrent mutation. Different documents run
// fully in parallel.
type documentRouter struct {
	id  string
	cfg Config
	log *logrus.Entry

	doc      *crdt.Document
	sessions *sessionRegistry
	bridge   *persistenceBridge

	inbox  chan event
	cancel context.CancelFunc
	done   chan struct{}

	state routerState
}

// enqueue hands an event to the router. It blocks only while the mailbox
// is full.
func (r *documentRouter) enqueue(ev event) {
	select {
	case r.inbox <- ev:
	case <-r.done:
		// The router drained before the event landed; a joining client
		// will be re-attached by the hub, anything else is moot.
	}
}

// run is the router's lifecycle: load the last snapshot (UNLOADED→ACTIVE),
// serialize work until cancelled, then flush once and discard
// (ACTIVE→DRAINING→UNLOADED).
func (r *documentRouter) run(ctx context.Context) {
	defer close(r.done)

	snap := r.bridge.load(ctx)
	r.doc = crdt.FromSnapshot(snap, "server/"+r.id)
	r.state = stateActive
	r.log.WithField("state", r.state).WithField("version", r.doc.Version()).Info("document session activated")

	saveTicker := time.NewTicker(r.cfg.SaveInterval)
	defer saveTicker.Stop()
	sweepTicker := time.NewTicker(r.cfg.SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case ev := <-r.inbox:
			r.dispatch(ev)
		case <-saveTicker.C:
			r.bridge.flush(context.Background(), r.doc.Snapshot())
		case <-sweepTicker.C:
			r.sweep()
		}
	}
}

// drain processes whatever is already queued, flushes one final time and
// lets the in-memory state go.
func (r *documentRouter) drain() {
	r.state = stateDraining
	for {
		select {
		case ev := <-r.inbox:
			r.dispatch(ev)
			continue
		default:
		}
		break
	}

	r.bridge.flush(context.Background(), r.doc.Snapshot())
	r.state = stateUnloaded
	r.log.WithField("state", r.state).Info("document session unloaded")
}

// dispatch handles one event. A panic in a handler is scoped to that one
// message; the session keeps running for everyone.
func (r *documentRouter) dispatch(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("recovered from message handler")
		}
	}()

	switch ev.kind {
	case evJoin:
		r.handleJoin(ev.c)
	case evLeave:
		r.handleLeave(ev.c)
	case evMessage:
		r.handleMessage(ev.c, ev.msg)
	}
}

func (r *documentRouter) handleJoin(c *client) {
	now := time.Now()
	r.sessions.join(c, now)

	snap := r.doc.Snapshot()
	c.trySend(commons.Message{
		Type:       commons.InitMessage,
		DocumentID: r.id,
		UserID:     c.identity.UserID,
		Username:   c.identity.Username,
		Color:      c.color,
		State:      &snap,
		Cursors:    r.sessions.cursors(),
		Presence:   r.sessions.listPresence(now),
		Version:    snap.Version,
		Timestamp:  now.UTC().Format(time.RFC3339Nano),
	})

	r.broadcast(c.connID, commons.Message{
		Type:     commons.PresenceJoinMessage,
		UserID:   c.identity.UserID,
		Username: c.identity.Username,
		Color:    c.color,
	})

	r.log.WithField("user", c.identity.UserID).Info("participant joined")
}

func (r *documentRouter) handleLeave(c *client) {
	if r.sessions.leave(c.connID) == nil {
		return // already evicted by the sweep
	}

	r.broadcast(c.connID, commons.Message{
		Type:     commons.PresenceLeaveMessage,
		UserID:   c.identity.UserID,
		Username: c.identity.Username,
	})

	r.log.WithField("user", c.identity.UserID).Info("participant left")
}

// handleMessage applies one inbound message. A malformed message (missing
// required field, out-of-range index) is dropped with no state change and
// nothing surfaced to the other participants.
func (r *documentRouter) handleMessage(c *client, msg commons.Message) {
	now := time.Now()

	switch msg.Type {
	case commons.InsertMessage:
		if msg.Index == nil || msg.Value == "" {
			r.dropMessage(msg, "missing index or value")
			return
		}
		ch, err := r.doc.Insert(*msg.Index, msg.Value)
		if err != nil {
			r.dropMessage(msg, err.Error())
			return
		}
		r.sessions.heartbeat(c.connID, now)
		r.commit(c, []crdt.Character{ch})

	case commons.DeleteMessage:
		if msg.Index == nil {
			r.dropMessage(msg, "missing index")
			return
		}
		ch := r.doc.Delete(*msg.Index)
		if ch == nil {
			r.dropMessage(msg, "index out of range")
			return
		}
		r.sessions.heartbeat(c.connID, now)
		r.commit(c, []crdt.Character{*ch})

	case commons.PasteMessage:
		if msg.Index == nil || msg.Text == "" {
			r.dropMessage(msg, "missing index or text")
			return
		}
		index := *msg.Index
		var deltas []crdt.Character
		for _, ru := range msg.Text {
			ch, err := r.doc.Insert(index, string(ru))
			if err != nil {
				break
			}
			deltas = append(deltas, ch)
			index++
		}
		if len(deltas) == 0 {
			r.dropMessage(msg, "nothing pasted")
			return
		}
		r.sessions.heartbeat(c.connID, now)
		r.commit(c, deltas)

	case commons.CutMessage:
		if msg.StartIndex == nil || msg.EndIndex == nil {
			r.dropMessage(msg, "missing range")
			return
		}
		start, end := *msg.StartIndex, *msg.EndIndex
		if start < 0 || end < start {
			r.dropMessage(msg, "bad range")
			return
		}
		var deltas []crdt.Character
		// Deleting at start repeatedly: each delete shifts the rest left.
		for i := start; i < end; i++ {
			ch := r.doc.Delete(start)
			if ch == nil {
				break
			}
			deltas = append(deltas, *ch)
		}
		if len(deltas) == 0 {
			r.dropMessage(msg, "nothing cut")
			return
		}
		r.sessions.heartbeat(c.connID, now)
		r.commit(c, deltas)

	case commons.UpdateMessage:
		if len(msg.Characters) == 0 {
			r.dropMessage(msg, "no characters")
			return
		}
		var applied []crdt.Character
		for _, ch := range msg.Characters {
			if r.doc.ApplyRemote(ch) {
				applied = append(applied, ch)
			}
		}
		r.sessions.heartbeat(c.connID, now)
		if len(applied) == 0 {
			return // duplicates; nothing to fan out or persist
		}
		r.commit(c, applied)

	case commons.CursorMessage:
		if msg.Position == nil {
			r.dropMessage(msg, "missing position")
			return
		}
		if !r.sessions.updateCursor(c.connID, *msg.Position, now) {
			return
		}
		r.broadcast(c.connID, commons.Message{
			Type:     commons.CursorMessage,
			UserID:   c.identity.UserID,
			Username: c.identity.Username,
			Color:    c.color,
			Position: msg.Position,
		})

	case commons.HeartbeatMessage:
		r.sessions.heartbeat(c.connID, now)

	case commons.SyncRequestMessage:
		snap := r.doc.Snapshot()
		c.trySend(commons.Message{
			Type:       commons.SyncResponseMessage,
			DocumentID: r.id,
			State:      &snap,
			Cursors:    r.sessions.cursors(),
			Version:    snap.Version,
			Timestamp:  now.UTC().Format(time.RFC3339Nano),
		})

	default:
		r.dropMessage(msg, "unknown type")
	}
}

// commit fans a batch of character deltas out to everyone but the origin
// and writes the snapshot through immediately. The periodic tick re-flushes
// if the write fails here.
func (r *documentRouter) commit(origin *client, deltas []crdt.Character) {
	r.broadcast(origin.connID, commons.Message{
		Type:       commons.UpdateMessage,
		UserID:     origin.identity.UserID,
		Characters: deltas,
	})

	r.bridge.markDirty()
	r.bridge.flush(context.Background(), r.doc.Snapshot())
}

// broadcast stamps and fans a message out to every participant except the
// excluded connection. Deltas are observed by all participants in the same
// relative order because only this goroutine sends them.
func (r *documentRouter) broadcast(excludeConnID string, msg commons.Message) {
	msg.DocumentID = r.id
	msg.Version = r.doc.Version()
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	r.sessions.each(excludeConnID, func(c *client) {
		if !c.trySend(msg) {
			// A full outbound buffer means the consumer cannot keep up.
			// Dropping deltas would desynchronize it, so the connection is
			// closed; the client reconnects and resyncs.
			r.log.WithField("user", c.identity.UserID).Warn("outbound buffer full, disconnecting slow consumer")
			c.close()
		}
	})
}

// sweep evicts participants idle past the away window, tells the others and
// drops the stale channels so their transports unwind.
func (r *documentRouter) sweep() {
	for _, p := range r.sessions.sweepInactive(time.Now()) {
		r.broadcast(p.c.connID, commons.Message{
			Type:     commons.PresenceLeaveMessage,
			UserID:   p.c.identity.UserID,
			Username: p.c.identity.Username,
		})
		p.c.close()
		r.log.WithField("user", p.c.identity.UserID).Info("evicted inactive participant")
	}
}

func (r *documentRouter) dropMessage(msg commons.Message, reason string) {
	r.log.WithField("type", msg.Type).WithField("reason", reason).Debug("dropped malformed message")
}
