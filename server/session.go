package server

import (
	"time"

	"github.com/cowrite/cowrite/commons"
)

// sessionRegistry tracks the participants connected to one document: their
// channel handles, cursors and last-activity times. It is owned by the
// document's router goroutine and must only be touched from there; that
// single serialization point is what makes it lock-free.
type sessionRegistry struct {
	participants map[string]*participant // keyed by connection id

	onlineWindow time.Duration
	awayWindow   time.Duration
}

type participant struct {
	c          *client
	cursor     int
	lastActive time.Time
}

func newSessionRegistry(onlineWindow, awayWindow time.Duration) *sessionRegistry {
	return &sessionRegistry{
		participants: make(map[string]*participant),
		onlineWindow: onlineWindow,
		awayWindow:   awayWindow,
	}
}

func (s *sessionRegistry) size() int {
	return len(s.participants)
}

// join registers a participant.
func (s *sessionRegistry) join(c *client, now time.Time) {
	s.participants[c.connID] = &participant{c: c, lastActive: now}
}

// leave removes a participant and returns its entry, or nil if it was not
// registered (already evicted by the sweep).
func (s *sessionRegistry) leave(connID string) *participant {
	p, ok := s.participants[connID]
	if !ok {
		return nil
	}
	delete(s.participants, connID)
	return p
}

// updateCursor records a participant's cursor and refreshes its activity.
func (s *sessionRegistry) updateCursor(connID string, cursor int, now time.Time) bool {
	p, ok := s.participants[connID]
	if !ok {
		return false
	}
	p.cursor = cursor
	p.lastActive = now
	return true
}

// heartbeat refreshes a participant's activity.
func (s *sessionRegistry) heartbeat(connID string, now time.Time) bool {
	p, ok := s.participants[connID]
	if !ok {
		return false
	}
	p.lastActive = now
	return true
}

// cursors returns the user id to cursor position map sent with init and
// sync_response messages.
func (s *sessionRegistry) cursors() map[string]int {
	out := make(map[string]int, len(s.participants))
	for _, p := range s.participants {
		out[p.c.identity.UserID] = p.cursor
	}
	return out
}

// listPresence derives each participant's status from its last activity:
// online within the online window, away within the away window. Entries
// past the away window are the sweep's business, not this list's.
func (s *sessionRegistry) listPresence(now time.Time) []commons.Presence {
	out := make([]commons.Presence, 0, len(s.participants))
	for _, p := range s.participants {
		status := commons.StatusOnline
		if now.Sub(p.lastActive) > s.onlineWindow {
			status = commons.StatusAway
		}
		out = append(out, commons.Presence{
			UserID:   p.c.identity.UserID,
			Username: p.c.identity.Username,
			Color:    p.c.color,
			Cursor:   p.cursor,
			Status:   status,
		})
	}
	return out
}

// sweepInactive evicts participants idle past the away window and returns
// the evicted entries so the router can notify the others and drop the
// stale channels.
func (s *sessionRegistry) sweepInactive(now time.Time) []*participant {
	var evicted []*participant
	for connID, p := range s.participants {
		if now.Sub(p.lastActive) > s.awayWindow {
			delete(s.participants, connID)
			evicted = append(evicted, p)
		}
	}
	return evicted
}

// each calls fn for every participant except the one with the excluded
// connection id. Pass "" to reach everyone.
func (s *sessionRegistry) each(excludeConnID string, fn func(*client)) {
	for connID, p := range s.participants {
		if connID != excludeConnID {
			fn(p.c)
		}
	}
}
