package server

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cowrite/cowrite/commons"
)

func testClient(userID, username string) *client {
	return newClient(Identity{UserID: userID, Username: username}, 16, nil)
}

func TestSessionRegistry_JoinLeave(t *testing.T) {
	reg := newSessionRegistry(time.Minute, 5*time.Minute)
	now := time.Now()

	a := testClient("u1", "ada")
	b := testClient("u2", "brendan")

	reg.join(a, now)
	reg.join(b, now)
	if got, want := reg.size(), 2; got != want {
		t.Errorf("size = %v, want %v", got, want)
	}

	if p := reg.leave(a.connID); p == nil {
		t.Error("leave returned nil for a registered participant")
	}
	if p := reg.leave(a.connID); p != nil {
		t.Error("second leave returned a participant")
	}
	if got, want := reg.size(), 1; got != want {
		t.Errorf("size = %v, want %v", got, want)
	}
}

func TestSessionRegistry_CursorsAndPresence(t *testing.T) {
	reg := newSessionRegistry(time.Minute, 5*time.Minute)
	now := time.Now()

	a := testClient("u1", "ada")
	b := testClient("u2", "brendan")
	reg.join(a, now)
	reg.join(b, now)

	if !reg.updateCursor(a.connID, 7, now) {
		t.Fatal("updateCursor failed for a registered participant")
	}
	if reg.updateCursor("ghost", 1, now) {
		t.Error("updateCursor succeeded for an unknown participant")
	}

	want := map[string]int{"u1": 7, "u2": 0}
	if diff := cmp.Diff(want, reg.cursors()); diff != "" {
		t.Errorf("cursors diff:\n%s", diff)
	}

	presence := reg.listPresence(now)
	sort.Slice(presence, func(i, j int) bool { return presence[i].UserID < presence[j].UserID })

	if len(presence) != 2 {
		t.Fatalf("presence length = %v, want 2", len(presence))
	}
	if presence[0].Status != commons.StatusOnline || presence[1].Status != commons.StatusOnline {
		t.Errorf("fresh participants not online: %+v", presence)
	}
	if presence[0].Cursor != 7 {
		t.Errorf("cursor = %v, want 7", presence[0].Cursor)
	}
	if presence[0].Color == "" {
		t.Error("participant has no color")
	}
}

// TestSessionRegistry_PresenceWindows verifies the online/away derivation
// thresholds.
func TestSessionRegistry_PresenceWindows(t *testing.T) {
	reg := newSessionRegistry(time.Minute, 5*time.Minute)
	base := time.Now()

	a := testClient("u1", "ada")
	reg.join(a, base)

	tests := []struct {
		description string
		at          time.Time
		want        commons.PresenceStatus
	}{
		{"just joined", base, commons.StatusOnline},
		{"under a minute", base.Add(59 * time.Second), commons.StatusOnline},
		{"over a minute", base.Add(61 * time.Second), commons.StatusAway},
		{"under five minutes", base.Add(4 * time.Minute), commons.StatusAway},
	}

	for _, tc := range tests {
		presence := reg.listPresence(tc.at)
		if got := presence[0].Status; got != tc.want {
			t.Errorf("(%s) status = %v, want %v", tc.description, got, tc.want)
		}
	}

	// A heartbeat resets the clock.
	reg.heartbeat(a.connID, base.Add(2*time.Minute))
	if got := reg.listPresence(base.Add(2 * time.Minute))[0].Status; got != commons.StatusOnline {
		t.Errorf("status after heartbeat = %v, want online", got)
	}
}

func TestSessionRegistry_SweepInactive(t *testing.T) {
	reg := newSessionRegistry(time.Minute, 5*time.Minute)
	base := time.Now()

	a := testClient("u1", "ada")
	b := testClient("u2", "brendan")
	reg.join(a, base)
	reg.join(b, base)

	// Keep b alive, let a go stale.
	reg.heartbeat(b.connID, base.Add(4*time.Minute))

	evicted := reg.sweepInactive(base.Add(6 * time.Minute))
	if len(evicted) != 1 || evicted[0].c.identity.UserID != "u1" {
		t.Fatalf("evicted = %+v, want just u1", evicted)
	}
	if got, want := reg.size(), 1; got != want {
		t.Errorf("size after sweep = %v, want %v", got, want)
	}
}

func TestSessionRegistry_EachExcludes(t *testing.T) {
	reg := newSessionRegistry(time.Minute, 5*time.Minute)
	now := time.Now()

	a := testClient("u1", "ada")
	b := testClient("u2", "brendan")
	reg.join(a, now)
	reg.join(b, now)

	var reached []string
	reg.each(a.connID, func(c *client) {
		reached = append(reached, c.identity.UserID)
	})

	if diff := cmp.Diff([]string{"u2"}, reached); diff != "" {
		t.Errorf("reached diff:\n%s", diff)
	}
}
