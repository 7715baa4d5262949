// Package commons holds the wire types shared by the server and clients.
package commons

import "github.com/cowrite/cowrite/crdt"

// MessageType represents the type of a wire message.
type MessageType string

const (
	// InitMessage carries the full document state to a participant that
	// just connected.
	InitMessage MessageType = "init"

	// InsertMessage, DeleteMessage, PasteMessage and CutMessage are
	// content mutations sent by participants.
	InsertMessage MessageType = "insert"
	DeleteMessage MessageType = "delete"
	PasteMessage  MessageType = "paste"
	CutMessage    MessageType = "cut"

	// UpdateMessage carries character deltas. The server broadcasts one
	// after every committed mutation; replica-style clients may also send
	// one with characters to merge.
	UpdateMessage MessageType = "update"

	// CursorMessage and HeartbeatMessage update presence state.
	CursorMessage    MessageType = "cursor"
	HeartbeatMessage MessageType = "heartbeat"

	// SyncRequestMessage asks for the full current snapshot; the server
	// replies to the requester only with a SyncResponseMessage.
	SyncRequestMessage  MessageType = "sync_request"
	SyncResponseMessage MessageType = "sync_response"

	// PresenceJoinMessage and PresenceLeaveMessage notify the other
	// participants of connects and disconnects.
	PresenceJoinMessage  MessageType = "presence_join"
	PresenceLeaveMessage MessageType = "presence_leave"
)

// Message is the JSON envelope sent over the wire. Only the fields relevant
// to the Type are set; optional integer fields are pointers so that a
// missing field can be told apart from zero when validating.
type Message struct {
	Type MessageType `json:"type"`

	// DocumentID and UserID are stamped by the server; inbound values are
	// ignored.
	DocumentID string `json:"documentId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Username   string `json:"username,omitempty"`
	Color      string `json:"color,omitempty"`

	// Index and Value describe a single-character insert or delete.
	Index *int   `json:"index,omitempty"`
	Value string `json:"value,omitempty"`

	// Text is the payload of a paste.
	Text string `json:"text,omitempty"`

	// StartIndex and EndIndex delimit a cut ([start, end)).
	StartIndex *int `json:"startIndex,omitempty"`
	EndIndex   *int `json:"endIndex,omitempty"`

	// Position is a cursor location.
	Position *int `json:"position,omitempty"`

	// Characters are CRDT deltas (update messages).
	Characters []crdt.Character `json:"characters,omitempty"`

	// State is the full snapshot (init and sync_response messages).
	State *crdt.Snapshot `json:"state,omitempty"`

	// Cursors maps user IDs to cursor positions (init and sync_response).
	Cursors map[string]int `json:"cursors,omitempty"`

	// Presence lists the connected participants (init messages).
	Presence []Presence `json:"presence,omitempty"`

	// Version is the committed document version at send time.
	Version int64 `json:"version,omitempty"`

	// Timestamp is the server send time in RFC 3339 form.
	Timestamp string `json:"timestamp,omitempty"`
}

// Close codes used when refusing a connection, mirroring the error taxonomy
// of the session layer.
const (
	CloseServerError     = 4000
	CloseNoIdentity      = 4001
	CloseAuthError       = 4002
	CloseAccessDenied    = 4003
	CloseDocumentMissing = 4004
)
