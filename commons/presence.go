package commons

// PresenceStatus is a participant's derived liveness state.
type PresenceStatus string

const (
	StatusOnline PresenceStatus = "online"
	StatusAway   PresenceStatus = "away"
)

// Presence describes one connected participant as shown to the others.
type Presence struct {
	UserID   string         `json:"userId"`
	Username string         `json:"username"`
	Color    string         `json:"color"`
	Cursor   int            `json:"cursor"`
	Status   PresenceStatus `json:"status"`
}
