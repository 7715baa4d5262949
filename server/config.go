package server

import (
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the per-document session machinery. The zero value is
// usable; withDefaults fills in anything unset.
type Config struct {
	// SaveInterval is the periodic fallback flush interval.
	SaveInterval time.Duration

	// SweepInterval is how often inactive participants are swept.
	SweepInterval time.Duration

	// OnlineWindow and AwayWindow derive presence status from the last
	// activity time; participants idle past AwayWindow are evicted.
	OnlineWindow time.Duration
	AwayWindow   time.Duration

	// InboxSize is the capacity of each document's mailbox.
	InboxSize int

	// SendBuffer is the outbound buffer per participant.
	SendBuffer int

	// MessageRate and MessageBurst bound inbound messages per connection;
	// excess messages are dropped.
	MessageRate  rate.Limit
	MessageBurst int
}

func (c Config) withDefaults() Config {
	if c.SaveInterval <= 0 {
		c.SaveInterval = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.OnlineWindow <= 0 {
		c.OnlineWindow = time.Minute
	}
	if c.AwayWindow <= 0 {
		c.AwayWindow = 5 * time.Minute
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 512
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.MessageRate <= 0 {
		c.MessageRate = rate.Limit(200)
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 400
	}
	return c
}
