package domain

import "time"

// PresenceRecord marks one connection of a user as online or offline.
type PresenceRecord struct {
	ConnectionID string    `json:"connectionId"`
	UserID       UserID    `json:"userId"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"lastSeen"`
}
