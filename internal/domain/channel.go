package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type ChannelID string

const (
	MaxChannelNameLen = 50
	MaxDescriptionLen = 280
)

type Channel struct {
	ID          ChannelID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   UserID    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	MemberCount int       `json:"memberCount"`
	Members     []Member  `json:"members,omitempty"`
}

// Member is one row of a channel's membership list.
type Member struct {
	User     User      `json:"user"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NormalizeChannelName trims the name and reports whether it is acceptable:
// non-empty and at most MaxChannelNameLen runes. Uniqueness is the store's job.
func NormalizeChannelName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= MaxChannelNameLen
}
