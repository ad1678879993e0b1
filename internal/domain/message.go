package domain

import "time"

type MessageID string

// Message is immutable once stored. Within a channel messages are ordered by
// (CreatedAt, ID).
type Message struct {
	ID        MessageID `json:"id"`
	Content   string    `json:"content"`
	UserID    UserID    `json:"userId"`
	ChannelID ChannelID `json:"channelId"`
	CreatedAt time.Time `json:"createdAt"`
	User      User      `json:"user"`
}
