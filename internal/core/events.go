package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Server -> client event names.
const (
	EventPresenceUpdate = "presence_update"
	EventChannelHistory = "channel_history"
	EventNewMessage     = "new_message"
	EventUserTyping     = "user_typing"
	EventMessageAck     = "message_ack"
	EventError          = "error"
	EventPong           = "pong"
)

type PresenceUpdate struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Online   bool          `json:"online"`
	LastSeen *time.Time    `json:"lastSeen,omitempty"`
}

func NewPresenceUpdate(uid domain.UserID, online bool, lastSeen time.Time) PresenceUpdate {
	ev := PresenceUpdate{Type: EventPresenceUpdate, UserID: uid, Online: online}
	if !online {
		ev.LastSeen = &lastSeen
	}
	return ev
}

type ChannelHistory struct {
	Type      string           `json:"type"`
	ChannelID domain.ChannelID `json:"channelId"`
	Messages  []domain.Message `json:"messages"`
}

func NewChannelHistory(id domain.ChannelID, msgs []domain.Message) ChannelHistory {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return ChannelHistory{Type: EventChannelHistory, ChannelID: id, Messages: msgs}
}

// NewMessage flattens the stored message next to the type tag.
type NewMessage struct {
	Type string `json:"type"`
	domain.Message
}

func NewMessageEvent(m domain.Message) NewMessage {
	return NewMessage{Type: EventNewMessage, Message: m}
}

type UserTyping struct {
	Type      string           `json:"type"`
	UserID    domain.UserID    `json:"userId"`
	IsTyping  bool             `json:"isTyping"`
	ChannelID domain.ChannelID `json:"channelId"`
}

func NewUserTyping(uid domain.UserID, ch domain.ChannelID, typing bool) UserTyping {
	return UserTyping{Type: EventUserTyping, UserID: uid, IsTyping: typing, ChannelID: ch}
}

type MessageAck struct {
	Type      string           `json:"type"`
	ClientID  string           `json:"clientId,omitempty"`
	MessageID domain.MessageID `json:"messageId"`
	ChannelID domain.ChannelID `json:"channelId"`
}

type ErrorEvent struct {
	Type      string           `json:"type"`
	Event     string           `json:"event,omitempty"`
	Error     string           `json:"error"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
	ClientID  string           `json:"clientId,omitempty"`
}

// Encode marshals an event once so it can be fanned out as is.
func Encode(v any) (Frame, error) {
	if f, ok := v.(Frame); ok {
		return f, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
