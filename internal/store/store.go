// Package store persists users, channels, memberships, messages and presence
// rows. GormStore covers all of them; RedisPresenceStore is an alternative
// home for presence.
package store

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type UserStore interface {
	UpsertUser(ctx context.Context, user domain.User) error
}

type ChannelStore interface {
	// CreateChannel stores the channel and makes its creator the first member.
	CreateChannel(ctx context.Context, ch domain.Channel) (*domain.Channel, error)
	// ListChannels returns channels oldest first with member counts.
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	// GetChannel returns the channel with its members.
	GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	AddMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) error
	RemoveMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) error
	IsMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) (bool, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
	ListChannelHistory(ctx context.Context, ch domain.ChannelID, limit int) ([]domain.Message, error)
	// ListMessagesPage returns up to limit messages newest first, strictly
	// older than cursor when cursor is set.
	ListMessagesPage(ctx context.Context, ch domain.ChannelID, cursor domain.MessageID, limit int) ([]domain.Message, error)
}

type PresenceStore interface {
	UpsertPresence(ctx context.Context, rec domain.PresenceRecord) error
	MarkOffline(ctx context.Context, connectionID string, at time.Time) error
	// ResetOnline flags every row left online by a previous process offline.
	ResetOnline(ctx context.Context, at time.Time) (int64, error)
	LastSeen(ctx context.Context, uid domain.UserID) (time.Time, bool, error)
	Close() error
}

// DataStore is everything the server keeps in the relational database.
type DataStore interface {
	UserStore
	ChannelStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}

// ClampPageSize applies the default and the upper bound to a page size.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
