package store

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type userRow struct {
	ID        string `gorm:"primarykey;size:64"`
	Username  string `gorm:"size:256;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type channelRow struct {
	ID          string    `gorm:"primarykey;size:36"`
	Name        string    `gorm:"size:50;not null;uniqueIndex"`
	Description string    `gorm:"size:280"`
	CreatedBy   string    `gorm:"size:64;not null"`
	CreatedAt   time.Time `gorm:"index"`
}

func (channelRow) TableName() string { return "channels" }

type membershipRow struct {
	ChannelID string    `gorm:"primarykey;size:36"`
	UserID    string    `gorm:"primarykey;size:64;index"`
	JoinedAt  time.Time `gorm:"not null"`
	User      userRow   `gorm:"foreignKey:UserID;references:ID"`
}

func (membershipRow) TableName() string { return "channel_members" }

type messageRow struct {
	ID        string    `gorm:"primarykey;size:26"`
	ChannelID string    `gorm:"size:36;not null;index:idx_messages_channel_order,priority:1"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_channel_order,priority:2"`
	UserID    string    `gorm:"size:64;not null;index"`
	Content   string    `gorm:"type:text;not null"`
	User      userRow   `gorm:"foreignKey:UserID;references:ID"`
}

func (messageRow) TableName() string { return "messages" }

type presenceRow struct {
	ConnectionID string    `gorm:"primarykey;size:36"`
	UserID       string    `gorm:"size:64;not null;index"`
	Online       bool      `gorm:"not null;index"`
	LastSeen     time.Time `gorm:"not null"`
}

func (presenceRow) TableName() string { return "presences" }

func (r messageRow) toDomain() domain.Message {
	user := domain.User{ID: domain.UserID(r.UserID), Username: r.User.Username}
	if user.Username == "" {
		user.Username = r.UserID
	}
	return domain.Message{
		ID:        domain.MessageID(r.ID),
		Content:   r.Content,
		UserID:    domain.UserID(r.UserID),
		ChannelID: domain.ChannelID(r.ChannelID),
		CreatedAt: r.CreatedAt.UTC(),
		User:      user,
	}
}

func (r channelRow) toDomain() domain.Channel {
	return domain.Channel{
		ID:          domain.ChannelID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   domain.UserID(r.CreatedBy),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r membershipRow) toDomain() domain.Member {
	user := domain.User{ID: domain.UserID(r.UserID), Username: r.User.Username}
	if user.Username == "" {
		user.Username = r.UserID
	}
	return domain.Member{User: user, JoinedAt: r.JoinedAt.UTC()}
}
