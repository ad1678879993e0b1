package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore keeps every table in one SQLite database.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the database at dsn. ":memory:" is fine for
// tests.
func OpenSQLite(dsn string, debug bool) (*GormStore, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	sqlDB.SetMaxOpenConns(1)

	s := NewGormStore(db)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Info().Str("module", "store").Str("dsn", dsn).Msg("sqlite store ready")
	return s, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&userRow{}, &channelRow{}, &membershipRow{}, &messageRow{}, &presenceRow{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) UpsertUser(ctx context.Context, user domain.User) error {
	defer observe("upsert_user", time.Now())
	if err := upsertUser(s.db.WithContext(ctx), user); err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

func upsertUser(tx *gorm.DB, user domain.User) error {
	row := userRow{ID: string(user.ID), Username: user.Username}
	if row.Username == "" {
		row.Username = row.ID
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).Create(&row).Error
}

// Channels

func (s *GormStore) CreateChannel(ctx context.Context, ch domain.Channel) (*domain.Channel, error) {
	defer observe("create_channel", time.Now())

	name, ok := domain.NormalizeChannelName(ch.Name)
	if !ok {
		return nil, fmt.Errorf("%w: invalid channel name %q", domain.ErrValidation, ch.Name)
	}
	desc := strings.TrimSpace(ch.Description)
	if len([]rune(desc)) > domain.MaxDescriptionLen {
		return nil, fmt.Errorf("%w: description longer than %d characters", domain.ErrValidation, domain.MaxDescriptionLen)
	}
	if ch.CreatedBy == "" {
		return nil, fmt.Errorf("%w: channel creator is required", domain.ErrValidation)
	}

	now := s.now()
	row := channelRow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: desc,
		CreatedBy:   string(ch.CreatedBy),
		CreatedAt:   now,
	}
	member := membershipRow{ChannelID: row.ID, UserID: row.CreatedBy, JoinedAt: now}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&channelRow{}).Where("name = ?", name).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("%w: channel name %q already taken", domain.ErrConflict, name)
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&member).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: channel name %q already taken", domain.ErrConflict, name)
		}
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("store: create channel: %w", err)
	}

	out := row.toDomain()
	out.MemberCount = 1
	var creator userRow
	if err := s.db.WithContext(ctx).First(&creator, "id = ?", row.CreatedBy).Error; err == nil {
		member.User = creator
	}
	out.Members = []domain.Member{member.toDomain()}
	return &out, nil
}

func (s *GormStore) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	defer observe("list_channels", time.Now())

	var rows []channelRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	var counts []struct {
		ChannelID string
		N         int
	}
	if err := s.db.WithContext(ctx).Model(&membershipRow{}).
		Select("channel_id, COUNT(*) AS n").Group("channel_id").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("store: count members: %w", err)
	}
	byChannel := make(map[string]int, len(counts))
	for _, c := range counts {
		byChannel[c.ChannelID] = c.N
	}

	out := make([]domain.Channel, 0, len(rows))
	for _, r := range rows {
		ch := r.toDomain()
		ch.MemberCount = byChannel[r.ID]
		out = append(out, ch)
	}
	return out, nil
}

func (s *GormStore) GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	defer observe("get_channel", time.Now())

	var row channelRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: channel %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get channel: %w", err)
	}
	var members []membershipRow
	if err := s.db.WithContext(ctx).Preload("User").
		Where("channel_id = ?", row.ID).Order("joined_at ASC").Order("user_id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}

	ch := row.toDomain()
	ch.MemberCount = len(members)
	ch.Members = make([]domain.Member, 0, len(members))
	for _, m := range members {
		ch.Members = append(ch.Members, m.toDomain())
	}
	return &ch, nil
}

func (s *GormStore) AddMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) error {
	defer observe("add_member", time.Now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&channelRow{}).Where("id = ?", string(ch)).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: channel %s", domain.ErrNotFound, ch)
		}
		if err := tx.Model(&membershipRow{}).
			Where("channel_id = ? AND user_id = ?", string(ch), string(uid)).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: already a member of %s", domain.ErrConflict, ch)
		}
		row := membershipRow{ChannelID: string(ch), UserID: string(uid), JoinedAt: s.now()}
		return tx.Omit(clause.Associations).Create(&row).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: already a member of %s", domain.ErrConflict, ch)
	default:
		return fmt.Errorf("store: add member: %w", err)
	}
}

func (s *GormStore) RemoveMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) error {
	defer observe("remove_member", time.Now())

	res := s.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", string(ch), string(uid)).
		Delete(&membershipRow{})
	if res.Error != nil {
		return fmt.Errorf("store: remove member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: not a member of %s", domain.ErrNotFound, ch)
	}
	return nil
}

func (s *GormStore) IsMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) (bool, error) {
	defer observe("is_member", time.Now())

	var n int64
	if err := s.db.WithContext(ctx).Model(&membershipRow{}).
		Where("channel_id = ? AND user_id = ?", string(ch), string(uid)).Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: is member: %w", err)
	}
	return n > 0, nil
}

// Messages

// CreateMessage assigns a ULID and the current time, mirrors the author row
// and stores the message.
func (s *GormStore) CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	defer observe("create_message", time.Now())

	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if msg.ChannelID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("%w: channel and author are required", domain.ErrValidation)
	}
	author := msg.User
	if author.ID == "" {
		author.ID = msg.UserID
	}
	if author.Username == "" {
		author.Username = string(author.ID)
	}

	row := messageRow{
		ID:        ulid.Make().String(),
		ChannelID: string(msg.ChannelID),
		CreatedAt: s.now(),
		UserID:    string(msg.UserID),
		Content:   msg.Content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertUser(tx, author); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: create message: %w", err)
	}

	row.User = userRow{ID: string(author.ID), Username: author.Username}
	out := row.toDomain()
	return &out, nil
}

func (s *GormStore) ListChannelHistory(ctx context.Context, ch domain.ChannelID, limit int) ([]domain.Message, error) {
	defer observe("list_history", time.Now())

	q := s.db.WithContext(ctx).Preload("User").Where("channel_id = ?", string(ch))
	var rows []messageRow
	if limit <= 0 {
		if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("store: list history: %w", err)
		}
		return toMessages(rows), nil
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	slices.Reverse(rows)
	return toMessages(rows), nil
}

func (s *GormStore) ListMessagesPage(ctx context.Context, ch domain.ChannelID, cursor domain.MessageID, limit int) ([]domain.Message, error) {
	defer observe("list_page", time.Now())

	limit = ClampPageSize(limit)
	q := s.db.WithContext(ctx).Preload("User").Where("channel_id = ?", string(ch))
	if cursor != "" {
		var at messageRow
		if err := s.db.WithContext(ctx).
			Where("id = ? AND channel_id = ?", string(cursor), string(ch)).First(&at).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: cursor %s", domain.ErrNotFound, cursor)
			}
			return nil, fmt.Errorf("store: resolve cursor: %w", err)
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", at.CreatedAt, at.CreatedAt, at.ID)
	}
	var rows []messageRow
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list page: %w", err)
	}
	return toMessages(rows), nil
}

func toMessages(rows []messageRow) []domain.Message {
	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

// Presence

func (s *GormStore) UpsertPresence(ctx context.Context, rec domain.PresenceRecord) error {
	defer observe("upsert_presence", time.Now())

	row := presenceRow{
		ConnectionID: rec.ConnectionID,
		UserID:       string(rec.UserID),
		Online:       rec.Online,
		LastSeen:     rec.LastSeen.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "online", "last_seen"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: upsert presence: %w", err)
	}
	return nil
}

func (s *GormStore) MarkOffline(ctx context.Context, connectionID string, at time.Time) error {
	defer observe("mark_offline", time.Now())

	err := s.db.WithContext(ctx).Model(&presenceRow{}).
		Where("connection_id = ?", connectionID).
		Updates(map[string]any{"online": false, "last_seen": at.UTC()}).Error
	if err != nil {
		return fmt.Errorf("store: mark offline: %w", err)
	}
	return nil
}

func (s *GormStore) ResetOnline(ctx context.Context, at time.Time) (int64, error) {
	defer observe("reset_online", time.Now())

	res := s.db.WithContext(ctx).Model(&presenceRow{}).
		Where("online = ?", true).
		Updates(map[string]any{"online": false, "last_seen": at.UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("store: reset presence: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) LastSeen(ctx context.Context, uid domain.UserID) (time.Time, bool, error) {
	defer observe("last_seen", time.Now())

	var row presenceRow
	err := s.db.WithContext(ctx).Where("user_id = ?", string(uid)).Order("last_seen DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("store: last seen: %w", err)
	}
	return row.LastSeen.UTC(), true, nil
}
