package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// zlog routes gorm's logger through the global zerolog logger.
type zlog struct {
	level gormlogger.LogLevel
}

func newGormLogger(level gormlogger.LogLevel) gormlogger.Interface {
	return &zlog{level: level}
}

func (l *zlog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &zlog{level: level}
}

func (l *zlog) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		log.Info().Str("module", "store").Msgf(msg, args...)
	}
}

func (l *zlog) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		log.Warn().Str("module", "store").Msgf(msg, args...)
	}
}

func (l *zlog) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		log.Error().Str("module", "store").Msgf(msg, args...)
	}
}

func (l *zlog) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		ev = log.Error().Err(err)
	case elapsed > slowQuery && l.level >= gormlogger.Warn:
		ev = log.Warn().Bool("slow", true)
	case l.level >= gormlogger.Info:
		ev = log.Debug()
	default:
		return
	}
	sql, rows := fc()
	ev.Str("module", "store").Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
}
