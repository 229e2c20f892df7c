package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// zerologGorm routes GORM's logging into zerolog. Record-not-found is an
// expected outcome of lookups and is never logged.
type zerologGorm struct {
	log   zerolog.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

// newGormLogger returns a GORM logger writing to l at warn level and above.
func newGormLogger(l zerolog.Logger) gormlogger.Interface {
	return &zerologGorm{log: l, level: gormlogger.Warn, slow: slowQueryThreshold}
}

func defaultGormLogger() gormlogger.Interface {
	return newGormLogger(log.Logger.With().Str("component", "gorm").Logger())
}

func (z *zerologGorm) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *z
	cp.level = level
	return &cp
}

func (z *zerologGorm) Info(_ context.Context, msg string, args ...interface{}) {
	if z.level >= gormlogger.Info {
		z.log.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologGorm) Warn(_ context.Context, msg string, args ...interface{}) {
	if z.level >= gormlogger.Warn {
		z.log.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologGorm) Error(_ context.Context, msg string, args ...interface{}) {
	if z.level >= gormlogger.Error {
		z.log.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (z *zerologGorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && z.level >= gormlogger.Error:
		sql, rows := fc()
		z.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query failed")
	case z.slow > 0 && elapsed > z.slow && z.level >= gormlogger.Warn:
		sql, rows := fc()
		z.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("slow query")
	case z.level >= gormlogger.Info:
		sql, rows := fc()
		z.log.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
