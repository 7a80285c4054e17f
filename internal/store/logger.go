package store

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rs/zerolog/log"
    "gorm.io/gorm"
    "gorm.io/gorm/logger"
)

// gormLogger routes gorm diagnostics to the global zerolog logger. Queries
// are traced at debug level; slow ones at warn.
type gormLogger struct {
    level         logger.LogLevel
    slowThreshold time.Duration
}

func newGormLogger() logger.Interface {
    return gormLogger{level: logger.Warn, slowThreshold: 500 * time.Millisecond}
}

func (l gormLogger) LogMode(level logger.LogLevel) logger.Interface {
    l.level = level
    return l
}

func (l gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
    if l.level >= logger.Info {
        log.Info().Msg("gorm: " + fmt.Sprintf(msg, args...))
    }
}

func (l gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
    if l.level >= logger.Warn {
        log.Warn().Msg("gorm: " + fmt.Sprintf(msg, args...))
    }
}

func (l gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
    if l.level >= logger.Error {
        log.Error().Msg("gorm: " + fmt.Sprintf(msg, args...))
    }
}

func (l gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
    if l.level <= logger.Silent {
        return
    }
    elapsed := time.Since(begin)
    switch {
    case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
        sql, rows := fc()
        log.Debug().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm: query failed")
    case elapsed > l.slowThreshold && l.level >= logger.Warn:
        sql, rows := fc()
        log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm: slow query")
    default:
        sql, rows := fc()
        log.Trace().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm: query")
    }
}
