package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slogAdapter routes gorm logs through slog.
type slogAdapter struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newLogger(slow time.Duration) gormlogger.Interface {
	return &slogAdapter{level: gormlogger.Warn, slowThreshold: slow}
}

func (l *slogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &slogAdapter{level: level, slowThreshold: l.slowThreshold}
}

func (l *slogAdapter) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		slog.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogAdapter) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		slog.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogAdapter) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		slog.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *slogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		slog.ErrorContext(ctx, "query failed", "sql", sql, "duration", elapsed, "rows", rows, "error", err)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		slog.WarnContext(ctx, "slow query", "sql", sql, "duration", elapsed, "rows", rows)
	case l.level >= gormlogger.Info:
		slog.DebugContext(ctx, "query", "sql", sql, "duration", elapsed, "rows", rows)
	}
}
