package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// queryLogger sends gorm's output to zap. Record-not-found is expected by
// callers and is never logged as an error.
type queryLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newQueryLogger(log *zap.Logger, slow time.Duration) *queryLogger {
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	return &queryLogger{log: log, level: gormlogger.Warn, slow: slow}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		query, rows := fc()
		l.log.Error("query failed", zap.String("sql", query), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed), zap.Error(err))
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		query, rows := fc()
		l.log.Warn("slow query", zap.String("sql", query), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		query, rows := fc()
		l.log.Debug("query", zap.String("sql", query), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
