package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig controls how SQL statements are logged.
type GormLoggerConfig struct {
	// Level is one of silent, error, warn, info.
	Level string
	// SlowThreshold marks queries slower than this as warnings.
	SlowThreshold time.Duration
	// SkipNotFound drops record-not-found errors. Bill, order and parcel
	// lookups miss as part of normal request flow, so these are noise at
	// the SQL layer.
	SkipNotFound bool
}

// GormLogger adapts the request-scoped zap logger to gorm's logging
// interface so SQL lines carry the same correlation fields as the rest
// of the request.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	skipNotFound  bool
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{
		level:         parseGormLevel(cfg.Level),
		slowThreshold: cfg.SlowThreshold,
		skipNotFound:  cfg.SkipNotFound,
	}
}

func parseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info, Warn and Error receive printf-style messages from gorm itself
// (migrations, callback registration), not per-query traffic.

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace logs one line per executed statement according to the level:
// failures at error, statements over the slow threshold at warn, and
// everything at debug when the level is info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	if err != nil && l.skipNotFound && errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	log := FromContext(ctx).Named("sql")
	switch {
	case err != nil && l.level >= gormlogger.Error:
		log.Error("query failed", l.queryFields(fc, elapsed, err)...)
	case l.slowThreshold > 0 && elapsed >= l.slowThreshold && l.level >= gormlogger.Warn:
		fields := append(l.queryFields(fc, elapsed, nil),
			zap.Duration("slow_threshold", l.slowThreshold))
		log.Warn("slow query", fields...)
	case l.level >= gormlogger.Info:
		log.Debug("query", l.queryFields(fc, elapsed, nil)...)
	}
}

func (l *GormLogger) queryFields(fc func() (string, int64), elapsed time.Duration, err error) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

var _ gormlogger.Interface = (*GormLogger)(nil)
