package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap）
// 慢查询阈值之上的 SQL 以 Warn 级别单独留痕
type GormZapLogger struct {
	zapLogger                 *zap.Logger
	logLevel                  gormLogger.LogLevel
	slowThreshold             time.Duration
	ignoreRecordNotFoundError bool
}

// NewGormZapLogger 创建 GORM 日志适配器
func NewGormZapLogger(zapLogger *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) *GormZapLogger {
	return &GormZapLogger{
		zapLogger:                 zapLogger,
		logLevel:                  level,
		slowThreshold:             slowThreshold,
		ignoreRecordNotFoundError: true,
	}
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

// Info 日志
func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormLogger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

// Warn 日志
func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormLogger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

// Error 日志
func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormLogger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	// 错误日志
	if err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.ignoreRecordNotFoundError) {
		fields = append(fields, zap.Error(err))
		l.zapLogger.Error("SQL 执行错误", fields...)
		return
	}

	// 慢查询日志
	if l.slowThreshold > 0 && elapsed > l.slowThreshold {
		l.zapLogger.Warn("SQL 慢查询", fields...)
		return
	}

	// 普通日志
	if l.logLevel >= gormLogger.Info {
		l.zapLogger.Debug("SQL 执行", fields...)
	}
}
