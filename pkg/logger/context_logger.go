package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	connectionIDKey contextKey = "connection_id"
	userIDKey       contextKey = "user_id"
	roomKey         contextKey = "room"
)

// WithConnection stores the connection and user ids on ctx for later logging.
func WithConnection(ctx context.Context, connectionID, userID string) context.Context {
	ctx = context.WithValue(ctx, connectionIDKey, connectionID)
	return context.WithValue(ctx, userIDKey, userID)
}

// WithRoom stores the room id on ctx.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, roomKey, room)
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger *zap.Logger
}

// NewContextLogger creates a new context logger
func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{
		logger: logger,
	}
}

// WithContext adds the connection, user and room fields found on ctx.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := []zapcore.Field{}

	for _, key := range []contextKey{connectionIDKey, userIDKey, roomKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}

	if len(fields) == 0 {
		return cl.logger
	}

	return cl.logger.With(fields...)
}

// Sugar returns the sugared variant of the context-enriched logger.
func (cl *ContextLogger) Sugar(ctx context.Context) *zap.SugaredLogger {
	return cl.WithContext(ctx).Sugar()
}

// LogError logs an error with context
func (cl *ContextLogger) LogError(ctx context.Context, err error, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).With(zap.Error(err)).Error(message, fields...)
}

// LogInfo logs info message with context
func (cl *ContextLogger) LogInfo(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Info(message, fields...)
}

// LogDebug logs debug message with context
func (cl *ContextLogger) LogDebug(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Debug(message, fields...)
}

// LogWarn logs warning message with context
func (cl *ContextLogger) LogWarn(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Warn(message, fields...)
}
