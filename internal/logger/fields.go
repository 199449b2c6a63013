package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Keys of the fields shared across components.
const (
	FieldActor    = "actor"
	FieldLogin    = "login"
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
)

// WithFields attaches fields to log. A nil log becomes a no-op logger, so
// constructors can accept nil.
func WithFields(log *zap.Logger, fields ...zap.Field) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// RequestFields identifies a match request: who asked and, once resolved,
// for which login.
func RequestFields(actor, login string) []zap.Field {
	return pairs(FieldActor, actor, FieldLogin, login)
}

// ForRequest is WithFields(log, RequestFields(actor, login)...).
func ForRequest(log *zap.Logger, actor, login string) *zap.Logger {
	return WithFields(log, RequestFields(actor, login)...)
}

// AIFields describes the generator behind an assisted query.
func AIFields(provider, model string) []zap.Field {
	return pairs(FieldProvider, provider, FieldModel, model)
}

// WithAI is WithFields(log, AIFields(provider, model)...).
func WithAI(log *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(log, AIFields(provider, model)...)
}

// pairs turns alternating keys and values into string fields. Blank values
// are left out; a trailing key without a value is ignored.
func pairs(kv ...string) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, value := strings.TrimSpace(kv[i]), strings.TrimSpace(kv[i+1])
		if key == "" || value == "" {
			continue
		}
		fields = append(fields, zap.String(key, value))
	}
	return fields
}
