package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLogger grava entradas correlacionadas ao span ativo do contexto
type TraceLogger struct {
	base *zap.Logger
}

// NewTraceLogger envolve um logger zap
func NewTraceLogger(logger *zap.Logger) *TraceLogger {
	return &TraceLogger{base: logger}
}

// Log grava msg no nível informado acrescentando trace_id e span_id
func (l *TraceLogger) Log(ctx context.Context, level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := l.base.Check(level, msg); ce != nil {
		ce.Write(append(fields, TraceFields(ctx)...)...)
	}
}

func (l *TraceLogger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.Log(ctx, zapcore.DebugLevel, msg, fields...)
}

func (l *TraceLogger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.Log(ctx, zapcore.WarnLevel, msg, fields...)
}

func (l *TraceLogger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.Log(ctx, zapcore.ErrorLevel, msg, fields...)
}

// TraceFields extrai os identificadores do span do contexto; vazio sem span válido
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
