// Package logger wraps log/slog with the fields this service logs on every request.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

// RequestIDKey is the context key the request-id middleware stores under.
const RequestIDKey contextKey = "request_id"

// Logger wraps slog.Logger for structured logging.
type Logger struct {
	*slog.Logger
}

// New returns a text logger at debug level for development and a JSON logger otherwise.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger carrying the request id found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		return &Logger{Logger: l.With(slog.String("request_id", requestID))}
	}
	return l
}

// HTTPRequest logs a completed HTTP request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// OAuthEvent logs a step of the Salesforce authorization flow.
func (l *Logger) OAuthEvent(event string, success bool, reason string) {
	if success {
		l.Info("oauth_event", slog.String("event", event), slog.Bool("success", true))
		return
	}
	l.Warn("oauth_event",
		slog.String("event", event),
		slog.Bool("success", false),
		slog.String("reason", reason),
	)
}

// CRMWrite logs the outcome of a Lead or Case write.
func (l *Logger) CRMWrite(object, company, recordID string, err error) {
	if err != nil {
		l.Error("crm_write",
			slog.String("object", object),
			slog.String("company", company),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Info("crm_write",
		slog.String("object", object),
		slog.String("company", company),
		slog.String("record_id", recordID),
	)
}
