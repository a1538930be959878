package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/log/global"
)

// Packages log through otelslog, so the records reach the terminal only once
// a global otel logger provider forwards them somewhere.
type slogProvider struct {
	embedded.LoggerProvider
	handler slog.Handler
}

func (p *slogProvider) Logger(name string, _ ...otellog.LoggerOption) otellog.Logger {
	return &slogLogger{handler: p.handler.WithAttrs([]slog.Attr{slog.String("scope", name)})}
}

type slogLogger struct {
	embedded.Logger
	handler slog.Handler
}

func (l *slogLogger) Enabled(ctx context.Context, param otellog.EnabledParameters) bool {
	if param.Severity == otellog.SeverityUndefined {
		return true
	}
	return l.handler.Enabled(ctx, severityToLevel(param.Severity))
}

func (l *slogLogger) Emit(ctx context.Context, record otellog.Record) {
	level := severityToLevel(record.Severity())
	if !l.handler.Enabled(ctx, level) {
		return
	}

	out := slog.NewRecord(record.Timestamp(), level, record.Body().AsString(), 0)
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		out.AddAttrs(slog.Any(kv.Key, logValue(kv.Value)))
		return true
	})
	_ = l.handler.Handle(ctx, out)
}

// otelslog maps slog levels onto severities offset by nine.
func severityToLevel(severity otellog.Severity) slog.Level {
	return slog.Level(int(severity) - int(otellog.SeverityInfo))
}

func logValue(value otellog.Value) any {
	switch value.Kind() {
	case otellog.KindBool:
		return value.AsBool()
	case otellog.KindInt64:
		return value.AsInt64()
	case otellog.KindFloat64:
		return value.AsFloat64()
	case otellog.KindString:
		return value.AsString()
	case otellog.KindBytes:
		return value.AsBytes()
	case otellog.KindSlice:
		values := make([]any, 0, len(value.AsSlice()))
		for _, item := range value.AsSlice() {
			values = append(values, logValue(item))
		}
		return values
	case otellog.KindMap:
		values := make(map[string]any, len(value.AsMap()))
		for _, kv := range value.AsMap() {
			values[kv.Key] = logValue(kv.Value)
		}
		return values
	}
	return nil
}

// setupLogging routes every package logger into a text handler on w.
func setupLogging(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	global.SetLoggerProvider(&slogProvider{handler: handler})
}

// openLogFile keeps logs off the screen while the terminal client owns it.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		path = filepath.Join(dir, "ema-referrals", "ema-referrals.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}
