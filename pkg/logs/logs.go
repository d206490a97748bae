package logs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Alijeyrad/simorq_billing/config"
	"github.com/Alijeyrad/simorq_billing/pkg/reqctx"
)

// New builds the process logger and installs it as slog's default. Records
// fan out to stdout, a rotating file and Loki as configured, and every
// record logged with a request context carries its correlation ids. The
// returned func flushes buffered sinks.
func New(cfg *config.Config) (*slog.Logger, func()) {
	out := cfg.Logging.Output
	level := parseLevel(cfg.Logging.Level)

	var (
		sinks []slog.Handler
		stops []func()
	)
	if out.Stdout || (!out.File.Enabled && !out.Loki.Enabled) {
		sinks = append(sinks, streamHandler(os.Stdout, level, cfg.Server.IsDevelopment(), cfg.Logging.Format))
	}
	if out.File.Enabled {
		rot := &lumberjack.Logger{
			Filename:   out.File.Path,
			MaxSize:    out.File.MaxSizeMB,
			MaxBackups: out.File.MaxBackups,
			MaxAge:     out.File.MaxAgeDays,
			Compress:   out.File.Compress,
		}
		sinks = append(sinks, streamHandler(rot, level, false, "json"))
		stops = append(stops, func() { _ = rot.Close() })
	}
	if out.Loki.Enabled {
		h, stop, err := newLokiHandler(cfg, level)
		if err != nil {
			slog.Error("loki sink disabled", "error", err)
		} else {
			sinks = append(sinks, h)
			stops = append(stops, stop)
		}
	}

	h := slogmulti.
		Pipe(slogmulti.NewHandleInlineMiddleware(withRequestAttrs)).
		Handler(slogmulti.Fanout(sinks...))

	logger := slog.New(h).With(
		"service", cfg.Observability.ServiceName,
		"version", cfg.Observability.ServiceVersion,
		"env", cfg.Server.Environment,
	)
	slog.SetDefault(logger)

	return logger, func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func withRequestAttrs(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
	if ctx != nil {
		record.AddAttrs(reqctx.LogAttrs(ctx)...)
	}
	return next(ctx, record)
}

func streamHandler(w io.Writer, level slog.Level, dev bool, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, AddSource: dev}
	if dev && !strings.EqualFold(format, "json") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
