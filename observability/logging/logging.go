package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the optional rotating log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup installs a JSON slog handler writing to stdout as the process default
// and returns it. Every line carries the service name and, when set, env.
func Setup(service, env string) *slog.Logger {
	return setup(os.Stdout, service, env)
}

// SetupWithFile behaves like Setup but also writes to a lumberjack rotated
// file. The returned closer releases the file.
func SetupWithFile(service, env string, file FileConfig) (*slog.Logger, io.Closer) {
	path := strings.TrimSpace(file.Path)
	if path == "" {
		return Setup(service, env), io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positiveOr(file.MaxSizeMB, 100),
		MaxBackups: positiveOr(file.MaxBackups, 5),
		MaxAge:     positiveOr(file.MaxAgeDays, 28),
		Compress:   file.Compress,
	}
	return setup(io.MultiWriter(os.Stdout, rotator), service, env), rotator
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return attr
}

func setup(w io.Writer, service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: replaceAttr})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withAttrs := handler.WithAttrs(attrs)
	base := slog.New(withAttrs)
	slog.SetDefault(base)

	// Packages still on the log package end up in the same stream.
	bridge := slog.NewLogLogger(withAttrs, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
