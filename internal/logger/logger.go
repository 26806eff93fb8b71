package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for captured service output.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the supervised service's combined stdout/stderr
// stream is teed. The line stream always flows into the event queue; the
// file copy is optional. Rotation follows lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" mapstructure:"dir"`                   // base directory for capture files
	Path       string `json:"path" mapstructure:"path"`                 // explicit path overrides Dir
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`   // megabytes before rotation
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`   // backups to keep
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"` // days to keep
	Compress   bool   `json:"compress" mapstructure:"compress"`         // gzip rotated files
}

// CaptureWriter returns a rotating WriteCloser for the service's combined
// output, or nil when capture is not configured.
func (c Config) CaptureWriter(name string) io.WriteCloser {
	path := c.Path
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, name+".log")
	}
	if path == "" {
		return nil
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// New builds the supervisor's own slog logger. Colorized for terminals,
// plain text otherwise.
func New(level slog.Level, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if color {
		return slog.New(NewColorTextHandler(os.Stderr, opts, true))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
