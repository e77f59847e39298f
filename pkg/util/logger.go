package util

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty means stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// base is shared by every component logger so level and output are set once.
var base = newBase(os.Stdout)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"})
	return l
}

// ConfigureLogging applies level and output to all loggers. A file output rotates through lumberjack.
func ConfigureLogging(cfg LogConfig) error {
	if lvl := strings.TrimSpace(cfg.Level); lvl != "" {
		parsed, err := logrus.ParseLevel(lvl)
		if err != nil {
			return err
		}
		base.SetLevel(parsed)
	}
	if cfg.File != "" {
		base.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	return nil
}

type Logger struct {
	prefix string
	entry  *logrus.Entry
}

func NewLogger(p string) *Logger {
	return &Logger{prefix: p, entry: logrus.NewEntry(base)}
}

// NewLoggerTo writes to w only; tests use it to keep output quiet or to capture it.
func NewLoggerTo(p string, w io.Writer) *Logger {
	return &Logger{prefix: p, entry: logrus.NewEntry(newBase(w))}
}

func (l *Logger) p() string {
	if l.prefix == "" {
		return ""
	}
	return "[" + l.prefix + "] "
}

// With returns a child logger carrying an extra structured field.
func (l *Logger) With(key string, v any) *Logger {
	return &Logger{prefix: l.prefix, entry: l.entry.WithField(key, v)}
}

func (l *Logger) Debugf(f string, v ...any) { l.entry.Debugf(l.p()+f, v...) }
func (l *Logger) Infof(f string, v ...any)  { l.entry.Infof(l.p()+f, v...) }
func (l *Logger) Warnf(f string, v ...any)  { l.entry.Warnf(l.p()+f, v...) }
func (l *Logger) Errorf(f string, v ...any) { l.entry.Errorf(l.p()+f, v...) }
