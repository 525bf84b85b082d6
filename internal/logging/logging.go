// Package logging wraps logrus with the formatter and file rotation used across nayana.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

// Config controls the log level and the optional rotating file.
type Config struct {
	Level string `yaml:"level"`
	// File is the path of a rotating log file. Empty disables file output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, logrus.InfoLevel)
)

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(w)
	l.SetFormatter(&formatter.Formatter{
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	})
	return l
}

// Init replaces the package logger according to cfg.
func Init(cfg Config) error {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	writers := []io.Writer{os.Stderr}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxAge:     orDefault(cfg.MaxAgeDays, 7),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
		})
	}

	l := newLogger(io.MultiWriter(writers...), level)
	l.SetReportCaller(level >= logrus.DebugLevel)

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// SetOutput redirects the package logger. Tests use it to capture or mute output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Logger returns the package logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func entry(fields Fields) *logrus.Entry {
	if fields == nil {
		fields = Fields{}
	}
	return Logger().WithFields(fields)
}

func Debug(fields Fields, msg string) { entry(fields).Debug(msg) }
func Info(fields Fields, msg string)  { entry(fields).Info(msg) }
func Warn(fields Fields, msg string)  { entry(fields).Warn(msg) }
func Error(fields Fields, msg string) { entry(fields).Error(msg) }

// Printf adapts the logger to Printf-style interfaces such as the migration logger.
func Printf(format string, v ...interface{}) {
	Logger().Infof(strings.TrimSuffix(format, "\n"), v...)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
