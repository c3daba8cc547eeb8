package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"credit-observer/src/config"
	"credit-observer/src/models"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name  string
	entry *logrus.Entry
}

type settings struct {
	level  string
	format string
	file   string
}

var (
	mu    sync.Mutex
	roots = make(map[settings]*logrus.Logger)
)

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. cfg may be *config.Config,
// *models.MConfig or nil (info level, text to stdout).
func NewLogger(cfg interface{}, name string) *Logger {
	s := settings{level: "info", format: "text"}
	var mc *models.MConfig
	switch c := cfg.(type) {
	case *config.Config:
		if c != nil {
			mc = c.MConfig
		}
	case *models.MConfig:
		mc = c
	}
	if mc != nil {
		if mc.LogLevel != "" {
			s.level = strings.ToLower(mc.LogLevel)
		}
		if mc.LogFormat != "" {
			s.format = strings.ToLower(mc.LogFormat)
		}
		s.file = mc.LogFile
	}

	return &Logger{
		name:  name,
		entry: rootFor(s).WithField("component", name),
	}
}

// rootFor returns one shared logrus logger per distinct output settings so a
// rotating file is only opened once.
func rootFor(s settings) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := roots[s]; ok {
		return l
	}

	l := logrus.New()
	lvl := s.level
	if lvl == "warning" {
		lvl = "warn"
	}
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if s.format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	var out io.Writer = os.Stdout
	if s.file != "" {
		if err := os.MkdirAll(filepath.Dir(s.file), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   s.file,
				MaxSize:    100,
				MaxAge:     30,
				MaxBackups: 10,
				Compress:   true,
			})
		}
	}
	l.SetOutput(out)

	roots[s] = l
	return l
}

// -----------------------------------------------------------------------------

// WithField returns a child logger carrying an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{name: l.name, entry: l.entry.WithField(key, value)}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// -----------------------------------------------------------------------------

// CronLogger adapts a Logger to the job scheduler's logging contract.
type CronLogger struct {
	L *Logger
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.entry.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.entry.WithFields(pairs(keysAndValues)).WithError(err).Error(msg)
}

func pairs(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
