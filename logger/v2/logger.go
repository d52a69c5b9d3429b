package v2

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/util"
	"github.com/sirupsen/logrus"
)

// loggerImpl implements Logger on top of logrus.
type loggerImpl struct {
	logrus *logrus.Logger
	files  []*os.File
	fields []Field
}

// New creates a logger from cfg.
func New(cfg Config) (Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	l.SetLevel(level)

	pretty := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339, CallerPrettyfier: pretty})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339, CallerPrettyfier: pretty})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
	l.SetReportCaller(true)

	var files []*os.File
	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := openLogFile(cfg.Output)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		writer = f
	}

	if cfg.FilePath != "" && cfg.FilePath != cfg.Output {
		tee, err := openLogFile(cfg.FilePath)
		if err != nil {
			for _, f := range files {
				_ = f.Close()
			}
			return nil, err
		}
		files = append(files, tee)
		writer = io.MultiWriter(writer, tee)
	}
	l.SetOutput(writer)

	return &loggerImpl{logrus: l, files: files}, nil
}

// NewWithWriter builds a text logger writing to w. Used by tests that
// assert on log output.
func NewWithWriter(w io.Writer, level string) Logger {
	l := logrus.New()
	if lv, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lv)
	}
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	l.SetOutput(w)
	return &loggerImpl{logrus: l}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	//nolint:gosec // G304: path comes from configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// NewDefault creates a logger with DefaultConfig, falling back to a no-op
// logger if construction fails.
func NewDefault() Logger {
	l, err := New(DefaultConfig())
	if err != nil {
		return NewNoop()
	}
	return l
}

// NewNoop creates a logger that discards everything.
func NewNoop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field)        {}
func (noopLogger) Info(string, ...Field)         {}
func (noopLogger) Warn(string, ...Field)         {}
func (noopLogger) Error(string, error, ...Field) {}
func (noopLogger) Fatal(string, error, ...Field) {}
func (n noopLogger) With(...Field) Logger        { return n }
func (noopLogger) Close() error                  { return nil }

func (l *loggerImpl) entry(fields []Field) *logrus.Entry {
	lf := make(logrus.Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		lf[f.Key] = f.Value
	}
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	return l.logrus.WithFields(lf)
}

func (l *loggerImpl) Debug(msg string, fields ...Field) { l.entry(fields).Debug(msg) }
func (l *loggerImpl) Info(msg string, fields ...Field)  { l.entry(fields).Info(msg) }
func (l *loggerImpl) Warn(msg string, fields ...Field)  { l.entry(fields).Warn(msg) }

func (l *loggerImpl) Error(msg string, err error, fields ...Field) {
	e := l.entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func (l *loggerImpl) Fatal(msg string, err error, fields ...Field) {
	e := l.entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Fatal(msg)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	// child loggers share the parent's output but never own the file
	return &loggerImpl{logrus: l.logrus, fields: merged}
}

func (l *loggerImpl) Close() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}

// ToUtilLogger adapts a Logger to mcp-go's util.Logger so transport
// diagnostics end up in the service log.
func ToUtilLogger(l Logger) util.Logger {
	return utilLoggerAdapter{logger: l.With(String("component", "mcp-go"))}
}

type utilLoggerAdapter struct {
	logger Logger
}

func (a utilLoggerAdapter) Infof(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

func (a utilLoggerAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...), nil)
}
