package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the on-wire shape of each log line.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// RotateConfig mirrors the sandbox's log-rotation knobs, passed through
// verbatim to lumberjack.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

type loggerFactory struct {
	format          Format
	level           Severity
	file            *os.File
	lumberjack      *lumberjack.Logger
	sysWriter       io.Writer
	logRotateConfig RotateConfig
	programLevel    *slog.LevelVar
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if f.format == FormatText {
					a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
				}
			case slog.LevelKey:
				a.Key = "severity"
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == slog.LevelWarn {
					a.Value = slog.StringValue("WARNING")
				}
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
				if f.format == FormatText {
					a.Key = "message"
				}
			}
			return a
		},
	}
	if f.format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var (
	defaultLoggerFactory = &loggerFactory{format: FormatText, level: INFO}
	defaultLogger         = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevelVar(INFO), ""))
	asyncWriter           *AsyncLogger
)

func programLevelVar(s Severity) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(s.slogLevel())
	return v
}

func setLoggingLevel(level Severity, programLevel *slog.LevelVar) {
	programLevel.Set(level.slogLevel())
}

// Config describes how Init should wire up destination, rotation, and format.
type Config struct {
	Format   Format
	Severity Severity
	FilePath string // empty means stderr
	Rotate   RotateConfig
}

// Init (re)configures the package-level logger. Call once at startup;
// safe to call again in tests.
func Init(cfg Config) error {
	var w io.Writer = os.Stderr
	factory := &loggerFactory{format: cfg.Format, level: cfg.Severity, logRotateConfig: cfg.Rotate}

	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.Rotate.MaxFileSizeMB,
			MaxBackups: cfg.Rotate.BackupFileCount,
			Compress:   cfg.Rotate.Compress,
		}
		factory.lumberjack = lj
		asyncWriter = NewAsyncLogger(lj, 1024)
		w = asyncWriter
	} else {
		factory.sysWriter = os.Stderr
	}

	programLevel := programLevelVar(cfg.Severity)
	factory.programLevel = programLevel
	defaultLoggerFactory = factory
	defaultLogger = slog.New(factory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// Close flushes and releases the async log writer, if one is active.
func Close() error {
	if asyncWriter != nil {
		return asyncWriter.Close()
	}
	return nil
}

// NewRequestLogger returns a child logger tagged with a fresh request id,
// for per-run correlation of log lines.
func NewRequestLogger() *slog.Logger {
	return defaultLogger.With("request_id", uuid.NewString())
}

func Tracef(format string, args ...any) { log(TRACE, format, args...) }
func Debugf(format string, args ...any) { log(DEBUG, format, args...) }
func Infof(format string, args ...any)  { log(INFO, format, args...) }
func Warnf(format string, args ...any)  { log(WARNING, format, args...) }
func Errorf(format string, args ...any) { log(ERROR, format, args...) }

func log(sev Severity, format string, args ...any) {
	defaultLogger.Log(context.Background(), sev.slogLevel(), fmt.Sprintf(format, args...))
}
