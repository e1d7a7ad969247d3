package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is the structured logging surface used throughout the reactor,
// dispatch, and transport packages. Everything that logs on the hot
// path — a failed Deferred, a rejected RPC call, a dropped frame —
// takes one of these rather than calling the log package directly, so
// a binary can swap in a different sink without touching call sites.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a derived logger that attaches the given
	// key-value pairs to every subsequent entry it writes.
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a derived logger carrying the request ID found
	// in ctx (see WithRequestID), for correlating a single RPC call's log
	// lines across goroutines.
	WithContext(ctx context.Context) Logger
}

// level is an ordered log severity, used to filter entries against
// LoggerConfig.Level.
type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

func (lv level) String() string {
	switch lv {
	case levelDebug:
		return "DEBUG"
	case levelInfo:
		return "INFO"
	case levelWarn:
		return "WARN"
	case levelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) level {
	switch s {
	case "ERROR":
		return levelError
	case "WARN", "WARNING":
		return levelWarn
	case "INFO":
		return levelInfo
	default:
		return levelDebug
	}
}

// LoggerConfig controls wire format and the minimum severity that
// reaches output.
type LoggerConfig struct {
	// JSONOutput, when true, writes one JSON object per entry instead
	// of plain text — suited to a log-aggregation backend.
	JSONOutput bool
	// Level is the minimum severity written: one of DEBUG, INFO, WARN,
	// ERROR. An unrecognized or empty value behaves as DEBUG (nothing
	// filtered).
	Level string
}

// streamLogger is the Logger implementation everything in this module
// constructs via NewDefaultLogger/NewLogger/NewJSONLogger. It fans
// severities across four *log.Logger sinks (error/warn go to stderr;
// info/debug to stdout) and filters by LoggerConfig.Level before
// writing.
type streamLogger struct {
	sinks    [4]*log.Logger // indexed by level
	minLevel level
	jsonOut  bool
	fields   map[string]interface{}
}

// NewDefaultLogger returns a plain-text logger at DEBUG, suitable for
// a binary with no explicit logging configuration.
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{Level: "DEBUG"})
}

// NewLogger builds a Logger per cfg.
func NewLogger(cfg LoggerConfig) Logger {
	flags := log.LstdFlags | log.Lshortfile
	l := &streamLogger{
		minLevel: parseLevel(cfg.Level),
		jsonOut:  cfg.JSONOutput,
		fields:   make(map[string]interface{}),
	}
	l.sinks[levelDebug] = log.New(os.Stdout, "[DEBUG] ", flags)
	l.sinks[levelInfo] = log.New(os.Stdout, "[INFO] ", flags)
	l.sinks[levelWarn] = log.New(os.Stderr, "[WARN] ", flags)
	l.sinks[levelError] = log.New(os.Stderr, "[ERROR] ", flags)
	return l
}

// NewJSONLogger is NewLogger with JSONOutput forced on, at DEBUG.
func NewJSONLogger() Logger {
	return NewLogger(LoggerConfig{JSONOutput: true, Level: "DEBUG"})
}

type logEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *streamLogger) emit(lv level, message string) {
	if lv < l.minLevel {
		return
	}
	sink := l.sinks[lv]

	if l.jsonOut {
		entry := logEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     lv.String(),
			Message:   message,
		}
		if len(l.fields) > 0 {
			entry.Fields = l.fields
		}
		if encoded, err := json.Marshal(entry); err == nil {
			sink.Output(3, string(encoded))
			return
		}
		sink.Output(3, fmt.Sprintf("[%s] %s %v", lv, message, l.fields))
		return
	}

	if len(l.fields) > 0 {
		sink.Output(3, fmt.Sprintf("%s %v", message, l.fields))
		return
	}
	sink.Output(3, message)
}

func (l *streamLogger) Error(args ...interface{}) { l.emit(levelError, fmt.Sprint(args...)) }
func (l *streamLogger) Errorf(format string, args ...interface{}) {
	l.emit(levelError, fmt.Sprintf(format, args...))
}
func (l *streamLogger) Warn(args ...interface{}) { l.emit(levelWarn, fmt.Sprint(args...)) }
func (l *streamLogger) Warnf(format string, args ...interface{}) {
	l.emit(levelWarn, fmt.Sprintf(format, args...))
}
func (l *streamLogger) Info(args ...interface{}) { l.emit(levelInfo, fmt.Sprint(args...)) }
func (l *streamLogger) Infof(format string, args ...interface{}) {
	l.emit(levelInfo, fmt.Sprintf(format, args...))
}
func (l *streamLogger) Debug(args ...interface{}) { l.emit(levelDebug, fmt.Sprint(args...)) }
func (l *streamLogger) Debugf(format string, args ...interface{}) {
	l.emit(levelDebug, fmt.Sprintf(format, args...))
}

func (l *streamLogger) derive(fields map[string]interface{}) *streamLogger {
	return &streamLogger{
		sinks:    l.sinks,
		minLevel: l.minLevel,
		jsonOut:  l.jsonOut,
		fields:   fields,
	}
}

func (l *streamLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return l.derive(merged)
}

func (l *streamLogger) WithContext(ctx context.Context) Logger {
	merged := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		merged[k] = v
	}
	if id := GetRequestID(ctx); id != "" {
		merged["request_id"] = id
	}
	return l.derive(merged)
}
