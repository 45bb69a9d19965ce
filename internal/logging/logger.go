// Package logging provides structured logging with console, file and
// in-memory history output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry is one line of log history, as served to pose stream clients.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Config holds logger configuration.
type Config struct {
	Dir        string    // daily log files go here; empty disables file output
	Level      string    // debug, info, warn, error
	MaxHistory int       // entries kept in memory
	Console    bool      // human readable output
	Out        io.Writer // console destination, os.Stderr when nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		MaxHistory: 1000,
		Console:    true,
	}
}

// Logger wraps zerolog with an optional daily file and log history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	history *history
}

// New creates a logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	l := &Logger{history: newHistory(cfg.MaxHistory)}
	writers := []io.Writer{l.history}

	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("talkinghead_%s.log", time.Now().Format("2006-01-02"))
		l.logPath = filepath.Join(cfg.Dir, name)
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	l.zlog = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	l.zlog.Debug().Str("component", "logging").Str("file", l.logPath).Msg("Logger initialized")
	return l, nil
}

// Component returns a logger with the component field set.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// History returns up to limit of the most recent entries, oldest first.
// A limit of zero or less returns everything kept.
func (l *Logger) History(limit int) []LogEntry {
	return l.history.recent(limit)
}

// Path returns the current log file, or "" when file output is disabled.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// history decodes each JSON event zerolog writes and keeps the latest max.
type history struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
}

func newHistory(size int) *history {
	if size <= 0 {
		size = DefaultConfig().MaxHistory
	}
	return &history{max: size}
}

func (h *history) Write(p []byte) (int, error) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		// Not ours to fail the log call over.
		return len(p), nil
	}

	entry := LogEntry{
		Timestamp: take(fields, zerolog.TimestampFieldName),
		Level:     take(fields, zerolog.LevelFieldName),
		Component: take(fields, "component"),
		Message:   take(fields, zerolog.MessageFieldName),
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	h.mu.Unlock()
	return len(p), nil
}

func (h *history) recent(limit int) []LogEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]LogEntry, limit)
	copy(out, h.entries[len(h.entries)-limit:])
	return out
}

func take(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	delete(fields, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
