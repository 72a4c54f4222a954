package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
	// Console overrides the terminal writer; defaults to stdout.
	Console io.Writer
}

// Logger writes every record to a colored console handler and a JSON file handler.
type Logger struct {
	level  slog.Level
	slog   *slog.Logger
	file   *os.File
	mu     sync.RWMutex
	closed bool
}

// ParseLevel converts a configured level name to a slog level; unknown names map to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a Logger; the log directory is created when missing.
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "data/logs"
	}
	if cfg.Filename == "" {
		cfg.Filename = "server.log"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	logPath := filepath.Join(cfg.Dir, cfg.Filename)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	level := ParseLevel(cfg.Level)
	handler := fanoutHandler{handlers: []slog.Handler{
		newConsoleHandler(console, level),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	}}

	return &Logger{
		level: level,
		slog:  slog.New(handler),
		file:  file,
	}, nil
}

// Slog exposes the structured logger for integrations that take *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l.slog
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) enabled(level slog.Level) bool {
	return l != nil && !l.closed && level >= l.level
}

func (l *Logger) log(level slog.Level, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled(level) {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.slog.LogAttrs(context.Background(), level, msg)
}

func (l *Logger) logFields(level slog.Level, msg string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.enabled(level) {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	l.slog.LogAttrs(context.Background(), level, msg, attrs...)
}

// FormatLog 构造带分类标签的日志消息，例如 FormatLog("引导", "服务已启动") -> "[引导] 服务已启动"。
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(slog.LevelError, msg, args...) }

// InfoFields 记录带结构化字段的信息日志，字段按键名排序输出
func (l *Logger) InfoFields(msg string, fields map[string]interface{}) {
	l.logFields(slog.LevelInfo, msg, fields)
}

// WarnFields 记录带结构化字段的警告日志
func (l *Logger) WarnFields(msg string, fields map[string]interface{}) {
	l.logFields(slog.LevelWarn, msg, fields)
}

// ErrorFields 记录带结构化字段的错误日志
func (l *Logger) ErrorFields(msg string, fields map[string]interface{}) {
	l.logFields(slog.LevelError, msg, fields)
}

// DebugTag 记录带分类标签的调试日志
func (l *Logger) DebugTag(tag, msg string, args ...interface{}) {
	l.log(slog.LevelDebug, FormatLog(tag, msg), args...)
}

// InfoTag 记录带分类标签的信息日志
func (l *Logger) InfoTag(tag, msg string, args ...interface{}) {
	l.log(slog.LevelInfo, FormatLog(tag, msg), args...)
}

// WarnTag 记录带分类标签的警告日志
func (l *Logger) WarnTag(tag, msg string, args ...interface{}) {
	l.log(slog.LevelWarn, FormatLog(tag, msg), args...)
}

// ErrorTag 记录带分类标签的错误日志
func (l *Logger) ErrorTag(tag, msg string, args ...interface{}) {
	l.log(slog.LevelError, FormatLog(tag, msg), args...)
}
