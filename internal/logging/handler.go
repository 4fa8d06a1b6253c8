// Package logging 提供应用日志：控制台 + 轮转文件输出，以及推送到前端的日志广播
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pkd-app/echo-flow/config"
)

// 单条消息在控制台/文件中的最大长度
const maxMessageLen = 500

// ParseLevel 将配置中的级别字符串转换为 slog.Level
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SimpleHandler 简化的日志处理器
// INFO/DEBUG 写入 stdout，WARN/ERROR 写入 stderr，同时写入轮转文件
type SimpleHandler struct {
	level  *slog.LevelVar
	attrs  []string
	out    *output
	prefix string
}

type output struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	file   *lumberjack.Logger
}

// NewSimpleHandler 创建处理器；file 为 nil 时只输出到控制台
func NewSimpleHandler(level *slog.LevelVar, stdout, stderr io.Writer, file *lumberjack.Logger) *SimpleHandler {
	if level == nil {
		level = new(slog.LevelVar)
	}
	return &SimpleHandler{
		level: level,
		out: &output{
			stdout: stdout,
			stderr: stderr,
			file:   file,
		},
	}
}

func (h *SimpleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *SimpleHandler) Handle(_ context.Context, r slog.Record) error {
	message := formatMessage(h.prefix, r, h.attrs)

	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	line := fmt.Sprintf("[%s] [PID:%d] [GID:%d] [%s] %s",
		timestamp.Format("2006-01-02 15:04:05.000"), os.Getpid(), getGoroutineID(), levelName(r.Level), truncate(message))

	h.out.mu.Lock()
	defer h.out.mu.Unlock()

	if h.out.file != nil {
		_, _ = h.out.file.Write([]byte(line + "\n"))
	}

	console := h.out.stdout
	if r.Level >= slog.LevelWarn {
		console = h.out.stderr
	}
	if console != nil {
		_, _ = fmt.Fprintln(console, line)
	}

	return nil
}

func (h *SimpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]string{}, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, formatAttr(h.prefix, a))
	}
	return &clone
}

func (h *SimpleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix = clone.prefix + "." + name
	}
	return &clone
}

// Close 刷新并关闭日志文件
func (h *SimpleHandler) Close() error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	if h.out.file != nil {
		return h.out.file.Close()
	}
	return nil
}

// NewFileWriter 根据配置创建轮转文件写入器
func NewFileWriter(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

// Setup 配置结构化日志，返回 logger、可热更新的级别以及广播处理器
func Setup(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar, *BroadcastHandler) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	var file *lumberjack.Logger
	if cfg.FileEnabled {
		var err error
		file, err = NewFileWriter(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "警告：无法创建日志文件: %v\n", err)
			file = nil
		}
	}

	simpleHandler := NewSimpleHandler(level, os.Stdout, os.Stderr, file)
	broadcastHandler := NewBroadcastHandler(simpleHandler, cfg.BufferSize)

	if file != nil {
		fmt.Printf("🔧 文件日志已启用: 路径=%s\n", cfg.FilePath)
	}

	return slog.New(broadcastHandler), level, broadcastHandler
}

func formatAttr(prefix string, a slog.Attr) string {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	return fmt.Sprintf("%s=%v", key, a.Value)
}

func formatMessage(prefix string, r slog.Record, base []string) string {
	message := r.Message

	attrs := append([]string{}, base...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, formatAttr(prefix, a))
		return true
	})

	if len(attrs) > 0 {
		message = message + " " + strings.Join(attrs, " ")
	}
	return message
}

func truncate(message string) string {
	if len(message) > maxMessageLen {
		return message[:maxMessageLen] + "... (截断)"
	}
	return message
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func getGoroutineID() int {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	fields := strings.Fields(string(buf))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return id
}
