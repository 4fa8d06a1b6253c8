package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogEntry 推送到前端的日志条目
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// BroadcastHandler 包装下游处理器：保留最近日志的环形缓冲，并把日志交给 EventEmitter
type BroadcastHandler struct {
	next    slog.Handler
	ring    *ring
	Emitter *EventEmitter
}

type ring struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	size    int
}

// NewBroadcastHandler 创建广播处理器，capacity 为保留的最近日志条数
func NewBroadcastHandler(next slog.Handler, capacity int) *BroadcastHandler {
	if capacity <= 0 {
		capacity = 1000
	}
	return &BroadcastHandler{
		next:    next,
		ring:    &ring{entries: make([]LogEntry, capacity)},
		Emitter: NewEventEmitter(),
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := LogEntry{
		Time:    ts.Format("2006-01-02 15:04:05.000"),
		Level:   levelName(r.Level),
		Message: truncate(formatMessage("", r, nil)),
	}
	h.ring.push(entry)
	h.Emitter.Emit(entry)

	return h.next.Handle(ctx, r)
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BroadcastHandler{next: h.next.WithAttrs(attrs), ring: h.ring, Emitter: h.Emitter}
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	return &BroadcastHandler{next: h.next.WithGroup(name), ring: h.ring, Emitter: h.Emitter}
}

// Recent 返回最近的 limit 条日志（按时间正序），limit<=0 返回全部
func (h *BroadcastHandler) Recent(limit int) []LogEntry {
	return h.ring.snapshot(limit)
}

// Close 停止事件发射并关闭下游处理器持有的文件
func (h *BroadcastHandler) Close() error {
	h.Emitter.Stop()
	if c, ok := h.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *ring) push(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.entries)
	if r.size < capacity {
		r.entries[(r.start+r.size)%capacity] = entry
		r.size++
		return
	}
	r.entries[r.start] = entry
	r.start = (r.start + 1) % capacity
}

func (r *ring) snapshot(limit int) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LogEntry, 0, n)
	capacity := len(r.entries)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.entries[(r.start+i)%capacity])
	}
	return out
}
