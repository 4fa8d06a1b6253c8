package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventLogBatch 前端订阅的日志批量事件名
const EventLogBatch = "log:batch"

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 100 * time.Millisecond
	minQueueCap          = 100
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// EventEmitter 把日志按批推送到前端的 log:batch 事件
// 队列有界，满了就丢，写日志的一方永不阻塞
type EventEmitter struct {
	mu      sync.Mutex
	session *emitSession

	batchSize     int
	flushInterval time.Duration
	emit          emitFunc

	dropped atomic.Int64
}

// emitSession 一次 Start/Stop 之间的发送状态
type emitSession struct {
	queue chan LogEntry
	stop  chan struct{}
	done  chan struct{}
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		emit:          runtime.EventsEmit,
	}
}

// Start 在 Wails 上下文就绪后调用，重复调用无效
func (e *EventEmitter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return
	}

	s := &emitSession{
		queue: make(chan LogEntry, max(e.batchSize*200, minQueueCap)),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.session = s
	go e.run(ctx, s)
}

// Stop 刷出队列中剩余的日志后返回
func (e *EventEmitter) Stop() {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()

	if s == nil {
		return
	}
	close(s.stop)
	<-s.done
}

// Emit 入队一条日志，未启动时直接忽略
func (e *EventEmitter) Emit(entry LogEntry) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return
	}

	select {
	case s.queue <- entry:
		return
	default:
	}

	// 队列满：WARN/ERROR 挤掉最旧的一条，其余直接丢
	if entry.Level == "ERROR" || entry.Level == "WARN" {
		select {
		case <-s.queue:
			e.dropped.Add(1)
		default:
		}
		select {
		case s.queue <- entry:
			return
		default:
		}
	}
	e.dropped.Add(1)
}

// Dropped 因队列满被丢弃的日志条数
func (e *EventEmitter) Dropped() int64 {
	return e.dropped.Load()
}

func (e *EventEmitter) IsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *EventEmitter) run(ctx context.Context, s *emitSession) {
	defer close(s.done)

	size := e.batchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	interval := e.flushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make([]LogEntry, 0, size)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if ctx != nil && e.emit != nil {
			e.emit(ctx, EventLogBatch, append([]LogEntry(nil), pending...))
		}
		pending = pending[:0]
	}
	add := func(entry LogEntry) {
		pending = append(pending, entry)
		if len(pending) >= size {
			flush()
		}
	}

	for {
		select {
		case entry := <-s.queue:
			add(entry)
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case entry := <-s.queue:
					add(entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
