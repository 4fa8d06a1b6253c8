// Package tracking 在内存中跟踪注入任务的状态
//
// 只保存字数、结果和耗时，不保存文本内容；进程退出即丢弃，不落盘。
package tracking

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// 任务状态
const (
	StatusRunning     = "running"
	StatusDone        = "done"
	StatusPartial     = "partial"     // 部分字符失败
	StatusUnavailable = "unavailable" // 后端不可用，任务为空操作
	StatusRejected    = "rejected"    // 已有任务在执行
)

// JobRecord 一个任务的状态快照
type JobRecord struct {
	JobID      string     `json:"job_id"`
	Source     string     `json:"source,omitempty"`
	Status     string     `json:"status"`
	Chars      int        `json:"chars"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// Config 任务池配置
type Config struct {
	MaxSize         int           // 保留的已结束任务数（默认50）
	MaxAge          time.Duration // 已结束任务的最长保留时间（默认30分钟）
	CleanupInterval time.Duration // 清理间隔（默认1分钟）
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxSize:         50,
		MaxAge:          30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Stats 任务池统计（进程生命周期内累计）
type Stats struct {
	TotalStarted  int64 `json:"total_started"`
	TotalFinished int64 `json:"total_finished"`
	TotalRejected int64 `json:"total_rejected"`
	TotalExpired  int64 `json:"total_expired"`
	TotalEvicted  int64 `json:"total_evicted"`
	TotalChars    int64 `json:"total_chars"`
	TotalSent     int64 `json:"total_sent"`
	TotalFailed   int64 `json:"total_failed"`
	Active        int   `json:"active"`
	Recent        int   `json:"recent"`
}

// JobPool 进行中和最近结束的任务
// nil *JobPool 的所有方法都是空操作
type JobPool struct {
	mu     sync.RWMutex
	active map[string]*JobRecord
	recent []JobRecord // 按结束时间升序
	stats  Stats

	config Config
	logger *slog.Logger
	now    func() time.Time

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewJobPool 创建任务池并启动过期清理
func NewJobPool(config Config, logger *slog.Logger) *JobPool {
	def := DefaultConfig()
	if config.MaxSize <= 0 {
		config.MaxSize = def.MaxSize
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &JobPool{
		active: make(map[string]*JobRecord),
		config: config,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	p.wg.Add(1)
	go p.startCleaner()

	logger.Debug("🔥 任务池初始化完成",
		"max_size", config.MaxSize,
		"max_age", config.MaxAge)

	return p
}

// Start 记录任务开始
func (p *JobPool) Start(jobID string, chars int) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("job pool is closed")
	}
	if _, exists := p.active[jobID]; exists {
		return fmt.Errorf("job %s already exists in pool", jobID)
	}

	p.active[jobID] = &JobRecord{
		JobID:     jobID,
		Status:    StatusRunning,
		Chars:     chars,
		StartTime: p.now(),
	}
	p.stats.TotalStarted++
	return nil
}

// Finish 任务结束，移入最近列表
// rec.Status 为空时根据 Failed/Error 推断
func (p *JobPool) Finish(rec JobRecord) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	end := p.now()
	if started, ok := p.active[rec.JobID]; ok {
		if rec.StartTime.IsZero() {
			rec.StartTime = started.StartTime
		}
		delete(p.active, rec.JobID)
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = end
	}
	if rec.Status == "" || rec.Status == StatusRunning {
		rec.Status = statusOf(rec)
	}
	rec.EndTime = &end
	if rec.DurationMs == 0 {
		rec.DurationMs = end.Sub(rec.StartTime).Milliseconds()
	}

	p.stats.TotalFinished++
	p.stats.TotalChars += int64(rec.Chars)
	p.stats.TotalSent += int64(rec.Sent)
	p.stats.TotalFailed += int64(rec.Failed)
	p.appendRecentLocked(rec)
}

// CharFailed 进行中任务的失败字符数加一，任务不在池中时忽略
func (p *JobPool) CharFailed(jobID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, ok := p.active[jobID]; ok {
		rec.Failed++
	}
}

// Reject 记录被拒绝的请求（没有任务 ID）
func (p *JobPool) Reject(source string, chars int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := p.now()
	p.stats.TotalRejected++
	p.appendRecentLocked(JobRecord{
		Source:    source,
		Status:    StatusRejected,
		Chars:     chars,
		StartTime: now,
		EndTime:   &now,
	})
}

func (p *JobPool) appendRecentLocked(rec JobRecord) {
	p.recent = append(p.recent, rec)
	if overflow := len(p.recent) - p.config.MaxSize; overflow > 0 {
		p.recent = append([]JobRecord(nil), p.recent[overflow:]...)
		p.stats.TotalEvicted += int64(overflow)
	}
}

func statusOf(rec JobRecord) string {
	switch {
	case rec.Error != "":
		return StatusUnavailable
	case rec.Failed > 0:
		return StatusPartial
	default:
		return StatusDone
	}
}

// Active 进行中的任务
func (p *JobPool) Active() []JobRecord {
	if p == nil {
		return []JobRecord{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]JobRecord, 0, len(p.active))
	for _, rec := range p.active {
		result = append(result, *rec)
	}
	return result
}

// Recent 最近结束的任务，最新的在前（limit<=0 返回全部）
func (p *JobPool) Recent(limit int) []JobRecord {
	if p == nil {
		return []JobRecord{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]JobRecord, 0, n)
	for i := len(p.recent) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, p.recent[i])
	}
	return result
}

// Stats 返回统计信息
func (p *JobPool) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.stats
	s.Active = len(p.active)
	s.Recent = len(p.recent)
	return s
}

// Clear 清空最近列表，累计统计保留
func (p *JobPool) Clear() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recent = nil
}

// Close 停止清理协程，重复调用安全
func (p *JobPool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *JobPool) startCleaner() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := p.cleanupExpired(); n > 0 {
				p.logger.Debug("🧹 清理过期任务", "expired", n)
			}
		case <-p.done:
			return
		}
	}
}

// cleanupExpired 移除结束时间早于 MaxAge 的任务
func (p *JobPool) cleanupExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.config.MaxAge)
	expired := 0
	for expired < len(p.recent) && p.recent[expired].EndTime.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		p.recent = append([]JobRecord(nil), p.recent[expired:]...)
		p.stats.TotalExpired += int64(expired)
	}
	return expired
}
