// Package inject 将文本逐字符注入到当前拥有输入焦点的应用
//
// 每个字符之间固定等待 CharDelay。很多目标应用通过内部事件队列处理合成输入，
// 机器速度连续发送会丢字或乱序；10ms 是延迟与可靠性之间的经验值，不随字符类型变化。
//
// 注入是尽力而为（best-effort）的：后端初始化失败时整个任务变为空操作，
// 单个字符失败会被记录后跳过，剩余字符继续发送，错误从不返回给调用方。
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CharDelay 相邻两个字符之间的固定间隔
const CharDelay = 10 * time.Millisecond

var (
	// ErrBusy 已有注入任务在执行，新请求被拒绝
	ErrBusy = errors.New("an injection job is already in flight")

	// ErrBackendUnavailable 输入注入后端无法初始化
	ErrBackendUnavailable = errors.New("input injection backend unavailable")
)

// Backend 系统输入注入能力：在当前焦点处插入一个 Unicode 字符
type Backend interface {
	TypeRune(r rune) error
}

// BackendFactory 每个任务开始时创建一次后端
type BackendFactory func() (Backend, error)

// Job 一次注入请求，任务结束后不保留
type Job struct {
	ID    string
	Runes []rune
}

// Result 任务执行结果，只用于诊断
type Result struct {
	JobID    string        `json:"job_id"`
	Chars    int           `json:"chars"`
	Sent     int           `json:"sent"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"` // 后端初始化错误
}

// Hooks 任务生命周期回调，均在注入 goroutine 中调用
// OnDone 调用时槽位已释放
type Hooks struct {
	OnStart     func(job Job)
	OnCharError func(jobID string, r rune, err error)
	OnDone      func(result Result)
}

// Option 配置 Injector
type Option func(*Injector)

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(i *Injector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithHooks 设置任务回调
func WithHooks(h Hooks) Option {
	return func(i *Injector) {
		i.hooks = h
	}
}

// WithDiagnostics 单字符失败时输出 WARN（默认只输出 DEBUG）
func WithDiagnostics(enabled bool) Option {
	return func(i *Injector) {
		i.diagnostics = enabled
	}
}

// Injector 单槽串行化的文本注入器：同一时刻最多一个任务在发送按键
type Injector struct {
	mu          sync.RWMutex
	factory     BackendFactory
	diagnostics bool

	slot   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
	hooks  Hooks
	sleep  func(time.Duration)
}

// New 创建注入器
func New(factory BackendFactory, opts ...Option) *Injector {
	i := &Injector{
		factory: factory,
		slot:    make(chan struct{}, 1),
		logger:  slog.Default(),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetFactory 替换后端工厂（配置热重载），对进行中的任务无影响
func (i *Injector) SetFactory(factory BackendFactory) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.factory = factory
}

// SetDiagnostics 切换单字符失败的日志级别
func (i *Injector) SetDiagnostics(enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.diagnostics = enabled
}

// Inject 异步注入 text，立即返回任务 ID
// 空文本不创建任务；已有任务在执行时返回 ErrBusy
func (i *Injector) Inject(text string) (string, error) {
	job, ok, err := i.acquire(text)
	if err != nil || !ok {
		return "", err
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.execute(job)
	}()

	return job.ID, nil
}

// InjectAndWait 与 Inject 相同，但等待任务完成
// ctx 结束时立即返回 ctx.Err()，已开始的任务仍会发送完所有字符
func (i *Injector) InjectAndWait(ctx context.Context, text string) (Result, error) {
	job, ok, err := i.acquire(text)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, nil
	}

	done := make(chan Result, 1)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		done <- i.execute(job)
	}()

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		return Result{JobID: job.ID, Chars: len(job.Runes)}, ctx.Err()
	}
}

// Busy 是否有任务在执行
func (i *Injector) Busy() bool {
	return len(i.slot) == cap(i.slot)
}

// Wait 等待所有已启动的任务结束
func (i *Injector) Wait() {
	i.wg.Wait()
}

func (i *Injector) acquire(text string) (Job, bool, error) {
	if text == "" {
		return Job{}, false, nil
	}
	select {
	case i.slot <- struct{}{}:
	default:
		return Job{}, false, ErrBusy
	}
	return Job{ID: uuid.NewString(), Runes: []rune(text)}, true, nil
}

func (i *Injector) release() {
	<-i.slot
}

// execute 运行任务，先释放槽位再回调 OnDone 和返回结果，
// 收到完成通知的调用方可以立即提交下一个任务
func (i *Injector) execute(job Job) Result {
	released := false
	defer func() {
		if !released {
			i.release()
		}
	}()

	result := i.run(job)

	i.release()
	released = true

	if i.hooks.OnDone != nil {
		i.hooks.OnDone(result)
	}
	return result
}

func (i *Injector) run(job Job) (result Result) {
	i.mu.RLock()
	factory := i.factory
	diagnostics := i.diagnostics
	i.mu.RUnlock()

	start := time.Now()
	result = Result{JobID: job.ID, Chars: len(job.Runes)}
	logger := i.logger.With("job_id", job.ID)

	defer func() {
		result.Duration = time.Since(start)
	}()

	if i.hooks.OnStart != nil {
		i.hooks.OnStart(job)
	}

	backend, err := newBackend(factory)
	if err != nil {
		// 后端不可用：本次任务变为空操作
		result.Err = err
		logger.Warn("⚠️ 输入注入后端不可用，跳过本次输入", "error", err)
		return result
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	logger.Debug("⌨️ 开始输入文本", "chars", len(job.Runes))

	for _, r := range job.Runes {
		if err := typeRune(backend, r); err != nil {
			// 单字符失败不中断后续字符
			result.Failed++
			if diagnostics {
				logger.Warn("⚠️ 字符输入失败", "rune", string(r), "error", err)
			} else {
				logger.Debug("字符输入失败", "rune", string(r), "error", err)
			}
			if i.hooks.OnCharError != nil {
				i.hooks.OnCharError(job.ID, r, err)
			}
		} else {
			result.Sent++
		}
		i.sleep(CharDelay)
	}

	if result.Failed > 0 {
		logger.Info("⌨️ 文本输入完成（部分字符失败）", "sent", result.Sent, "failed", result.Failed)
	} else {
		logger.Debug("✅ 文本输入完成", "sent", result.Sent)
	}

	return result
}

func newBackend(factory BackendFactory) (backend Backend, err error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	defer func() {
		if p := recover(); p != nil {
			backend, err = nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, p)
		}
	}()
	return factory()
}

// typeRune 调用后端，cgo 后端的 panic 视为单字符失败
func typeRune(backend Backend, r rune) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("backend panic: %v", p)
		}
	}()
	return backend.TypeRune(r)
}
