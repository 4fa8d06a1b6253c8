// app_api.go - 暴露给前端的 API 方法 (Wails Bindings)
// 这些方法会被自动生成为 JavaScript 调用
//
// API 文件按功能模块拆分:
// - app_api.go             - 输入、退出、系统状态、日志 (本文件)
// - app_api_preferences.go - 偏好设置 (SQLite)
// - app_api_jobs.go        - 最近注入任务 (仅内存，不含文本)

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"

	"github.com/pkd-app/echo-flow/internal/inject"
	"github.com/pkd-app/echo-flow/internal/logging"
)

// ============================================================
// 输入与退出 API
// ============================================================

// TypeText 将文本逐字符输入到当前焦点应用
// 立即返回，不等待输入完成，也不返回任何错误
func (a *App) TypeText(text string) {
	if _, err := a.injector.Inject(text); err != nil {
		a.rejectInjection("type_text", text, err)
	}
}

// QuitApp 以退出码 0 结束应用
func (a *App) QuitApp() {
	a.lifecycle.Quit()
}

// MagicPaste 隐藏窗口，等待焦点回到之前的应用后输入文本，再恢复窗口
func (a *App) MagicPaste(text string) {
	if text == "" {
		return
	}

	a.mu.RLock()
	focusDelay := a.config.Injection.FocusDelay
	a.mu.RUnlock()

	go func() {
		a.lifecycle.Hide()
		time.Sleep(focusDelay)

		if _, err := a.injector.InjectAndWait(context.Background(), text); err != nil {
			a.rejectInjection("magic_paste", text, err)
		}

		a.lifecycle.Show()
	}()
}

// CopyText 复制文本到剪贴板（无法模拟输入时的兜底方式）
func (a *App) CopyText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		a.logger.Warn("⚠️ 写入剪贴板失败", "error", err)
		return fmt.Errorf("写入剪贴板失败: %w", err)
	}
	return nil
}

// ShowWindow 显示并聚焦主窗口（与托盘“显示”相同）
func (a *App) ShowWindow() {
	a.lifecycle.Show()
}

// HideWindow 隐藏主窗口（与托盘“隐藏”相同）
func (a *App) HideWindow() {
	a.lifecycle.Hide()
}

func (a *App) rejectInjection(source, text string, err error) {
	chars := len([]rune(text))
	if errors.Is(err, inject.ErrBusy) {
		a.logger.Warn("⚠️ 已有文本正在输入，本次请求被拒绝", "source", source, "chars", chars)
		a.emitInjectRejected(source, chars)
		a.recordRejected(source, chars)
		return
	}
	a.logger.Warn("⚠️ 文本输入失败", "source", source, "error", err)
}

// onControlRejected 控制端点的请求被拒绝（HTTP 409 已由控制端点返回）
func (a *App) onControlRejected(source string, chars int) {
	a.emitInjectRejected(source, chars)
	a.recordRejected(source, chars)
}

// ============================================================
// 系统状态 API
// ============================================================

// SystemStatus 系统状态结构
type SystemStatus struct {
	Version        string `json:"version"`
	Uptime         string `json:"uptime"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	StartTime      string `json:"start_time"` // ISO8601 格式的启动时间
	Backend        string `json:"backend"`
	InjectBusy     bool   `json:"inject_busy"`
	TrayActive     bool   `json:"tray_active"`
	StorageEnabled bool   `json:"storage_enabled"`
	ControlAddr    string `json:"control_addr"`
	ConfigPath     string `json:"config_path"`
	LogsDropped    int64  `json:"logs_dropped"` // 日志推送队列满时丢弃的条数
}

// GetSystemStatus 获取系统状态
func (a *App) GetSystemStatus() SystemStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	uptime := time.Since(a.startTime)

	status := SystemStatus{
		Version:        Version,
		Uptime:         formatDuration(uptime),
		UptimeSeconds:  int64(uptime.Seconds()),
		StartTime:      a.startTime.Format(time.RFC3339),
		Backend:        a.backendName,
		InjectBusy:     a.injector.Busy(),
		TrayActive:     a.trayCtrl != nil,
		StorageEnabled: a.preferences.Available(),
		ConfigPath:     a.configPath,
	}

	if a.controlServer != nil {
		status.ControlAddr = a.controlServer.Addr()
	}
	if a.logEmitter != nil {
		status.LogsDropped = a.logEmitter.Dropped()
	}

	return status
}

// ============================================================
// 日志 API
// ============================================================

// GetRecentLogs 获取最近的日志（limit<=0 返回全部缓冲）
func (a *App) GetRecentLogs(limit int) []logging.LogEntry {
	a.mu.RLock()
	logHandler := a.logHandler
	a.mu.RUnlock()

	if logHandler == nil {
		return []logging.LogEntry{}
	}
	return logHandler.Recent(limit)
}

// StartLogStream 前端订阅 log:batch 后调用
func (a *App) StartLogStream() {
	a.mu.RLock()
	emitter := a.logEmitter
	ctx := a.ctx
	a.mu.RUnlock()

	if emitter != nil && ctx != nil {
		emitter.Start(ctx)
	}
}

// StopLogStream 前端关闭日志面板时调用
func (a *App) StopLogStream() {
	a.mu.RLock()
	emitter := a.logEmitter
	a.mu.RUnlock()

	if emitter != nil {
		emitter.Stop()
	}
}

// ============================================================
// 辅助函数
// ============================================================

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
