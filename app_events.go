// app_events.go - Wails 事件发射
// 将 Go 后端状态变化通知到前端

package main

import (
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/pkd-app/echo-flow/internal/inject"
)

// 事件名称常量
const (
	EventSystemStatus     = "system:status"
	EventInjectStarted    = "inject:started"
	EventInjectDone       = "inject:done"
	EventInjectRejected   = "inject:rejected"
	EventInjectCharError  = "inject:char_error"
	EventWindowVisibility = "window:visibility"
	EventConfigReloaded   = "config:reloaded"
	EventPrefsChanged     = "preferences:changed"
	EventError            = "error"
	EventNotification     = "notification"
)

// 便于测试替换
var eventsEmit = runtime.EventsEmit

// emit 宿主未启动时丢弃事件
func (a *App) emit(name string, data ...interface{}) {
	ctx := a.wailsContext()
	if ctx == nil {
		return
	}
	eventsEmit(ctx, name, data...)
}

// emitSystemStatus 发送系统状态更新到前端
func (a *App) emitSystemStatus() {
	a.emit(EventSystemStatus, a.GetSystemStatus())
}

// emitInjectStarted 注入任务开始（不包含文本内容）
func (a *App) emitInjectStarted(job inject.Job) {
	a.emit(EventInjectStarted, map[string]interface{}{
		"job_id": job.ID,
		"chars":  len(job.Runes),
	})
}

// emitInjectDone 注入任务结束
func (a *App) emitInjectDone(result inject.Result) {
	data := map[string]interface{}{
		"job_id":      result.JobID,
		"chars":       result.Chars,
		"sent":        result.Sent,
		"failed":      result.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		data["error"] = result.Err.Error()
	}
	a.emit(EventInjectDone, data)
}

// emitInjectRejected 已有任务在执行，新请求被拒绝
func (a *App) emitInjectRejected(source string, chars int) {
	a.emit(EventInjectRejected, map[string]interface{}{
		"source": source,
		"chars":  chars,
	})
}

// emitInjectCharError 单个字符发送失败，任务继续
func (a *App) emitInjectCharError(jobID string, err error) {
	a.emit(EventInjectCharError, map[string]interface{}{
		"job_id": jobID,
		"error":  err.Error(),
	})
}

// emitPreferencesChanged 偏好变更（只发送键，不发送值）
func (a *App) emitPreferencesChanged(key string) {
	a.emit(EventPrefsChanged, key)
}

// emitWindowVisibility 主窗口显示/隐藏
func (a *App) emitWindowVisibility(visible bool) {
	a.emit(EventWindowVisibility, visible)
}

// emitNotification 发送通知到前端
func (a *App) emitNotification(level, title, message string) {
	a.emit(EventNotification, map[string]string{
		"level":   level, // "info", "warning", "error", "success"
		"title":   title,
		"message": message,
	})
}

// emitError 发送错误通知到前端
func (a *App) emitError(title, message string) {
	a.emit(EventError, map[string]string{
		"title":   title,
		"message": message,
	})
}

// emitConfigReloaded 通知前端配置已重载
func (a *App) emitConfigReloaded() {
	a.emit(EventConfigReloaded, nil)
}
