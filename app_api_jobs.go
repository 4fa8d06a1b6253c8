// app_api_jobs.go - 注入任务状态 API
// 只在内存中保留最近任务的字数、结果和耗时，不保存文本内容

package main

import (
	"github.com/pkd-app/echo-flow/internal/inject"
	"github.com/pkd-app/echo-flow/internal/tracking"
)

// injectHooks 注入任务回调：任务池 + 前端事件
func (a *App) injectHooks() inject.Hooks {
	return inject.Hooks{
		OnStart:     a.onInjectStarted,
		OnCharError: a.onInjectCharError,
		OnDone:      a.onInjectDone,
	}
}

// onInjectStarted 注入任务开始：通知前端并登记到任务池
func (a *App) onInjectStarted(job inject.Job) {
	if err := a.getJobs().Start(job.ID, len(job.Runes)); err != nil {
		a.logger.Debug("任务登记失败", "job_id", job.ID, "error", err)
	}
	a.emitInjectStarted(job)
}

// onInjectDone 注入任务结束：移入最近任务并通知前端
func (a *App) onInjectDone(result inject.Result) {
	a.getJobs().Finish(jobRecordFromResult(result))
	a.emitInjectDone(result)
}

// onInjectCharError 单字符失败：计入进行中任务，并推送诊断事件（不含字符本身）
func (a *App) onInjectCharError(jobID string, _ rune, err error) {
	a.getJobs().CharFailed(jobID)
	a.emitInjectCharError(jobID, err)
}

// recordRejected 记录被拒绝的请求
func (a *App) recordRejected(source string, chars int) {
	a.getJobs().Reject(source, chars)
}

func (a *App) getJobs() *tracking.JobPool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.jobs
}

func jobRecordFromResult(result inject.Result) tracking.JobRecord {
	rec := tracking.JobRecord{
		JobID:      result.JobID,
		Chars:      result.Chars,
		Sent:       result.Sent,
		Failed:     result.Failed,
		DurationMs: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	return rec
}

// JobsOverview 任务概览
type JobsOverview struct {
	Active []tracking.JobRecord `json:"active"`
	Recent []tracking.JobRecord `json:"recent"`
	Stats  tracking.Stats       `json:"stats"`
}

// GetRecentJobs 获取最近结束的任务（limit<=0 返回全部）
func (a *App) GetRecentJobs(limit int) []tracking.JobRecord {
	return a.getJobs().Recent(limit)
}

// GetJobsOverview 获取进行中任务、最近任务和累计统计
func (a *App) GetJobsOverview() JobsOverview {
	jobs := a.getJobs()
	return JobsOverview{
		Active: jobs.Active(),
		Recent: jobs.Recent(0),
		Stats:  jobs.Stats(),
	}
}

// ClearRecentJobs 清空最近任务列表
func (a *App) ClearRecentJobs() {
	a.getJobs().Clear()
	a.logger.Debug("最近任务已清空")
}
