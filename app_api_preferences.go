// app_api_preferences.go - 偏好设置 API (Wails Bindings)
// 界面配置（API Key、模式、快捷键、Magic Paste、自定义提示词）存储在 SQLite

package main

import (
	"context"
	"errors"
	"time"

	"github.com/pkd-app/echo-flow/internal/service"
	"github.com/pkd-app/echo-flow/internal/store"
)

var errPreferencesDisabled = errors.New("偏好服务未启用（数据库未就绪）。若一直失败，请检查是否有另一个 Echo Flow 实例占用数据库或重启应用。")

// PreferenceInfo 偏好信息（给前端用的结构体）
type PreferenceInfo struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// PreferencesStorageStatus 偏好存储状态
type PreferencesStorageStatus struct {
	Enabled    bool   `json:"enabled"`
	TotalCount int    `json:"total_count"`
	Database   string `json:"database"`
}

// newPreferencesService 创建偏好服务并把变更通知给前端
func (a *App) newPreferencesService(s store.PreferenceStore) *service.PreferencesService {
	svc := service.NewPreferencesService(s)
	svc.SetOnChangeCallback(a.emitPreferencesChanged)
	return svc
}

func (a *App) getPreferences() *service.PreferencesService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preferences
}

// GetPreferencesStorageStatus 获取偏好存储状态
func (a *App) GetPreferencesStorageStatus() PreferencesStorageStatus {
	prefs := a.getPreferences()

	a.mu.RLock()
	status := PreferencesStorageStatus{Database: a.config.Storage.DatabasePath}
	a.mu.RUnlock()

	if !prefs.Available() {
		return status
	}
	status.Enabled = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if count, err := prefs.Count(ctx); err == nil {
		status.TotalCount = count
	}
	return status
}

// GetPreference 获取单个偏好；不存在时返回默认值
func (a *App) GetPreference(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return a.getPreferences().GetValue(ctx, key)
}

// SetPreference 更新单个偏好
func (a *App) SetPreference(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.getPreferences().Set(ctx, key, value); err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			return errPreferencesDisabled
		}
		a.logger.Warn("⚠️ 保存偏好失败", "key", key, "error", err)
		return err
	}

	// API Key 不写入日志
	a.logger.Debug("偏好已更新", "key", key)
	return nil
}

// ResetPreferences 所有偏好恢复默认值
func (a *App) ResetPreferences() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.getPreferences().Reset(ctx); err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			return errPreferencesDisabled
		}
		return err
	}
	return nil
}

// GetPreferences 获取所有偏好（数据库未就绪时返回默认值）
func (a *App) GetPreferences() ([]PreferenceInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := a.getPreferences().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]PreferenceInfo, 0, len(records))
	for _, r := range records {
		result = append(result, preferenceRecordToInfo(r))
	}
	return result, nil
}

func preferenceRecordToInfo(r *store.PreferenceRecord) PreferenceInfo {
	info := PreferenceInfo{Key: r.Key, Value: r.Value}
	if !r.UpdatedAt.IsZero() {
		info.UpdatedAt = r.UpdatedAt.Format(time.RFC3339)
	}
	return info
}
