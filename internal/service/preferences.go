// Package service 提供业务逻辑层实现
// 偏好服务：在存储之上补充默认值回退、类型化读取和变更通知
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkd-app/echo-flow/internal/store"
)

// ErrStoreUnavailable 数据库未就绪，只能读取默认值
var ErrStoreUnavailable = errors.New("preference store unavailable")

// PreferencesService 偏好管理业务服务
// store 为 nil 时读取返回默认值，写入返回 ErrStoreUnavailable
type PreferencesService struct {
	store    store.PreferenceStore
	defaults map[string]string

	mu           sync.RWMutex
	onChangeFunc func(key string)
}

// NewPreferencesService 创建偏好服务实例
func NewPreferencesService(s store.PreferenceStore) *PreferencesService {
	return &PreferencesService{
		store:    s,
		defaults: store.DefaultPreferences(),
	}
}

// SetOnChangeCallback 设置变更回调，参数为变更的键（重置时为空字符串）
func (s *PreferencesService) SetOnChangeCallback(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChangeFunc = fn
}

// Available 数据库是否就绪
func (s *PreferencesService) Available() bool {
	return s != nil && s.store != nil
}

// Keys 所有已知偏好键，按字母排序
func (s *PreferencesService) Keys() []string {
	keys := make([]string, 0, len(s.defaults))
	for k := range s.defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetValue 获取偏好值，未设置时返回默认值
func (s *PreferencesService) GetValue(ctx context.Context, key string) (string, error) {
	def, known := s.defaults[key]
	if !known {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownPreference, key)
	}
	if s.store == nil {
		return def, nil
	}

	record, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if record == nil {
		return def, nil
	}
	return record.Value, nil
}

// GetBool 获取布尔值
func (s *PreferencesService) GetBool(ctx context.Context, key string, defaultVal bool) bool {
	val, err := s.GetValue(ctx, key)
	if err != nil || val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// GetAll 获取所有偏好；数据库中缺失的键用默认值补齐
func (s *PreferencesService) GetAll(ctx context.Context) ([]*store.PreferenceRecord, error) {
	byKey := make(map[string]*store.PreferenceRecord, len(s.defaults))
	if s.store != nil {
		records, err := s.store.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			byKey[r.Key] = r
		}
	}

	result := make([]*store.PreferenceRecord, 0, len(s.defaults))
	for _, key := range s.Keys() {
		if r, ok := byKey[key]; ok {
			result = append(result, r)
			continue
		}
		result = append(result, &store.PreferenceRecord{Key: key, Value: s.defaults[key]})
	}
	return result, nil
}

// Set 设置单个值
func (s *PreferencesService) Set(ctx context.Context, key, value string) error {
	if s.store == nil {
		return ErrStoreUnavailable
	}
	if err := s.store.Set(ctx, key, value); err != nil {
		return err
	}
	s.triggerOnChange(key)
	return nil
}

// Reset 所有偏好恢复默认值
func (s *PreferencesService) Reset(ctx context.Context) error {
	if s.store == nil {
		return ErrStoreUnavailable
	}
	for _, key := range s.Keys() {
		if err := s.store.Set(ctx, key, s.defaults[key]); err != nil {
			return fmt.Errorf("重置偏好 %s 失败: %w", key, err)
		}
	}
	slog.Info("✅ [PreferencesService] 偏好已重置为默认值")
	s.triggerOnChange("")
	return nil
}

// Count 数据库中的偏好条数
func (s *PreferencesService) Count(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrStoreUnavailable
	}
	return s.store.Count(ctx)
}

func (s *PreferencesService) triggerOnChange(key string) {
	s.mu.RLock()
	fn := s.onChangeFunc
	s.mu.RUnlock()
	if fn != nil {
		fn(key)
	}
}
