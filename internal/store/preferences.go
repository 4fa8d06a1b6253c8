// Package store 提供数据存储层实现
// 偏好设置存储：界面配置（API Key、模式、快捷键等），不保存任何输入文本或历史记录
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 偏好设置键，与界面原有的 echo-flow-* 存储键一一对应
const (
	PrefAPIKey       = "apikey"
	PrefMode         = "mode"
	PrefHotkeyApp    = "hotkey-app"
	PrefHotkeyRec    = "hotkey-rec"
	PrefMagicPaste   = "magicpaste"
	PrefCustomPrompt = "customprompt"
)

var (
	// ErrUnknownPreference 不在白名单中的键
	ErrUnknownPreference = errors.New("unknown preference key")

	// ErrInvalidPreference 值不合法
	ErrInvalidPreference = errors.New("invalid preference value")
)

// 转写模式
var validModes = map[string]bool{
	"clean":   true,
	"meeting": true,
	"idea":    true,
	"ask":     true,
	"custom":  true,
}

// DefaultPreferences 首次启动时写入的默认值
func DefaultPreferences() map[string]string {
	return map[string]string{
		PrefAPIKey:       "",
		PrefMode:         "clean",
		PrefHotkeyApp:    "Alt+Shift+S",
		PrefHotkeyRec:    "Alt+Shift+R",
		PrefMagicPaste:   "false",
		PrefCustomPrompt: "You are a helpful assistant.",
	}
}

// PreferenceRecord 表示数据库中的偏好记录
type PreferenceRecord struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PreferenceStore 定义偏好存储接口
type PreferenceStore interface {
	Get(ctx context.Context, key string) (*PreferenceRecord, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) ([]*PreferenceRecord, error)

	// InitDefaults 只插入缺失的键，保留用户已设置的值
	InitDefaults(ctx context.Context, defaults map[string]string) error
	Count(ctx context.Context) (int, error)
}

// SQLitePreferenceStore 实现 PreferenceStore 接口
type SQLitePreferenceStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLitePreferenceStore 创建新的 SQLite 偏好存储
func NewSQLitePreferenceStore(db *sql.DB) *SQLitePreferenceStore {
	return &SQLitePreferenceStore{db: db}
}

// ValidatePreference 检查键是否在白名单中以及值是否合法
func ValidatePreference(key, value string) error {
	switch key {
	case PrefAPIKey, PrefCustomPrompt:
		return nil
	case PrefMode:
		if !validModes[value] {
			return fmt.Errorf("%w: mode %q", ErrInvalidPreference, value)
		}
	case PrefHotkeyApp, PrefHotkeyRec:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s 不能为空", ErrInvalidPreference, key)
		}
	case PrefMagicPaste:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: magicpaste %q", ErrInvalidPreference, value)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPreference, key)
	}
	return nil
}

// Get 获取单个偏好，不存在时返回 nil, nil
func (s *SQLitePreferenceStore) Get(ctx context.Context, key string) (*PreferenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT key, value, updated_at FROM preferences WHERE key = ?`

	var record PreferenceRecord
	var updatedAt string

	err := s.db.QueryRowContext(ctx, query, key).Scan(&record.Key, &record.Value, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("获取偏好失败: %w", err)
	}

	record.UpdatedAt = parseSQLiteDateTime(updatedAt)
	return &record, nil
}

// Set 设置单个值（存在则更新，不存在则插入）
func (s *SQLitePreferenceStore) Set(ctx context.Context, key, value string) error {
	if err := ValidatePreference(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := withSQLiteBusyRetry(ctx, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, query, key, value, formatSQLiteDateTime(time.Now()))
	})
	if err != nil {
		return fmt.Errorf("设置偏好失败: %w", err)
	}

	return nil
}

// Delete 删除单个偏好
func (s *SQLitePreferenceStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := withSQLiteBusyRetry(ctx, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
	})
	if err != nil {
		return fmt.Errorf("删除偏好失败: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("偏好不存在: %s", key)
	}

	return nil
}

// GetAll 获取所有偏好，按键排序
func (s *SQLitePreferenceStore) GetAll(ctx context.Context) ([]*PreferenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT key, value, updated_at FROM preferences ORDER BY key ASC`

	rows, err := withSQLiteBusyRetry(ctx, func() (*sql.Rows, error) {
		return s.db.QueryContext(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("查询偏好失败: %w", err)
	}
	defer rows.Close()

	var records []*PreferenceRecord
	for rows.Next() {
		var record PreferenceRecord
		var updatedAt string
		if err := rows.Scan(&record.Key, &record.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("扫描偏好记录失败: %w", err)
		}
		record.UpdatedAt = parseSQLiteDateTime(updatedAt)
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历偏好记录失败: %w", err)
	}

	return records, nil
}

// InitDefaults 初始化默认偏好（事务，已存在的键不覆盖）
func (s *SQLitePreferenceStore) InitDefaults(ctx context.Context, defaults map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(defaults) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	// 固定顺序，便于排查
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := formatSQLiteDateTime(time.Now())
	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key, defaults[key], now); err != nil {
			return fmt.Errorf("初始化偏好 %s 失败: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	return nil
}

// Count 获取偏好总数
func (s *SQLitePreferenceStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM preferences").Scan(&count); err != nil {
		return 0, fmt.Errorf("获取偏好数量失败: %w", err)
	}

	return count, nil
}
