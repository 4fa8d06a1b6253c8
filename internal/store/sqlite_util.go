package store

import (
	"context"
	"strings"
	"time"
)

const (
	busyInitialBackoff = 30 * time.Millisecond
	busyMaxBackoff     = 500 * time.Millisecond

	// 写入和首选解析布局
	sqliteTimeLayout = "2006-01-02 15:04:05.999999-07:00"
)

var sqliteTimeLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	// 按错误文本判断，不依赖驱动的错误类型
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_busy") || strings.Contains(msg, "database is locked")
}

// withSQLiteBusyRetry 遇到 busy 时指数退避重试，直到成功、非 busy 错误或 ctx 结束
// 读写共用：另一个实例短暂持有写锁时偏好读写不直接失败
func withSQLiteBusyRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	backoff := busyInitialBackoff
	for {
		v, err := fn()
		if err == nil || !isSQLiteBusyError(err) || ctx == nil {
			return v, err
		}
		// ctx 已结束时返回最后一次的 busy 错误
		if ctx.Err() != nil {
			return v, err
		}

		timer := time.NewTimer(min(backoff, busyMaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return v, err
		case <-timer.C:
		}
		backoff *= 2
	}
}

func formatSQLiteDateTime(t time.Time) string {
	return t.Format(sqliteTimeLayout)
}

// parseSQLiteDateTime 解析 updated_at，无法识别时返回零值
func parseSQLiteDateTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	// 手工写入的 RFC3339（T 分隔）
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
