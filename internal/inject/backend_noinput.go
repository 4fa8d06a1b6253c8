//go:build noinput

package inject

import "fmt"

// NewRobotgo 在 noinput 构建中不可用（无 cgo 的 CI 环境）
func NewRobotgo() (Backend, error) {
	return nil, fmt.Errorf("%w: built without input support", ErrBackendUnavailable)
}
