//go:build !noinput

package inject

import (
	"fmt"
	"runtime"

	"github.com/go-vgo/robotgo"
)

type robotgoBackend struct{}

// NewRobotgo 基于 robotgo 的键盘模拟后端
func NewRobotgo() (Backend, error) {
	// Linux 下 robotgo 依赖 X11
	if runtime.GOOS == "linux" && getenv("DISPLAY") == "" {
		return nil, fmt.Errorf("%w: no X11 display", ErrBackendUnavailable)
	}
	return robotgoBackend{}, nil
}

func (robotgoBackend) TypeRune(r rune) error {
	robotgo.Type(string(r))
	return nil
}
