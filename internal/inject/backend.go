package inject

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// 后端名称，与配置 injection.backend 的取值一致
const (
	BackendAuto    = "auto"
	BackendRobotgo = "robotgo"
	BackendWtype   = "wtype"
	BackendNone    = "none"
)

// IsKnownBackend 名称是否为可配置的后端
func IsKnownBackend(name string) bool {
	switch name {
	case BackendAuto, BackendRobotgo, BackendWtype, BackendNone:
		return true
	}
	return false
}

// 便于测试替换
var (
	getenv   = os.Getenv
	lookPath = exec.LookPath
)

// SelectBackend 根据配置名称返回后端工厂
// auto: Wayland 会话且能找到 wtype 时使用 wtype，否则使用 robotgo
func SelectBackend(name, wtypePath string) (BackendFactory, string) {
	switch name {
	case BackendRobotgo:
		return NewRobotgo, BackendRobotgo
	case BackendWtype:
		return wtypeFactory(wtypePath), BackendWtype
	case BackendNone:
		return disabledFactory, BackendNone
	default:
		if isWayland() {
			if _, err := resolveWtype(wtypePath); err == nil {
				return wtypeFactory(wtypePath), BackendWtype
			}
		}
		return NewRobotgo, BackendRobotgo
	}
}

func disabledFactory() (Backend, error) {
	return nil, fmt.Errorf("%w: disabled by configuration", ErrBackendUnavailable)
}

// isWayland 检查当前是否为 Wayland 会话
func isWayland() bool {
	if strings.EqualFold(getenv("XDG_SESSION_TYPE"), "wayland") {
		return true
	}
	return getenv("WAYLAND_DISPLAY") != ""
}
