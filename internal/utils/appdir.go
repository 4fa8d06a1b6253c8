package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appDirName      = "EchoFlow"
	appDirNameLinux = "echo-flow"
)

// GetAppDataDir 获取应用数据目录（跨平台）
// Windows: %APPDATA%\EchoFlow
// macOS: ~/Library/Application Support/EchoFlow
// Linux: $XDG_DATA_HOME/echo-flow 或 ~/.local/share/echo-flow
func GetAppDataDir() string {
	switch runtime.GOOS {
	case "windows":
		baseDir := os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(baseDir, appDirName)

	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", appDirName)

	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return filepath.Join(xdgDataHome, appDirNameLinux)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "share", appDirNameLinux)

	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "."+appDirNameLinux)
	}
}

// GetDataDir 数据库目录
func GetDataDir() string {
	return filepath.Join(GetAppDataDir(), "data")
}

// GetLogDir 日志目录
func GetLogDir() string {
	return filepath.Join(GetAppDataDir(), "logs")
}

// EnsureAppDirs 创建应用数据目录及其子目录
func EnsureAppDirs() error {
	for _, dir := range []string{GetAppDataDir(), GetDataDir(), GetLogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}
