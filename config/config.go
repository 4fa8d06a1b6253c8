package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pkd-app/echo-flow/internal/inject"
)

type Config struct {
	Window    WindowConfig    `yaml:"window"`
	Tray      TrayConfig      `yaml:"tray"`
	Injection InjectionConfig `yaml:"injection"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Control   ControlConfig   `yaml:"control"`
}

type WindowConfig struct {
	Title       string `yaml:"title"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	MinWidth    int    `yaml:"min_width"`
	MinHeight   int    `yaml:"min_height"`
	StartHidden bool   `yaml:"start_hidden"`  // 启动时不显示主窗口
	HideOnClose bool   `yaml:"hide_on_close"` // 关闭按钮只隐藏窗口，进程留在托盘
	AlwaysOnTop bool   `yaml:"always_on_top"`
}

type TrayConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Tooltip  string `yaml:"tooltip"`
	IconPath string `yaml:"icon_path"` // 为空时使用内置应用图标
}

type InjectionConfig struct {
	Backend     string        `yaml:"backend"`     // "auto", "robotgo", "wtype" or "none"
	WtypePath   string        `yaml:"wtype_path"`  // wtype 可执行文件路径，默认从 PATH 查找
	FocusDelay  time.Duration `yaml:"focus_delay"` // MagicPaste 隐藏窗口后等待焦点回到目标应用的时间
	Diagnostics bool          `yaml:"diagnostics"` // 单字符注入失败时输出 WARN 日志

	// 最近任务只保存在内存中（字数与结果，不含文本），退出即丢弃
	RecentJobs   int           `yaml:"recent_jobs"`
	RecentMaxAge time.Duration `yaml:"recent_max_age"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	FileEnabled bool   `yaml:"file_enabled"`  // Enable file logging
	FilePath    string `yaml:"file_path"`     // Log file path
	MaxSizeMB   int    `yaml:"max_size_mb"`   // Max size of a single log file before rotation
	MaxBackups  int    `yaml:"max_backups"`   // Max number of rotated files to keep
	MaxAgeDays  int    `yaml:"max_age_days"`  // Max age of rotated files
	Compress    bool   `yaml:"compress"`      // Compress rotated log files
	BufferSize  int    `yaml:"buffer_size"`   // Recent log entries kept for the UI
}

type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Token   string `yaml:"token"` // Bearer token，启用时必填
}

// newDefaultConfig 返回带默认布尔值的配置，YAML 中缺省的键保持默认
func newDefaultConfig() Config {
	return Config{
		Tray:    TrayConfig{Enabled: true},
		Storage: StorageConfig{Enabled: true},
		Logging: LoggingConfig{FileEnabled: true},
	}
}

// Parse parses YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	config := newDefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is available.
func Default() *Config {
	config := newDefaultConfig()
	config.setDefaults()
	return &config
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Window.Title == "" {
		c.Window.Title = "Echo Flow"
	}
	if c.Window.Width == 0 {
		c.Window.Width = 420
	}
	if c.Window.Height == 0 {
		c.Window.Height = 640
	}
	if c.Window.MinWidth == 0 {
		c.Window.MinWidth = 360
	}
	if c.Window.MinHeight == 0 {
		c.Window.MinHeight = 480
	}

	if c.Tray.Tooltip == "" {
		c.Tray.Tooltip = c.Window.Title
	}

	if c.Injection.Backend == "" {
		c.Injection.Backend = inject.BackendAuto
	}
	c.Injection.Backend = strings.ToLower(strings.TrimSpace(c.Injection.Backend))
	if c.Injection.FocusDelay == 0 {
		c.Injection.FocusDelay = 500 * time.Millisecond // 与原前端的等待时间一致
	}
	if c.Injection.RecentJobs == 0 {
		c.Injection.RecentJobs = 50
	}
	if c.Injection.RecentMaxAge == 0 {
		c.Injection.RecentMaxAge = 30 * time.Minute
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(getConfigAppDataDir(), "logs", "app.log")
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}
	if c.Logging.BufferSize == 0 {
		c.Logging.BufferSize = 1000
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(getConfigAppDataDir(), "data", "echo-flow.db")
	}

	if c.Control.Host == "" {
		c.Control.Host = "127.0.0.1"
	}
	if c.Control.Port == 0 {
		c.Control.Port = 7345
	}
}

func (c *Config) validate() error {
	if !inject.IsKnownBackend(c.Injection.Backend) {
		return fmt.Errorf("unknown injection backend %q", c.Injection.Backend)
	}

	if c.Injection.FocusDelay < 0 {
		return fmt.Errorf("injection.focus_delay must not be negative")
	}

	if c.Injection.RecentJobs < 0 || c.Injection.RecentMaxAge < 0 {
		return fmt.Errorf("injection.recent_jobs and injection.recent_max_age must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}

	if c.Window.Width < c.Window.MinWidth || c.Window.Height < c.Window.MinHeight {
		return fmt.Errorf("window size %dx%d is smaller than minimum %dx%d",
			c.Window.Width, c.Window.Height, c.Window.MinWidth, c.Window.MinHeight)
	}

	if c.Control.Enabled {
		if c.Control.Port <= 0 || c.Control.Port > 65535 {
			return fmt.Errorf("invalid control port: %d", c.Control.Port)
		}
		if strings.TrimSpace(c.Control.Token) == "" {
			return fmt.Errorf("control.token is required when control.enabled is true")
		}
		// 控制端口只允许监听本机回环地址
		if c.Control.Host != "localhost" {
			ip := net.ParseIP(c.Control.Host)
			if ip == nil || !ip.IsLoopback() {
				return fmt.Errorf("control host must be a loopback address, got %q", c.Control.Host)
			}
		}
	}

	return nil
}

// ControlAddr returns host:port of the local control endpoint.
func (c *Config) ControlAddr() string {
	return net.JoinHostPort(c.Control.Host, fmt.Sprintf("%d", c.Control.Port))
}

// ConfigWatcher watches the config file and reloads it on change
type ConfigWatcher struct {
	configPath    string
	config        *Config
	mutex         sync.RWMutex
	watcher       *fsnotify.Watcher
	logger        *slog.Logger
	callbacks     []func(*Config)
	lastModTime   time.Time
	debounceTimer *time.Timer
	debounce      time.Duration
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, logger *slog.Logger) (*ConfigWatcher, error) {
	// Load initial configuration
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	// Get initial modification time
	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	// Create file watcher
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	cw := &ConfigWatcher{
		configPath:  configPath,
		config:      config,
		watcher:     watcher,
		logger:      logger,
		callbacks:   make([]func(*Config), 0),
		lastModTime: fileInfo.ModTime(),
		debounce:    500 * time.Millisecond,
	}

	// Add config file to watcher
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	// Start watching in background
	go cw.watchLoop()

	return cw, nil
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mutex.RLock()
	defer cw.mutex.RUnlock()
	return cw.config
}

// UpdateLogger updates the logger used by the config watcher
func (cw *ConfigWatcher) UpdateLogger(logger *slog.Logger) {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()
	cw.logger = logger
}

// AddReloadCallback adds a callback function that will be called when config is reloaded
func (cw *ConfigWatcher) AddReloadCallback(callback func(*Config)) {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) log() *slog.Logger {
	cw.mutex.RLock()
	defer cw.mutex.RUnlock()
	return cw.logger
}

// watchLoop monitors the config file for changes
func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fileInfo, err := os.Stat(cw.configPath)
				if err != nil {
					cw.log().Warn(fmt.Sprintf("⚠️ 无法获取配置文件信息: %v", err))
					continue
				}

				// Skip if modification time hasn't changed
				if !fileInfo.ModTime().After(cw.lastModTime) {
					continue
				}
				cw.lastModTime = fileInfo.ModTime()

				if cw.debounceTimer != nil {
					cw.debounceTimer.Stop()
				}

				// 编辑器保存时常连续触发多次写事件，合并为一次重载
				name := event.Name
				cw.debounceTimer = time.AfterFunc(cw.debounce, func() {
					cw.log().Info(fmt.Sprintf("🔄 检测到配置文件变更，正在重新加载... - 文件: %s", name))
					if err := cw.reloadConfig(); err != nil {
						cw.log().Error(fmt.Sprintf("❌ 配置文件重新加载失败: %v", err))
					} else {
						cw.log().Info("✅ 配置文件重新加载成功")
					}
				})
			}

			// Some editors rename files during save
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				time.Sleep(100 * time.Millisecond)
				if _, err := os.Stat(cw.configPath); err == nil {
					cw.watcher.Add(cw.configPath)
					cw.log().Info(fmt.Sprintf("🔄 重新监听配置文件: %s", cw.configPath))
				}
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log().Error(fmt.Sprintf("⚠️ 配置文件监听错误: %v", err))
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() error {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mutex.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mutex.Unlock()

	for _, callback := range callbacks {
		callback(newConfig)
	}

	cw.logConfigChanges(oldConfig, newConfig)

	return nil
}

// logConfigChanges logs the differences that matter at runtime
func (cw *ConfigWatcher) logConfigChanges(oldConfig, newConfig *Config) {
	logger := cw.log()

	if oldConfig.Logging.Level != newConfig.Logging.Level {
		logger.Info("📝 日志级别变更",
			"old_level", oldConfig.Logging.Level,
			"new_level", newConfig.Logging.Level)
	}

	if oldConfig.Injection.Backend != newConfig.Injection.Backend {
		logger.Info("⌨️ 输入注入后端变更",
			"old_backend", oldConfig.Injection.Backend,
			"new_backend", newConfig.Injection.Backend)
	}

	if oldConfig.Injection.FocusDelay != newConfig.Injection.FocusDelay {
		logger.Info("⏱️ 焦点等待时间变更",
			"old_delay", oldConfig.Injection.FocusDelay,
			"new_delay", newConfig.Injection.FocusDelay)
	}

	if oldConfig.Tray.Enabled != newConfig.Tray.Enabled {
		logger.Warn("⚠️ 托盘开关变更需要重启生效",
			"old_enabled", oldConfig.Tray.Enabled,
			"new_enabled", newConfig.Tray.Enabled)
	}

	if oldConfig.Control != newConfig.Control {
		logger.Warn("⚠️ 本地控制端口配置变更需要重启生效",
			"old_addr", oldConfig.ControlAddr(),
			"new_addr", newConfig.ControlAddr())
	}
}

// Close stops the configuration watcher
func (cw *ConfigWatcher) Close() error {
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	return cw.watcher.Close()
}

// EnsureConfigFile 若目标路径不存在，写入默认配置内容
func EnsureConfigFile(path string, defaultContent []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, defaultContent, 0644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// DefaultConfigPath 默认配置文件位置（应用数据目录下）
func DefaultConfigPath() string {
	return filepath.Join(getConfigAppDataDir(), "config.yaml")
}

// getConfigAppDataDir 获取应用数据目录（跨平台）
// 与 internal/utils/appdir.go 保持一致，避免循环依赖
// Windows: %APPDATA%\EchoFlow
// macOS: ~/Library/Application Support/EchoFlow
// Linux: ~/.local/share/echo-flow
func getConfigAppDataDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(baseDir, "EchoFlow")

	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "EchoFlow")

	case "linux":
		homeDir, _ := os.UserHomeDir()
		xdgDataHome := os.Getenv("XDG_DATA_HOME")
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "echo-flow")
		}
		return filepath.Join(homeDir, ".local", "share", "echo-flow")

	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".echo-flow")
	}
}
