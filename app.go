// app.go - Wails 应用核心结构
// 封装注入器、托盘、生命周期控制器和偏好存储，提供生命周期管理

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkd-app/echo-flow/config"
	"github.com/pkd-app/echo-flow/internal/control"
	"github.com/pkd-app/echo-flow/internal/inject"
	"github.com/pkd-app/echo-flow/internal/lifecycle"
	"github.com/pkd-app/echo-flow/internal/logging"
	"github.com/pkd-app/echo-flow/internal/service"
	"github.com/pkd-app/echo-flow/internal/store"
	"github.com/pkd-app/echo-flow/internal/tracking"
	"github.com/pkd-app/echo-flow/internal/tray"
	"github.com/pkd-app/echo-flow/internal/utils"
)

// App 是 Wails 应用的核心结构
// 它封装了所有业务组件，并暴露方法给前端调用
type App struct {
	// Wails 上下文
	ctx context.Context

	// 核心组件
	config        *config.Config
	configWatcher *config.ConfigWatcher
	logger        *slog.Logger
	logLevel      *slog.LevelVar
	injector      *inject.Injector
	lifecycle     *lifecycle.Controller
	trayCtrl      tray.Controller
	controlServer *control.Server

	// 偏好存储 (SQLite)
	storeDB     *sql.DB
	preferences *service.PreferencesService

	// 最近任务（仅内存）
	jobs *tracking.JobPool

	// 应用状态
	startTime   time.Time
	configPath  string
	backendName string

	// 并发控制
	mu       sync.RWMutex
	quitting int32

	// 宿主未启动时的退出方式（测试替换）
	exitFn func(code int)

	// 日志处理器（用于查询和广播）
	logHandler *logging.BroadcastHandler
	logEmitter *logging.EventEmitter
}

// NewApp 创建新的应用实例
func NewApp() *App {
	a := &App{
		startTime: time.Now(),
		config:    config.Default(),
		logger:    slog.Default(),
		exitFn:    os.Exit,
	}
	a.injector = inject.New(nil, inject.WithLogger(a.logger))
	a.preferences = a.newPreferencesService(nil)
	a.lifecycle = lifecycle.New(lifecycle.Context{
		Windows: wailsWindows{app: a},
		Process: appExiter{app: a},
		Logger:  a.logger,
	}, lifecycle.WithVisibilityHook(a.emitWindowVisibility))
	return a
}

// startup 在 Wails 应用启动时调用
func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	// 1. 初始化日志
	a.setupLogger()

	a.logger.Info("🚀 Echo Flow 启动中...",
		"version", Version,
		"config_file", a.configPath)

	// 2. 输入注入器
	a.setupInjector()

	// 3. 生命周期控制器（托盘和 QuitApp 共用）
	a.setupLifecycle()

	// 4. 系统托盘
	a.setupTray(ctx)

	// 5. 偏好存储
	a.setupStore()

	// 6. 本地控制端点
	a.setupControl()

	// 7. 配置热重载
	a.setupConfigReload()

	a.logger.Info("✅ Echo Flow 启动完成", "backend", a.backendName)
}

// shutdown 在 Wails 应用关闭时调用
func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	logger := a.logger
	controlServer := a.controlServer
	trayCtrl := a.trayCtrl
	storeDB := a.storeDB
	jobs := a.jobs
	configWatcher := a.configWatcher
	logHandler := a.logHandler
	a.mu.Unlock()

	logger.Info("🛑 正在关闭 Echo Flow...")

	// 1. 停止接收新请求
	if controlServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := controlServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("控制端点关闭失败", "error", err)
		}
	}

	// 2. 移除托盘图标
	if trayCtrl != nil {
		trayCtrl.Stop()
	}

	// 3. 关闭偏好数据库
	if storeDB != nil {
		if err := storeDB.Close(); err != nil {
			logger.Error("偏好数据库关闭失败", "error", err)
		}
	}

	// 4. 关闭配置监听和任务池
	if configWatcher != nil {
		_ = configWatcher.Close()
	}
	jobs.Close()

	logger.Info("✅ Echo Flow 已关闭")

	// 5. 停止日志事件发射器并关闭日志文件
	if logHandler != nil {
		_ = logHandler.Close()
	}

	a.mu.Lock()
	a.controlServer = nil
	a.trayCtrl = nil
	a.storeDB = nil
	a.mu.Unlock()
}

// domReady 在前端 DOM 准备就绪时调用
func (a *App) domReady(ctx context.Context) {
	// 发送初始状态给前端
	a.emitSystemStatus()
}

// beforeClose 在窗口关闭前调用，返回 true 阻止关闭
func (a *App) beforeClose(ctx context.Context) bool {
	// 已经在退出流程中（托盘“退出”或 QuitApp），放行
	if atomic.LoadInt32(&a.quitting) == 1 {
		return false
	}

	a.mu.RLock()
	hideOnClose := a.config.Window.HideOnClose
	a.mu.RUnlock()

	if hideOnClose {
		a.lifecycle.Hide()
		return true
	}

	// 关闭主窗口即退出应用；由 Quit 统一收口到 OnShutdown
	a.lifecycle.Quit()
	return true
}

// loadConfig 加载配置，失败时使用默认配置继续运行
func (a *App) loadConfig(path string) {
	tempLogger := slog.Default()

	// 确保应用目录存在
	if err := utils.EnsureAppDirs(); err != nil {
		tempLogger.Warn("⚠️ 无法创建应用目录", "error", err)
	} else {
		tempLogger.Info("📁 应用目录已就绪",
			"appdir", utils.GetAppDataDir(),
			"data", utils.GetDataDir(),
			"logs", utils.GetLogDir())
	}

	if path == "" {
		path = config.DefaultConfigPath()
		created, err := config.EnsureConfigFile(path, defaultConfigContent)
		if err != nil {
			tempLogger.Warn("⚠️ 无法写入默认配置文件", "path", path, "error", err)
		} else if created {
			tempLogger.Info("📝 已生成默认配置文件", "path", path)
		}
	}
	a.configPath = path

	configWatcher, err := config.NewConfigWatcher(path, tempLogger)
	if err != nil {
		tempLogger.Warn("⚠️ 加载配置失败，使用默认配置", "path", path, "error", err)
		cfg, parseErr := config.Parse(defaultConfigContent)
		if parseErr != nil {
			cfg = config.Default()
		}
		a.config = cfg
		return
	}

	a.configWatcher = configWatcher
	a.config = configWatcher.GetConfig()

	tempLogger.Info("✅ 配置加载完成",
		"log_path", a.config.Logging.FilePath,
		"db_path", a.config.Storage.DatabasePath)
}

// setupLogger 设置日志
func (a *App) setupLogger() {
	logger, level, broadcastHandler := logging.Setup(a.config.Logging)
	slog.SetDefault(logger)

	a.mu.Lock()
	a.logger = logger
	a.logLevel = level
	a.logHandler = broadcastHandler
	a.logEmitter = broadcastHandler.Emitter
	a.mu.Unlock()

	if a.configWatcher != nil {
		a.configWatcher.UpdateLogger(logger)
	}

	a.logger.Info("✅ 日志系统初始化完成",
		"level", a.config.Logging.Level,
		"file_enabled", a.config.Logging.FileEnabled)
}

// setupInjector 根据配置选择输入后端
func (a *App) setupInjector() {
	factory, name := inject.SelectBackend(a.config.Injection.Backend, a.config.Injection.WtypePath)
	a.backendName = name

	a.jobs = tracking.NewJobPool(tracking.Config{
		MaxSize: a.config.Injection.RecentJobs,
		MaxAge:  a.config.Injection.RecentMaxAge,
	}, a.logger.With("component", "jobs"))

	a.injector = inject.New(factory,
		inject.WithLogger(a.logger.With("component", "inject")),
		inject.WithDiagnostics(a.config.Injection.Diagnostics),
		inject.WithHooks(a.injectHooks()),
	)

	a.logger.Info("⌨️ 输入注入后端已选择", "backend", name, "configured", a.config.Injection.Backend)
}

// setupLifecycle 重新创建控制器以使用正式的 logger
func (a *App) setupLifecycle() {
	a.lifecycle = lifecycle.New(lifecycle.Context{
		Windows: wailsWindows{app: a},
		Process: appExiter{app: a},
		Logger:  a.logger,
	}, lifecycle.WithVisibilityHook(a.emitWindowVisibility))
}

// setupTray 创建系统托盘；图标缺失时只记录错误，应用继续运行
func (a *App) setupTray(ctx context.Context) {
	if !a.config.Tray.Enabled {
		a.logger.Info("托盘已禁用")
		return
	}

	trayIcon := icon
	if a.config.Tray.IconPath != "" {
		data, err := os.ReadFile(a.config.Tray.IconPath)
		if err != nil {
			a.logger.Warn("⚠️ 读取托盘图标失败，使用内置图标", "path", a.config.Tray.IconPath, "error", err)
		} else {
			trayIcon = data
		}
	}

	ctrl, err := tray.Start(ctx, tray.Options{
		Icon:        trayIcon,
		Tooltip:     a.config.Tray.Tooltip,
		OnMenuEvent: a.lifecycle.OnMenuEvent,
		OnIconEvent: a.lifecycle.OnTrayIconEvent,
		Logger:      a.logger.With("component", "tray"),
	})
	if err != nil {
		if !errors.Is(err, tray.ErrNoIcon) {
			a.logger.Warn("⚠️ 托盘启动失败", "error", err)
		}
		return
	}

	a.mu.Lock()
	a.trayCtrl = ctrl
	a.mu.Unlock()
}

// setupStore 打开偏好数据库并写入默认值
func (a *App) setupStore() {
	if !a.config.Storage.Enabled {
		return
	}

	dbPath := a.config.Storage.DatabasePath
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.Open(ctx, dbPath)
	if err != nil {
		if store.IsBusyOrLocked(err) {
			a.logger.Warn("⚠️ 偏好数据库被占用（可能有另一个实例在运行），偏好设置不可用", "error", err)
			a.emitNotification("warning", "数据库暂不可用", "偏好设置不可用，请确保只运行一个 Echo Flow 实例。")
		} else {
			a.logger.Warn("⚠️ 偏好数据库不可用", "db", dbPath, "error", err)
		}
		return
	}

	preferenceStore := store.NewSQLitePreferenceStore(db)
	if err := preferenceStore.InitDefaults(ctx, store.DefaultPreferences()); err != nil {
		a.logger.Warn("⚠️ 初始化默认偏好失败", "error", err)
	}

	a.mu.Lock()
	a.storeDB = db
	a.preferences = a.newPreferencesService(preferenceStore)
	a.mu.Unlock()

	a.logger.Info("✅ 偏好数据库已就绪", "db", filepath.Clean(dbPath))
}

// setupControl 启动本地控制端点（默认关闭）
func (a *App) setupControl() {
	if !a.config.Control.Enabled {
		return
	}

	server := control.New(control.Options{
		Addr:       a.config.ControlAddr(),
		Token:      a.config.Control.Token,
		Version:    Version,
		Injector:   a.injector,
		Quitter:    a.lifecycle,
		TrayActive: a.trayActive,
		OnRejected: a.onControlRejected,
		Logger:     a.logger,
	})
	if err := server.Start(); err != nil {
		a.logger.Error("❌ 控制端点启动失败", "error", err)
		a.emitError("控制端点启动失败", err.Error())
		return
	}

	a.mu.Lock()
	a.controlServer = server
	a.mu.Unlock()
}

// setupConfigReload 配置热重载：日志级别、注入后端、焦点等待时间
func (a *App) setupConfigReload() {
	if a.configWatcher == nil {
		return
	}

	a.configWatcher.AddReloadCallback(func(newCfg *config.Config) {
		a.mu.Lock()
		a.config = newCfg
		if a.logLevel != nil {
			a.logLevel.Set(logging.ParseLevel(newCfg.Logging.Level))
		}
		a.mu.Unlock()

		factory, name := inject.SelectBackend(newCfg.Injection.Backend, newCfg.Injection.WtypePath)
		a.injector.SetFactory(factory)
		a.injector.SetDiagnostics(newCfg.Injection.Diagnostics)

		a.mu.Lock()
		a.backendName = name
		a.mu.Unlock()

		a.logger.Info("🔄 配置已重新加载", "backend", name, "level", newCfg.Logging.Level)

		// 通知前端配置已更新
		a.emitConfigReloaded()
	})

	a.logger.Info("🔄 配置热重载已启用")
}

// requestQuit 结束进程：宿主已启动时走 Wails 的正常关闭流程
func (a *App) requestQuit(code int) {
	atomic.StoreInt32(&a.quitting, 1)

	ctx := a.wailsContext()
	if ctx == nil {
		a.exitFn(code)
		return
	}
	// Quit 可能触发同步回调，避免在调用方（托盘/UI 线程）里阻塞
	go quitHost(ctx)
}

func (a *App) wailsContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

func (a *App) trayActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trayCtrl != nil
}
