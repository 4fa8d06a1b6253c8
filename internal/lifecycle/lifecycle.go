// Package lifecycle 将托盘菜单和图标点击转换为窗口显示、隐藏和进程退出
//
// 控制器通过显式传入的 Context 访问窗口与进程能力，不依赖任何全局状态。
// 所有处理都是同步且短暂的；退出是终态，之后的事件全部忽略。
package lifecycle

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkd-app/echo-flow/internal/tray"
)

// MainWindow 主窗口的逻辑名称
const MainWindow = "main"

// Window 窗口句柄，每次处理事件时重新查找，不缓存
type Window interface {
	Show() error
	Hide() error
	Focus() error
}

// WindowLocator 按逻辑名称查找窗口
type WindowLocator interface {
	GetWindow(name string) (Window, bool)
}

// ProcessExiter 以指定退出码结束进程
type ProcessExiter interface {
	Exit(code int)
}

// Context 控制器依赖的能力
type Context struct {
	Windows WindowLocator
	Process ProcessExiter
	Logger  *slog.Logger
}

// Option 配置 Controller
type Option func(*Controller)

// WithVisibilityHook 窗口显示/隐藏成功后回调
func WithVisibilityHook(fn func(visible bool)) Option {
	return func(c *Controller) {
		c.onVisibility = fn
	}
}

// Controller 托盘生命周期控制器
type Controller struct {
	ctx          Context
	logger       *slog.Logger
	quitting     atomic.Bool
	onVisibility func(visible bool)
}

// New 创建控制器，每个进程只需要一个
func New(ctx Context, opts ...Option) *Controller {
	logger := ctx.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		ctx:    ctx,
		logger: logger.With("component", "lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMenuEvent 处理托盘菜单选择，未知 ID 忽略
func (c *Controller) OnMenuEvent(id string) {
	if c.quitting.Load() {
		return
	}
	switch id {
	case tray.MenuQuit:
		c.Quit()
	case tray.MenuShow:
		c.Show()
	case tray.MenuHide:
		c.Hide()
	default:
		c.logger.Debug("忽略未知菜单项", "id", id)
	}
}

// OnTrayIconEvent 处理托盘图标点击，只有左键单击有效（等同于“显示”）
func (c *Controller) OnTrayIconEvent(g tray.Gesture) {
	if c.quitting.Load() {
		return
	}
	if g.IsLeftClick() {
		c.Show()
	}
}

// Show 显示并聚焦主窗口；窗口不存在时为空操作，重复调用结果相同
func (c *Controller) Show() {
	if c.quitting.Load() {
		return
	}
	w, ok := c.mainWindow()
	if !ok {
		return
	}
	if err := w.Show(); err != nil {
		c.logger.Debug("显示窗口失败", "error", err)
	}
	if err := w.Focus(); err != nil {
		c.logger.Debug("聚焦窗口失败", "error", err)
	}
	c.notifyVisibility(true)
}

// Hide 隐藏主窗口；窗口不存在时为空操作
func (c *Controller) Hide() {
	if c.quitting.Load() {
		return
	}
	w, ok := c.mainWindow()
	if !ok {
		return
	}
	if err := w.Hide(); err != nil {
		c.logger.Debug("隐藏窗口失败", "error", err)
		return
	}
	c.notifyVisibility(false)
}

// Quit 以退出码 0 结束进程，只生效一次
func (c *Controller) Quit() {
	if !c.quitting.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("👋 收到退出请求")
	if c.ctx.Process != nil {
		c.ctx.Process.Exit(0)
	}
}

// Quitting 是否已进入退出流程
func (c *Controller) Quitting() bool {
	return c.quitting.Load()
}

func (c *Controller) mainWindow() (Window, bool) {
	if c.ctx.Windows == nil {
		c.logger.Debug("窗口定位器未设置")
		return nil, false
	}
	w, ok := c.ctx.Windows.GetWindow(MainWindow)
	if !ok || w == nil {
		c.logger.Debug("主窗口不存在，忽略", "window", MainWindow)
		return nil, false
	}
	return w, true
}

func (c *Controller) notifyVisibility(visible bool) {
	if c.onVisibility != nil {
		c.onVisibility(visible)
	}
}
