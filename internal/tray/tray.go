package tray

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// 菜单项 ID
const (
	MenuShow = "show"
	MenuHide = "hide"
	MenuQuit = "quit"
)

var (
	// ErrNoIcon 应用没有默认图标，托盘不会创建
	ErrNoIcon = errors.New("could not load default window icon for tray")

	// ErrAlreadyRunning 每个进程最多一个托盘图标
	ErrAlreadyRunning = errors.New("tray already running")
)

// MenuItem 托盘菜单项，进程生命周期内不可变
type MenuItem struct {
	ID      string
	Label   string
	Enabled bool
}

// DefaultMenu 固定菜单：显示、隐藏、退出
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{ID: MenuShow, Label: "Show", Enabled: true},
		{ID: MenuHide, Label: "Hide", Enabled: true},
		{ID: MenuQuit, Label: "Quit", Enabled: true},
	}
}

// GestureKind 托盘图标手势类型
type GestureKind int

const (
	Click GestureKind = iota
	DoubleClick
)

// MouseButton 鼠标按键
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonMiddle
)

// Gesture 托盘图标上的一次点击
type Gesture struct {
	Kind   GestureKind
	Button MouseButton
}

// IsLeftClick 左键单击（等同于“显示”菜单）
func (g Gesture) IsLeftClick() bool {
	return g.Kind == Click && g.Button == ButtonLeft
}

func (g Gesture) String() string {
	kind := "click"
	if g.Kind == DoubleClick {
		kind = "double-click"
	}
	button := "left"
	switch g.Button {
	case ButtonRight:
		button = "right"
	case ButtonMiddle:
		button = "middle"
	}
	return fmt.Sprintf("%s %s", button, kind)
}

// Controller 表示托盘控制器（用于停止托盘）。
type Controller interface {
	Stop()
}

// Options 托盘启动参数。
type Options struct {
	// Icon 托盘图标内容（通常为应用默认窗口图标）。为空时不创建托盘。
	Icon []byte

	// Tooltip 托盘悬浮提示文本。
	Tooltip string

	// Menu 菜单项，为空时使用 DefaultMenu。
	Menu []MenuItem

	// OnMenuEvent 菜单项被选择时触发，参数为菜单项 ID。
	OnMenuEvent func(id string)

	// OnIconEvent 托盘图标被点击时触发。
	OnIconEvent func(g Gesture)

	Logger *slog.Logger
}

// driver 平台托盘实现（energye/systray、getlantern/systray 或 noop）
type driver interface {
	// Run 阻塞直到 Quit 被调用
	Run(onReady, onExit func())
	Quit()
	SetIcon(icon []byte)
	SetTooltip(tooltip string)
	AddMenuItem(item MenuItem, onClick func())
	// OnGesture 注册图标点击回调，返回 false 表示该实现收不到图标点击
	OnGesture(fn func(Gesture)) bool
}

// 便于测试替换
var driverFactory = newDriver

var running atomic.Bool

type trayController struct {
	d      driver
	opts   Options
	menu   []MenuItem
	logger *slog.Logger

	ready   chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

// Start 启动系统托盘。
// 图标为空时返回 ErrNoIcon，应用应继续运行；重复启动返回 ErrAlreadyRunning。
// ctx 结束时托盘自动停止。
func Start(ctx context.Context, opts Options) (Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initializing Tray...")

	if len(opts.Icon) == 0 {
		logger.Error("ERROR: Could not load default window icon for tray!")
		return nil, ErrNoIcon
	}

	if !running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	menu := opts.Menu
	if len(menu) == 0 {
		menu = DefaultMenu()
	}

	c := &trayController{
		d:      driverFactory(),
		opts:   opts,
		menu:   menu,
		logger: logger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	// Run 会阻塞，在单独的 goroutine 中运行
	go c.d.Run(c.onReady, c.onExit)

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				c.Stop()
			case <-c.done:
			}
		}()
	}

	return c, nil
}

func (c *trayController) Stop() {
	c.once.Do(func() {
		c.stopped.Store(true)
		c.d.Quit()
		close(c.done)
		running.Store(false)
	})
}

func (c *trayController) onReady() {
	c.d.SetIcon(c.opts.Icon)

	tooltip := c.opts.Tooltip
	if tooltip == "" {
		tooltip = "Echo Flow"
	}
	c.d.SetTooltip(tooltip)

	for _, item := range c.menu {
		id := item.ID
		c.d.AddMenuItem(item, func() { c.dispatchMenu(id) })
	}
	if !c.d.OnGesture(c.dispatchGesture) {
		c.logger.Warn("⚠️ 当前托盘实现不支持图标点击，左键单击不会显示窗口，请使用菜单中的 Show")
	}

	close(c.ready)
	c.logger.Info("✅ Tray initialized successfully!", "items", len(c.menu))
}

func (c *trayController) onExit() {
	c.logger.Debug("托盘已退出")
}

func (c *trayController) dispatchMenu(id string) {
	if c.stopped.Load() {
		return
	}
	c.logger.Debug("托盘菜单事件", "id", id)
	if c.opts.OnMenuEvent != nil {
		c.opts.OnMenuEvent(id)
	}
}

func (c *trayController) dispatchGesture(g Gesture) {
	if c.stopped.Load() {
		return
	}
	c.logger.Debug("托盘图标事件", "gesture", g.String())
	if c.opts.OnIconEvent != nil {
		c.opts.OnIconEvent(g)
	}
}
