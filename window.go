// window.go - 基于 Wails Runtime 的窗口与进程能力
// 供 lifecycle.Controller 使用

package main

import (
	"context"
	"errors"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/pkd-app/echo-flow/internal/lifecycle"
)

var errHostNotStarted = errors.New("window host not started")

// 便于测试替换
var quitHost = runtime.Quit

// wailsWindows 按逻辑名称查找窗口；Wails v2 只有一个主窗口
type wailsWindows struct {
	app *App
}

func (w wailsWindows) GetWindow(name string) (lifecycle.Window, bool) {
	if name != lifecycle.MainWindow {
		return nil, false
	}
	ctx := w.app.wailsContext()
	if ctx == nil {
		return nil, false
	}
	return wailsWindow{ctx: ctx}, true
}

type wailsWindow struct {
	ctx context.Context
}

func (w wailsWindow) Show() error {
	if w.ctx == nil {
		return errHostNotStarted
	}
	runtime.WindowShow(w.ctx)
	return nil
}

func (w wailsWindow) Hide() error {
	if w.ctx == nil {
		return errHostNotStarted
	}
	runtime.WindowHide(w.ctx)
	return nil
}

// Focus Wails v2 没有单独的聚焦接口，取消最小化后再次 Show 会把窗口带到前台
func (w wailsWindow) Focus() error {
	if w.ctx == nil {
		return errHostNotStarted
	}
	runtime.WindowUnminimise(w.ctx)
	runtime.WindowShow(w.ctx)
	return nil
}

// appExiter 进程退出能力
type appExiter struct {
	app *App
}

func (e appExiter) Exit(code int) {
	e.app.requestQuit(code)
}
