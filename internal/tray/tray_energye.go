//go:build !lantern && !stub

package tray

import (
	"github.com/energye/systray"
)

// energyeDriver 基于 energye/systray，支持图标单击、双击和右键
type energyeDriver struct{}

func newDriver() driver {
	return energyeDriver{}
}

func (energyeDriver) Run(onReady, onExit func()) {
	systray.Run(onReady, onExit)
}

func (energyeDriver) Quit() {
	systray.Quit()
}

func (energyeDriver) SetIcon(icon []byte) {
	systray.SetIcon(icon)
}

func (energyeDriver) SetTooltip(tooltip string) {
	systray.SetTooltip(tooltip)
}

func (energyeDriver) AddMenuItem(item MenuItem, onClick func()) {
	m := systray.AddMenuItem(item.Label, item.Label)
	if !item.Enabled {
		m.Disable()
	}
	m.Click(onClick)
}

func (energyeDriver) OnGesture(fn func(Gesture)) bool {
	systray.SetOnClick(func(menu systray.IMenu) {
		fn(Gesture{Kind: Click, Button: ButtonLeft})
	})
	systray.SetOnDClick(func(menu systray.IMenu) {
		fn(Gesture{Kind: DoubleClick, Button: ButtonLeft})
	})
	// 设置右键回调后菜单不会自动弹出，需要手动显示
	systray.SetOnRClick(func(menu systray.IMenu) {
		fn(Gesture{Kind: Click, Button: ButtonRight})
		if menu != nil {
			_ = menu.ShowMenu()
		}
	})
	return true
}
