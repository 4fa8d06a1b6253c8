//go:build lantern && !stub

package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// lanternDriver 基于 getlantern/systray，只支持菜单。
// 该库没有图标点击事件，lantern 构建下左键单击不会显示窗口，启动时会输出一次 WARN。
type lanternDriver struct {
	quitCh chan struct{}
	once   sync.Once
}

func newDriver() driver {
	return &lanternDriver{quitCh: make(chan struct{})}
}

func (d *lanternDriver) Run(onReady, onExit func()) {
	systray.Run(onReady, onExit)
}

func (d *lanternDriver) Quit() {
	d.once.Do(func() {
		close(d.quitCh)
		systray.Quit()
	})
}

func (d *lanternDriver) SetIcon(icon []byte) {
	systray.SetIcon(icon)
}

func (d *lanternDriver) SetTooltip(tooltip string) {
	systray.SetTooltip(tooltip)
}

func (d *lanternDriver) AddMenuItem(item MenuItem, onClick func()) {
	m := systray.AddMenuItem(item.Label, item.Label)
	if !item.Enabled {
		m.Disable()
	}

	// 监听菜单点击
	go func() {
		for {
			select {
			case <-d.quitCh:
				return
			case <-m.ClickedCh:
				onClick()
			}
		}
	}()
}

// OnGesture getlantern/systray 没有图标点击事件
func (d *lanternDriver) OnGesture(func(Gesture)) bool { return false }
