//go:build stub

package tray

import "sync"

// noopDriver 无托盘环境（CI、无桌面会话）使用
type noopDriver struct {
	quitCh chan struct{}
	once   sync.Once
}

func newDriver() driver {
	return &noopDriver{quitCh: make(chan struct{})}
}

func (d *noopDriver) Run(onReady, onExit func()) {
	onReady()
	<-d.quitCh
	onExit()
}

func (d *noopDriver) Quit() {
	d.once.Do(func() { close(d.quitCh) })
}

func (d *noopDriver) SetIcon([]byte)               {}
func (d *noopDriver) SetTooltip(string)            {}
func (d *noopDriver) AddMenuItem(MenuItem, func()) {}
func (d *noopDriver) OnGesture(func(Gesture)) bool { return true }
