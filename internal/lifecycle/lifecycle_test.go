package lifecycle

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkd-app/echo-flow/internal/tray"
)

type fakeWindow struct {
	visible bool
	focused bool
	calls   []string
	hideErr error
}

func (w *fakeWindow) Show() error {
	w.calls = append(w.calls, "show")
	w.visible = true
	return nil
}

func (w *fakeWindow) Hide() error {
	w.calls = append(w.calls, "hide")
	if w.hideErr != nil {
		return w.hideErr
	}
	w.visible = false
	w.focused = false
	return nil
}

func (w *fakeWindow) Focus() error {
	w.calls = append(w.calls, "focus")
	w.focused = true
	return nil
}

type fakeLocator struct {
	windows map[string]*fakeWindow
	lookups int
}

func (l *fakeLocator) GetWindow(name string) (Window, bool) {
	l.lookups++
	w, ok := l.windows[name]
	if !ok {
		return nil, false
	}
	return w, true
}

type fakeExiter struct {
	mu    sync.Mutex
	codes []int
}

func (e *fakeExiter) Exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func newTestController(withWindow bool) (*Controller, *fakeWindow, *fakeLocator, *fakeExiter) {
	w := &fakeWindow{}
	loc := &fakeLocator{windows: map[string]*fakeWindow{}}
	if withWindow {
		loc.windows[MainWindow] = w
	}
	exit := &fakeExiter{}
	return New(Context{Windows: loc, Process: exit}), w, loc, exit
}

func TestShowIsIdempotent(t *testing.T) {
	c, w, _, _ := newTestController(true)

	c.OnMenuEvent(tray.MenuShow)
	assert.True(t, w.visible)
	assert.True(t, w.focused)

	c.OnMenuEvent(tray.MenuShow)
	assert.True(t, w.visible)
	assert.True(t, w.focused)
	assert.Equal(t, []string{"show", "focus", "show", "focus"}, w.calls)
}

func TestHideWithoutMainWindowIsNoop(t *testing.T) {
	c, w, loc, exit := newTestController(false)

	assert.NotPanics(t, func() {
		c.OnMenuEvent(tray.MenuHide)
		c.OnMenuEvent(tray.MenuShow)
	})
	assert.Empty(t, w.calls)
	assert.Equal(t, 2, loc.lookups, "window is looked up on every event")
	assert.Empty(t, exit.codes)
}

func TestHideThenShow(t *testing.T) {
	var visibility []bool
	w := &fakeWindow{}
	c := New(Context{
		Windows: &fakeLocator{windows: map[string]*fakeWindow{MainWindow: w}},
		Process: &fakeExiter{},
	}, WithVisibilityHook(func(v bool) { visibility = append(visibility, v) }))

	c.OnMenuEvent(tray.MenuShow)
	c.OnMenuEvent(tray.MenuHide)
	assert.False(t, w.visible)

	c.OnMenuEvent(tray.MenuShow)
	assert.True(t, w.visible)
	assert.Equal(t, []bool{true, false, true}, visibility)
}

func TestHideErrorDoesNotReportVisibility(t *testing.T) {
	var visibility []bool
	w := &fakeWindow{visible: true, hideErr: errors.New("no ctx")}
	c := New(Context{
		Windows: &fakeLocator{windows: map[string]*fakeWindow{MainWindow: w}},
	}, WithVisibilityHook(func(v bool) { visibility = append(visibility, v) }))

	c.Hide()
	assert.True(t, w.visible)
	assert.Empty(t, visibility)
}

func TestQuitExitsWithZero(t *testing.T) {
	// 有无窗口都一样
	for _, withWindow := range []bool{true, false} {
		c, _, _, exit := newTestController(withWindow)
		c.OnMenuEvent(tray.MenuQuit)
		assert.Equal(t, []int{0}, exit.codes)
		assert.True(t, c.Quitting())
	}
}

func TestLeftClickEquivalentToShow(t *testing.T) {
	byMenu, wMenu, _, _ := newTestController(true)
	byClick, wClick, _, _ := newTestController(true)

	byMenu.OnMenuEvent(tray.MenuShow)
	byClick.OnTrayIconEvent(tray.Gesture{Kind: tray.Click, Button: tray.ButtonLeft})

	assert.Equal(t, wMenu.calls, wClick.calls)
	assert.Equal(t, wMenu.visible, wClick.visible)
	assert.Equal(t, wMenu.focused, wClick.focused)
}

func TestOtherGesturesAndUnknownIDsHaveNoEffect(t *testing.T) {
	c, w, _, exit := newTestController(true)

	c.OnTrayIconEvent(tray.Gesture{Kind: tray.Click, Button: tray.ButtonRight})
	c.OnTrayIconEvent(tray.Gesture{Kind: tray.Click, Button: tray.ButtonMiddle})
	c.OnTrayIconEvent(tray.Gesture{Kind: tray.DoubleClick, Button: tray.ButtonLeft})
	c.OnMenuEvent("settings")
	c.OnMenuEvent("")

	assert.Empty(t, w.calls)
	assert.Empty(t, exit.codes)
}

func TestQuitIsTerminal(t *testing.T) {
	c, w, _, exit := newTestController(true)

	c.OnMenuEvent(tray.MenuQuit)
	c.OnMenuEvent(tray.MenuShow)
	c.OnMenuEvent(tray.MenuHide)
	c.OnTrayIconEvent(tray.Gesture{Kind: tray.Click, Button: tray.ButtonLeft})
	c.OnMenuEvent(tray.MenuQuit)
	c.Quit()

	assert.Empty(t, w.calls)
	assert.Equal(t, []int{0}, exit.codes, "exit must be invoked exactly once")
}

func TestConcurrentQuitExitsOnce(t *testing.T) {
	c, _, _, exit := newTestController(false)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Quit()
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0}, exit.codes)
}

func TestNilCollaborators(t *testing.T) {
	c := New(Context{})
	assert.NotPanics(t, func() {
		c.OnMenuEvent(tray.MenuShow)
		c.OnMenuEvent(tray.MenuHide)
		c.OnMenuEvent(tray.MenuQuit)
	})
	assert.True(t, c.Quitting())
}
