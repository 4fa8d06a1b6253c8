package tray

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDriver struct {
	mu      sync.Mutex
	icon    []byte
	tooltip string
	items   []MenuItem
	clicks  map[string]func()
	gesture func(Gesture)
	noClick bool
	quitCh  chan struct{}
	once    sync.Once
	exited  chan struct{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		clicks: map[string]func(){},
		quitCh: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (d *fakeDriver) Run(onReady, onExit func()) {
	onReady()
	<-d.quitCh
	onExit()
	close(d.exited)
}

func (d *fakeDriver) Quit() { d.once.Do(func() { close(d.quitCh) }) }

func (d *fakeDriver) SetIcon(icon []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.icon = icon
}

func (d *fakeDriver) SetTooltip(tooltip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tooltip = tooltip
}

func (d *fakeDriver) AddMenuItem(item MenuItem, onClick func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, item)
	d.clicks[item.ID] = onClick
}

func (d *fakeDriver) OnGesture(fn func(Gesture)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.noClick {
		return false
	}
	d.gesture = fn
	return true
}

func (d *fakeDriver) click(id string) {
	d.mu.Lock()
	fn := d.clicks[id]
	d.mu.Unlock()
	fn()
}

func (d *fakeDriver) tap(g Gesture) {
	d.mu.Lock()
	fn := d.gesture
	d.mu.Unlock()
	fn(g)
}

// useFakeDriver 替换平台实现，返回每次 Start 创建的 driver
func useFakeDriver(t *testing.T) *[]*fakeDriver {
	t.Helper()
	var created []*fakeDriver
	orig := driverFactory
	driverFactory = func() driver {
		d := newFakeDriver()
		created = append(created, d)
		return d
	}
	t.Cleanup(func() { driverFactory = orig })
	return &created
}

func startReady(t *testing.T, ctx context.Context, opts Options) *trayController {
	t.Helper()
	ctrl, err := Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c := ctrl.(*trayController)
	t.Cleanup(c.Stop)
	select {
	case <-c.ready:
	case <-time.After(time.Second):
		t.Fatal("tray never became ready")
	}
	return c
}

var testIcon = []byte{0x89, 'P', 'N', 'G'}

func TestStart_WithoutIconIsSkipped(t *testing.T) {
	created := useFakeDriver(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ctrl, err := Start(context.Background(), Options{Logger: logger})
	if !errors.Is(err, ErrNoIcon) {
		t.Fatalf("Start() error = %v, want ErrNoIcon", err)
	}
	if ctrl != nil {
		t.Fatal("controller should be nil when no icon")
	}
	if len(*created) != 0 {
		t.Fatalf("driver created %d times, want 0", len(*created))
	}
	out := logs.String()
	if !strings.Contains(out, "Initializing Tray...") || !strings.Contains(out, "Could not load default window icon for tray!") {
		t.Fatalf("missing diagnostics: %q", out)
	}
	if running.Load() {
		t.Fatal("running flag set without a tray")
	}
}

func TestStart_BuildsFixedMenu(t *testing.T) {
	created := useFakeDriver(t)

	startReady(t, context.Background(), Options{Icon: testIcon, Tooltip: "Echo Flow"})

	d := (*created)[0]
	d.mu.Lock()
	defer d.mu.Unlock()

	want := []string{MenuShow, MenuHide, MenuQuit}
	if len(d.items) != len(want) {
		t.Fatalf("menu has %d items, want %d", len(d.items), len(want))
	}
	for i, id := range want {
		if d.items[i].ID != id {
			t.Fatalf("items[%d].ID = %q, want %q", i, d.items[i].ID, id)
		}
	}
	if d.items[0].Label != "Show" || d.items[1].Label != "Hide" || d.items[2].Label != "Quit" {
		t.Fatalf("unexpected labels: %+v", d.items)
	}
	if !bytes.Equal(d.icon, testIcon) {
		t.Fatal("icon not applied")
	}
	if d.tooltip != "Echo Flow" {
		t.Fatalf("tooltip = %q", d.tooltip)
	}
}

func TestStart_OnlyOneTrayPerProcess(t *testing.T) {
	useFakeDriver(t)

	first := startReady(t, context.Background(), Options{Icon: testIcon})

	if _, err := Start(context.Background(), Options{Icon: testIcon}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	first.Stop()
	startReady(t, context.Background(), Options{Icon: testIcon})
}

func TestController_DispatchesEvents(t *testing.T) {
	created := useFakeDriver(t)

	var (
		mu       sync.Mutex
		menus    []string
		gestures []Gesture
	)
	c := startReady(t, context.Background(), Options{
		Icon: testIcon,
		OnMenuEvent: func(id string) {
			mu.Lock()
			defer mu.Unlock()
			menus = append(menus, id)
		},
		OnIconEvent: func(g Gesture) {
			mu.Lock()
			defer mu.Unlock()
			gestures = append(gestures, g)
		},
	})
	d := (*created)[0]

	d.click(MenuHide)
	d.click(MenuShow)
	d.tap(Gesture{Kind: Click, Button: ButtonLeft})
	d.tap(Gesture{Kind: DoubleClick, Button: ButtonRight})

	c.Stop()
	d.click(MenuQuit)
	d.tap(Gesture{Kind: Click, Button: ButtonLeft})

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(menus, ",") != "hide,show" {
		t.Fatalf("menu events = %v, want [hide show]", menus)
	}
	if len(gestures) != 2 || !gestures[0].IsLeftClick() || gestures[1].IsLeftClick() {
		t.Fatalf("gestures = %v", gestures)
	}
}

func TestStart_StopsWhenContextDone(t *testing.T) {
	created := useFakeDriver(t)

	ctx, cancel := context.WithCancel(context.Background())
	startReady(t, ctx, Options{Icon: testIcon})
	cancel()

	select {
	case <-(*created)[0].exited:
	case <-time.After(time.Second):
		t.Fatal("tray did not exit after context cancel")
	}
}

func TestGestureString(t *testing.T) {
	cases := map[Gesture]string{
		{Kind: Click, Button: ButtonLeft}:       "left click",
		{Kind: DoubleClick, Button: ButtonLeft}: "left double-click",
		{Kind: Click, Button: ButtonRight}:      "right click",
		{Kind: Click, Button: ButtonMiddle}:     "middle click",
	}
	for g, want := range cases {
		if got := g.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", g, got, want)
		}
	}
}

func TestStart_WarnsWhenDriverHasNoIconClicks(t *testing.T) {
	orig := driverFactory
	driverFactory = func() driver {
		d := newFakeDriver()
		d.noClick = true
		return d
	}
	t.Cleanup(func() { driverFactory = orig })

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	startReady(t, context.Background(), Options{Icon: testIcon, Logger: logger})

	if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "不支持图标点击") {
		t.Fatalf("missing gesture warning: %q", out)
	}
}

func TestStart_NoWarningWhenDriverHasIconClicks(t *testing.T) {
	useFakeDriver(t)

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	startReady(t, context.Background(), Options{Icon: testIcon, Logger: logger})

	if out := logs.String(); strings.Contains(out, "不支持图标点击") {
		t.Fatalf("unexpected gesture warning: %q", out)
	}
}

// syncBuffer 托盘在自己的 goroutine 里写日志
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
