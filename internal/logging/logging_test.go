package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSimpleHandler_SplitsConsoleByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(NewSimpleHandler(level, &stdout, &stderr, nil))

	logger.Info("Tray initialized", "items", 3)
	logger.Error("Could not load default window icon for tray")

	if !strings.Contains(stdout.String(), "[INFO] Tray initialized items=3") {
		t.Fatalf("stdout missing info line: %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "ERROR") {
		t.Fatalf("error line leaked to stdout: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "[ERROR] Could not load default window icon for tray") {
		t.Fatalf("stderr missing error line: %q", stderr.String())
	}
}

func TestSimpleHandler_LevelIsHotReloadable(t *testing.T) {
	var stdout bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	logger := slog.New(NewSimpleHandler(level, &stdout, &stdout, nil))

	logger.Debug("hidden")
	level.Set(slog.LevelDebug)
	logger.Debug("visible")

	out := stdout.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written below level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("debug line missing after level change: %q", out)
	}
}

func TestSimpleHandler_WithAttrsAndGroup(t *testing.T) {
	var stdout bytes.Buffer
	logger := slog.New(NewSimpleHandler(nil, &stdout, &stdout, nil))

	logger.With("component", "tray").WithGroup("menu").Info("clicked", "id", "show")

	out := stdout.String()
	if !strings.Contains(out, " component=tray") || strings.Contains(out, "menu.component") {
		t.Fatalf("base attr should keep its ungrouped key: %q", out)
	}
	if !strings.Contains(out, "menu.id=show") {
		t.Fatalf("missing grouped attr: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBroadcastHandler_RecentKeepsNewest(t *testing.T) {
	var sink bytes.Buffer
	h := NewBroadcastHandler(NewSimpleHandler(nil, &sink, &sink, nil), 3)
	logger := slog.New(h)

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		logger.Info(msg)
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	for i, want := range []string{"c", "d", "e"} {
		if recent[i].Message != want {
			t.Fatalf("recent[%d] = %q, want %q", i, recent[i].Message, want)
		}
	}

	last := h.Recent(1)
	if len(last) != 1 || last[0].Message != "e" {
		t.Fatalf("Recent(1) = %+v, want [e]", last)
	}
}

func TestEventEmitter_FlushesBatches(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
		total int
	)
	e := NewEventEmitter()
	e.flushInterval = 10 * time.Millisecond
	e.emit = func(_ context.Context, name string, data ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name)
		if batch, ok := data[0].([]LogEntry); ok {
			total += len(batch)
		}
	}

	// 未启动时丢弃
	e.Emit(LogEntry{Message: "dropped"})

	e.Start(context.Background())
	for i := 0; i < 25; i++ {
		e.Emit(LogEntry{Level: "INFO", Message: "m"})
	}
	e.Stop()

	mu.Lock()
	defer mu.Unlock()
	if total != 25 {
		t.Fatalf("emitted %d entries, want 25", total)
	}
	for _, n := range names {
		if n != EventLogBatch {
			t.Fatalf("unexpected event name %q", n)
		}
	}
	if e.IsEnabled() {
		t.Fatal("emitter should be disabled after Stop")
	}
	if e.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", e.Dropped())
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter()
	block := make(chan struct{})
	e.emit = func(context.Context, string, ...interface{}) { <-block }
	e.batchSize = 1 // 队列容量 200

	e.Start(context.Background())
	// 发送协程最多取走一条后阻塞在 emit
	for i := 0; i < 300; i++ {
		e.Emit(LogEntry{Level: "INFO", Message: "m"})
	}
	if e.Dropped() < 99 {
		t.Fatalf("dropped = %d, want >= 99", e.Dropped())
	}
	close(block)
	e.Stop()
}
