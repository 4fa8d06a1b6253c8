package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestAppDirs_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	want := filepath.Join(base, "echo-flow")
	if got := GetAppDataDir(); got != want {
		t.Fatalf("GetAppDataDir() = %q, want %q", got, want)
	}
	if got := GetDataDir(); got != filepath.Join(want, "data") {
		t.Fatalf("GetDataDir() = %q", got)
	}
	if got := GetLogDir(); got != filepath.Join(want, "logs") {
		t.Fatalf("GetLogDir() = %q", got)
	}

	if err := EnsureAppDirs(); err != nil {
		t.Fatalf("EnsureAppDirs() error = %v", err)
	}
	for _, dir := range []string{want, GetDataDir(), GetLogDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created: %v", dir, err)
		}
	}
}
