package inject

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// 单个字符调用 wtype 的超时时间
const wtypeTimeout = 2 * time.Second

// wtypeBackend 通过 wtype 命令在 Wayland 合成器中输入字符
type wtypeBackend struct {
	path string
}

func wtypeFactory(path string) BackendFactory {
	return func() (Backend, error) {
		resolved, err := resolveWtype(path)
		if err != nil {
			return nil, err
		}
		return &wtypeBackend{path: resolved}, nil
	}
}

func resolveWtype(path string) (string, error) {
	if path == "" {
		path = "wtype"
	}
	resolved, err := lookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: wtype not found: %v (install wtype package)", ErrBackendUnavailable, err)
	}
	return resolved, nil
}

func (b *wtypeBackend) TypeRune(r rune) error {
	ctx, cancel := context.WithTimeout(context.Background(), wtypeTimeout)
	defer cancel()

	// "--" 之后的参数按原样输入，避免 "-" 开头的字符被当作选项
	cmd := exec.CommandContext(ctx, b.path, "--", string(r))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wtype failed: %w: %s", err, out)
	}
	return nil
}
