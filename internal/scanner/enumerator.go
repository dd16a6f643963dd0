package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
)

const DefaultDeviceGlob = "/dev/video*"

// GlobEnumerator lists V4L capture devices matching a glob, in name order.
type GlobEnumerator struct {
	Pattern string

	// FlashDevices names devices (path or base name) that have a torch.
	FlashDevices []string

	// SysfsRoot holds per-device "name" files; defaults to
	// /sys/class/video4linux.
	SysfsRoot string
}

func (e *GlobEnumerator) Enumerate(ctx context.Context) ([]scan.CameraDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pattern := e.Pattern
	if pattern == "" {
		pattern = DefaultDeviceGlob
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	flash := make(map[string]struct{}, len(e.FlashDevices))
	for _, d := range e.FlashDevices {
		flash[strings.TrimSpace(d)] = struct{}{}
	}

	out := make([]scan.CameraDescriptor, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		_, byPath := flash[p]
		_, byBase := flash[base]
		out = append(out, scan.CameraDescriptor{
			ID:       p,
			Label:    e.label(base),
			HasFlash: byPath || byBase,
		})
	}
	return out, nil
}

func (e *GlobEnumerator) label(base string) string {
	root := e.SysfsRoot
	if root == "" {
		root = "/sys/class/video4linux"
	}
	b, err := os.ReadFile(filepath.Join(root, base, "name"))
	if err != nil {
		return base
	}
	if name := strings.TrimSpace(string(b)); name != "" {
		return name
	}
	return base
}
