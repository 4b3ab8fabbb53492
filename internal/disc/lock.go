// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package disc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Locker hands out one exclusive file lock per drive.
type Locker struct {
	dir string
}

// NewLocker creates a Locker keeping its lock files in dir. Empty means os.TempDir.
func NewLocker(dir string) *Locker {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Locker{dir: dir}
}

// Path is the lock file of device. Symlinks are resolved first so every name
// of a drive maps to the same lock.
func (l *Locker) Path(device string) string {
	name := strings.Trim(strings.ReplaceAll(ResolveDevice(device), string(filepath.Separator), "-"), "-")
	if name == "" {
		name = "default"
	}
	return filepath.Join(l.dir, "cdripper-"+name+".lock")
}

// Acquire takes the lock of device without waiting. It fails with
// ErrDriveBusy if another session holds it.
func (l *Locker) Acquire(ctx context.Context, device string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	lock := flock.New(l.Path(device))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", device, ErrDriveBusy)
	}
	return lock.Unlock, nil
}
