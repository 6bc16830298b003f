/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const LockFile = "run.lock"

// FileLock is a non-blocking exclusive flock on <dir>/run.lock. It serialises
// runs across processes sharing the state directory.
type FileLock struct {
	path string
}

func NewFileLock(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, LockFile)}
}

// TryLock returns ok=false when another holder has the lock. The returned
// release function must be called when ok is true.
func (l *FileLock) TryLock(_ context.Context) (bool, func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, nil, fmt.Errorf("lock: mkdir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, nil, fmt.Errorf("lock: open %s: %w", l.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("lock: flock %s: %w", l.path, err)
	}
	release := func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}
	return true, release, nil
}
