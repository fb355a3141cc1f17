package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"assetkeeper/internal/ak"
)

// LockSuffix is appended to the store root to name its lock file.
const LockSuffix = ".lock"

// ErrLocked reports that another process held the lock until the wait ended.
var ErrLocked = errors.New("lock held by another process")

// AcquireLock takes the lock file at path, creating it with O_EXCL so only
// one process can hold it. While the file exists it retries every
// retryInterval until ctx is done. The file records the holder's pid and
// start time. The returned func removes it.
//
// A process that dies while holding the lock leaves the file behind; it
// must then be removed by hand.
func AcquireLock(ctx context.Context, path string, retryInterval time.Duration) (func() error, error) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		lf, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(lf, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			_ = lf.Close()

			unlock := func() error {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("releasing lock %s: %w", path, err)
				}
				return nil
			}
			return unlock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return nil, &ak.Error{
				Kind: ak.KindConflict,
				Msg:  fmt.Sprintf("%s is held by %s; remove it if that process is gone", path, lockHolder(path)),
				Err:  fmt.Errorf("%w: %w", ErrLocked, ctx.Err()),
			}
		case <-ticker.C:
		}
	}
}

// lockHolder describes who holds the lock at path, for error messages.
func lockHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "an unknown process"
	}
	pid, since, ok := strings.Cut(strings.TrimSpace(string(data)), " ")
	if !ok {
		return "an unknown process"
	}
	return fmt.Sprintf("pid %s since %s", pid, since)
}
