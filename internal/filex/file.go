// Package filex contains local file helpers used by asset ingestion:
// scoped reads, scratch copies and directory setup.
package filex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a contended scoped read retries its lock.
const lockRetryDelay = 20 * time.Millisecond

// EnsureDir creates dir (and parents) if missing and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// ReadScoped reads the whole file at path into memory.
//
// When scoped is set, a shared lock on the file is acquired first and
// released as soon as the read returns, whether it succeeded or not. A lock
// that cannot be obtained before ctx ends yields common.ErrAccessDenied; any
// other failure yields common.ErrReadAsset.
func ReadScoped(ctx context.Context, path string, scoped bool) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrReadAsset, err)
	}
	if !scoped {
		return readFile(path)
	}

	lock := flock.New(path)
	ok, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", common.ErrAccessDenied, err)
	}
	defer func() { _ = lock.Unlock() }()

	return readFile(path)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrReadAsset, err)
	}
	return data, nil
}

// WriteScratch writes data to dir/name with owner-only permissions and
// returns the full path.
func WriteScratch(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch %s: %w", path, err)
	}
	return path, nil
}

// RemoveQuietly deletes path, ignoring a missing file. Callers treat the
// returned error as advisory.
func RemoveQuietly(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
