package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// localChunk is the write granularity, and thus the progress granularity,
// of LocalStore.
const localChunk = 32 * 1024

// LocalStore keeps objects on the local disk. It stands in for the remote
// store in development and tests.
type LocalStore struct {
	baseDir   string
	publicURL string
}

// NewLocalStore creates baseDir if needed. When publicURL is empty, retrieval
// URLs use the file:// scheme.
func NewLocalStore(baseDir, publicURL string) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("invalid object dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &LocalStore{baseDir: abs, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Dir returns the absolute directory objects are written to.
func (s *LocalStore) Dir() string {
	return s.baseDir
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string, onProgress ProgressFunc) error {
	path, err := s.safeJoin(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	body := newProgressReader(data, onProgress)
	body.start()

	buf := make([]byte, localChunk)
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				cleanup()
				return fmt.Errorf("write object: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			cleanup()
			return fmt.Errorf("read payload: %w", rerr)
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ensure object dir: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename object: %w", err)
	}

	body.finish()
	return nil
}

func (s *LocalStore) ResolveURL(ctx context.Context, key string) (string, error) {
	path, err := s.safeJoin(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}
	if s.publicURL != "" {
		return s.publicURL + "/" + escapeKey(key), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.safeJoin(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// safeJoin resolves key relative to baseDir and rejects directory traversal.
func (s *LocalStore) safeJoin(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	abs, err := filepath.Abs(filepath.Join(s.baseDir, key))
	if err != nil {
		return "", fmt.Errorf("invalid key: %w", err)
	}
	if !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt: %q", key)
	}
	return abs, nil
}
