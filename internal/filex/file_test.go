package filex

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAsset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.usdz")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestEnsureDir_CreatesAndIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	first, err := EnsureDir(dir)
	require.NoError(t, err)
	second, err := EnsureDir(dir)
	require.NoError(t, err)
	require.Equal(t, first, second)

	fi, err := os.Stat(first)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureDir_FailsOnFile(t *testing.T) {
	path := writeAsset(t, "x")
	_, err := EnsureDir(path)
	require.Error(t, err)
}

func TestReadScoped_Unscoped(t *testing.T) {
	path := writeAsset(t, "payload")
	data, err := ReadScoped(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestReadScoped_ReleasesLock(t *testing.T) {
	path := writeAsset(t, "payload")
	data, err := ReadScoped(context.Background(), path, true)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	other := flock.New(path)
	ok, err := other.TryLock()
	require.NoError(t, err)
	assert.True(t, ok, "scoped read must release its lock")
	require.NoError(t, other.Unlock())
}

func TestReadScoped_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.usdz")
	for _, scoped := range []bool{false, true} {
		_, err := ReadScoped(context.Background(), missing, scoped)
		assert.ErrorIs(t, err, common.ErrReadAsset)
	}
	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err), "a failed scoped read must not create the file")
}

func TestReadScoped_ContendedLockIsAccessDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock semantics differ on windows")
	}
	path := writeAsset(t, "payload")

	holder := flock.New(path)
	require.NoError(t, holder.Lock())
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := ReadScoped(ctx, path, true)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestWriteScratchAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	path, err := WriteScratch(dir, "temp_1.usdz", []byte("abc"))
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, RemoveQuietly(path))
	require.NoError(t, RemoveQuietly(path), "second remove is a no-op")
	require.NoError(t, RemoveQuietly(""))
}
