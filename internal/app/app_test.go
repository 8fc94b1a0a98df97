package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/config"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/objectstore"
	"github.com/dmitrijs2005/invkeeper/internal/records"
	"github.com/dmitrijs2005/invkeeper/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	dir := t.TempDir()
	cfg.RecordBackend = config.RecordsMemory
	cfg.SQLitePath = filepath.Join(dir, "inv.db")
	cfg.LocalObjectDir = filepath.Join(dir, "objects")
	cfg.ScratchDir = filepath.Join(dir, "scratch")
	return cfg
}

func TestBuild_MemoryAndLocal(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer

	c, err := Build(context.Background(), cfg, &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.IsType(t, &records.MemoryStore{}, c.Records)
	assert.IsType(t, &objectstore.LocalStore{}, c.Objects)
	assert.Equal(t, cfg.LocalObjectDir, c.ObjectsDir)
	assert.DirExists(t, cfg.ScratchDir)
	assert.Contains(t, logs.String(), "backends ready")
}

func TestBuild_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.RecordBackend = config.RecordsSQLite

	c, err := Build(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &records.SQLiteStore{}, c.Records)
	assert.FileExists(t, cfg.SQLitePath)
}

func TestBuild_BackendErrors(t *testing.T) {
	origPG, origS3 := openPostgres, newS3Store
	t.Cleanup(func() { openPostgres, newS3Store = origPG, origS3 })

	openPostgres = func(ctx context.Context, dsn string, logger logging.Logger) (*records.PostgresStore, error) {
		return nil, errors.New("connection refused")
	}
	newS3Store = func(ctx context.Context, o objectstore.S3Options) (*objectstore.S3Store, error) {
		assert.Equal(t, "inventory", o.Bucket)
		return nil, errors.New("bad endpoint")
	}

	cfg := testConfig(t)
	cfg.RecordBackend = config.RecordsPostgres
	_, err := Build(context.Background(), cfg, io.Discard)
	assert.ErrorContains(t, err, "db init error: connection refused")

	cfg = testConfig(t)
	cfg.ObjectBackend = config.ObjectsS3
	_, err = Build(context.Background(), cfg, io.Discard)
	assert.ErrorContains(t, err, "s3 init error: bad endpoint")

	cfg = testConfig(t)
	cfg.RecordBackend = "mongo"
	_, err = Build(context.Background(), cfg, io.Discard)
	assert.ErrorIs(t, err, common.ErrUnknownBackend)

	cfg = testConfig(t)
	cfg.ObjectBackend = "ftp"
	_, err = Build(context.Background(), cfg, io.Discard)
	assert.ErrorIs(t, err, common.ErrUnknownBackend)
}

func TestNewDeriver(t *testing.T) {
	cfg := testConfig(t)

	d, err := newDeriver(cfg, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, thumbnail.Chain{thumbnail.EmbeddedDeriver{}}, d)

	cfg.ThumbnailCommand = "usdrecord --imageWidth {size} {in} {out}"
	d, err = newDeriver(cfg, "/scratch")
	require.NoError(t, err)
	chain := d.(thumbnail.Chain)
	require.Len(t, chain, 2)
	cmd := chain[0].(*thumbnail.CommandDeriver)
	assert.Equal(t, "usdrecord", cmd.Program)
	assert.Equal(t, "/scratch", cmd.ScratchDir)

	cfg.ThumbnailCommand = "   "
	_, err = newDeriver(cfg, "/scratch")
	assert.Error(t, err)
}

func TestServer_RoutesAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.HTTPAddr = l.Addr().String()
	require.NoError(t, l.Close())

	c, err := Build(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	s := NewServer(c)

	ts := httptest.NewServer(s.srv.Handler)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	ts.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.HTTPAddr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
