// Package app wires configuration into the record store, object store,
// ingest pipeline and item services shared by the server and the shell.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/invkeeper/internal/collection"
	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/config"
	"github.com/dmitrijs2005/invkeeper/internal/filex"
	"github.com/dmitrijs2005/invkeeper/internal/inventory"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/objectstore"
	"github.com/dmitrijs2005/invkeeper/internal/pipeline"
	"github.com/dmitrijs2005/invkeeper/internal/records"
	"github.com/dmitrijs2005/invkeeper/internal/thumbnail"
)

// Test seams for the networked backends.
var (
	openSQLite   = records.OpenSQLite
	openPostgres = records.OpenPostgres
	newS3Store   = objectstore.NewS3Store
)

// Components are the long-lived services built from a Config.
type Components struct {
	Config *config.Config
	Logger logging.Logger

	Records records.Store
	Objects objectstore.Store
	// ObjectsDir is the directory of the local object store, empty for S3.
	ObjectsDir string

	Pipeline   *pipeline.Pipeline
	Items      *inventory.Service
	Collection *collection.Sync
}

// Build opens the configured backends. Logs go to logOut.
func Build(ctx context.Context, cfg *config.Config, logOut io.Writer) (*Components, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)

	scratch, err := filex.EnsureDir(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}

	rs, err := openRecords(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	objects, objectsDir, err := openObjects(ctx, cfg)
	if err != nil {
		_ = rs.Close()
		return nil, err
	}

	deriver, err := newDeriver(cfg, scratch)
	if err != nil {
		_ = rs.Close()
		return nil, err
	}

	pipe := pipeline.New(objects, deriver, logger, pipeline.Options{
		ScratchDir:       scratch,
		ThumbnailSize:    cfg.ThumbnailSize,
		ThumbnailQuality: cfg.ThumbnailQuality,
	})

	logger.Info(ctx, "backends ready",
		"records", cfg.RecordBackend,
		"objects", cfg.ObjectBackend,
		"scratch_dir", scratch,
	)

	return &Components{
		Config:     cfg,
		Logger:     logger,
		Records:    rs,
		Objects:    objects,
		ObjectsDir: objectsDir,
		Pipeline:   pipe,
		Items:      inventory.NewService(rs, objects, pipe, logger),
		Collection: collection.New(rs, logger, cfg.CollectionLimit),
	}, nil
}

// Close stops live queries and closes the record store.
func (c *Components) Close() error {
	c.Collection.Close()
	return c.Records.Close()
}

func openRecords(ctx context.Context, cfg *config.Config, logger logging.Logger) (records.Store, error) {
	switch cfg.RecordBackend {
	case config.RecordsMemory:
		return records.NewMemoryStore(logger), nil
	case config.RecordsSQLite:
		s, err := openSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite init error: %w", err)
		}
		return s, nil
	case config.RecordsPostgres:
		s, err := openPostgres(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("records %q: %w", cfg.RecordBackend, common.ErrUnknownBackend)
	}
}

func openObjects(ctx context.Context, cfg *config.Config) (objectstore.Store, string, error) {
	switch cfg.ObjectBackend {
	case config.ObjectsLocal:
		s, err := objectstore.NewLocalStore(cfg.LocalObjectDir, cfg.LocalObjectURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	case config.ObjectsS3:
		s, err := newS3Store(ctx, objectstore.S3Options{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			PathStyle:    cfg.S3PathStyle,
			PublicURL:    cfg.S3PublicURL,
			URLExpiry:    cfg.S3URLExpiry,
		})
		if err != nil {
			return nil, "", fmt.Errorf("s3 init error: %w", err)
		}
		return s, "", nil
	default:
		return nil, "", fmt.Errorf("objects %q: %w", cfg.ObjectBackend, common.ErrUnknownBackend)
	}
}

// newDeriver tries the external renderer first, when configured, then the
// previews packaged inside the asset.
func newDeriver(cfg *config.Config, scratch string) (thumbnail.Deriver, error) {
	chain := thumbnail.Chain{}
	if cfg.ThumbnailCommand != "" {
		cmd, err := thumbnail.ParseCommand(cfg.ThumbnailCommand, scratch)
		if err != nil {
			return nil, fmt.Errorf("thumbnail command: %w", err)
		}
		chain = append(chain, cmd)
	}
	return append(chain, thumbnail.EmbeddedDeriver{}), nil
}
