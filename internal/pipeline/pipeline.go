// Package pipeline ingests a local 3D asset for an inventory item: it uploads
// the primary asset, derives and uploads a best-effort thumbnail, and yields
// the remote references once every stage has run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/filex"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/dmitrijs2005/invkeeper/internal/objectstore"
	"github.com/dmitrijs2005/invkeeper/internal/thumbnail"
)

// Options tunes thumbnail derivation and scratch handling.
type Options struct {
	ScratchDir       string
	ThumbnailSize    int
	ThumbnailQuality int
}

func (o Options) withDefaults() Options {
	if o.ScratchDir == "" {
		o.ScratchDir = filepath.Join(os.TempDir(), "invkeeper")
	}
	if o.ThumbnailSize <= 0 {
		o.ThumbnailSize = common.DefaultThumbnailSize
	}
	if o.ThumbnailQuality <= 0 {
		o.ThumbnailQuality = common.DefaultThumbnailQuality
	}
	return o
}

// Test seams.
var (
	readAsset    = filex.ReadScoped
	writeScratch = filex.WriteScratch
	removeFile   = filex.RemoveQuietly
	encodeJPEG   = thumbnail.EncodeJPEG
)

// Pipeline runs ingests. Ingests for different items run independently; a
// second ingest for an item that is still in flight is rejected.
type Pipeline struct {
	objects objectstore.Store
	deriver thumbnail.Deriver
	logger  logging.Logger
	opts    Options

	mu     sync.Mutex
	active map[string]*Session
}

func New(objects objectstore.Store, deriver thumbnail.Deriver, logger logging.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		objects: objects,
		deriver: deriver,
		logger:  logger,
		opts:    opts.withDefaults(),
		active:  make(map[string]*Session),
	}
}

// Ingest starts ingesting the file at path for itemID and returns its
// session. When scoped is set, access to the file is held only for the
// duration of the read.
func (p *Pipeline) Ingest(ctx context.Context, itemID, path string, scoped bool) (*Session, error) {
	if itemID == "" {
		return nil, errors.New("item id is required")
	}

	p.mu.Lock()
	if _, busy := p.active[itemID]; busy {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", common.ErrIngestInProgress, itemID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := newSession(itemID, cancel)
	p.active[itemID] = s
	p.mu.Unlock()

	go p.run(runCtx, s, path, scoped)
	return s, nil
}

// Active reports whether an ingest for itemID is in flight.
func (p *Pipeline) Active(itemID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[itemID]
	return ok
}

func (p *Pipeline) release(itemID string) {
	p.mu.Lock()
	delete(p.active, itemID)
	p.mu.Unlock()
}

func (p *Pipeline) run(ctx context.Context, s *Session, path string, scoped bool) {
	log := p.logger.With("item_id", s.itemID)

	res, err := p.ingest(ctx, s, log, path, scoped)
	p.release(s.itemID)

	if err != nil {
		log.Error(ctx, "ingest failed", "error", err, "cause", errors.Unwrap(err))
		s.failWith(err)
		return
	}
	log.Info(ctx, "ingest finished", "asset", res.AssetRef, "thumbnail", res.ThumbnailRef)
	s.succeed(res)
}

func (p *Pipeline) ingest(ctx context.Context, s *Session, log logging.Logger, path string, scoped bool) (models.IngestResult, error) {
	data, err := readAsset(ctx, path, scoped)
	if err != nil {
		if errors.Is(err, common.ErrAccessDenied) {
			return models.IngestResult{}, fail("Could not get access to the selected file.", err)
		}
		return models.IngestResult{}, fail("Could not read the selected file.", err)
	}

	sampler := logging.NewProgressSampler(10)

	assetKey := common.AssetKey(s.itemID)
	assetRef, err := p.upload(ctx, s, log, sampler, models.StageUploadingPrimary, assetKey, data, common.AssetContentType)
	if err != nil {
		return models.IngestResult{}, err
	}

	thumbRef := p.thumbnail(ctx, s, log, sampler, data)

	return models.IngestResult{AssetRef: assetRef, ThumbnailRef: thumbRef}, nil
}

// upload runs one uploading stage and resolves the retrieval URL of key.
func (p *Pipeline) upload(ctx context.Context, s *Session, log logging.Logger, sampler *logging.ProgressSampler,
	stage models.Stage, key string, data []byte, contentType string) (string, error) {

	s.enter(stage, int64(len(data)))
	log.Info(ctx, "upload started", "stage", stage.String(), "key", key, "bytes", len(data))

	onProgress := func(completed, total int64) {
		pr, ok := s.report(completed, total)
		if ok && sampler.ShouldLog(stage.String(), pr.FractionCompleted) {
			log.Debug(ctx, "upload progress", "stage", stage.String(), "fraction", pr.FractionCompleted,
				"bytes_completed", pr.BytesCompleted, "bytes_total", pr.BytesTotal)
		}
	}

	if err := p.objects.Put(ctx, key, data, contentType, onProgress); err != nil {
		return "", fail("Could not upload the file.", fmt.Errorf("%w: %w", common.ErrUpload, err))
	}

	ref, err := p.objects.ResolveURL(ctx, key)
	if err != nil {
		return "", fail("Could not get a link to the uploaded file.", fmt.Errorf("%w: %w", common.ErrResolveURL, err))
	}
	return ref, nil
}

// thumbnail derives, encodes and uploads a preview. Every failure is logged
// and absorbed; the empty string means no thumbnail.
func (p *Pipeline) thumbnail(ctx context.Context, s *Session, log logging.Logger, sampler *logging.ProgressSampler, data []byte) string {
	s.enter(models.StageDerivingThumbnail, 0)

	jpeg, err := p.derive(ctx, s.itemID, data)
	if err != nil {
		log.Warn(ctx, "thumbnail skipped", "error", err)
		return ""
	}

	ref, err := p.upload(ctx, s, log, sampler, models.StageUploadingThumbnail,
		common.ThumbnailKey(s.itemID), jpeg, common.ThumbnailContentType)
	if err != nil {
		log.Warn(ctx, "thumbnail upload skipped", "error", err, "cause", errors.Unwrap(err))
		return ""
	}
	return ref
}

func (p *Pipeline) derive(ctx context.Context, itemID string, data []byte) ([]byte, error) {
	if p.deriver == nil {
		return nil, common.ErrNoPreview
	}

	scratch, err := writeScratch(p.opts.ScratchDir, common.AssetKey(itemID), data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := removeFile(scratch); err != nil {
			p.logger.Warn(ctx, "scratch cleanup failed", "path", scratch, "error", err)
		}
	}()

	img, err := p.deriver.Derive(ctx, scratch, p.opts.ThumbnailSize)
	if err != nil {
		return nil, fmt.Errorf("derive preview: %w", err)
	}
	return encodeJPEG(img, p.opts.ThumbnailQuality)
}
