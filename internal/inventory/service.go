package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/dmitrijs2005/invkeeper/internal/objectstore"
	"github.com/dmitrijs2005/invkeeper/internal/records"
)

// Service persists items and attaches ingested assets to them.
type Service struct {
	records records.Store
	objects objectstore.Store
	ingest  Ingester
	logger  logging.Logger
}

func NewService(rs records.Store, objects objectstore.Store, ing Ingester, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{records: rs, objects: objects, ingest: ing, logger: logger}
}

// Save validates the form and overwrites the stored item. Write failures are
// reported as common.ErrSave; validation failures as the validation error.
func (s *Service) Save(ctx context.Context, f *Form) (*models.Item, error) {
	f.Loading = LoadingSaving
	defer func() { f.Loading = LoadingNone }()

	item := f.Item()
	if err := item.Validate(); err != nil {
		f.Error = err.Error()
		return nil, err
	}
	if item.HasDanglingThumbnail() {
		s.logger.Warn(ctx, "saving thumbnail without asset", "item_id", item.ID)
	}

	data, err := item.Encode()
	if err != nil {
		f.Error = err.Error()
		return nil, fmt.Errorf("%w: %v", common.ErrSave, err)
	}
	doc, err := s.records.Set(ctx, common.ItemsCollection, item.ID, data)
	if err != nil {
		f.Error = err.Error()
		return nil, fmt.Errorf("%w: %w", common.ErrSave, err)
	}

	f.Error = ""
	item.CreatedAt = &doc.CreatedAt
	item.UpdatedAt = &doc.UpdatedAt
	f.editing = &item
	return &item, nil
}

// Get loads an item by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Item, error) {
	doc, err := s.records.Get(ctx, common.ItemsCollection, id)
	if err != nil {
		return nil, err
	}
	item, err := models.DecodeItem(doc.Data)
	if err != nil {
		return nil, err
	}
	item.CreatedAt = &doc.CreatedAt
	item.UpdatedAt = &doc.UpdatedAt
	return item, nil
}

// Delete removes an item. Its blobs are removed best-effort afterwards.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, common.ErrDecode) {
		return err
	}
	if err := s.records.Delete(ctx, common.ItemsCollection, id); err != nil {
		return err
	}

	if item == nil || s.objects == nil {
		return nil
	}
	if item.AssetLink != nil {
		if err := s.objects.Delete(ctx, common.AssetKey(id)); err != nil {
			s.logger.Warn(ctx, "asset cleanup failed", "item_id", id, "error", err)
		}
	}
	if item.ThumbnailLink != nil {
		if err := s.objects.Delete(ctx, common.ThumbnailKey(id)); err != nil {
			s.logger.Warn(ctx, "thumbnail cleanup failed", "item_id", id, "error", err)
		}
	}
	return nil
}

// AttachAsset ingests the file at path for an existing item and saves the
// resulting links onto it. An ingest failure leaves the item unchanged; a
// failure to save afterwards is reported as common.ErrSave.
func (s *Service) AttachAsset(ctx context.Context, id, path string, scoped bool, onEvent func(models.IngestEvent)) (*models.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	f := EditForm(*item)
	if _, err := f.Ingest(ctx, s.ingest, path, scoped, onEvent); err != nil {
		return nil, err
	}
	return s.Save(ctx, f)
}

// Ingest runs an ingest for the form without saving it.
func (s *Service) Ingest(ctx context.Context, f *Form, path string, scoped bool, onEvent func(models.IngestEvent)) (models.IngestResult, error) {
	return f.Ingest(ctx, s.ingest, path, scoped, onEvent)
}
