// Package inventory holds the item form and the service that saves items
// and attaches ingested assets to them.
package inventory

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/dmitrijs2005/invkeeper/internal/pipeline"
	"github.com/dustin/go-humanize"
)

// LoadingState is what the form is busy with.
type LoadingState int

const (
	LoadingNone LoadingState = iota
	LoadingSaving
	LoadingUploadingAsset
	LoadingUploadingThumbnail
)

func (l LoadingState) String() string {
	switch l {
	case LoadingSaving:
		return "saving"
	case LoadingUploadingAsset:
		return "uploading asset"
	case LoadingUploadingThumbnail:
		return "uploading thumbnail"
	default:
		return "none"
	}
}

// Ingester starts asset ingests; *pipeline.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, itemID, path string, scoped bool) (*pipeline.Session, error)
}

// Form is the editable state of one item.
type Form struct {
	ID           string
	Name         string
	Quantity     int
	AssetURL     string
	ThumbnailURL string

	Loading  LoadingState
	Progress *models.Progress
	Error    string

	editing *models.Item
}

// NewForm starts a form for a new item with a fresh id.
func NewForm() *Form {
	return &Form{ID: models.NewItemID()}
}

// EditForm starts a form prefilled from item.
func EditForm(item models.Item) *Form {
	f := &Form{
		ID:       item.ID,
		Name:     item.Name,
		Quantity: item.Quantity,
		editing:  &item,
	}
	if item.AssetLink != nil {
		f.AssetURL = *item.AssetLink
	}
	if item.ThumbnailLink != nil {
		f.ThumbnailURL = *item.ThumbnailLink
	}
	return f
}

func (f *Form) Title() string {
	if f.editing != nil {
		return "Edit Item"
	}
	return "Add Item"
}

// Item builds the document to persist. Server timestamps are never set.
func (f *Form) Item() models.Item {
	var item models.Item
	if f.editing != nil {
		item = *f.editing
	}
	item.ID = f.ID
	item.Name = f.Name
	item.Quantity = f.Quantity
	item.AssetLink = models.StringPtr(f.AssetURL)
	item.ThumbnailLink = models.StringPtr(f.ThumbnailURL)
	item.CreatedAt = nil
	item.UpdatedAt = nil
	return item
}

// Ingest uploads the asset at path for this item. On success the asset link
// is replaced and the thumbnail link too when one was produced. On failure
// the links are left untouched and Error holds the message. onEvent, when
// set, sees every pipeline event in order.
func (f *Form) Ingest(ctx context.Context, ing Ingester, path string, scoped bool, onEvent func(models.IngestEvent)) (models.IngestResult, error) {
	f.Error = ""
	s, err := ing.Ingest(ctx, f.ID, path, scoped)
	if err != nil {
		f.Error = err.Error()
		return models.IngestResult{}, err
	}

	defer func() {
		f.Loading = LoadingNone
		f.Progress = nil
	}()

	for ev := range s.Events() {
		switch ev.Stage {
		case models.StageUploadingPrimary:
			f.Loading = LoadingUploadingAsset
		case models.StageUploadingThumbnail:
			f.Loading = LoadingUploadingThumbnail
		}
		if ev.Progress != nil {
			p := *ev.Progress
			f.Progress = &p
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	res, err := s.Result()
	if err != nil {
		f.Error = err.Error()
		return models.IngestResult{}, err
	}
	f.AssetURL = res.AssetRef
	if res.HasThumbnail() {
		f.ThumbnailURL = res.ThumbnailRef
	}
	return res, nil
}

// ProgressLabel renders an upload progress line such as
// "Uploading asset 25 % (2.5 MB / 10 MB)".
func ProgressLabel(stage models.Stage, p models.Progress) string {
	what := "asset"
	if stage == models.StageUploadingThumbnail {
		what = "thumbnail"
	}
	return fmt.Sprintf("Uploading %s %d %% (%s / %s)", what, int(p.FractionCompleted*100),
		humanize.Bytes(uint64(p.BytesCompleted)), humanize.Bytes(uint64(p.BytesTotal)))
}
