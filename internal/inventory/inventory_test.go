package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	"github.com/dmitrijs2005/invkeeper/internal/models"
	"github.com/dmitrijs2005/invkeeper/internal/objectstore"
	"github.com/dmitrijs2005/invkeeper/internal/pipeline"
	"github.com/dmitrijs2005/invkeeper/internal/records"
	"github.com/dmitrijs2005/invkeeper/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------- test fakes --------

type memObjects struct {
	mu      sync.Mutex
	data    map[string][]byte
	putErr  error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) Put(ctx context.Context, key string, data []byte, contentType string, onProgress objectstore.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = data
	if onProgress != nil {
		onProgress(int64(len(data)), int64(len(data)))
	}
	return nil
}

func (m *memObjects) ResolveURL(ctx context.Context, key string) (string, error) {
	return "https://objects.example/" + key, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	delete(m.data, key)
	return nil
}

type failingRecords struct {
	records.Store
}

func (failingRecords) Set(ctx context.Context, collection, key string, data json.RawMessage) (*records.Document, error) {
	return nil, errors.New("disk full")
}

// -------- helpers --------

type fixture struct {
	svc     *Service
	records *records.MemoryStore
	objects *memObjects
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, deriveErr error) *fixture {
	t.Helper()
	var logs bytes.Buffer
	logger := logging.New("debug", "json", &logs)

	rs := records.NewMemoryStore(logger)
	t.Cleanup(func() { _ = rs.Close() })
	objs := newMemObjects()

	deriver := thumbnail.DeriverFunc(func(ctx context.Context, p string, size int) (image.Image, error) {
		if deriveErr != nil {
			return nil, deriveErr
		}
		return image.NewNRGBA(image.Rect(0, 0, size, size)), nil
	})
	pipe := pipeline.New(objs, deriver, logger, pipeline.Options{ScratchDir: t.TempDir()})

	return &fixture{svc: NewService(rs, objs, pipe, logger), records: rs, objects: objs, logs: &logs}
}

func writeAsset(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chair.usdz")
	require.NoError(t, os.WriteFile(p, []byte("usdz-bytes"), 0o600))
	return p
}

// -------- tests --------

func TestForms(t *testing.T) {
	add := NewForm()
	assert.NotEmpty(t, add.ID)
	assert.Equal(t, "Add Item", add.Title())
	assert.NotEqual(t, add.ID, NewForm().ID)

	item := models.Item{
		ID:            "i1",
		Name:          "Chair",
		Quantity:      3,
		AssetLink:     models.StringPtr("https://x/i1.usdz"),
		ThumbnailLink: models.StringPtr("https://x/i1.jpg"),
	}
	edit := EditForm(item)
	assert.Equal(t, "Edit Item", edit.Title())
	assert.Equal(t, "Chair", edit.Name)
	assert.Equal(t, 3, edit.Quantity)
	assert.Equal(t, "https://x/i1.usdz", edit.AssetURL)
	assert.Equal(t, "https://x/i1.jpg", edit.ThumbnailURL)

	edit.Name = "Stool"
	edit.ThumbnailURL = ""
	out := edit.Item()
	assert.Equal(t, "Stool", out.Name)
	assert.Nil(t, out.ThumbnailLink)
	assert.Nil(t, out.CreatedAt)
	assert.Nil(t, out.UpdatedAt)
}

func TestSave_Validation(t *testing.T) {
	fx := newFixture(t, nil)

	f := NewForm()
	f.Name = "   "
	_, err := fx.svc.Save(context.Background(), f)
	assert.ErrorIs(t, err, common.ErrBlankName)
	assert.NotEmpty(t, f.Error)
	assert.Equal(t, LoadingNone, f.Loading)

	f.Name = "Chair"
	f.Quantity = -1
	_, err = fx.svc.Save(context.Background(), f)
	assert.ErrorIs(t, err, common.ErrNegativeQuantity)

	_, err = fx.records.Get(context.Background(), common.ItemsCollection, f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSave_WritesAndKeepsCreatedAt(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	f := NewForm()
	f.Name = "Chair"
	f.Quantity = 2
	first, err := fx.svc.Save(ctx, f)
	require.NoError(t, err)
	require.NotNil(t, first.CreatedAt)
	assert.Equal(t, "Edit Item", f.Title())

	f.Quantity = 5
	second, err := fx.svc.Save(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, *first.CreatedAt, *second.CreatedAt)

	got, err := fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, "Chair", got.Name)
}

func TestSave_StoreFailureIsSaveError(t *testing.T) {
	fx := newFixture(t, nil)
	svc := NewService(failingRecords{Store: fx.records}, fx.objects, nil, nil)

	f := NewForm()
	f.Name = "Chair"
	_, err := svc.Save(context.Background(), f)
	assert.ErrorIs(t, err, common.ErrSave)
	assert.Contains(t, f.Error, "disk full")
}

func TestSave_DanglingThumbnailAllowedWithWarning(t *testing.T) {
	fx := newFixture(t, nil)

	f := NewForm()
	f.Name = "Chair"
	f.ThumbnailURL = "https://x/t.jpg"
	item, err := fx.svc.Save(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, item.HasDanglingThumbnail())
	assert.Contains(t, fx.logs.String(), "saving thumbnail without asset")
}

func TestFormIngest_SetsLinksOnSuccess(t *testing.T) {
	fx := newFixture(t, nil)
	f := NewForm()

	var stages []models.Stage
	res, err := fx.svc.Ingest(context.Background(), f, writeAsset(t), false, func(ev models.IngestEvent) {
		stages = append(stages, ev.Stage)
	})
	require.NoError(t, err)
	assert.Equal(t, "https://objects.example/"+f.ID+".usdz", res.AssetRef)
	assert.Equal(t, res.AssetRef, f.AssetURL)
	assert.Equal(t, "https://objects.example/"+f.ID+".jpg", f.ThumbnailURL)
	assert.Equal(t, models.StageDone, stages[len(stages)-1])
	assert.Equal(t, LoadingNone, f.Loading)
	assert.Nil(t, f.Progress)
	assert.Empty(t, f.Error)
}

func TestFormIngest_KeepsOldThumbnailWhenNoneDerived(t *testing.T) {
	fx := newFixture(t, errors.New("no renderer"))
	f := EditForm(models.Item{ID: "i1", Name: "Chair", ThumbnailLink: models.StringPtr("https://old/i1.jpg")})

	_, err := f.Ingest(context.Background(), fx.svc.ingest, writeAsset(t), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://objects.example/i1.usdz", f.AssetURL)
	assert.Equal(t, "https://old/i1.jpg", f.ThumbnailURL)
}

func TestFormIngest_FailureLeavesLinksUntouched(t *testing.T) {
	fx := newFixture(t, nil)
	fx.objects.putErr = errors.New("offline")
	f := EditForm(models.Item{
		ID:            "i1",
		Name:          "Chair",
		AssetLink:     models.StringPtr("https://old/i1.usdz"),
		ThumbnailLink: models.StringPtr("https://old/i1.jpg"),
	})

	_, err := f.Ingest(context.Background(), fx.svc.ingest, writeAsset(t), false, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpload)
	assert.Equal(t, "Could not upload the file.", f.Error)
	assert.Equal(t, "https://old/i1.usdz", f.AssetURL)
	assert.Equal(t, "https://old/i1.jpg", f.ThumbnailURL)
}

func TestAttachAsset(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	f := NewForm()
	f.Name = "Chair"
	_, err := fx.svc.Save(ctx, f)
	require.NoError(t, err)

	item, err := fx.svc.AttachAsset(ctx, f.ID, writeAsset(t), false, nil)
	require.NoError(t, err)
	require.NotNil(t, item.AssetLink)
	require.NotNil(t, item.ThumbnailLink)

	stored, err := fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, *item.AssetLink, *stored.AssetLink)
	assert.Equal(t, "Chair", stored.Name)

	_, err = fx.svc.AttachAsset(ctx, "missing", writeAsset(t), false, nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAttachAsset_IngestFailureDoesNotWrite(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	f := NewForm()
	f.Name = "Chair"
	saved, err := fx.svc.Save(ctx, f)
	require.NoError(t, err)

	_, err = fx.svc.AttachAsset(ctx, f.ID, filepath.Join(t.TempDir(), "gone.usdz"), false, nil)
	assert.ErrorIs(t, err, common.ErrReadAsset)

	stored, err := fx.svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AssetLink)
	assert.Equal(t, *saved.UpdatedAt, *stored.UpdatedAt)
}

func TestDelete(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	f := NewForm()
	f.Name = "Chair"
	_, err := fx.svc.Save(ctx, f)
	require.NoError(t, err)
	_, err = fx.svc.AttachAsset(ctx, f.ID, writeAsset(t), false, nil)
	require.NoError(t, err)

	require.NoError(t, fx.svc.Delete(ctx, f.ID))
	assert.ElementsMatch(t, []string{f.ID + ".usdz", f.ID + ".jpg"}, fx.objects.deleted)
	_, err = fx.svc.Get(ctx, f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, fx.svc.Delete(ctx, f.ID), common.ErrNotFound)
}

func TestProgressLabel(t *testing.T) {
	p := models.NewProgress(2_500_000, 10_000_000)
	assert.Equal(t, "Uploading asset 25 % (2.5 MB / 10 MB)", ProgressLabel(models.StageUploadingPrimary, p))
	assert.Equal(t, "Uploading thumbnail 100 % (10 kB / 10 kB)",
		ProgressLabel(models.StageUploadingThumbnail, models.NewProgress(10_000, 10_000)))
}

func TestLoadingState_String(t *testing.T) {
	assert.Equal(t, "none", LoadingNone.String())
	assert.Equal(t, "saving", LoadingSaving.String())
	assert.Equal(t, "uploading asset", LoadingUploadingAsset.String())
	assert.Equal(t, "uploading thumbnail", LoadingUploadingThumbnail.String())
}
