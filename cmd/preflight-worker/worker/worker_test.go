package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/models"
	"github.com/inkfold/prepress/common/queue"
	"github.com/inkfold/prepress/common/storage"
)

type fakeShops struct {
	shop *models.Shop
	err  error
}

func (f *fakeShops) GetByID(context.Context, uuid.UUID) (*models.Shop, error) {
	return f.shop, f.err
}

type savedPreflight struct {
	result       models.PreflightResult
	thumbnailKey *string
	previewKey   string
}

type fakeItems struct {
	item  *models.UploadItem
	saved *savedPreflight
}

func (f *fakeItems) GetByID(context.Context, uuid.UUID) (*models.UploadItem, error) {
	return f.item, nil
}

func (f *fakeItems) ListStatusesByUpload(context.Context, uuid.UUID) ([]models.PreflightStatus, error) {
	if f.saved == nil {
		return []models.PreflightStatus{models.PreflightPending}, nil
	}
	return []models.PreflightStatus{f.saved.result.Overall}, nil
}

func (f *fakeItems) SavePreflight(_ context.Context, _ uuid.UUID, result models.PreflightResult, thumbnailKey *string, previewKey string) error {
	f.saved = &savedPreflight{result: result, thumbnailKey: thumbnailKey, previewKey: previewKey}
	return nil
}

type fakeUploads struct {
	status  *models.UploadStatus
	summary *models.PreflightSummary
}

func (f *fakeUploads) SetAggregateStatus(_ context.Context, _ uuid.UUID, status models.UploadStatus) error {
	f.status = &status
	return nil
}

func (f *fakeUploads) SetPreflightSummaryOnce(_ context.Context, _ uuid.UUID, summary models.PreflightSummary) (bool, error) {
	if f.summary != nil {
		return false, nil
	}
	f.summary = &summary
	return true, nil
}

type fakeStore struct {
	objects map[string][]byte
	puts    map[string][]byte
	getErr  error
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return nil
}

func (f *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type fakeSelector struct{ store *fakeStore }

func (f *fakeSelector) For(string) storage.Store { return f.store }

type fakeProgress struct{ stages []string }

func (f *fakeProgress) SetProgress(_ context.Context, _, _ string, _ int, stage string) {
	f.stages = append(f.stages, stage)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Preflight: config.PreflightConfig{
			MaxDeliveries:    3,
			RenderDPI:        150,
			ThumbnailMaxEdge: 400,
			ThumbnailQuality: 85,
			TempDir:          t.TempDir(),
			GhostscriptBin:   "gs-not-installed-in-tests",
			MagickBin:        "magick-not-installed-in-tests",
			Policies: map[models.Plan]models.PlanPolicy{
				models.PlanFree: {
					MinDPI:         150,
					HardFloorRatio: 0.5,
					MaxFileSize:    10 << 20,
					WarnBandRatio:  0.8,
					AllowedFormats: []string{"raster", "pdf", "svg"},
				},
			},
		},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testFixture(t *testing.T, fileBytes []byte) (*Worker, *fakeItems, *fakeUploads, *fakeStore, *fakeProgress, Payload) {
	shop := &models.Shop{
		ID:              uuid.New(),
		Plan:            models.PlanFree,
		StorageProvider: "local",
	}
	item := &models.UploadItem{
		ID:            uuid.New(),
		UploadID:      uuid.New(),
		StorageKey:    "uploads/art.png",
		OriginalName:  "art.png",
		PrintWidthMM:  50,
		PrintHeightMM: 50,
	}
	items := &fakeItems{item: item}
	uploads := &fakeUploads{}
	store := &fakeStore{objects: map[string][]byte{item.StorageKey: fileBytes}}
	progress := &fakeProgress{}

	w := New(testConfig(t), &fakeShops{shop: shop}, items, uploads,
		&fakeSelector{store: store}, progress, logger.New("error", "text"))

	p := Payload{
		UploadID:   item.UploadID,
		ShopID:     shop.ID,
		ItemID:     item.ID,
		StorageKey: item.StorageKey,
	}
	return w, items, uploads, store, progress, p
}

func job(t *testing.T, p Payload, attempt int) *queue.Job {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{MessageID: "1-0", Attempt: attempt, Payload: data}
}

func TestHandleCleanRaster(t *testing.T) {
	w, items, uploads, store, progress, p := testFixture(t, pngBytes(t, 600, 600))

	require.NoError(t, w.Handle(context.Background(), job(t, p, 1)))

	require.NotNil(t, items.saved)
	assert.Equal(t, models.PreflightOK, items.saved.result.Overall)
	assert.Equal(t, p.StorageKey, items.saved.previewKey)

	require.NotNil(t, items.saved.thumbnailKey)
	assert.Equal(t, "uploads/art_thumb.jpg", *items.saved.thumbnailKey)
	assert.Contains(t, store.puts, "uploads/art_thumb.jpg")

	require.NotNil(t, uploads.status)
	assert.Equal(t, models.UploadPendingApproval, *uploads.status)
	require.NotNil(t, uploads.summary)
	assert.Equal(t, models.PreflightOK, uploads.summary.Overall)
	assert.False(t, uploads.summary.AutoApproved)

	assert.Equal(t, "done", progress.stages[len(progress.stages)-1])
}

func TestHandleCorruptPDFIsTerminalVerdict(t *testing.T) {
	// PDF magic but no renderer available: content-level failure, job done
	w, items, uploads, _, _, p := testFixture(t, []byte("%PDF-1.4\ncorrupt"))

	require.NoError(t, w.Handle(context.Background(), job(t, p, 1)))

	require.NotNil(t, items.saved)
	assert.Equal(t, models.PreflightError, items.saved.result.Overall)
	assert.Equal(t, p.StorageKey, items.saved.previewKey)
	assert.Nil(t, items.saved.thumbnailKey)

	var processing *models.Check
	for i := range items.saved.result.Checks {
		if items.saved.result.Checks[i].Name == "processing" {
			processing = &items.saved.result.Checks[i]
		}
	}
	require.NotNil(t, processing)
	assert.Equal(t, models.PreflightError, processing.Status)

	require.NotNil(t, uploads.status)
	assert.Equal(t, models.UploadBlocked, *uploads.status)
}

func TestHandleDownloadFailureRetries(t *testing.T) {
	w, items, _, store, _, p := testFixture(t, nil)
	store.getErr = errors.New("connection refused")

	err := w.Handle(context.Background(), job(t, p, 1))
	require.Error(t, err)

	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm), "infrastructure failure must stay retryable")
	assert.Nil(t, items.saved, "no verdict recorded while retries remain")
}

func TestHandleLastAttemptMarksItemFailed(t *testing.T) {
	w, items, uploads, store, _, p := testFixture(t, nil)
	store.getErr = errors.New("connection refused")

	err := w.Handle(context.Background(), job(t, p, 3))
	require.Error(t, err)

	require.NotNil(t, items.saved, "exhausted job must leave a terminal diagnostic")
	assert.Equal(t, models.PreflightError, items.saved.result.Overall)
	assert.Equal(t, p.StorageKey, items.saved.previewKey)
	require.NotNil(t, uploads.status)
	assert.Equal(t, models.UploadBlocked, *uploads.status)
}

func TestHandleMalformedPayloadIsPermanent(t *testing.T) {
	w, _, _, _, _, _ := testFixture(t, nil)

	err := w.Handle(context.Background(), &queue.Job{MessageID: "1-0", Attempt: 1, Payload: []byte("{not json")})
	require.Error(t, err)

	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))
}

func TestHandleOverallMatchesPersistedStatus(t *testing.T) {
	// Undersized raster against a declared 200x200mm print: resolution error
	w, items, _, _, _, p := testFixture(t, pngBytes(t, 100, 100))
	items.item.PrintWidthMM = 200
	items.item.PrintHeightMM = 200

	require.NoError(t, w.Handle(context.Background(), job(t, p, 1)))

	require.NotNil(t, items.saved)
	assert.Equal(t, models.PreflightError, items.saved.result.Overall)
	assert.Equal(t, items.saved.result.Overall, models.Worst(items.saved.result.Checks))
}
