package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

type fakeShops struct{ shop *models.Shop }

func (f *fakeShops) GetByID(context.Context, uuid.UUID) (*models.Shop, error) {
	return f.shop, nil
}

type fakeUploads struct{ uploads []*models.Upload }

func (f *fakeUploads) ListByIDs(context.Context, []uuid.UUID) ([]*models.Upload, error) {
	return f.uploads, nil
}

type fakeItems struct{ byUpload map[uuid.UUID][]*models.UploadItem }

func (f *fakeItems) ListByUpload(_ context.Context, uploadID uuid.UUID) ([]*models.UploadItem, error) {
	return f.byUpload[uploadID], nil
}

type completion struct {
	archiveKey  string
	downloadURL string
	expiresAt   time.Time
	filesCount  int
}

type fakeJobs struct {
	job       *models.ExportJob
	claimable bool
	completed *completion
	failedMsg *string
}

func (f *fakeJobs) GetByID(context.Context, uuid.UUID) (*models.ExportJob, error) {
	return f.job, nil
}

func (f *fakeJobs) MarkProcessing(context.Context, uuid.UUID) (bool, error) {
	return f.claimable, nil
}

func (f *fakeJobs) Complete(_ context.Context, _ uuid.UUID, archiveKey, downloadURL string, expiresAt time.Time, filesCount int) error {
	f.completed = &completion{archiveKey: archiveKey, downloadURL: downloadURL, expiresAt: expiresAt, filesCount: filesCount}
	return nil
}

func (f *fakeJobs) Fail(_ context.Context, _ uuid.UUID, msg string) error {
	f.failedMsg = &msg
	return nil
}

type fakeStore struct {
	objects map[string][]byte
	puts    map[string][]byte
	broken  map[string]bool
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if f.broken[key] {
		return nil, fmt.Errorf("backend unavailable for %s", key)
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

type fakeProgress struct{}

func (fakeProgress) SetProgress(context.Context, string, string, int, string) {}

func testConfig() *config.Config {
	return &config.Config{
		Export: config.ExportConfig{
			ArchivePrefix: "exports",
			URLTTL:        24 * time.Hour,
		},
	}
}

func testFixture(itemKeys ...string) (*Worker, *fakeJobs, *fakeStore, Payload) {
	shop := &models.Shop{ID: uuid.New(), StorageProvider: "s3"}
	orderID := "1001"
	upload := &models.Upload{
		ID:      uuid.New(),
		ShopID:  shop.ID,
		OrderID: &orderID,
		Mode:    "order",
		Status:  models.UploadReady,
	}

	store := &fakeStore{objects: make(map[string][]byte), broken: make(map[string]bool)}
	items := make([]*models.UploadItem, 0, len(itemKeys))
	for i, key := range itemKeys {
		store.objects[key] = []byte(fmt.Sprintf("artwork-%d", i))
		items = append(items, &models.UploadItem{
			ID:              uuid.New(),
			UploadID:        upload.ID,
			StorageKey:      key,
			OriginalName:    fmt.Sprintf("art%d.png", i),
			PreflightStatus: models.PreflightOK,
		})
	}

	jobID := uuid.New()
	jobs := &fakeJobs{
		job: &models.ExportJob{
			ID:        jobID,
			ShopID:    shop.ID,
			UploadIDs: []uuid.UUID{upload.ID},
			Status:    models.ExportPending,
		},
		claimable: true,
	}

	w := New(testConfig(),
		&fakeShops{shop: shop},
		&fakeUploads{uploads: []*models.Upload{upload}},
		&fakeItems{byUpload: map[uuid.UUID][]*models.UploadItem{upload.ID: items}},
		jobs,
		&fakeSelector{store: store},
		fakeProgress{},
		logger.New("error", "text"))

	return w, jobs, store, Payload{JobID: jobID, ShopID: shop.ID}
}

func job(t *testing.T, p Payload) *queue.Job {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{MessageID: "1-0", Attempt: 1, Payload: data}
}

func TestHandleSuccess(t *testing.T) {
	w, jobs, store, p := testFixture("a.png", "b.png")

	require.NoError(t, w.Handle(context.Background(), job(t, p)))

	require.NotNil(t, jobs.completed)
	archiveKey := "exports/" + p.JobID.String() + ".zip"
	assert.Equal(t, archiveKey, jobs.completed.archiveKey)
	assert.Equal(t, "https://signed.example.com/"+archiveKey, jobs.completed.downloadURL)
	assert.Equal(t, 2, jobs.completed.filesCount)
	assert.Nil(t, jobs.failedMsg)

	// The uploaded archive is a well-formed zip with both originals
	data, ok := store.puts[archiveKey]
	require.True(t, ok)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var fileEntries int
	for _, f := range zr.File {
		if f.Name != "manifest.csv" && f.Name != "orders/1001/metadata.json" {
			fileEntries++
		}
	}
	assert.Equal(t, 2, fileEntries)
}

func TestHandleAlreadySettledSkips(t *testing.T) {
	w, jobs, store, p := testFixture("a.png")
	jobs.claimable = false
	jobs.job.Status = models.ExportCompleted

	require.NoError(t, w.Handle(context.Background(), job(t, p)))

	assert.Nil(t, jobs.completed)
	assert.Nil(t, jobs.failedMsg)
	assert.Empty(t, store.puts, "settled job must not upload a new archive")
}

func TestHandlePartialFailureStillCompletes(t *testing.T) {
	w, jobs, store, p := testFixture("a.png", "b.png", "c.png")
	store.broken["b.png"] = true

	require.NoError(t, w.Handle(context.Background(), job(t, p)))

	require.NotNil(t, jobs.completed)
	assert.Equal(t, 2, jobs.completed.filesCount)
	assert.Nil(t, jobs.failedMsg)
}

func TestHandleAllDownloadsFailedFailsJob(t *testing.T) {
	w, jobs, store, p := testFixture("a.png", "b.png")
	store.broken["a.png"] = true
	store.broken["b.png"] = true

	err := w.Handle(context.Background(), job(t, p))
	require.Error(t, err)

	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm), "terminal build failure must not be retried")
	require.NotNil(t, jobs.failedMsg)
	assert.Contains(t, *jobs.failedMsg, "failed to download")
	assert.Nil(t, jobs.completed)
	assert.Empty(t, store.puts, "no archive uploaded when every item failed")
}

func TestHandleMalformedPayloadIsPermanent(t *testing.T) {
	w, _, _, _ := testFixture("a.png")

	err := w.Handle(context.Background(), &queue.Job{MessageID: "1-0", Attempt: 1, Payload: []byte("{nope")})
	require.Error(t, err)

	var perm *backoff.PermanentError
	assert.True(t, errors.As(err, &perm))
}
