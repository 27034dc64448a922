package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/inkfold/prepress/cmd/export-worker/exporter"
	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/models"
	"github.com/inkfold/prepress/common/queue"
	"github.com/inkfold/prepress/common/storage"
)

// Payload is the export job message. The job record is the source of
// truth; the payload is only a pointer to it.
type Payload struct {
	JobID  uuid.UUID `json:"jobId"`
	ShopID uuid.UUID `json:"shopId"`
}

// Result is logged when an export completes
type Result struct {
	Success     bool   `json:"success"`
	FilesCount  int    `json:"filesCount"`
	DownloadURL string `json:"downloadUrl"`
}

// ShopStore reads the owning shop's storage configuration
type ShopStore interface {
	GetByID(ctx context.Context, shopID uuid.UUID) (*models.Shop, error)
}

// UploadStore resolves the job's fixed upload set
type UploadStore interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Upload, error)
}

// ItemStore resolves each upload's items
type ItemStore interface {
	ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.UploadItem, error)
}

// JobStore drives the export job's state machine
type JobStore interface {
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.ExportJob, error)
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (bool, error)
	Complete(ctx context.Context, jobID uuid.UUID, archiveKey, downloadURL string, expiresAt time.Time, filesCount int) error
	Fail(ctx context.Context, jobID uuid.UUID, msg string) error
}

// StoreSelector scopes the storage router to a shop's default backend
type StoreSelector interface {
	For(provider string) storage.Store
}

// ProgressReporter records milestone progress for observability
type ProgressReporter interface {
	SetProgress(ctx context.Context, scope, id string, pct int, stage string)
}

// Worker drives one export job from claim to completed or failed
type Worker struct {
	cfg      *config.Config
	shops    ShopStore
	uploads  UploadStore
	items    ItemStore
	jobs     JobStore
	stores   StoreSelector
	progress ProgressReporter
	log      *logger.Logger
}

// New creates an export worker
func New(
	cfg *config.Config,
	shops ShopStore,
	uploads UploadStore,
	items ItemStore,
	jobs JobStore,
	stores StoreSelector,
	progress ProgressReporter,
	log *logger.Logger,
) *Worker {
	return &Worker{
		cfg:      cfg,
		shops:    shops,
		uploads:  uploads,
		items:    items,
		jobs:     jobs,
		stores:   stores,
		progress: progress,
		log:      log,
	}
}

// Handle processes one export delivery. Build failures are terminal: the
// job is marked failed and the error goes to the dead-letter stream for
// visibility rather than being retried, because a partial archive must not
// silently overwrite a previous good one.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return backoff.Permanent(fmt.Errorf("malformed export payload: %w", err))
	}
	log := w.log.WithJobID(p.JobID.String())
	w.report(ctx, p, 10, "claimed")

	record, err := w.jobs.GetByID(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("load export job: %w", err)
	}

	claimed, err := w.jobs.MarkProcessing(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("claim export job: %w", err)
	}
	if !claimed {
		log.Info("export job already settled, skipping", "status", record.Status)
		return nil
	}

	res, err := w.run(ctx, p, record, log)
	if err != nil {
		if failErr := w.jobs.Fail(ctx, p.JobID, err.Error()); failErr != nil {
			log.Error("failed to mark export job failed", "error", failErr)
		}
		return backoff.Permanent(err)
	}

	log.Info("export complete", "success", res.Success, "filesCount", res.FilesCount, "downloadUrl", res.DownloadURL)
	return nil
}

func (w *Worker) run(ctx context.Context, p Payload, record *models.ExportJob, log *logger.Logger) (Result, error) {
	shop, err := w.shops.GetByID(ctx, p.ShopID)
	if err != nil {
		return Result{}, fmt.Errorf("load shop: %w", err)
	}
	store := w.stores.For(shop.StorageProvider)

	bundles, err := w.resolveBundles(ctx, record.UploadIDs)
	if err != nil {
		return Result{}, err
	}
	if len(bundles) == 0 {
		return Result{}, fmt.Errorf("export job references no existing uploads")
	}
	w.report(ctx, p, 20, "resolved")

	tmpDir, err := os.MkdirTemp("", "export-")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	archivePath := filepath.Join(tmpDir, p.JobID.String()+".zip")
	f, err := os.Create(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("create archive file: %w", err)
	}

	built, err := exporter.NewBuilder(store, log).Build(ctx, f, bundles)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("flush archive file: %w", cerr)
	}
	if err != nil {
		if errors.Is(err, exporter.ErrNoFiles) {
			return Result{}, fmt.Errorf("all %d items failed to download", built.SkippedCount)
		}
		return Result{}, fmt.Errorf("build archive: %w", err)
	}
	w.report(ctx, p, 60, "archived")
	log.Info("archive built", "files", built.FilesCount, "skipped", built.SkippedCount)

	archiveKey := fmt.Sprintf("%s/%s.zip", w.cfg.Export.ArchivePrefix, p.JobID)
	af, err := os.Open(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("reopen archive: %w", err)
	}
	err = store.Put(ctx, archiveKey, af, "application/zip")
	if cerr := af.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return Result{}, fmt.Errorf("upload archive: %w", err)
	}
	w.report(ctx, p, 80, "uploaded")

	downloadURL, err := store.SignedURL(ctx, archiveKey, w.cfg.Export.URLTTL)
	if err != nil {
		return Result{}, fmt.Errorf("sign archive URL: %w", err)
	}

	expiresAt := time.Now().UTC().Add(w.cfg.Export.URLTTL)
	if err := w.jobs.Complete(ctx, p.JobID, archiveKey, downloadURL, expiresAt, built.FilesCount); err != nil {
		return Result{}, fmt.Errorf("complete export job: %w", err)
	}
	w.report(ctx, p, 100, "done")

	return Result{Success: true, FilesCount: built.FilesCount, DownloadURL: downloadURL}, nil
}

// resolveBundles re-reads the full upload and item set on every attempt so
// a redelivered job never depends on state from a prior run.
func (w *Worker) resolveBundles(ctx context.Context, ids []uuid.UUID) ([]exporter.UploadBundle, error) {
	uploads, err := w.uploads.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load uploads: %w", err)
	}

	bundles := make([]exporter.UploadBundle, 0, len(uploads))
	for _, u := range uploads {
		items, err := w.items.ListByUpload(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("load items for upload %s: %w", u.ID, err)
		}
		bundles = append(bundles, exporter.UploadBundle{Upload: u, Items: items})
	}
	return bundles, nil
}

func (w *Worker) report(ctx context.Context, p Payload, pct int, stage string) {
	w.progress.SetProgress(ctx, "export", p.JobID.String(), pct, stage)
}
