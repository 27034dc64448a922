package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/inkfold/prepress/cmd/preflight-worker/checks"
	"github.com/inkfold/prepress/cmd/preflight-worker/convert"
	"github.com/inkfold/prepress/cmd/preflight-worker/format"
	"github.com/inkfold/prepress/cmd/preflight-worker/thumbnail"
	"github.com/inkfold/prepress/common/config"
	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/models"
	"github.com/inkfold/prepress/common/queue"
	"github.com/inkfold/prepress/common/storage"
)

// Payload is the preflight job message consumed from the queue
type Payload struct {
	UploadID   uuid.UUID `json:"uploadId"`
	ShopID     uuid.UUID `json:"shopId"`
	ItemID     uuid.UUID `json:"itemId"`
	StorageKey string    `json:"storageKey"`
}

// Result is logged back when a job reaches a terminal verdict
type Result struct {
	Status       models.PreflightStatus `json:"status"`
	Checks       []models.Check         `json:"checks"`
	ThumbnailKey string                 `json:"thumbnailKey,omitempty"`
}

// ShopStore reads the owning shop's plan and storage configuration
type ShopStore interface {
	GetByID(ctx context.Context, shopID uuid.UUID) (*models.Shop, error)
}

// ItemStore persists item-level preflight state
type ItemStore interface {
	GetByID(ctx context.Context, itemID uuid.UUID) (*models.UploadItem, error)
	ListStatusesByUpload(ctx context.Context, uploadID uuid.UUID) ([]models.PreflightStatus, error)
	SavePreflight(ctx context.Context, itemID uuid.UUID, result models.PreflightResult, thumbnailKey *string, previewKey string) error
}

// UploadStore persists the aggregate upload state
type UploadStore interface {
	SetAggregateStatus(ctx context.Context, uploadID uuid.UUID, status models.UploadStatus) error
	SetPreflightSummaryOnce(ctx context.Context, uploadID uuid.UUID, summary models.PreflightSummary) (bool, error)
}

// StoreSelector scopes the storage router to a shop's default backend
type StoreSelector interface {
	For(provider string) storage.Store
}

// ProgressReporter records milestone progress for observability
type ProgressReporter interface {
	SetProgress(ctx context.Context, scope, id string, pct int, stage string)
}

// Worker drives one preflight job from claim to terminal item state
type Worker struct {
	cfg      *config.Config
	shops    ShopStore
	items    ItemStore
	uploads  UploadStore
	stores   StoreSelector
	progress ProgressReporter
	renderer *convert.Renderer
	log      *logger.Logger
}

// New creates a preflight worker
func New(
	cfg *config.Config,
	shops ShopStore,
	items ItemStore,
	uploads UploadStore,
	stores StoreSelector,
	progress ProgressReporter,
	log *logger.Logger,
) *Worker {
	return &Worker{
		cfg:      cfg,
		shops:    shops,
		items:    items,
		uploads:  uploads,
		stores:   stores,
		progress: progress,
		renderer: &convert.Renderer{
			GhostscriptBin: cfg.Preflight.GhostscriptBin,
			MagickBin:      cfg.Preflight.MagickBin,
			DPI:            cfg.Preflight.RenderDPI,
		},
		log: log,
	}
}

// Handle processes one queue delivery. Infrastructure failures are
// returned to the queue for backoff retry; content failures are absorbed
// into a terminal item verdict so the record never stays pending after a
// job has run to any kind of completion.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var p Payload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return backoff.Permanent(fmt.Errorf("malformed preflight payload: %w", err))
	}
	log := w.log.WithItemID(p.ItemID.String()).WithUploadID(p.UploadID.String())
	w.report(ctx, p, 10, "claimed")

	err := w.run(ctx, p, log)
	if err != nil && job.Attempt >= w.cfg.Preflight.MaxDeliveries {
		// Final delivery: leave a terminal diagnostic instead of pending
		w.markItemFailed(ctx, p, err, log)
	}
	return err
}

func (w *Worker) run(ctx context.Context, p Payload, log *logger.Logger) error {
	shop, err := w.shops.GetByID(ctx, p.ShopID)
	if err != nil {
		return fmt.Errorf("load shop: %w", err)
	}
	item, err := w.items.GetByID(ctx, p.ItemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	store := w.stores.For(shop.StorageProvider)

	// The working directory is owned by this job alone and removed on
	// every exit path.
	tmpDir, err := os.MkdirTemp(w.cfg.Preflight.TempDir, "preflight-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	localPath, size, err := w.download(ctx, store, p.StorageKey, tmpDir)
	if err != nil {
		// Infrastructural: storage unreachable or object missing. Retried
		// by the queue, never recorded as a content verdict.
		return fmt.Errorf("download original: %w", err)
	}
	w.report(ctx, p, 20, "downloaded")

	result, thumbKey := w.analyze(ctx, p, store, item, localPath, size, w.cfg.PolicyFor(shop.Plan), log)

	// The preview must always resolve to the customer's original bytes.
	if err := w.items.SavePreflight(ctx, p.ItemID, result, thumbKey, item.StorageKey); err != nil {
		return fmt.Errorf("persist preflight result: %w", err)
	}
	w.report(ctx, p, 90, "persisted")

	if err := w.recomputeUpload(ctx, p.UploadID, shop.AutoApprove); err != nil {
		return fmt.Errorf("recompute upload status: %w", err)
	}
	w.report(ctx, p, 100, "done")

	res := Result{Status: result.Overall, Checks: result.Checks}
	if thumbKey != nil {
		res.ThumbnailKey = *thumbKey
	}
	log.Info("preflight complete", "status", res.Status, "checks", len(res.Checks), "thumbnail", res.ThumbnailKey)
	return nil
}

// analyze runs detection, conversion, the check battery and thumbnailing.
// Everything in here is content-level: failures become check verdicts, not
// job errors.
func (w *Worker) analyze(
	ctx context.Context,
	p Payload,
	store storage.Store,
	item *models.UploadItem,
	localPath string,
	size int64,
	policy models.PlanPolicy,
	log *logger.Logger,
) (models.PreflightResult, *string) {
	in := checks.Input{
		FileSize:      size,
		PrintWidthMM:  item.PrintWidthMM,
		PrintHeightMM: item.PrintHeightMM,
	}

	tag, mime, err := format.Detect(localPath)
	if err != nil {
		in.Format = format.Unknown
		in.Conversion = convert.Failed(fmt.Sprintf("detect format: %v", err))
	} else {
		in.Format = tag
		w.report(ctx, p, 30, "detected")
		log.Debug("format detected", "tag", tag, "mime", mime, "declared", item.MimeType)

		in.Conversion = w.renderer.Render(ctx, localPath, tag)
	}

	if in.Conversion.Image != nil {
		info := convert.Inspect(in.Conversion.Image)
		in.Raster = &info
	}

	result := checks.Run(in, policy)
	w.report(ctx, p, 50, "checked")

	var thumbKey *string
	if in.Conversion.Image != nil {
		thumbKey = w.uploadThumbnail(ctx, store, item.StorageKey, in.Conversion.Image, log)
		w.report(ctx, p, 70, "thumbnailed")
	}
	return result, thumbKey
}

// uploadThumbnail is best-effort: a missing preview degrades UX but is not
// a printability concern, so generation or upload failure only logs. The
// derived key is persisted only after the put succeeded.
func (w *Worker) uploadThumbnail(ctx context.Context, store storage.Store, storageKey string, img image.Image, log *logger.Logger) *string {
	data, err := thumbnail.Encode(img, w.cfg.Preflight.ThumbnailMaxEdge, w.cfg.Preflight.ThumbnailQuality)
	if err != nil {
		log.Warn("thumbnail generation failed, proceeding without preview", "error", err)
		return nil
	}

	key := storage.DerivedKey(storageKey, thumbnail.Suffix)
	if err := store.Put(ctx, key, bytes.NewReader(data), thumbnail.ContentType); err != nil {
		log.Warn("thumbnail upload failed, proceeding without preview", "key", key, "error", err)
		return nil
	}
	return &key
}

func (w *Worker) download(ctx context.Context, store storage.Store, key, tmpDir string) (string, int64, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = rc.Close()
	}()

	ext := filepath.Ext(storage.ParseKey(key, "").Path)
	localPath := filepath.Join(tmpDir, "original"+ext)
	f, err := os.Create(localPath)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	return localPath, n, nil
}

// recomputeUpload re-derives the aggregate status from all sibling items'
// durable state. No "am I the last one" special case: every completion
// recomputes, and concurrent recomputes converge because the inputs are
// durable item rows.
func (w *Worker) recomputeUpload(ctx context.Context, uploadID uuid.UUID, autoApprove bool) error {
	statuses, err := w.items.ListStatusesByUpload(ctx, uploadID)
	if err != nil {
		return err
	}

	status, complete := checks.AggregateUploadStatus(statuses, autoApprove)
	if !complete {
		return nil
	}

	if err := w.uploads.SetAggregateStatus(ctx, uploadID, status); err != nil {
		return err
	}

	summary := models.PreflightSummary{
		Overall:      checks.OverallOf(statuses),
		CompletedAt:  time.Now().UTC(),
		ItemCount:    len(statuses),
		AutoApproved: status == models.UploadReady,
	}
	written, err := w.uploads.SetPreflightSummaryOnce(ctx, uploadID, summary)
	if err != nil {
		return err
	}
	if written {
		w.log.WithUploadID(uploadID.String()).Info("upload preflight complete",
			"status", status, "overall", summary.Overall, "items", summary.ItemCount)
	}
	return nil
}

// markItemFailed leaves a best-effort terminal diagnostic so the UI never
// shows pending forever after retries are exhausted.
func (w *Worker) markItemFailed(ctx context.Context, p Payload, cause error, log *logger.Logger) {
	result := checks.Failure(fmt.Sprintf("processing failed after %d attempts: %v", w.cfg.Preflight.MaxDeliveries, cause))
	if err := w.items.SavePreflight(ctx, p.ItemID, result, nil, p.StorageKey); err != nil {
		log.Error("failed to record terminal item failure", "error", err)
		return
	}

	autoApprove := false
	if shop, err := w.shops.GetByID(ctx, p.ShopID); err == nil {
		autoApprove = shop.AutoApprove
	}
	if err := w.recomputeUpload(ctx, p.UploadID, autoApprove); err != nil {
		log.Error("failed to recompute upload after terminal failure", "error", err)
	}
}

func (w *Worker) report(ctx context.Context, p Payload, pct int, stage string) {
	w.progress.SetProgress(ctx, "preflight", p.ItemID.String(), pct, stage)
}
