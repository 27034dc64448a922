package exporter

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/models"
	"github.com/inkfold/prepress/common/storage"
)

// ErrNoFiles is returned when no item could be added to the archive. An
// empty archive is never produced; the job fails instead.
var ErrNoFiles = errors.New("no files could be added to the archive")

// noOrderBucket groups uploads that are not tied to any order
const noOrderBucket = "no_order"

// UploadBundle pairs one upload with its items for archiving
type UploadBundle struct {
	Upload *models.Upload
	Items  []*models.UploadItem
}

// Result summarizes a finished archive build
type Result struct {
	FilesCount   int
	SkippedCount int
}

// Builder streams production archives. Originals are pulled through the
// given store and written straight into the ZIP without buffering whole
// files in memory.
type Builder struct {
	store storage.Store
	log   *logger.Logger
}

// NewBuilder creates an archive builder over a shop-scoped store
func NewBuilder(store storage.Store, log *logger.Logger) *Builder {
	return &Builder{store: store, log: log}
}

// manifestRow is one line of the top-level CSV, in column order
type manifestRow struct {
	orderID         string
	uploadID        string
	location        string
	fileName        string
	originalName    string
	dpi             string
	dimensions      string
	preflightStatus string
}

type itemMetadata struct {
	Location     string                  `json:"location"`
	FileName     string                  `json:"fileName"`
	OriginalName string                  `json:"originalName"`
	Transform    json.RawMessage         `json:"transform,omitempty"`
	Preflight    *models.PreflightResult `json:"preflight,omitempty"`
}

type uploadMetadata struct {
	UploadID      string         `json:"uploadId"`
	OrderID       *string        `json:"orderId"`
	Mode          string         `json:"mode"`
	CustomerID    *string        `json:"customerId"`
	CustomerEmail *string        `json:"customerEmail"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	ApprovedAt    *time.Time     `json:"approvedAt"`
	Items         []itemMetadata `json:"items"`
}

// Build writes a complete archive for the given bundles. Items are grouped
// into per-order folders; a download failure skips that item with a log
// entry instead of aborting the archive. ErrNoFiles is returned when
// nothing at all could be added.
func (b *Builder) Build(ctx context.Context, w io.Writer, bundles []UploadBundle) (Result, error) {
	zw := zip.NewWriter(w)

	grouped := groupByOrder(bundles)
	folders := make([]string, 0, len(grouped))
	for folder := range grouped {
		folders = append(folders, folder)
	}
	sort.Strings(folders)

	var res Result
	var rows []manifestRow

	for _, folder := range folders {
		var metas []uploadMetadata

		for _, bundle := range grouped[folder] {
			meta := newUploadMetadata(bundle.Upload)

			for _, item := range bundle.Items {
				fileName := entryName(item)
				location := path.Join("orders", folder, fileName)

				if err := b.addOriginal(ctx, zw, location, item.StorageKey); err != nil {
					res.SkippedCount++
					b.log.Warn("skipping item, original not retrievable",
						"item_id", item.ID, "key", item.StorageKey, "error", err)
					continue
				}
				res.FilesCount++

				rows = append(rows, manifestRow{
					orderID:         folder,
					uploadID:        bundle.Upload.ID.String(),
					location:        location,
					fileName:        fileName,
					originalName:    item.OriginalName,
					dpi:             checkValue(item, "resolution"),
					dimensions:      checkValue(item, "dimensions"),
					preflightStatus: string(item.PreflightStatus),
				})
				meta.Items = append(meta.Items, itemMetadata{
					Location:     location,
					FileName:     fileName,
					OriginalName: item.OriginalName,
					Transform:    item.Transform,
					Preflight:    item.PreflightResult,
				})
			}

			if len(meta.Items) > 0 {
				metas = append(metas, meta)
			}
		}

		if len(metas) > 0 {
			if err := writeMetadata(zw, folder, metas); err != nil {
				return res, fmt.Errorf("write metadata for %s: %w", folder, err)
			}
		}
	}

	if res.FilesCount == 0 {
		_ = zw.Close()
		return res, ErrNoFiles
	}

	if err := writeManifest(zw, rows); err != nil {
		return res, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("finalize archive: %w", err)
	}
	return res, nil
}

// groupByOrder buckets bundles by order id, keeping the original bundle
// order within each bucket.
func groupByOrder(bundles []UploadBundle) map[string][]UploadBundle {
	grouped := make(map[string][]UploadBundle)
	for _, bundle := range bundles {
		folder := noOrderBucket
		if bundle.Upload.OrderID != nil && *bundle.Upload.OrderID != "" {
			folder = *bundle.Upload.OrderID
		}
		grouped[folder] = append(grouped[folder], bundle)
	}
	return grouped
}

// entryName prefixes the customer's file name with a short upload-unique id
// so two items named artwork.png cannot collide inside one folder.
func entryName(item *models.UploadItem) string {
	return item.ID.String()[:8] + "_" + item.OriginalName
}

func (b *Builder) addOriginal(ctx context.Context, zw *zip.Writer, location, key string) error {
	rc, err := b.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	entry, err := zw.Create(location)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, rc)
	return err
}

// writeMetadata emits the order folder's metadata.json. Orders normally map
// to a single upload; when several uploads share one order the file holds
// an array instead of a single object.
func writeMetadata(zw *zip.Writer, folder string, metas []uploadMetadata) error {
	entry, err := zw.Create(path.Join("orders", folder, "metadata.json"))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(entry)
	enc.SetIndent("", "  ")
	if len(metas) == 1 {
		return enc.Encode(metas[0])
	}
	return enc.Encode(metas)
}

func writeManifest(zw *zip.Writer, rows []manifestRow) error {
	entry, err := zw.Create("manifest.csv")
	if err != nil {
		return err
	}

	cw := csv.NewWriter(entry)
	if err := cw.Write([]string{
		"Order ID", "Upload ID", "Location", "File Name",
		"Original Name", "DPI", "Dimensions", "Preflight Status",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write([]string{
			row.orderID, row.uploadID, row.location, row.fileName,
			row.originalName, row.dpi, row.dimensions, row.preflightStatus,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newUploadMetadata(u *models.Upload) uploadMetadata {
	return uploadMetadata{
		UploadID:      u.ID.String(),
		OrderID:       u.OrderID,
		Mode:          u.Mode,
		CustomerID:    u.CustomerID,
		CustomerEmail: u.CustomerEmail,
		Status:        string(u.Status),
		CreatedAt:     u.CreatedAt,
		ApprovedAt:    u.ApprovedAt,
	}
}

// checkValue pulls one check's recorded value out of the persisted result
func checkValue(item *models.UploadItem, name string) string {
	if item.PreflightResult == nil {
		return ""
	}
	for _, c := range item.PreflightResult.Checks {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
