package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkfold/prepress/common/logger"
	"github.com/inkfold/prepress/common/models"
	"github.com/inkfold/prepress/common/storage"
)

// fakeStore serves canned objects and fails on demand
type fakeStore struct {
	objects map[string][]byte
	broken  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		broken:  make(map[string]bool),
	}
}

func (s *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if s.broken[key] {
		return nil, fmt.Errorf("backend unavailable for %s", key)
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func orderRef(id string) *string { return &id }

func testItem(uploadID uuid.UUID, key, name string) *models.UploadItem {
	return &models.UploadItem{
		ID:              uuid.New(),
		UploadID:        uploadID,
		StorageKey:      key,
		OriginalName:    name,
		PreflightStatus: models.PreflightOK,
		PreflightResult: &models.PreflightResult{
			Overall: models.PreflightOK,
			Checks: []models.Check{
				{Name: "resolution", Status: models.PreflightOK, Value: "312"},
				{Name: "dimensions", Status: models.PreflightOK, Value: "2480x3508"},
			},
		},
	}
}

func testBundle(orderID *string, keys ...string) UploadBundle {
	u := &models.Upload{
		ID:        uuid.New(),
		OrderID:   orderID,
		Mode:      "order",
		Status:    models.UploadReady,
		CreatedAt: time.Now().UTC(),
	}
	items := make([]*models.UploadItem, 0, len(keys))
	for i, key := range keys {
		items = append(items, testItem(u.ID, key, fmt.Sprintf("artwork%d.png", i)))
	}
	return UploadBundle{Upload: u, Items: items}
}

func readArchive(t *testing.T, buf *bytes.Buffer) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = data
	}
	return entries
}

func TestBuildTwoOrdersThreeItems(t *testing.T) {
	store := newFakeStore()
	store.objects["a.png"] = []byte("aaa")
	store.objects["b.png"] = []byte("bbb")
	store.objects["c.png"] = []byte("ccc")

	bundles := []UploadBundle{
		testBundle(orderRef("1001"), "a.png", "b.png"),
		testBundle(orderRef("1002"), "c.png"),
	}

	var buf bytes.Buffer
	res, err := NewBuilder(store, logger.New("error", "text")).Build(context.Background(), &buf, bundles)
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesCount)
	assert.Equal(t, 0, res.SkippedCount)

	entries := readArchive(t, &buf)

	var files, metas int
	for name := range entries {
		switch {
		case strings.HasSuffix(name, "metadata.json"):
			metas++
		case name == "manifest.csv":
		default:
			files++
		}
	}
	assert.Equal(t, 3, files)
	assert.Equal(t, 2, metas)

	manifest, ok := entries["manifest.csv"]
	require.True(t, ok)
	rows, err := csv.NewReader(bytes.NewReader(manifest)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + 3 data rows
	assert.Equal(t, []string{
		"Order ID", "Upload ID", "Location", "File Name",
		"Original Name", "DPI", "Dimensions", "Preflight Status",
	}, rows[0])
	assert.Equal(t, "1001", rows[1][0])
	assert.Equal(t, "312", rows[1][5])
	assert.Equal(t, "2480x3508", rows[1][6])
}

func TestBuildMetadataContent(t *testing.T) {
	store := newFakeStore()
	store.objects["a.png"] = []byte("aaa")

	bundle := testBundle(orderRef("1001"), "a.png")
	var buf bytes.Buffer
	_, err := NewBuilder(store, logger.New("error", "text")).Build(context.Background(), &buf, []UploadBundle{bundle})
	require.NoError(t, err)

	entries := readArchive(t, &buf)
	raw, ok := entries["orders/1001/metadata.json"]
	require.True(t, ok)

	var meta struct {
		UploadID string `json:"uploadId"`
		OrderID  string `json:"orderId"`
		Status   string `json:"status"`
		Items    []struct {
			Location     string `json:"location"`
			OriginalName string `json:"originalName"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, bundle.Upload.ID.String(), meta.UploadID)
	assert.Equal(t, "1001", meta.OrderID)
	assert.Equal(t, "ready", meta.Status)
	require.Len(t, meta.Items, 1)
	assert.Equal(t, "artwork0.png", meta.Items[0].OriginalName)
	assert.Contains(t, entries, meta.Items[0].Location)
}

func TestBuildNoOrderBucket(t *testing.T) {
	store := newFakeStore()
	store.objects["a.png"] = []byte("aaa")

	var buf bytes.Buffer
	_, err := NewBuilder(store, logger.New("error", "text")).Build(context.Background(), &buf, []UploadBundle{
		testBundle(nil, "a.png"),
	})
	require.NoError(t, err)

	entries := readArchive(t, &buf)
	assert.Contains(t, entries, "orders/no_order/metadata.json")
	for name := range entries {
		if name != "manifest.csv" {
			assert.True(t, strings.HasPrefix(name, "orders/no_order/"), "unexpected entry %s", name)
		}
	}
}

func TestBuildSkipsFailedDownloads(t *testing.T) {
	store := newFakeStore()
	store.objects["a.png"] = []byte("aaa")
	store.objects["c.png"] = []byte("ccc")
	store.broken["b.png"] = true

	var buf bytes.Buffer
	res, err := NewBuilder(store, logger.New("error", "text")).Build(context.Background(), &buf, []UploadBundle{
		testBundle(orderRef("1001"), "a.png", "b.png", "c.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FilesCount)
	assert.Equal(t, 1, res.SkippedCount)

	manifest := readArchive(t, &buf)["manifest.csv"]
	rows, err := csv.NewReader(bytes.NewReader(manifest)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3) // header + 2 surviving rows
}

func TestBuildAllFailedIsError(t *testing.T) {
	store := newFakeStore()
	store.broken["a.png"] = true
	store.broken["b.png"] = true

	var buf bytes.Buffer
	res, err := NewBuilder(store, logger.New("error", "text")).Build(context.Background(), &buf, []UploadBundle{
		testBundle(orderRef("1001"), "a.png", "b.png"),
	})
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Equal(t, 0, res.FilesCount)
	assert.Equal(t, 2, res.SkippedCount)
}
