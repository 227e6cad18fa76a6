package photo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutStoresObjectAndChecksum(t *testing.T) {
	service, _, objects, _, _ := newTestService()
	payload := []byte("jpeg-bytes")

	stored, err := service.Put(context.Background(), "t/c/a.jpg", bytes.NewReader(payload), int64(len(payload)), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), stored.Size)
	assert.Equal(t, "http://cdn.local/studiovault/t/c/a.jpg", stored.URL)
	assert.Len(t, stored.Checksum, 64)
	assert.Equal(t, payload, objects.objects["t/c/a.jpg"])
}

func TestPutRemovesObjectOnSizeMismatch(t *testing.T) {
	service, _, objects, _, _ := newTestService()
	objects.reportSize = 3

	_, err := service.Put(context.Background(), "t/c/a.jpg", bytes.NewReader([]byte("12345")), 5, "image/jpeg")
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.NotContains(t, objects.objects, "t/c/a.jpg")
}

func TestInsertSanitizesFilename(t *testing.T) {
	service, repo, _, _, _ := newTestService()
	customerID := uuid.New()

	a, err := service.Insert(context.Background(), Asset{ID: uuid.New(), CustomerID: customerID, URL: "u1", Filename: `C:\shoot\IMG_1.jpg`})
	require.NoError(t, err)
	assert.Equal(t, "IMG_1.jpg", a.Filename)
	assert.Len(t, repo.records, 1)
}

func TestDeleteReleasesQuotaAndPublishes(t *testing.T) {
	service, repo, objects, ledger, publisher := newTestService()
	tenantID, customerID := uuid.New(), uuid.New()
	a := repo.add(Asset{TenantID: tenantID, CustomerID: customerID, ObjectName: "obj", URL: "u", SizeBytes: 1234})
	objects.objects["obj"] = []byte("x")

	require.NoError(t, service.Delete(context.Background(), tenantID, customerID, a.ID))

	assert.Empty(t, repo.records)
	assert.NotContains(t, objects.objects, "obj")
	assert.Equal(t, int64(1234), ledger.released)
	assert.Equal(t, []string{"asset.deleted"}, publisher.types)

	// Row delete and release share one hold, so reconcile cannot run between them.
	assert.Equal(t, 1, ledger.holds)
	assert.Zero(t, ledger.held)
	assert.Zero(t, repo.unheldDeletes)
	assert.Zero(t, ledger.unheldReleases)
}

func TestDeleteUnknownAsset(t *testing.T) {
	service, _, _, ledger, _ := newTestService()

	err := service.Delete(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrAssetNotFound)
	assert.Zero(t, ledger.released)
	assert.Zero(t, ledger.held)
}

func TestDownloadScopesToCustomer(t *testing.T) {
	service, repo, objects, _, _ := newTestService()
	owner := uuid.New()
	a := repo.add(Asset{CustomerID: owner, ObjectName: "obj", URL: "u"})
	objects.objects["obj"] = []byte("data")

	_, _, err := service.Download(context.Background(), uuid.New(), a.ID)
	require.ErrorIs(t, err, ErrAssetNotFound)

	_, reader, err := service.Download(context.Background(), owner, a.ID)
	require.NoError(t, err)
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	assert.Equal(t, "data", string(body))
}

func TestByURLsKeepsCatalogOrder(t *testing.T) {
	service, repo, _, _, _ := newTestService()
	customerID := uuid.New()
	first := repo.add(Asset{CustomerID: customerID, URL: "u1"})
	second := repo.add(Asset{CustomerID: customerID, URL: "u2"})

	list, err := service.ByURLs(context.Background(), customerID, []string{"u2", "missing", "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func newTestService() (*Service, *fakeRepo, *fakeObjectStore, *fakeLedger, *fakePublisher) {
	ledger := &fakeLedger{}
	repo := &fakeRepo{records: map[uuid.UUID]Asset{}, ledger: ledger}
	objects := &fakeObjectStore{objects: map[string][]byte{}}
	publisher := &fakePublisher{}
	service := NewService(Params{
		Repo:          repo,
		Objects:       objects,
		Ledger:        ledger,
		Publisher:     publisher,
		ObjectBucket:  "studiovault",
		PublicBaseURL: "http://cdn.local/studiovault/",
	})
	return service, repo, objects, ledger, publisher
}

type fakeRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]Asset
	seq     int

	ledger        *fakeLedger
	unheldDeletes int
}

func (f *fakeRepo) add(a Asset) Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.seq++
	a.UploadedAt = time.Unix(int64(f.seq), 0)
	f.records[a.ID] = a
	return a
}

func (f *fakeRepo) sorted(customerID uuid.UUID) []Asset {
	var out []Asset
	for _, a := range f.records {
		if a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

func (f *fakeRepo) Create(_ context.Context, a Asset) (Asset, error) {
	return f.add(a), nil
}

func (f *fakeRepo) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(customerID), nil
}

func (f *fakeRepo) GetByURLs(_ context.Context, customerID uuid.UUID, urls []string) ([]Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, u := range urls {
		want[u] = true
	}
	var out []Asset
	for _, a := range f.sorted(customerID) {
		if want[a.URL] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, customerID, assetID uuid.UUID) (Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.records[assetID]
	if !ok || a.CustomerID != customerID {
		return Asset{}, ErrAssetNotFound
	}
	return a, nil
}

func (f *fakeRepo) HasAsset(_ context.Context, customerID uuid.UUID, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.records {
		if a.CustomerID == customerID && a.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) Delete(_ context.Context, customerID, assetID uuid.UUID) (Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledger != nil && f.ledger.held == 0 {
		f.unheldDeletes++
	}
	a, ok := f.records[assetID]
	if !ok || a.CustomerID != customerID {
		return Asset{}, ErrAssetNotFound
	}
	delete(f.records, assetID)
	return a, nil
}

type fakeObjectStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	reportSize int64
}

func (f *fakeObjectStore) PutObject(_ context.Context, _, objectName string, reader io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectName] = data
	size := int64(len(data))
	if f.reportSize > 0 {
		size = f.reportSize
	}
	return minio.UploadInfo{Key: objectName, Size: size}, nil
}

func (f *fakeObjectStore) GetObject(_ context.Context, _, objectName string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectName]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) RemoveObject(_ context.Context, _, objectName string, _ minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

type fakeLedger struct {
	released       int64
	held           int
	holds          int
	unheldReleases int
}

func (f *fakeLedger) Hold(context.Context, uuid.UUID) (func(), error) {
	f.held++
	f.holds++
	return func() { f.held-- }, nil
}

func (f *fakeLedger) Release(_ context.Context, _ uuid.UUID, bytes int64) error {
	if f.held == 0 {
		f.unheldReleases++
	}
	f.released += bytes
	return nil
}

type fakePublisher struct {
	types []string
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, _, _ uuid.UUID, _ any) error {
	f.types = append(f.types, eventType)
	return nil
}

func (f *fakePublisher) Close() error { return nil }
