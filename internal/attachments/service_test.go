package attachments

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]*Attachment
	nextID int64
	fail   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]*Attachment), nextID: 1}
}

func (r *memoryRepo) Insert(_ context.Context, a *Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	a.ID = r.nextID
	r.nextID++
	a.CreatedAt = time.Now()
	copied := *a
	r.rows[a.ID] = &copied
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memoryRepo) ListForEntity(_ context.Context, entityType string, entityID int64) ([]Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Attachment
	for id := r.nextID - 1; id >= 1; id-- {
		a, ok := r.rows[id]
		if ok && a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func newTestService(t *testing.T, repo Repository, maxBytes int64) (*Service, Storage) {
	t.Helper()
	storage, err := NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, storage, maxBytes, nil, logger), storage
}

func TestUploadStoresAndRandomizesName(t *testing.T) {
	repo := newMemoryRepo()
	svc, storage := newTestService(t, repo, 1024)

	a, err := svc.Upload(context.Background(), "invoice", 7,
		"../../../etc/passwd quote.pdf", 11, strings.NewReader("hello bytes"), 1)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", a.MimeType)
	require.Equal(t, int64(11), a.SizeBytes)
	require.NotContains(t, a.StoredName, "/")
	require.NotEqual(t, a.FileName, a.StoredName)
	require.True(t, strings.HasSuffix(a.StoredName, ".pdf"))

	rc, err := storage.Open(a.StoredName)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello bytes", string(data))
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo, 1024)

	_, err := svc.Upload(context.Background(), "invoice", 7,
		"payload.exe", 4, strings.NewReader("MZ.."), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUploadRejectsUnknownEntityType(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo, 1024)

	_, err := svc.Upload(context.Background(), "spaceship", 7,
		"doc.pdf", 4, strings.NewReader("data"), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUploadRejectsOversizedDeclaredSize(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo, 8)

	_, err := svc.Upload(context.Background(), "invoice", 7,
		"doc.pdf", 1024, strings.NewReader("whatever"), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUploadRejectsOversizedStream(t *testing.T) {
	repo := newMemoryRepo()
	svc, storage := newTestService(t, repo, 8)

	a, err := svc.Upload(context.Background(), "invoice", 7,
		"doc.pdf", 4, strings.NewReader("far more than eight bytes"), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Nil(t, a)
	require.Empty(t, repo.rows)
	_ = storage
}

func TestUploadRemovesBytesWhenInsertFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.fail = shared.ErrConflict
	svc, _ := newTestService(t, repo, 1024)

	_, err := svc.Upload(context.Background(), "invoice", 7,
		"doc.pdf", 4, strings.NewReader("data"), 1)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteRemovesRowAndBytes(t *testing.T) {
	repo := newMemoryRepo()
	svc, storage := newTestService(t, repo, 1024)

	a, err := svc.Upload(context.Background(), "vendor_bill", 3,
		"receipt.png", 3, strings.NewReader("png"), 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), a.ID, 1))
	_, err = repo.Get(context.Background(), a.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = storage.Open(a.StoredName)
	require.Error(t, err)
}

func TestListForEntityFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, repo, 1024)

	_, err := svc.Upload(context.Background(), "quotation", 1, "a.pdf", 1, strings.NewReader("a"), 1)
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), "quotation", 2, "b.pdf", 1, strings.NewReader("b"), 1)
	require.NoError(t, err)

	list, err := svc.ListForEntity(context.Background(), "quotation", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a.pdf", list[0].FileName)
}
