package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// allowedExtensions maps the accepted file extensions to the MIME type served
// back on download.
var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".txt":  "text/plain",
}

// Service stores files against business documents.
type Service struct {
	repo     Repository
	storage  Storage
	maxBytes int64
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, storage Storage, maxBytes int64,
	audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, storage: storage, maxBytes: maxBytes, audit: audit, logger: logger}
}

// Upload validates and stores one file. The stored name is randomized so a
// hostile original filename never reaches the filesystem.
func (s *Service) Upload(ctx context.Context, entityType string, entityID int64,
	fileName string, size int64, r io.Reader, actorID int64) (*Attachment, error) {
	if !entityTypes[entityType] {
		return nil, fmt.Errorf("%w: unknown entity type %q", shared.ErrValidation, entityType)
	}
	if entityID <= 0 {
		return nil, fmt.Errorf("%w: entity_id required", shared.ErrValidation)
	}
	if size > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", shared.ErrValidation, s.maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	mimeType, ok := allowedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: file type %q not accepted", shared.ErrValidation, ext)
	}

	storedName := uuid.NewString() + ext
	written, err := s.storage.Save(storedName, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", fileName, err)
	}
	if written > s.maxBytes {
		if err := s.storage.Remove(storedName); err != nil {
			s.logger.Warn("remove oversized upload", slog.String("file", storedName), slog.Any("error", err))
		}
		return nil, fmt.Errorf("%w: file exceeds %d bytes", shared.ErrValidation, s.maxBytes)
	}

	a := &Attachment{
		EntityType: entityType,
		EntityID:   entityID,
		FileName:   filepath.Base(fileName),
		StoredName: storedName,
		MimeType:   mimeType,
		SizeBytes:  written,
		UploadedBy: actorID,
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		if removeErr := s.storage.Remove(storedName); removeErr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("file", storedName), slog.Any("error", removeErr))
		}
		return nil, err
	}
	s.recordAudit(ctx, actorID, "attachment.upload", a.ID, map[string]any{
		"entity": entityType, "file": a.FileName,
	})
	return a, nil
}

// ListForEntity returns the attachments linked to one document.
func (s *Service) ListForEntity(ctx context.Context, entityType string, entityID int64) ([]Attachment, error) {
	if !entityTypes[entityType] {
		return nil, fmt.Errorf("%w: unknown entity type %q", shared.ErrValidation, entityType)
	}
	return s.repo.ListForEntity(ctx, entityType, entityID)
}

// Open returns the attachment metadata and a reader over its bytes. The
// caller closes the reader.
func (s *Service) Open(ctx context.Context, id int64) (*Attachment, io.ReadCloser, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(a.StoredName)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", a.FileName, err)
	}
	return a, rc, nil
}

// Delete removes the metadata row and then the bytes. A failed byte removal
// is logged, not surfaced; the row is already gone.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Remove(a.StoredName); err != nil {
		s.logger.Warn("remove attachment bytes", slog.String("file", a.StoredName), slog.Any("error", err))
	}
	s.recordAudit(ctx, actorID, "attachment.delete", id, map[string]any{"file": a.FileName})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "attachment",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
