package attachments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists attachment metadata. Bytes live on disk.
type Repository interface {
	Insert(ctx context.Context, a *Attachment) error
	Get(ctx context.Context, id int64) (*Attachment, error)
	ListForEntity(ctx context.Context, entityType string, entityID int64) ([]Attachment, error)
	Delete(ctx context.Context, id int64) error
}

type pgRepository struct {
	db *db.DB
}

// NewRepository builds the PostgreSQL-backed attachment repository.
func NewRepository(database *db.DB) Repository {
	return &pgRepository{db: database}
}

func (r *pgRepository) Insert(ctx context.Context, a *Attachment) error {
	row := r.db.Pool.QueryRow(ctx, `
		INSERT INTO attachments
			(entity_type, entity_id, file_name, stored_name, mime_type, size_bytes, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, created_at`,
		a.EntityType, a.EntityID, a.FileName, a.StoredName, a.MimeType, a.SizeBytes, a.UploadedBy)
	return row.Scan(&a.ID, &a.CreatedAt)
}

func (r *pgRepository) Get(ctx context.Context, id int64) (*Attachment, error) {
	var a Attachment
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, entity_type, entity_id, file_name, stored_name, mime_type, size_bytes, uploaded_by, created_at
		FROM attachments WHERE id = $1`, id)
	err := row.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.FileName, &a.StoredName,
		&a.MimeType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: attachment %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgRepository) ListForEntity(ctx context.Context, entityType string, entityID int64) ([]Attachment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, entity_type, entity_id, file_name, stored_name, mime_type, size_bytes, uploaded_by, created_at
		FROM attachments WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id DESC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.FileName, &a.StoredName,
			&a.MimeType, &a.SizeBytes, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: attachment %d", shared.ErrNotFound, id)
	}
	return nil
}
