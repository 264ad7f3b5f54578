package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines upload data access
type Repository interface {
	Create(ctx context.Context, u *Upload) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Upload, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates upload repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *Upload) error {
	query := `
		INSERT INTO uploads (id, user_id, category, original_name, mime_type, size, storage_key, url, thumbnail_url, width, height, created_at)
		VALUES (:id, :user_id, :category, :original_name, :mime_type, :size, :storage_key, :url, :thumbnail_url, :width, :height, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("failed to create upload record: %w", err)
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Upload, error) {
	query := `
		SELECT id, user_id, category, original_name, mime_type, size, storage_key, url, thumbnail_url, width, height, created_at
		FROM uploads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	uploads := []*Upload{}
	if err := r.db.SelectContext(ctx, &uploads, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}
