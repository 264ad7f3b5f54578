package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines course data access
type Repository interface {
	ListPublished(ctx context.Context, limit, offset int) ([]*Course, error)
	GetPublishedByID(ctx context.Context, id uuid.UUID) (*Course, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates course repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListPublished(ctx context.Context, limit, offset int) ([]*Course, error) {
	query := `
		SELECT id, teacher_id, title, description, price, image_url, is_published, created_at, updated_at
		FROM courses
		WHERE is_published = true
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	courses := []*Course{}
	if err := r.db.SelectContext(ctx, &courses, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

func (r *repository) GetPublishedByID(ctx context.Context, id uuid.UUID) (*Course, error) {
	query := `
		SELECT id, teacher_id, title, description, price, image_url, is_published, created_at, updated_at
		FROM courses
		WHERE id = $1 AND is_published = true
	`
	var c Course
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}
