package upload

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Category represents the type of upload
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

// IsValidCategory checks a client-supplied category
func IsValidCategory(c string) bool {
	return c == string(CategoryImage) || c == string(CategoryDocument)
}

// Upload represents a stored file record
type Upload struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	UserID       uuid.UUID      `db:"user_id" json:"user_id"`
	Category     Category       `db:"category" json:"category"`
	OriginalName string         `db:"original_name" json:"original_name"`
	MimeType     string         `db:"mime_type" json:"mime_type"`
	Size         int64          `db:"size" json:"size"`
	StorageKey   string         `db:"storage_key" json:"-"`
	URL          string         `db:"url" json:"url"`
	ThumbnailURL sql.NullString `db:"thumbnail_url" json:"-"`
	Width        sql.NullInt64  `db:"width" json:"-"`
	Height       sql.NullInt64  `db:"height" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// View is the API shape of an upload record.
type View struct {
	ID           uuid.UUID `json:"id"`
	Category     Category  `json:"category"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Width        int64     `json:"width,omitempty"`
	Height       int64     `json:"height,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToView converts an upload row to its API shape.
func (u *Upload) ToView() *View {
	v := &View{
		ID:           u.ID,
		Category:     u.Category,
		OriginalName: u.OriginalName,
		MimeType:     u.MimeType,
		Size:         u.Size,
		URL:          u.URL,
		CreatedAt:    u.CreatedAt,
	}
	if u.ThumbnailURL.Valid {
		v.ThumbnailURL = u.ThumbnailURL.String
	}
	if u.Width.Valid {
		v.Width = u.Width.Int64
	}
	if u.Height.Valid {
		v.Height = u.Height.Int64
	}
	return v
}
