package course

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Course represents a published tutoring course
type Course struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	TeacherID   uuid.UUID      `db:"teacher_id" json:"teacher_id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Price       float64        `db:"price" json:"price"`
	ImageURL    sql.NullString `db:"image_url" json:"-"`
	IsPublished bool           `db:"is_published" json:"is_published"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Public is the catalog view of a course.
type Public struct {
	ID          uuid.UUID `json:"id"`
	TeacherID   uuid.UUID `json:"teacherId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ToPublic converts a course row to its catalog view.
func (c *Course) ToPublic() *Public {
	p := &Public{
		ID:          c.ID,
		TeacherID:   c.TeacherID,
		Title:       c.Title,
		Description: c.Description,
		Price:       c.Price,
		CreatedAt:   c.CreatedAt,
	}
	if c.ImageURL.Valid {
		p.ImageURL = c.ImageURL.String
	}
	return p
}
