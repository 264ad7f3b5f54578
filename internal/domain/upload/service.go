package upload

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/tutorhub-api/internal/pkg/imaging"
	"github.com/tutorhub/tutorhub-api/internal/pkg/storage"
)

// Service handles file uploads: validation, image processing, storage and
// the persisted record.
type Service struct {
	repo      Repository
	store     storage.Storage // nil when uploads are disabled
	processor *imaging.Processor
}

// NewService creates upload service
func NewService(repo Repository, store storage.Storage, processor *imaging.Processor) *Service {
	return &Service{repo: repo, store: store, processor: processor}
}

// Configured reports whether a storage backend is attached.
func (s *Service) Configured() bool { return s.store != nil }

// Upload validates the file, processes images into original+thumbnail,
// stores the blobs and records the upload.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, category, originalName string, reader io.Reader) (*Upload, error) {
	if s.store == nil {
		return nil, ErrNotConfigured
	}
	if !IsValidCategory(category) {
		return nil, ErrInvalidCategory
	}

	data, mimeType, err := storage.ValidateFile(reader, category)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := time.Now()
	key := objectKey(userID, id, now, storage.ExtensionForMime(mimeType))

	u := &Upload{
		ID:           id,
		UserID:       userID,
		Category:     Category(category),
		OriginalName: sanitizeName(originalName),
		MimeType:     mimeType,
		CreatedAt:    now,
	}

	body := data
	if category == string(CategoryImage) {
		processed, err := s.processor.Process(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to process image: %w", err)
		}
		body = processed.Original
		u.Width = sql.NullInt64{Int64: int64(processed.Width), Valid: true}
		u.Height = sql.NullInt64{Int64: int64(processed.Height), Valid: true}

		thumbKey := thumbnailKey(key)
		if err := s.store.Put(ctx, thumbKey, bytes.NewReader(processed.Thumbnail), mimeType); err != nil {
			return nil, fmt.Errorf("failed to store thumbnail: %w", err)
		}
		u.ThumbnailURL = sql.NullString{String: s.store.GetURL(thumbKey), Valid: true}
	}

	if err := s.store.Put(ctx, key, bytes.NewReader(body), mimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	u.Size = int64(len(body))
	u.StorageKey = key
	u.URL = s.store.GetURL(key)

	if err := s.repo.Create(ctx, u); err != nil {
		// Orphaned blobs are cleaned up rather than left dangling.
		_ = s.store.Delete(ctx, key)
		if u.ThumbnailURL.Valid {
			_ = s.store.Delete(ctx, thumbnailKey(key))
		}
		return nil, err
	}

	log.Info().Str("upload_id", id.String()).Str("user_id", userID.String()).Str("mime", mimeType).Int64("size", u.Size).Msg("file uploaded")
	return u, nil
}

// ListByUser returns the user's uploads, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Upload, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// objectKey builds uploads/<yyyy/mm>/<user>/<id><ext>
func objectKey(userID, id uuid.UUID, now time.Time, ext string) string {
	return fmt.Sprintf("uploads/%s/%s/%s%s", now.Format("2006/01"), userID, id, ext)
}

func thumbnailKey(key string) string {
	ext := filepath.Ext(key)
	return strings.TrimSuffix(key, ext) + "_thumb" + ext
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
