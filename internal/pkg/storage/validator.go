package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrInvalidMimeType = errors.New("file type not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)

// AllowedMimeTypes per upload category. MIME is detected from content, never
// trusted from the request.
var AllowedMimeTypes = map[string][]string{
	"image":    {"image/jpeg", "image/png", "image/webp", "image/gif"},
	"document": {"application/pdf"},
}

// MaxFileSizes per upload category, in bytes.
var MaxFileSizes = map[string]int64{
	"image":    10 * 1024 * 1024,
	"document": 20 * 1024 * 1024,
}

// ValidateFile reads at most maxSize bytes, detects the MIME type from magic
// bytes and checks it against the category's allow-list.
func ValidateFile(reader io.Reader, category string) ([]byte, string, error) {
	maxSize, ok := MaxFileSizes[category]
	if !ok {
		return nil, "", fmt.Errorf("unknown category: %s", category)
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return nil, "", ErrFileTooLarge
	}

	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, t := range AllowedMimeTypes[category] {
		if t == mimeType {
			return data, mimeType, nil
		}
	}
	return nil, "", ErrInvalidMimeType
}

// ExtensionForMime returns the canonical file extension for a MIME type
func ExtensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}
