package upload

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/tutorhub-api/internal/middleware"
	"github.com/tutorhub/tutorhub-api/internal/pkg/response"
	"github.com/tutorhub/tutorhub-api/internal/pkg/storage"
)

// multipart form memory limit; larger parts spill to temp files
const maxMultipartMemory = 8 << 20

// Handler handles upload HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates upload handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /uploads (multipart: file, category)
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	category := r.FormValue("category")
	if category == "" {
		category = string(CategoryImage)
	}

	u, err := h.service.Upload(r.Context(), userID, category, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			response.Error(w, http.StatusInternalServerError, "NOT_CONFIGURED", "file storage is not configured")
		case errors.Is(err, ErrInvalidCategory):
			response.BadRequest(w, "category must be 'image' or 'document'")
		case errors.Is(err, storage.ErrFileTooLarge):
			response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum size")
		case errors.Is(err, storage.ErrInvalidMimeType):
			response.BadRequest(w, "file type not allowed")
		case errors.Is(err, storage.ErrEmptyFile):
			response.BadRequest(w, "file is empty")
		default:
			log.Error().Err(err).Str("user_id", userID.String()).Msg("upload failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, u.ToView())
}

// List handles GET /uploads
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	uploads, err := h.service.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list uploads")
		response.InternalError(w)
		return
	}

	out := make([]*View, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, u.ToView())
	}
	response.OK(w, out)
}

// Routes returns upload router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}
