package course

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/tutorhub-api/internal/pkg/response"
)

// Handler handles course HTTP requests
type Handler struct {
	repo Repository
}

// NewHandler creates course handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /courses
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	courses, err := h.repo.ListPublished(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list courses")
		response.InternalError(w)
		return
	}

	out := make([]*Public, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.ToPublic())
	}
	response.OK(w, out)
}

// Get handles GET /courses/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid course id")
		return
	}

	c, err := h.repo.GetPublishedByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "course not found")
			return
		}
		log.Error().Err(err).Str("course_id", id.String()).Msg("failed to get course")
		response.InternalError(w)
		return
	}

	response.OK(w, c.ToPublic())
}

// Routes returns course router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}
