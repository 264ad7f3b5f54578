package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/tutorhub-api/internal/middleware"
	"github.com/tutorhub/tutorhub-api/internal/pkg/fawaterak"
	"github.com/tutorhub/tutorhub-api/internal/pkg/response"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Prepare handles POST /payments/fawaterak/prepare
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	paymentID, err := h.service.Prepare(r.Context(), userID, req.Amount, req.PaymentMethod)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, "invalid amount")
			return
		}
		log.Error().Err(err).Msg("payment prepare failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"paymentId": paymentID})
}

// CreateInvoice handles POST /payments/fawaterak/create. The checkout widget
// posts the gateway payload through us so the API key never reaches the
// browser; X-Original-URL hints which upstream endpoint the widget meant and
// X-Plugin-Proxy asks for the untouched upstream response shape.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	payload, err := io.ReadAll(r.Body)
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		response.BadRequest(w, "invalid invoice payload")
		return
	}

	endpoint := fawaterak.EndpointCreateInvoiceLink
	if original := r.Header.Get("X-Original-URL"); strings.Contains(original, "invoiceInitPay") || strings.Contains(original, "initPay") {
		endpoint = fawaterak.EndpointInvoiceInitPay
	}

	var out map[string]interface{}
	if r.Header.Get("X-Plugin-Proxy") == "true" {
		out, err = h.service.RawInvoiceResponse(r.Context(), userID, endpoint, payload)
	} else {
		out, err = h.service.CreateInvoice(r.Context(), userID, endpoint, payload)
	}
	if err != nil {
		if errors.Is(err, fawaterak.ErrNotConfigured) {
			response.Error(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payment gateway is not configured")
			return
		}
		log.Error().Err(err).Msg("invoice creation failed")
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", "failed to create invoice")
		return
	}

	// Gateway-shaped passthrough, not the standard envelope: the widget
	// parses this body itself.
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// Confirm handles POST /payments/fawaterak/confirm — the owner-invoked
// fallback for a delayed or lost webhook.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		response.BadRequest(w, "paymentId is required")
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		response.BadRequest(w, "invalid paymentId")
		return
	}

	result, err := h.service.Confirm(r.Context(), userID, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			response.NotFound(w, "payment not found")
		case errors.Is(err, ErrForbidden):
			response.Forbidden(w, "payment belongs to another user")
		default:
			log.Error().Err(err).Str("payment_id", paymentID.String()).Msg("payment confirm failed")
			response.InternalError(w)
		}
		return
	}

	message := "Payment confirmed and balance updated"
	if result.AlreadyProcessed {
		message = "Payment already processed"
	}
	response.OK(w, map[string]interface{}{
		"message": message,
		"status":  result.Status,
		"balance": result.Balance,
	})
}

// Webhook handles POST /webhooks/fawaterak/paid. No session auth: the HMAC
// signature is the sole caller identity.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid webhook body")
		return
	}

	result, err := h.service.ProcessWebhook(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			log.Warn().Str("invoice_key", req.InvoiceKey).Msg("webhook rejected: invalid signature")
			response.Unauthorized(w, "invalid hash key")
		case errors.Is(err, ErrPaymentNotFound):
			response.NotFound(w, "payment not found")
		case errors.Is(err, fawaterak.ErrNotConfigured):
			response.Error(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payment gateway is not configured")
		default:
			log.Error().Err(err).Str("invoice_key", req.InvoiceKey).Msg("webhook processing failed")
			response.InternalError(w)
		}
		return
	}

	if result.Ignored {
		response.OK(w, map[string]interface{}{"message": "Status is not paid, ignoring"})
		return
	}
	if result.AlreadyProcessed {
		response.OK(w, map[string]interface{}{
			"message":   "Payment already processed",
			"paymentId": result.PaymentID,
		})
		return
	}
	response.OK(w, map[string]interface{}{
		"paymentId":  result.PaymentID,
		"newBalance": result.NewBalance,
	})
}

// PaymentMethods handles GET /payments/fawaterak/methods
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	raw, err := h.service.PaymentMethods(r.Context())
	if err != nil {
		if errors.Is(err, fawaterak.ErrNotConfigured) {
			response.Error(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payment gateway is not configured")
			return
		}
		log.Error().Err(err).Msg("payment methods fetch failed")
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", "failed to fetch payment methods")
		return
	}

	if r.Header.Get("X-Plugin-Proxy") == "true" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
		return
	}

	response.OK(w, normalizeMethods(raw))
}

// PluginHash handles POST /payments/fawaterak/hash
func (h *Handler) PluginHash(w http.ResponseWriter, r *http.Request) {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	domain := strings.Split(host, ":")[0]
	if domain == "127.0.0.1" {
		domain = "localhost"
	}

	hash, err := h.service.PluginHash(domain)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payment gateway is not configured")
		return
	}
	response.OK(w, map[string]string{"hashKey": hash, "domain": domain})
}

// History handles GET /payments
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
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

	payments, err := h.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, payments)
}

// StatusSuccess handles the gateway redirect landing for completed payments.
func (h *Handler) StatusSuccess(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "success", "message": "تمت عملية الدفع بنجاح"})
}

// StatusFail handles the gateway redirect landing for failed payments.
func (h *Handler) StatusFail(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "failed", "message": "فشلت عملية الدفع"})
}

// StatusPending handles the gateway redirect landing while settlement is in
// flight; the page then calls confirm or listens on /ws/payments.
func (h *Handler) StatusPending(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "pending", "message": "جاري التحقق من عملية الدفع"})
}

// Routes returns payment router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/fawaterak/methods", h.PaymentMethods)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.History)
		r.Post("/fawaterak/prepare", h.Prepare)
		r.Post("/fawaterak/create", h.CreateInvoice)
		r.Post("/fawaterak/confirm", h.Confirm)
		r.Post("/fawaterak/hash", h.PluginHash)
	})

	return r
}

// WebhookRoutes returns webhook router (no auth, signature verified inside)
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/fawaterak/paid", h.Webhook)
	return r
}

// StatusRoutes returns the redirect landing pages
func (h *Handler) StatusRoutes() chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/success", h.StatusSuccess)
	r.HandleFunc("/fail", h.StatusFail)
	r.HandleFunc("/pending", h.StatusPending)
	return r
}

func normalizeMethods(raw json.RawMessage) []map[string]interface{} {
	var decoded struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return []map[string]interface{}{}
	}

	methods := make([]map[string]interface{}, 0, len(decoded.Data))
	for i, m := range decoded.Data {
		name := firstString(m, "name_ar", "name")
		if name == "" {
			name = asString(m["paymentId"])
		}
		methods = append(methods, map[string]interface{}{
			"id":         strconv.Itoa(i) + "-" + asString(m["paymentId"]),
			"originalId": m["paymentId"],
			"name":       name,
			"icon":       m["logo"],
			"commission": m["commission"],
		})
	}
	return methods
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
