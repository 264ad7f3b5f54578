package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tutorhub/tutorhub-api/internal/middleware"
)

func webhookBody(t *testing.T, req *WebhookRequest) *bytes.Buffer {
	t.Helper()
	body := map[string]interface{}{
		"hashKey":        req.HashKey,
		"invoice_key":    req.InvoiceKey,
		"invoice_id":     req.InvoiceID.String(),
		"payment_method": req.PaymentMethod,
		"invoice_status": req.InvoiceStatus,
	}
	if len(req.PayLoad) > 0 {
		body["pay_load"] = json.RawMessage(req.PayLoad)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return bytes.NewBuffer(raw)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	repo := newMemRepo()
	handler := NewHandler(newTestService(repo))

	req := signedWebhook("3001", "INV-H1", "Visa-Mastercard", "paid", nil)
	req.HashKey = "deadbeef"

	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/fawaterak/paid", webhookBody(t, req)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.ledgerLen() != 0 {
		t.Error("rejected webhook must not credit")
	}
}

func TestWebhookHandlerIgnoresNonPaid(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	req := signedWebhook("3002", "INV-H2", "Visa-Mastercard", "cancelled", nil)
	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/fawaterak/paid", webhookBody(t, req)))

	if rec.Code != http.StatusOK {
		t.Fatalf("non-paid status must be acknowledged with 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)
	if data["message"] != "Status is not paid, ignoring" {
		t.Errorf("unexpected message %v", data["message"])
	}
}

func TestWebhookHandlerUnknownPayment(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	req := signedWebhook("3003", "INV-MISSING", "Visa-Mastercard", "paid", nil)
	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/fawaterak/paid", webhookBody(t, req)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookHandlerSettles(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	handler := NewHandler(svc)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 150, "")
	repo.AttachInvoice(ctx, paymentID, userID, "INV-H4", "")

	req := signedWebhook("3004", "INV-H4", "Visa-Mastercard", "paid", nil)
	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/fawaterak/paid", webhookBody(t, req)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)
	if data["paymentId"] != paymentID.String() {
		t.Errorf("expected paymentId %s, got %v", paymentID, data["paymentId"])
	}
	if data["newBalance"] != float64(150) {
		t.Errorf("expected newBalance 150, got %v", data["newBalance"])
	}

	// Replay the delivery byte for byte.
	rec = httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/webhooks/fawaterak/paid", webhookBody(t, req)))
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate must be acknowledged, got %d", rec.Code)
	}
	if data := decodeEnvelope(t, rec); data["message"] != "Payment already processed" {
		t.Errorf("expected already-processed message, got %v", data["message"])
	}
}

func authedRequest(method, target string, body *bytes.Buffer, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestPrepareHandlerValidation(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	body := bytes.NewBufferString(`{"amount": -20}`)
	rec := httptest.NewRecorder()
	handler.Prepare(rec, authedRequest(http.MethodPost, "/payments/fawaterak/prepare", body, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative amount, got %d", rec.Code)
	}
}

func TestPrepareHandlerReturnsPaymentID(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	body := bytes.NewBufferString(`{"amount": 100, "paymentMethod": "card"}`)
	rec := httptest.NewRecorder()
	handler.Prepare(rec, authedRequest(http.MethodPost, "/payments/fawaterak/prepare", body, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)
	id, ok := data["paymentId"].(string)
	if !ok || id == "" {
		t.Fatalf("expected paymentId in response, got %v", data)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("paymentId is not a UUID: %v", err)
	}
}

func TestConfirmHandlerForeignPayment(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	handler := NewHandler(svc)

	owner := uuid.New()
	paymentID, _ := svc.Prepare(context.Background(), owner, 100, "")

	body := bytes.NewBufferString(`{"paymentId": "` + paymentID.String() + `"}`)
	rec := httptest.NewRecorder()
	handler.Confirm(rec, authedRequest(http.MethodPost, "/payments/fawaterak/confirm", body, uuid.New()))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign payment, got %d", rec.Code)
	}
}

func TestPluginHashHandlerDomain(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	req := authedRequest(http.MethodPost, "/payments/fawaterak/hash", bytes.NewBufferString(`{}`), uuid.New())
	req.Host = "127.0.0.1:8080"
	rec := httptest.NewRecorder()
	handler.PluginHash(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)
	if data["domain"] != "localhost" {
		t.Errorf("loopback host must normalize to localhost, got %v", data["domain"])
	}
	if data["hashKey"] == "" {
		t.Error("expected non-empty hashKey")
	}
}

func TestStatusPages(t *testing.T) {
	handler := NewHandler(newTestService(newMemRepo()))

	cases := []struct {
		name string
		fn   http.HandlerFunc
		want string
	}{
		{"success", handler.StatusSuccess, "success"},
		{"fail", handler.StatusFail, "failed"},
		{"pending", handler.StatusPending, "pending"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.fn(rec, httptest.NewRequest(http.MethodGet, "/payments/status/"+tc.name, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tc.name, rec.Code)
		}
		if data := decodeEnvelope(t, rec); data["status"] != tc.want {
			t.Errorf("%s: expected status %q, got %v", tc.name, tc.want, data["status"])
		}
	}
}
