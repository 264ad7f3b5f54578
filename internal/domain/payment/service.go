package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tutorhub/tutorhub-api/internal/pkg/fawaterak"
)

// SettlementNotifier pushes a settlement event to the paying user, so the
// pending page learns about the credit without polling. Optional.
type SettlementNotifier interface {
	NotifySettled(userID, paymentID uuid.UUID, amount, newBalance float64)
}

// Service handles the payment reconciliation flow: prepare, invoice creation,
// webhook settlement and the client-side confirm fallback.
type Service struct {
	repo     Repository
	gateway  *fawaterak.Client
	notifier SettlementNotifier
}

// NewService creates payment service
func NewService(repo Repository, gateway *fawaterak.Client) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// SetNotifier attaches the realtime settlement notifier.
func (s *Service) SetNotifier(n SettlementNotifier) { s.notifier = n }

// Prepare creates a PENDING payment intent, superseding any PENDING intent
// for the same user+amount.
func (s *Service) Prepare(ctx context.Context, userID uuid.UUID, amount float64, paymentMethod string) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	id, err := s.repo.Prepare(ctx, userID, amount, paymentMethod)
	if err != nil {
		return uuid.Nil, err
	}
	log.Info().Str("payment_id", id.String()).Str("user_id", userID.String()).Float64("amount", amount).Msg("payment prepared")
	return id, nil
}

// CreateInvoice forwards the widget's invoice payload to the gateway,
// normalizes the heterogeneous response, and links the recovered invoice
// key/URL to the payment named in the payload. The gateway's own response
// shape is returned so the widget sees exactly what it expects.
func (s *Service) CreateInvoice(ctx context.Context, userID uuid.UUID, endpoint string, payload json.RawMessage) (map[string]interface{}, error) {
	if !s.gateway.Configured() {
		return nil, fawaterak.ErrNotConfigured
	}

	paymentID := extractPaymentID(payload)

	result, err := s.gateway.CreateInvoice(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	if paymentID != uuid.Nil {
		if err := s.repo.AttachInvoice(ctx, paymentID, userID, result.InvoiceKey, result.InvoiceURL); err != nil {
			// The invoice exists upstream; losing the linkage is recoverable
			// through the webhook payload, so log and continue.
			log.Error().Err(err).Str("payment_id", paymentID.String()).Str("invoice_key", result.InvoiceKey).Msg("failed to attach invoice")
		}
	} else {
		log.Warn().Str("user_id", userID.String()).Msg("invoice payload carried no paymentId")
	}

	out := map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"invoiceKey": result.InvoiceKey,
			"invoiceUrl": result.InvoiceURL,
		},
	}
	if data, ok := result.Raw["data"].(map[string]interface{}); ok {
		merged := out["data"].(map[string]interface{})
		for k, v := range data {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	for k, v := range result.Raw {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out, nil
}

// RawInvoiceResponse returns the untouched gateway response for plugin-proxy
// calls; the widget validates the structure itself.
func (s *Service) RawInvoiceResponse(ctx context.Context, userID uuid.UUID, endpoint string, payload json.RawMessage) (map[string]interface{}, error) {
	if !s.gateway.Configured() {
		return nil, fawaterak.ErrNotConfigured
	}
	paymentID := extractPaymentID(payload)
	result, err := s.gateway.CreateInvoice(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if paymentID != uuid.Nil {
		if err := s.repo.AttachInvoice(ctx, paymentID, userID, result.InvoiceKey, result.InvoiceURL); err != nil {
			log.Error().Err(err).Str("payment_id", paymentID.String()).Msg("failed to attach invoice")
		}
	}
	return result.Raw, nil
}

// WebhookResult is the outcome of a webhook delivery.
type WebhookResult struct {
	PaymentID        uuid.UUID
	NewBalance       float64
	AlreadyProcessed bool
	Ignored          bool // status was not "paid"
}

// ProcessWebhook validates and settles an inbound paid-invoice notification.
// Signature first, then the status gate, then payment resolution, then the
// idempotent settlement unit. Duplicate deliveries and races with Confirm
// both land on the AlreadyProcessed no-op.
func (s *Service) ProcessWebhook(ctx context.Context, req *WebhookRequest) (*WebhookResult, error) {
	if !s.gateway.Configured() {
		return nil, fawaterak.ErrNotConfigured
	}

	if !fawaterak.VerifyWebhookSignature(
		s.gateway.APIKey(),
		req.InvoiceID.String(),
		req.InvoiceKey,
		req.PaymentMethod,
		req.HashKey,
	) {
		return nil, ErrInvalidSignature
	}

	// Anything but "paid" is acknowledged without side effects so the
	// gateway's retry loop stays quiet.
	if !strings.EqualFold(req.InvoiceStatus, "paid") {
		log.Info().Str("invoice_key", req.InvoiceKey).Str("status", req.InvoiceStatus).Msg("webhook ignored: status not paid")
		return &WebhookResult{Ignored: true}, nil
	}

	p, err := s.resolvePayment(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, p, req.PaymentMethod)
}

// resolvePayment tries the invoice key first, then the paymentId echoed in
// the opaque payload. When the payload path wins and the row has no invoice
// key yet, the key is backfilled so retries resolve directly.
func (s *Service) resolvePayment(ctx context.Context, req *WebhookRequest) (*Payment, error) {
	if req.InvoiceKey != "" {
		p, err := s.repo.GetByInvoiceKey(ctx, req.InvoiceKey)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	payload := req.ParsePayload()
	if payload.PaymentID != "" {
		id, err := uuid.Parse(payload.PaymentID)
		if err == nil {
			p, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if p != nil {
				if req.InvoiceKey != "" && !p.FawaterakInvoiceID.Valid {
					if err := s.repo.BackfillInvoiceKey(ctx, p.ID, req.InvoiceKey); err != nil {
						log.Error().Err(err).Str("payment_id", p.ID.String()).Msg("failed to backfill invoice key")
					}
				}
				return p, nil
			}
		}
	}

	log.Warn().Str("invoice_key", req.InvoiceKey).Str("pay_load_payment_id", payload.PaymentID).Msg("webhook payment not found")
	return nil, ErrPaymentNotFound
}

// settle runs the shared settlement unit. There is deliberately no status
// pre-check here: the conditional update inside Settle is the one and only
// arbiter, so a duplicate delivery racing a confirm cannot double-credit.
func (s *Service) settle(ctx context.Context, p *Payment, method string) (*WebhookResult, error) {
	result, err := s.repo.Settle(ctx, p.ID, method, depositDescription(p.Amount, method))
	if err != nil {
		return nil, err
	}
	if !result.Settled {
		// Lost the race to the other reconciliation path.
		return &WebhookResult{PaymentID: p.ID, NewBalance: result.NewBalance, AlreadyProcessed: true}, nil
	}

	log.Info().Str("payment_id", p.ID.String()).Str("user_id", p.UserID.String()).Float64("amount", p.Amount).Float64("balance", result.NewBalance).Msg("payment settled")
	if s.notifier != nil {
		s.notifier.NotifySettled(p.UserID, p.ID, p.Amount, result.NewBalance)
	}
	return &WebhookResult{PaymentID: p.ID, NewBalance: result.NewBalance}, nil
}

// ConfirmResult is the outcome of the client-side confirm fallback.
type ConfirmResult struct {
	Status           Status
	Balance          float64
	AlreadyProcessed bool
}

// Confirm force-settles a payment on behalf of its owner when the webhook is
// delayed or lost. It runs the exact same settlement unit as the webhook
// path; the conditional update makes the two paths safe to race.
func (s *Service) Confirm(ctx context.Context, userID, paymentID uuid.UUID) (*ConfirmResult, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}

	res, err := s.settle(ctx, p, "")
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{
		Status:           StatusPaid,
		Balance:          res.NewBalance,
		AlreadyProcessed: res.AlreadyProcessed,
	}, nil
}

// History returns the user's payment intents, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// PluginHash generates the checkout-widget hash for the requesting domain.
func (s *Service) PluginHash(domain string) (string, error) {
	if !s.gateway.Configured() || s.gateway.ProviderKey() == "" {
		return "", fawaterak.ErrNotConfigured
	}
	return fawaterak.PluginHash(s.gateway.APIKey(), s.gateway.ProviderKey(), domain), nil
}

// PaymentMethods proxies the gateway's method list.
func (s *Service) PaymentMethods(ctx context.Context) (json.RawMessage, error) {
	return s.gateway.GetPaymentMethods(ctx)
}

func depositDescription(amount float64, method string) string {
	if strings.TrimSpace(method) == "" {
		method = "Fawaterak"
	}
	return fmt.Sprintf("تم إضافة %s جنيه إلى الرصيد عبر %s", FormatAmount(amount), method)
}

// extractPaymentID digs the paymentId out of the invoice payload's payLoad
// field, which may itself be an object or a JSON-encoded string.
func extractPaymentID(payload json.RawMessage) uuid.UUID {
	var envelope struct {
		PayLoad json.RawMessage `json:"payLoad"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.PayLoad) == 0 {
		return uuid.Nil
	}
	req := WebhookRequest{PayLoad: envelope.PayLoad}
	inner := req.ParsePayload()
	if inner.PaymentID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(inner.PaymentID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
