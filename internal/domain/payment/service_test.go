package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutorhub-api/internal/pkg/fawaterak"
)

// memRepo is a mutex-guarded in-memory Repository. Settle applies the same
// only-if-PENDING transition the SQL repository enforces, which makes it a
// faithful stand-in for the race tests.
type memRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*Payment
	balances map[uuid.UUID]float64
	ledger   []string // deposit descriptions, one per credit
}

func newMemRepo() *memRepo {
	return &memRepo{
		payments: make(map[uuid.UUID]*Payment),
		balances: make(map[uuid.UUID]float64),
	}
}

func (m *memRepo) Prepare(ctx context.Context, userID uuid.UUID, amount float64, paymentMethod string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.UserID == userID && p.Amount == amount && p.Status == StatusPending {
			p.Status = StatusCancelled
		}
	}
	id := uuid.New()
	m.payments[id] = &Payment{
		ID:        id,
		UserID:    userID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return id, nil
}

func (m *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetByInvoiceKey(ctx context.Context, invoiceKey string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.FawaterakInvoiceID.Valid && p.FawaterakInvoiceID.String == invoiceKey {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) AttachInvoice(ctx context.Context, id, userID uuid.UUID, invoiceKey, invoiceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.FawaterakInvoiceID = sql.NullString{String: invoiceKey, Valid: invoiceKey != ""}
	p.FawaterakInvoiceURL = sql.NullString{String: invoiceURL, Valid: invoiceURL != ""}
	return nil
}

func (m *memRepo) BackfillInvoiceKey(ctx context.Context, id uuid.UUID, invoiceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok && !p.FawaterakInvoiceID.Valid {
		p.FawaterakInvoiceID = sql.NullString{String: invoiceKey, Valid: true}
	}
	return nil
}

func (m *memRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Settle(ctx context.Context, id uuid.UUID, paymentMethod, description string) (*SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if p.Status != StatusPending {
		return &SettleResult{Settled: false, NewBalance: m.balances[p.UserID]}, nil
	}
	p.Status = StatusPaid
	p.PaidAt = sql.NullTime{Time: time.Now(), Valid: true}
	m.balances[p.UserID] += p.Amount
	m.ledger = append(m.ledger, description)
	return &SettleResult{Settled: true, NewBalance: m.balances[p.UserID]}, nil
}

func (m *memRepo) ledgerLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledger)
}

const testAPIKey = "test-api-key"

func newTestService(repo Repository) *Service {
	gateway := fawaterak.NewClient(fawaterak.Config{
		BaseURL:     "http://127.0.0.1:1",
		APIKey:      testAPIKey,
		ProviderKey: "test-provider-key",
	})
	return NewService(repo, gateway)
}

func signedWebhook(invoiceID, invoiceKey, method, status string, payLoad interface{}) *WebhookRequest {
	req := &WebhookRequest{
		InvoiceID:     FlexString(invoiceID),
		InvoiceKey:    invoiceKey,
		PaymentMethod: method,
		InvoiceStatus: status,
		HashKey:       fawaterak.WebhookSignature(testAPIKey, invoiceID, invoiceKey, method),
	}
	if payLoad != nil {
		raw, _ := json.Marshal(payLoad)
		req.PayLoad = raw
	}
	return req
}

func TestProcessWebhookSettlesPayment(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, err := svc.Prepare(ctx, userID, 150, "card")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := repo.AttachInvoice(ctx, paymentID, userID, "INV-1", "https://pay.example/INV-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	result, err := svc.ProcessWebhook(ctx, signedWebhook("1001", "INV-1", "Visa-Mastercard", "paid", nil))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if result.AlreadyProcessed || result.Ignored {
		t.Fatalf("expected fresh settlement, got %+v", result)
	}
	if result.PaymentID != paymentID {
		t.Errorf("expected payment %s, got %s", paymentID, result.PaymentID)
	}
	if result.NewBalance != 150 {
		t.Errorf("expected balance 150, got %v", result.NewBalance)
	}

	p, _ := repo.GetByID(ctx, paymentID)
	if p.Status != StatusPaid {
		t.Errorf("expected status PAID, got %s", p.Status)
	}
	if repo.ledgerLen() != 1 {
		t.Errorf("expected 1 ledger entry, got %d", repo.ledgerLen())
	}
}

func TestProcessWebhookDuplicateDelivery(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 200, "")
	repo.AttachInvoice(ctx, paymentID, userID, "INV-2", "")

	hook := signedWebhook("1002", "INV-2", "Meeza", "paid", nil)
	if _, err := svc.ProcessWebhook(ctx, hook); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	result, err := svc.ProcessWebhook(ctx, hook)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected duplicate delivery to be reported as already processed")
	}
	if result.NewBalance != 200 {
		t.Errorf("expected balance unchanged at 200, got %v", result.NewBalance)
	}
	if repo.ledgerLen() != 1 {
		t.Errorf("expected exactly 1 ledger entry after duplicate, got %d", repo.ledgerLen())
	}
}

func TestProcessWebhookInvalidSignature(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	req := signedWebhook("1003", "INV-3", "Visa-Mastercard", "paid", nil)
	req.PaymentMethod = "Meeza" // signature no longer covers the body

	if _, err := svc.ProcessWebhook(context.Background(), req); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if repo.ledgerLen() != 0 {
		t.Error("rejected webhook must not touch the ledger")
	}
}

func TestProcessWebhookNonPaidStatus(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 50, "")
	repo.AttachInvoice(ctx, paymentID, userID, "INV-4", "")

	result, err := svc.ProcessWebhook(ctx, signedWebhook("1004", "INV-4", "Visa-Mastercard", "expired", nil))
	if err != nil {
		t.Fatalf("expected acknowledged no-op, got %v", err)
	}
	if !result.Ignored {
		t.Fatal("expected non-paid status to be ignored")
	}

	p, _ := repo.GetByID(ctx, paymentID)
	if p.Status != StatusPending {
		t.Errorf("payment must stay PENDING, got %s", p.Status)
	}
}

func TestProcessWebhookResolvesThroughPayload(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	// Invoice linkage was lost: no invoice key on the row.
	paymentID, _ := svc.Prepare(ctx, userID, 75, "")

	hook := signedWebhook("1005", "INV-5", "Visa-Mastercard", "paid", map[string]string{
		"paymentId": paymentID.String(),
		"userId":    userID.String(),
	})
	result, err := svc.ProcessWebhook(ctx, hook)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if result.PaymentID != paymentID {
		t.Fatalf("expected resolution through payLoad, got %s", result.PaymentID)
	}

	// Key must be backfilled so the next delivery resolves directly.
	p, _ := repo.GetByInvoiceKey(ctx, "INV-5")
	if p == nil || p.ID != paymentID {
		t.Error("expected invoice key backfill on the payment row")
	}
}

func TestProcessWebhookDoubleEncodedPayload(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 75, "")

	inner, _ := json.Marshal(map[string]string{"paymentId": paymentID.String()})
	outer, _ := json.Marshal(string(inner)) // payload arrives as a JSON string

	hook := signedWebhook("1006", "INV-6", "Visa-Mastercard", "paid", nil)
	hook.PayLoad = outer
	result, err := svc.ProcessWebhook(ctx, hook)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if result.PaymentID != paymentID {
		t.Fatalf("expected payment resolved from double-encoded payload, got %s", result.PaymentID)
	}
}

func TestProcessWebhookUnknownPayment(t *testing.T) {
	svc := newTestService(newMemRepo())

	_, err := svc.ProcessWebhook(context.Background(), signedWebhook("1007", "INV-MISSING", "Visa-Mastercard", "paid", nil))
	if err != ErrPaymentNotFound {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestConfirmSettlesThenWebhookIsNoop(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 300, "")
	repo.AttachInvoice(ctx, paymentID, userID, "INV-7", "")

	confirm, err := svc.Confirm(ctx, userID, paymentID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirm.AlreadyProcessed {
		t.Fatal("first confirm should be a fresh settlement")
	}
	if confirm.Balance != 300 {
		t.Errorf("expected balance 300, got %v", confirm.Balance)
	}

	hook, err := svc.ProcessWebhook(ctx, signedWebhook("1008", "INV-7", "Visa-Mastercard", "paid", nil))
	if err != nil {
		t.Fatalf("late webhook: %v", err)
	}
	if !hook.AlreadyProcessed {
		t.Fatal("late webhook must land on the already-processed no-op")
	}
	if repo.ledgerLen() != 1 {
		t.Errorf("expected exactly 1 credit, got %d", repo.ledgerLen())
	}
}

func TestConfirmOwnershipAndExistence(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	owner := uuid.New()
	paymentID, _ := svc.Prepare(ctx, owner, 100, "")

	if _, err := svc.Confirm(ctx, uuid.New(), paymentID); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for foreign payment, got %v", err)
	}
	if _, err := svc.Confirm(ctx, owner, uuid.New()); err != ErrPaymentNotFound {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestConcurrentWebhookAndConfirmCreditOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	paymentID, _ := svc.Prepare(ctx, userID, 500, "")
	repo.AttachInvoice(ctx, paymentID, userID, "INV-RACE", "")

	const attempts = 20
	var wg sync.WaitGroup
	wg.Add(attempts * 2)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			hook := signedWebhook(fmt.Sprintf("20%02d", n), "INV-RACE", "Visa-Mastercard", "paid", nil)
			if _, err := svc.ProcessWebhook(ctx, hook); err != nil {
				t.Errorf("webhook: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := svc.Confirm(ctx, userID, paymentID); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := repo.ledgerLen(); got != 1 {
		t.Fatalf("expected exactly 1 credit across %d racing settlements, got %d", attempts*2, got)
	}
	repo.mu.Lock()
	balance := repo.balances[userID]
	repo.mu.Unlock()
	if balance != 500 {
		t.Fatalf("expected balance 500, got %v", balance)
	}
}

func TestPrepareRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(newMemRepo())
	for _, amount := range []float64{0, -10} {
		if _, err := svc.Prepare(context.Background(), uuid.New(), amount, ""); err != ErrInvalidAmount {
			t.Errorf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestPluginHashRequiresConfiguration(t *testing.T) {
	svc := NewService(newMemRepo(), fawaterak.NewClient(fawaterak.Config{}))
	if _, err := svc.PluginHash("example.com"); err != fawaterak.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestDepositDescription(t *testing.T) {
	got := depositDescription(150, "Visa-Mastercard")
	want := "تم إضافة 150 جنيه إلى الرصيد عبر Visa-Mastercard"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if depositDescription(99.5, "") != "تم إضافة 99.50 جنيه إلى الرصيد عبر Fawaterak" {
		t.Errorf("unexpected default-method description: %q", depositDescription(99.5, ""))
	}
}
