package payment

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// PrepareRequest is the body of POST /payments/fawaterak/prepare
type PrepareRequest struct {
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"paymentMethod"`
}

// ConfirmRequest is the body of POST /payments/fawaterak/confirm
type ConfirmRequest struct {
	PaymentID string `json:"paymentId"`
}

// WebhookRequest is the body the gateway posts to /webhooks/fawaterak/paid.
// invoice_id arrives as a number on some accounts and a string on others,
// and pay_load may be a JSON object or a JSON-encoded string.
type WebhookRequest struct {
	HashKey         string          `json:"hashKey"`
	InvoiceKey      string          `json:"invoice_key"`
	InvoiceID       FlexString      `json:"invoice_id"`
	PaymentMethod   string          `json:"payment_method"`
	InvoiceStatus   string          `json:"invoice_status"`
	PayLoad         json.RawMessage `json:"pay_load"`
	ReferenceNumber FlexString      `json:"referenceNumber"`
}

// WebhookPayload is the opaque payload echoed back by the gateway; it is
// attached at invoice creation time and carries the payment identity.
type WebhookPayload struct {
	PaymentID string `json:"paymentId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// ParsePayload decodes the echoed pay_load, tolerating the double-encoded
// string form. A malformed payload is not an error: resolution falls back to
// the invoice key.
func (r *WebhookRequest) ParsePayload() WebhookPayload {
	var out WebhookPayload
	raw := bytes.TrimSpace(r.PayLoad)
	if len(raw) == 0 {
		return out
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return out
		}
		raw = []byte(inner)
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// FlexString accepts both JSON strings and JSON numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// FormatAmount renders an EGP amount the way the ledger descriptions and the
// gateway expect: no trailing zeros beyond two decimals.
func FormatAmount(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	if len(s) > 3 && s[len(s)-3] == '.' && s[len(s)-2:] == "00" {
		return s[:len(s)-3]
	}
	return s
}
