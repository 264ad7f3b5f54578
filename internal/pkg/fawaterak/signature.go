package fawaterak

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// WebhookSignature computes the hash Fawaterak attaches to paid-invoice
// webhooks. The base string field order is fixed by the gateway:
// InvoiceId=<id>&InvoiceKey=<key>&PaymentMethod=<method>, HMAC-SHA256 keyed
// with the merchant API key, hex encoded.
func WebhookSignature(apiKey, invoiceID, invoiceKey, paymentMethod string) string {
	base := fmt.Sprintf("InvoiceId=%s&InvoiceKey=%s&PaymentMethod=%s", invoiceID, invoiceKey, paymentMethod)
	return sign(apiKey, base)
}

// VerifyWebhookSignature recomputes the webhook hash and compares it against
// the received one. This is the only authentication the webhook endpoint has.
func VerifyWebhookSignature(apiKey, invoiceID, invoiceKey, paymentMethod, received string) bool {
	if apiKey == "" || received == "" {
		return false
	}
	expected := WebhookSignature(apiKey, invoiceID, invoiceKey, paymentMethod)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// PluginHash computes the hash the embedded checkout widget requests before
// it talks to the gateway: HMAC-SHA256(apiKey, "Domain=<d>&ProviderKey=<pk>").
func PluginHash(apiKey, providerKey, domain string) string {
	base := fmt.Sprintf("Domain=%s&ProviderKey=%s", domain, providerKey)
	return sign(apiKey, base)
}

func sign(key, base string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}
