package fawaterak

import "fmt"

// The gateway's response shape is not stable across endpoints and account
// versions: the invoice key and redirect URL have been observed both nested
// under "data" and flat at the top level, under several field names. Each
// candidate path is probed in order and the first non-empty value wins.

var invoiceKeyPaths = [][]string{
	{"data", "invoice_key"},
	{"data", "invoiceKey"},
	{"data", "invoice_id"},
	{"invoice_key"},
	{"invoiceKey"},
	{"invoice_id"},
}

var invoiceURLPaths = [][]string{
	{"data", "invoiceUrl"},
	{"data", "frame_url"},
	{"data", "invoice_url"},
	{"data", "url"},
	{"data", "payment_data", "redirectTo"},
	{"data", "payment_data", "redirect_to"},
	{"data", "payment_data", "url"},
	{"data", "redirectTo"},
	{"data", "redirect_to"},
	{"invoiceUrl"},
	{"frame_url"},
	{"invoice_url"},
	{"url"},
	{"payment_data", "redirectTo"},
	{"payment_data", "redirect_to"},
	{"payment_data", "url"},
	{"redirectTo"},
	{"redirect_to"},
}

func extractString(doc map[string]interface{}, paths [][]string) string {
	for _, path := range paths {
		if v := lookup(doc, path); v != "" {
			return v
		}
	}
	return ""
}

func lookup(doc map[string]interface{}, path []string) string {
	var cur interface{} = doc
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		// invoice ids come back as JSON numbers on some accounts
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
