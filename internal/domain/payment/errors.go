package payment

import "errors"

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrForbidden        = errors.New("payment belongs to another user")
)
