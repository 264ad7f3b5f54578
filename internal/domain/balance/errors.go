package balance

import "errors"

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrUserNotFound  = errors.New("user not found")
)
