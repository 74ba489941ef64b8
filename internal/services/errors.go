package services

import "errors"

// Common service errors
var (
	ErrNotFound              = errors.New("record not found")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidState          = errors.New("invalid state transition")
	ErrDuplicate             = errors.New("duplicate record")
	ErrConflict              = errors.New("conflicting concurrent update")
	ErrValidation            = errors.New("validation failed")
	ErrNotRetryable          = errors.New("payment is not eligible for retry")
	ErrPaymentMethodRequired = errors.New("no usable payment method on file")
)
