package service

import "errors"

var (
	ErrInvalidRequest             = errors.New("invalid request")
	ErrRefundNotFound             = errors.New("refund not found")
	ErrAlreadyRefunded            = errors.New("this charge has already been refunded")
	ErrAmountExceedsRemaining     = errors.New("refund amount exceeds remaining refundable amount")
	ErrOriginalAmountUnresolvable = errors.New("unable to verify original charge amount")
	ErrPersistence                = errors.New("failed to persist refund")
	ErrProviderUnsupported        = errors.New("provider is not supported")
	ErrSignatureInvalid           = errors.New("invalid webhook signature")
	ErrMalformedWebhook           = errors.New("malformed webhook payload")
)
