package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrCardDeclined       = errors.New("card declined")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrUnmappedStatus     = errors.New("unmapped provider status")
	ErrProtocolCollision  = errors.New("protocol collision")
	ErrExternalIDTaken    = errors.New("external id already set")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidRequest     = errors.New("invalid request")
)
