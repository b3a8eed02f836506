package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidSignature   = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrUnknownProvider    = &AppError{http.StatusNotFound, "UNKNOWN_PROVIDER", "Unknown payment provider"}
	ErrGatewayUnavailable = &AppError{http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment provider is unavailable, please retry"}
	ErrGatewayRejected    = &AppError{http.StatusUnprocessableEntity, "GATEWAY_REJECTED", "Payment provider rejected the request"}
	ErrCardDeclined       = &AppError{http.StatusUnprocessableEntity, "CARD_DECLINED", "Card was declined"}
	ErrPaymentNotPending  = &AppError{http.StatusConflict, "PAYMENT_NOT_PENDING", "Payment is not in a state that allows this operation"}
	ErrInvalidAmount      = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
)
