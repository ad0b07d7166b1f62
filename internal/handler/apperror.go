package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingIdentity  = &AppError{http.StatusUnauthorized, "MISSING_IDENTITY", "X-User-ID header required"}
	ErrInvalidIdentity  = &AppError{http.StatusUnauthorized, "INVALID_IDENTITY", "X-User-ID must be a valid UUID"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrAccountExists = &AppError{http.StatusConflict, "ACCOUNT_ALREADY_EXISTS", "Account already exists for this user"}

	ErrUpstreamUnavailable = &AppError{http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Upstream service is unavailable"}
)
