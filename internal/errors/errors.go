// Package errors provides the structured error type shared by services and
// handlers. Service-layer code returns *AppError values so that responses stay
// consistent and never leak storage details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches on error code so wrapped copies compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid nickname or password", StatusCode: http.StatusUnauthorized}
	ErrInvalidToken       = &AppError{Code: "INVALID_TOKEN", Message: "Invalid or expired token", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
	ErrInvalidAPIKey      = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrOpsNotConfigured   = &AppError{Code: "OPS_NOT_CONFIGURED", Message: "Operations endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound      = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail    = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
	ErrDuplicateNickname = &AppError{Code: "DUPLICATE_NICKNAME", Message: "This nickname is already taken", StatusCode: http.StatusConflict}
	ErrAlreadyAdmin      = &AppError{Code: "ALREADY_ADMIN", Message: "User is already an administrator", StatusCode: http.StatusBadRequest}
	ErrNotAdmin          = &AppError{Code: "NOT_ADMIN", Message: "User is not an administrator", StatusCode: http.StatusBadRequest}
	ErrOwnerImmutable    = &AppError{Code: "OWNER_IMMUTABLE", Message: "Owner rights cannot be removed", StatusCode: http.StatusBadRequest}
)

// Ledger errors.
var (
	ErrCompanyNotFound    = &AppError{Code: "COMPANY_NOT_FOUND", Message: "Company not found", StatusCode: http.StatusNotFound}
	ErrPositionNotFound   = &AppError{Code: "POSITION_NOT_FOUND", Message: "Investment not found", StatusCode: http.StatusNotFound}
	ErrInsufficientFunds  = &AppError{Code: "INSUFFICIENT_FUNDS", Message: "Insufficient balance", StatusCode: http.StatusBadRequest}
	ErrInsufficientShares = &AppError{Code: "INSUFFICIENT_SHARES", Message: "Insufficient shares for this sale", StatusCode: http.StatusBadRequest}
)

// Support chat errors.
var (
	ErrChatNotFound      = &AppError{Code: "CHAT_NOT_FOUND", Message: "Chat not found", StatusCode: http.StatusNotFound}
	ErrChatUnavailable   = &AppError{Code: "CHAT_UNAVAILABLE", Message: "The chat is no longer available", StatusCode: http.StatusConflict}
	ErrInvalidChatState  = &AppError{Code: "INVALID_CHAT_STATE", Message: "This action is not allowed in the chat's current state", StatusCode: http.StatusConflict}
	ErrInvalidAttachment = &AppError{Code: "INVALID_ATTACHMENT", Message: "Invalid attachment type", StatusCode: http.StatusBadRequest}
)
