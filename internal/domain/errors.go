package domain

import "net/http"

// APIError is the problem-details body returned for every failed request
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
	// Blocking carries the open task names when a stage cannot advance
	Blocking []string `json:"blocking,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeNotFound      = "not_found"
	ErrorTypeBadRequest    = "bad_request"
	ErrorTypeConflict      = "conflict"
	ErrorTypeUnauthorized  = "unauthorized"
	ErrorTypeForbidden     = "forbidden"
	ErrorTypeUnprocessable = "unprocessable"
	ErrorTypeInternal      = "internal_error"
)

var errorTitles = map[string]string{
	ErrorTypeValidation:    "Validation Failed",
	ErrorTypeNotFound:      "Not Found",
	ErrorTypeBadRequest:    "Bad Request",
	ErrorTypeConflict:      "Conflict",
	ErrorTypeUnauthorized:  "Unauthorized",
	ErrorTypeForbidden:     "Forbidden",
	ErrorTypeUnprocessable: "Unprocessable Entity",
	ErrorTypeInternal:      "Internal Server Error",
}

var errorStatus = map[string]int{
	ErrorTypeValidation:    http.StatusBadRequest,
	ErrorTypeNotFound:      http.StatusNotFound,
	ErrorTypeBadRequest:    http.StatusBadRequest,
	ErrorTypeConflict:      http.StatusConflict,
	ErrorTypeUnauthorized:  http.StatusUnauthorized,
	ErrorTypeForbidden:     http.StatusForbidden,
	ErrorTypeUnprocessable: http.StatusUnprocessableEntity,
	ErrorTypeInternal:      http.StatusInternalServerError,
}

// NewAPIError builds an APIError of the given type
func NewAPIError(errType, detail string) *APIError {
	status, ok := errorStatus[errType]
	if !ok {
		errType, status = ErrorTypeInternal, http.StatusInternalServerError
	}
	return &APIError{
		Type:   errType,
		Title:  errorTitles[errType],
		Status: status,
		Detail: detail,
	}
}

// ValidationMessages maps validator tags to user-facing messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"email":    "Must be a valid email address",
	"max":      "Exceeds maximum length",
	"min":      "Below minimum length",
	"gte":      "Must be greater than or equal to minimum value",
	"gt":       "Must be greater than minimum value",
	"lte":      "Must be less than or equal to maximum value",
	"uuid":     "Must be a valid UUID",
	"url":      "Must be a valid URL",
	"oneof":    "Must be one of the allowed values",
	"dive":     "Contains an invalid element",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}
