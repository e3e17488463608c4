package app

import (
	"fmt"
	"net/http"
)

// DomainError is a request-scoped failure with an HTTP mapping. Nothing in
// this service is fatal to the process.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError covers malformed user input (participant id, query
// params); the visitor is re-prompted, never crashed.
func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// notFoundError covers unknown product ids; cart integrity is unaffected.
func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// forbiddenError covers the hand-off gate before any form completion has
// been attested.
func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}
