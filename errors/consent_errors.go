// errors/consent_errors.go
package errors

import "errors"

var (
	ErrConsentNotFound    = errors.New("consent not found")
	ErrInvalidConsentData = errors.New("invalid consent data")
	ErrConsentExpiry      = errors.New("consent expiry must be in the future")
	ErrEmptyCategories    = errors.New("consent must cover at least one data category")
	ErrConsentConflict    = errors.New("concurrent consent modification")
)
