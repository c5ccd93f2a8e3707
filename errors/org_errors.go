// errors/org_errors.go
package errors

import "errors"

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrInvalidOrgData       = errors.New("invalid organization data")
	ErrOrgConflict          = errors.New("organization conflict")
)
