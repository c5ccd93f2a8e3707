// errors/access_errors.go
package errors

import "errors"

var (
	// ErrEvaluation marks a malformed or unrecognized policy rule payload.
	// Callers must treat it as a deny, never as "skip this policy".
	ErrEvaluation = errors.New("policy evaluation failed")

	// ErrAuditWrite reports a failed audit append. It is logged and counted
	// but never changes an access decision.
	ErrAuditWrite = errors.New("audit write failed")

	ErrMissingOrganization = errors.New("organization is required for access decisions")
	ErrUnknownAction       = errors.New("unknown action")
)
