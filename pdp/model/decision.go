package model

import "time"

// Stable reason codes for callers. The human-readable Reason goes to logs
// and the audit trail, never verbatim into end-user responses.
const (
	ReasonCodeGranted         = "granted"
	ReasonCodeNoConsent       = "no_active_consent"
	ReasonCodeAccessDenied    = "access_denied"
	ReasonCodeNoCategory      = "category_not_consented"
	ReasonCodePolicyDenied    = "policy_denied"
	ReasonCodeEvaluationError = "evaluation_error"
	ReasonCodeInvalidRequest  = "invalid_request"
)

type AccessDecision struct {
	Granted           bool      `json:"granted"`
	Reason            string    `json:"reason,omitempty"`
	ReasonCode        string    `json:"reason_code"`
	ConsentID         string    `json:"consent_id,omitempty"`
	DenyingPolicyID   string    `json:"denying_policy_id,omitempty"`
	EvaluatedPolicies []string  `json:"evaluated_policies,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
