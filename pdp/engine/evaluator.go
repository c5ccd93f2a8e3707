package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medtrail/consentinel/audit"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

// ConsentReader loads the consent row whose validity window covers now for a
// (patient, organization) pair, regardless of access level. A deny-all row
// (access level none with future validity) is a legitimate result; no row at
// all returns (nil, nil).
type ConsentReader interface {
	ActiveConsent(ctx context.Context, patientID, organizationID string, now time.Time) (*model.Consent, error)
}

// PolicyProvider returns active, unexpired policies applicable to a request,
// ordered by priority descending then ID ascending.
type PolicyProvider interface {
	ApplicablePolicies(ctx context.Context, patientID, organizationID string, category model.DataCategory, now time.Time) ([]*model.Policy, error)
}

// Evaluator decides access requests. It is read-only with respect to consent
// and policy state; its only side effect is the single audit entry appended
// for every invocation, whichever branch decides.
type Evaluator struct {
	consents ConsentReader
	policies PolicyProvider
	auditor  audit.Service
	now      func() time.Time
}

func NewEvaluator(consents ConsentReader, policies PolicyProvider, auditor audit.Service) *Evaluator {
	return &Evaluator{
		consents: consents,
		policies: policies,
		auditor:  auditor,
		now:      time.Now,
	}
}

// CheckAccess runs the decision steps in order, each able to short-circuit
// to a denial: consent presence, access level, category coverage, then the
// applicable policies with first-denial-wins. Store failures deny fail-closed
// and are returned alongside the decision so callers can distinguish them
// from rule denials. Exactly one audit entry is appended per call.
func (e *Evaluator) CheckAccess(ctx context.Context, req *pdp_model.AccessRequest) (*pdp_model.AccessDecision, error) {
	start := time.Now()
	now := e.now()
	decision := &pdp_model.AccessDecision{Timestamp: now}

	var evalErr error

	switch {
	case req.OrganizationID == "":
		decision.Reason = "Organization is required for access decisions"
		decision.ReasonCode = pdp_model.ReasonCodeInvalidRequest
		evalErr = consentinel_errors.ErrMissingOrganization

	default:
		consent, err := e.consents.ActiveConsent(ctx, req.PatientID, req.OrganizationID, now)
		switch {
		case err != nil:
			decision.Reason = "Consent lookup failed"
			decision.ReasonCode = pdp_model.ReasonCodeEvaluationError
			evalErr = fmt.Errorf("consent lookup: %w", err)

		case consent == nil:
			decision.Reason = "No active consent found"
			decision.ReasonCode = pdp_model.ReasonCodeNoConsent

		case consent.AccessLevel == model.AccessLevelNone:
			decision.ConsentID = consent.ID
			decision.Reason = "Access explicitly denied"
			decision.ReasonCode = pdp_model.ReasonCodeAccessDenied

		case !consent.Covers(req.Category):
			decision.ConsentID = consent.ID
			decision.Reason = fmt.Sprintf("No consent for %s data", req.Category)
			decision.ReasonCode = pdp_model.ReasonCodeNoCategory

		default:
			decision.ConsentID = consent.ID
			e.applyPolicies(ctx, req, now, decision, &evalErr)
		}
	}

	e.recordDecision(ctx, req, decision)

	logger.Info("Access decision",
		zap.String("actorID", req.ActorID),
		zap.String("patientID", req.PatientID),
		zap.String("category", string(req.Category)),
		zap.String("action", string(req.Action)),
		zap.Bool("granted", decision.Granted),
		zap.String("reasonCode", decision.ReasonCode),
		zap.Duration("duration", time.Since(start)))

	return decision, evalErr
}

// applyPolicies evaluates the bounded policy sequence to completion or first
// denial. There is no mid-evaluation cancellation: a half-evaluated decision
// must never be returned or logged as final.
func (e *Evaluator) applyPolicies(ctx context.Context, req *pdp_model.AccessRequest, now time.Time, decision *pdp_model.AccessDecision, evalErr *error) {
	policies, err := e.policies.ApplicablePolicies(ctx, req.PatientID, req.OrganizationID, req.Category, now)
	if err != nil {
		decision.Reason = "Policy retrieval failed"
		decision.ReasonCode = pdp_model.ReasonCodeEvaluationError
		*evalErr = fmt.Errorf("policy retrieval: %w", err)
		return
	}

	for _, policy := range policies {
		result := EvaluatePolicy(policy, req, now)
		decision.EvaluatedPolicies = append(decision.EvaluatedPolicies, policy.ID)

		if result.Err != nil {
			// A corrupt rule must not silently widen access.
			logger.Error("Policy evaluation failed, denying",
				zap.String("policyID", policy.ID),
				zap.Error(result.Err))
			decision.DenyingPolicyID = policy.ID
			decision.Reason = "Policy evaluation failed"
			decision.ReasonCode = pdp_model.ReasonCodeEvaluationError
			return
		}
		if !result.Permit {
			decision.DenyingPolicyID = policy.ID
			decision.Reason = result.Reason
			decision.ReasonCode = pdp_model.ReasonCodePolicyDenied
			return
		}
	}

	decision.Granted = true
	decision.Reason = "Access granted"
	decision.ReasonCode = pdp_model.ReasonCodeGranted
}

// recordDecision appends the single audit entry for this invocation. An
// audit failure is logged and counted by the audit service but never changes
// the decision.
func (e *Evaluator) recordDecision(ctx context.Context, req *pdp_model.AccessRequest, decision *pdp_model.AccessDecision) {
	entry := audit.Entry{
		Timestamp:      decision.Timestamp,
		ActorID:        req.ActorID,
		PatientID:      req.PatientID,
		DataCategory:   req.Category,
		Action:         req.Action,
		OrganizationID: req.OrganizationID,
		Success:        decision.Granted,
		Reason:         decision.Reason,
		ConsentID:      decision.ConsentID,
		PolicyID:       decision.DenyingPolicyID,
		IPAddress:      req.Context.IPAddress,
		UserAgent:      req.Context.UserAgent,
	}
	if err := e.auditor.Append(ctx, entry); err != nil {
		logger.Error("Failed to append audit entry for decision",
			zap.String("actorID", req.ActorID),
			zap.String("patientID", req.PatientID),
			zap.Error(err))
	}
}
