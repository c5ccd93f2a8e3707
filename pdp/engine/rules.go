package engine

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

// EvaluatePolicy evaluates one policy against one request. It is pure: no
// I/O, no clock reads beyond the now argument. The type switch over the rule
// variants is exhaustive; an unrecognized or missing payload produces an
// evaluation failure that callers must turn into a deny.
func EvaluatePolicy(policy *model.Policy, req *pdp_model.AccessRequest, now time.Time) pdp_model.PolicyEvaluationResult {
	result := pdp_model.PolicyEvaluationResult{
		PolicyID:   policy.ID,
		PolicyName: policy.Name,
		Priority:   policy.Priority,
	}

	denyReason := fmt.Sprintf("Policy %s denies access", policy.Name)

	switch rules := policy.Rules.(type) {
	case *model.AccessRules:
		if permit := evaluateAccessRules(rules, req, now); !permit {
			result.Reason = denyReason
			return result
		}
	case *model.SharingRules:
		if permit := evaluateSharingRules(rules, req); !permit {
			result.Reason = denyReason
			return result
		}
	case *model.RetentionRules:
		if permit := evaluateRetentionRules(rules, req, now); !permit {
			result.Reason = denyReason
			return result
		}
	case *model.EncryptionRules, *model.AnonymizationRules:
		// Configuration for downstream services; never vetoes access.
	default:
		result.Err = fmt.Errorf("%w: policy %s carries no recognized rules", consentinel_errors.ErrEvaluation, policy.ID)
		result.Reason = "Policy evaluation failed"
		return result
	}

	result.Permit = true
	return result
}

// evaluateAccessRules applies the three conjunctive clauses: role, time
// window, and per-category allowed actions. An unconfigured clause permits.
func evaluateAccessRules(rules *model.AccessRules, req *pdp_model.AccessRequest, now time.Time) bool {
	if len(rules.AllowedRoles) > 0 && !lo.Contains(rules.AllowedRoles, req.Context.Role) {
		return false
	}

	if tr := rules.TimeRestrictions; tr != nil {
		if len(tr.Days) > 0 && !lo.Contains(tr.Days, now.Weekday()) {
			return false
		}
		if tr.StartTime != "" {
			// Zero-padded "HH:MM" strings compare lexicographically in
			// chronological order; the window is inclusive on both ends.
			clock := now.Format("15:04")
			if clock < tr.StartTime || clock > tr.EndTime {
				return false
			}
		}
	}

	if rules.CategoryRules != nil {
		if categoryRule, ok := rules.CategoryRules[req.Category]; ok && len(categoryRule.AllowedActions) > 0 {
			if !lo.Contains(categoryRule.AllowedActions, req.Action) {
				return false
			}
		}
	}

	return true
}

func evaluateSharingRules(rules *model.SharingRules, req *pdp_model.AccessRequest) bool {
	if len(rules.AllowedRecipients) > 0 && !lo.Contains(rules.AllowedRecipients, req.Context.Recipient) {
		return false
	}
	if len(rules.AllowedPurposes) > 0 && !lo.Contains(rules.AllowedPurposes, req.Context.Purpose) {
		return false
	}
	return true
}

// evaluateRetentionRules gates exposure of aged-out data. Deletion is owned
// by an external retention job.
func evaluateRetentionRules(rules *model.RetentionRules, req *pdp_model.AccessRequest, now time.Time) bool {
	if req.Context.DataCreatedAt == nil {
		return true
	}
	maxAge := time.Duration(rules.MaxAgeDays) * 24 * time.Hour
	return now.Sub(*req.Context.DataCreatedAt) <= maxAge
}
