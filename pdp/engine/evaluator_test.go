package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrail/consentinel/audit"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

func init() {
	logger.InitLogger("../../logging")
}

type stubConsents struct {
	consent *model.Consent
	err     error
}

func (s *stubConsents) ActiveConsent(ctx context.Context, patientID, organizationID string, now time.Time) (*model.Consent, error) {
	return s.consent, s.err
}

type stubPolicies struct {
	policies []*model.Policy
	err      error
}

func (s *stubPolicies) ApplicablePolicies(ctx context.Context, patientID, organizationID string, category model.DataCategory, now time.Time) ([]*model.Policy, error) {
	return s.policies, s.err
}

// recordingAuditor captures appended entries; fail makes every append error.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    bool
}

func (r *recordingAuditor) Append(ctx context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if r.fail {
		return consentinel_errors.ErrAuditWrite
	}
	return nil
}

func (r *recordingAuditor) QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]audit.Entry, error) {
	return nil, nil
}

func (r *recordingAuditor) QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]audit.Entry, error) {
	return nil, nil
}

func (r *recordingAuditor) RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]audit.Entry, error) {
	return nil, nil
}

func (r *recordingAuditor) FailedWrites() int64  { return 0 }
func (r *recordingAuditor) DroppedWrites() int64 { return 0 }
func (r *recordingAuditor) Close()               {}

func (r *recordingAuditor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *recordingAuditor) last() audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

func fullConsent() *model.Consent {
	return &model.Consent{
		ID:             "consent-1",
		PatientID:      "patient-42",
		OrganizationID: "org-7",
		AccessLevel:    model.AccessLevelFull,
		Categories: map[model.DataCategory]model.SharingPreference{
			model.CategoryMedicalHistory: model.ShareAll,
		},
		ValidFrom: tuesdayMorning.Add(-24 * time.Hour),
		Version:   1,
	}
}

func newTestEvaluator(consents ConsentReader, policies PolicyProvider, auditor audit.Service) *Evaluator {
	e := NewEvaluator(consents, policies, auditor)
	e.now = func() time.Time { return tuesdayMorning }
	return e
}

func checkRequest(role string) *pdp_model.AccessRequest {
	return &pdp_model.AccessRequest{
		ActorID:        "actor-99",
		PatientID:      "patient-42",
		OrganizationID: "org-7",
		Category:       model.CategoryMedicalHistory,
		Action:         model.ActionView,
		Context:        pdp_model.RequestContext{Role: role},
	}
}

func TestCheckAccessDeniesWithoutConsent(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{}, &stubPolicies{}, auditor)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeNoConsent, decision.ReasonCode)
	assert.Equal(t, "No active consent found", decision.Reason)

	require.Equal(t, 1, auditor.count())
	entry := auditor.last()
	assert.False(t, entry.Success)
	assert.Equal(t, "patient-42", entry.PatientID)
	assert.Empty(t, entry.ConsentID)
}

func TestCheckAccessDeniesExplicitNoneConsent(t *testing.T) {
	consent := fullConsent()
	consent.AccessLevel = model.AccessLevelNone

	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{consent: consent}, &stubPolicies{}, auditor)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeAccessDenied, decision.ReasonCode)
	assert.Equal(t, "Access explicitly denied", decision.Reason)
	assert.Equal(t, "consent-1", auditor.last().ConsentID)
}

func TestCheckAccessDeniesUncoveredCategory(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{consent: fullConsent()}, &stubPolicies{}, auditor)

	req := checkRequest("doctor")
	req.Category = model.CategoryPrescriptions

	decision, err := e.CheckAccess(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeNoCategory, decision.ReasonCode)
	assert.Equal(t, "No consent for prescriptions data", decision.Reason)
	assert.Equal(t, 1, auditor.count())
}

func TestCheckAccessDefaultAllowWithZeroPolicies(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{consent: fullConsent()}, &stubPolicies{}, auditor)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, "Access granted", decision.Reason)
	assert.Equal(t, pdp_model.ReasonCodeGranted, decision.ReasonCode)

	entry := auditor.last()
	assert.True(t, entry.Success)
	assert.Equal(t, "consent-1", entry.ConsentID)
}

func TestCheckAccessClinicianRoleScenario(t *testing.T) {
	policy := &model.Policy{
		ID:             "policy-10",
		Name:           "org-7 clinician access",
		Type:           model.PolicyTypeAccess,
		Scope:          model.ScopeOrganization,
		OrganizationID: "org-7",
		Rules:          &model.AccessRules{AllowedRoles: []string{"doctor"}},
		Priority:       10,
		Active:         true,
	}

	auditor := &recordingAuditor{}
	e := newTestEvaluator(
		&stubConsents{consent: fullConsent()},
		&stubPolicies{policies: []*model.Policy{policy}},
		auditor,
	)

	decision, err := e.CheckAccess(context.Background(), checkRequest("nurse"))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, "Policy org-7 clinician access denies access", decision.Reason)
	assert.Equal(t, "policy-10", decision.DenyingPolicyID)
	assert.Equal(t, "policy-10", auditor.last().PolicyID)

	decision, err = e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, "Access granted", decision.Reason)

	assert.Equal(t, 2, auditor.count(), "one audit entry per invocation")
}

func TestCheckAccessFirstDenialWinsByPriority(t *testing.T) {
	deny := func(id, name string, priority int) *model.Policy {
		return &model.Policy{
			ID:       id,
			Name:     name,
			Type:     model.PolicyTypeAccess,
			Scope:    model.ScopeGlobal,
			Rules:    &model.AccessRules{AllowedRoles: []string{"nobody"}},
			Priority: priority,
			Active:   true,
		}
	}
	// The provider contract delivers priority-descending order.
	policies := []*model.Policy{
		deny("policy-a", "strict lockdown", 10),
		deny("policy-b", "soft lockdown", 5),
	}

	auditor := &recordingAuditor{}
	e := newTestEvaluator(
		&stubConsents{consent: fullConsent()},
		&stubPolicies{policies: policies},
		auditor,
	)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, "Policy strict lockdown denies access", decision.Reason)
	assert.Equal(t, "policy-a", decision.DenyingPolicyID)
	assert.Equal(t, []string{"policy-a"}, decision.EvaluatedPolicies,
		"evaluation stops at the first denial")
}

func TestCheckAccessFailsClosedOnConsentStoreError(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{err: errors.New("bolt connection refused")}, &stubPolicies{}, auditor)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.Error(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeEvaluationError, decision.ReasonCode)
	assert.Equal(t, 1, auditor.count(), "store errors are audited too")
}

func TestCheckAccessFailsClosedOnPolicyStoreError(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(
		&stubConsents{consent: fullConsent()},
		&stubPolicies{err: errors.New("bolt connection refused")},
		auditor,
	)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.Error(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeEvaluationError, decision.ReasonCode)
	assert.Equal(t, 1, auditor.count())
}

func TestCheckAccessFailsClosedOnCorruptPolicy(t *testing.T) {
	corrupt := &model.Policy{
		ID:       "policy-corrupt",
		Name:     "corrupt",
		Type:     model.PolicyTypeAccess,
		Scope:    model.ScopeGlobal,
		Priority: 1,
		Active:   true,
		// no rules payload
	}

	auditor := &recordingAuditor{}
	e := newTestEvaluator(
		&stubConsents{consent: fullConsent()},
		&stubPolicies{policies: []*model.Policy{corrupt}},
		auditor,
	)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeEvaluationError, decision.ReasonCode)
	assert.Equal(t, "Policy evaluation failed", decision.Reason)
	assert.Equal(t, "policy-corrupt", decision.DenyingPolicyID)
}

func TestCheckAccessRequiresOrganization(t *testing.T) {
	auditor := &recordingAuditor{}
	e := newTestEvaluator(&stubConsents{consent: fullConsent()}, &stubPolicies{}, auditor)

	req := checkRequest("doctor")
	req.OrganizationID = ""

	decision, err := e.CheckAccess(context.Background(), req)
	assert.ErrorIs(t, err, consentinel_errors.ErrMissingOrganization)
	assert.False(t, decision.Granted)
	assert.Equal(t, pdp_model.ReasonCodeInvalidRequest, decision.ReasonCode)
	assert.Equal(t, 1, auditor.count())
}

func TestCheckAccessDecisionSurvivesAuditFailure(t *testing.T) {
	auditor := &recordingAuditor{fail: true}
	e := newTestEvaluator(&stubConsents{consent: fullConsent()}, &stubPolicies{}, auditor)

	decision, err := e.CheckAccess(context.Background(), checkRequest("doctor"))
	require.NoError(t, err, "audit failure never surfaces as an evaluator error")
	assert.True(t, decision.Granted)
	assert.Equal(t, 1, auditor.count(), "the write attempt is still made")
}
