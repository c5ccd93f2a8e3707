// model/policy_test.go
package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consentinel_errors "github.com/medtrail/consentinel/errors"
)

func TestDecodeRulesDispatchesByType(t *testing.T) {
	raw := json.RawMessage(`{"allowed_roles":["doctor"],"time_restrictions":{"days":[1,2],"start_time":"09:00","end_time":"17:00"}}`)
	rules, err := DecodeRules(PolicyTypeAccess, raw)
	require.NoError(t, err)

	access, ok := rules.(*AccessRules)
	require.True(t, ok)
	assert.Equal(t, []string{"doctor"}, access.AllowedRoles)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, access.TimeRestrictions.Days)

	rules, err = DecodeRules(PolicyTypeRetention, json.RawMessage(`{"max_age_days":365}`))
	require.NoError(t, err)
	assert.Equal(t, 365, rules.(*RetentionRules).MaxAgeDays)
}

func TestDecodeRulesRejectsUnknownType(t *testing.T) {
	_, err := DecodeRules(PolicyType("firewall"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, consentinel_errors.ErrInvalidPolicyData)
}

func TestAccessRulesValidateTimeWindow(t *testing.T) {
	cases := []struct {
		name    string
		tr      TimeRestrictions
		wantErr bool
	}{
		{"well formed", TimeRestrictions{StartTime: "09:00", EndTime: "17:00"}, false},
		{"missing end", TimeRestrictions{StartTime: "09:00"}, true},
		{"not zero padded", TimeRestrictions{StartTime: "9:00", EndTime: "17:00"}, true},
		{"hour out of range", TimeRestrictions{StartTime: "09:00", EndTime: "24:00"}, true},
		{"inverted window", TimeRestrictions{StartTime: "17:00", EndTime: "09:00"}, true},
		{"bad weekday", TimeRestrictions{Days: []time.Weekday{7}, StartTime: "09:00", EndTime: "17:00"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := &AccessRules{TimeRestrictions: &tc.tr}
			err := rules.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, consentinel_errors.ErrInvalidPolicyRules)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetentionRulesValidate(t *testing.T) {
	assert.NoError(t, (&RetentionRules{MaxAgeDays: 1}).Validate())
	assert.ErrorIs(t, (&RetentionRules{}).Validate(), consentinel_errors.ErrInvalidPolicyRules)
	assert.ErrorIs(t, (&RetentionRules{MaxAgeDays: -10}).Validate(), consentinel_errors.ErrInvalidPolicyRules)
}

func TestPolicyValidateScopeTargets(t *testing.T) {
	base := func() *Policy {
		return &Policy{
			Name:  "after-hours lockout",
			Type:  PolicyTypeAccess,
			Scope: ScopeGlobal,
			Rules: &AccessRules{},
		}
	}

	p := base()
	assert.NoError(t, p.Validate())

	p = base()
	p.OrganizationID = "org-1"
	assert.ErrorIs(t, p.Validate(), consentinel_errors.ErrInvalidPolicyData)

	p = base()
	p.Scope = ScopeOrganization
	assert.ErrorIs(t, p.Validate(), consentinel_errors.ErrInvalidPolicyData)
	p.OrganizationID = "org-1"
	assert.NoError(t, p.Validate())

	p = base()
	p.Scope = ScopeDataCategory
	p.DataCategory = DataCategory("genomes")
	assert.ErrorIs(t, p.Validate(), consentinel_errors.ErrInvalidPolicyData)
	p.DataCategory = CategoryImaging
	assert.NoError(t, p.Validate())

	p = base()
	p.Rules = nil
	assert.ErrorIs(t, p.Validate(), consentinel_errors.ErrInvalidPolicyData)
}

func TestPolicyUnmarshalBindsTypedRules(t *testing.T) {
	body := []byte(`{
		"name": "clinic sharing",
		"type": "sharing",
		"scope": "organization",
		"organization_id": "org-7",
		"priority": 10,
		"active": true,
		"rules": {"allowed_recipients": ["org-9"], "allowed_purposes": ["treatment"]}
	}`)

	var p Policy
	require.NoError(t, json.Unmarshal(body, &p))
	require.NoError(t, p.Validate())

	sharing, ok := p.Rules.(*SharingRules)
	require.True(t, ok)
	assert.Equal(t, []string{"org-9"}, sharing.AllowedRecipients)
	assert.Equal(t, []string{"treatment"}, sharing.AllowedPurposes)
}

func TestConsentActiveAt(t *testing.T) {
	now := time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)
	expiry := now.Add(24 * time.Hour)

	consent := &Consent{
		AccessLevel: AccessLevelFull,
		Categories:  map[DataCategory]SharingPreference{CategoryVitals: ShareAll},
		ValidFrom:   now.Add(-time.Hour),
		ValidUntil:  &expiry,
	}
	assert.True(t, consent.ActiveAt(now))
	assert.False(t, consent.ActiveAt(expiry), "expiry instant is exclusive")

	consent.AccessLevel = AccessLevelNone
	assert.False(t, consent.ActiveAt(now))

	consent.AccessLevel = AccessLevelLimited
	consent.ValidFrom = now.Add(time.Hour)
	assert.False(t, consent.ActiveAt(now), "not yet in validity window")

	consent.ValidFrom = now.Add(-time.Hour)
	consent.ValidUntil = nil
	assert.True(t, consent.ActiveAt(now), "nil valid_until never expires")
}

func TestConsentCovers(t *testing.T) {
	consent := &Consent{Categories: map[DataCategory]SharingPreference{
		CategoryImaging:       ShareAll,
		CategoryPrescriptions: ShareNone,
	}}
	assert.True(t, consent.Covers(CategoryImaging))
	assert.False(t, consent.Covers(CategoryPrescriptions), "share-none entry does not cover")
	assert.False(t, consent.Covers(CategoryVitals))
}
