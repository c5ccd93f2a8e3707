// model/policy.go
package model

import (
	"encoding/json"
	"fmt"
	"time"

	consentinel_errors "github.com/medtrail/consentinel/errors"
)

type PolicyType string

const (
	PolicyTypeAccess        PolicyType = "access"
	PolicyTypeSharing       PolicyType = "sharing"
	PolicyTypeRetention     PolicyType = "retention"
	PolicyTypeEncryption    PolicyType = "encryption"
	PolicyTypeAnonymization PolicyType = "anonymization"
)

type PolicyScope string

const (
	ScopeGlobal       PolicyScope = "global"
	ScopeOrganization PolicyScope = "organization"
	ScopePatient      PolicyScope = "patient"
	ScopeDataCategory PolicyScope = "data_category"
)

// Policy is an organization- or system-level rule constraining access,
// sharing, or retention of health data. Rules is a closed set of variants,
// one per PolicyType, validated before storage so malformed payloads are
// rejected at write time instead of surfacing during evaluation.
type Policy struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        PolicyType  `json:"type"`
	Scope       PolicyScope `json:"scope"`
	// Scope target; exactly one is set for non-global scopes.
	OrganizationID string       `json:"organization_id,omitempty"`
	PatientID      string       `json:"patient_id,omitempty"`
	DataCategory   DataCategory `json:"data_category,omitempty"`
	Rules          RuleSet      `json:"rules"`
	Priority       int          `json:"priority"`
	Active         bool         `json:"active"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	Version        int          `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RuleSet is the closed set of policy rule payloads. The unexported method
// keeps the set sealed: evaluation dispatches with an exhaustive type switch
// and treats anything else as an evaluation failure, never a silent permit.
type RuleSet interface {
	ruleSet()
	Validate() error
}

type TimeRestrictions struct {
	// Days uses Go weekday numbering (Sunday = 0). Empty means every day.
	Days []time.Weekday `json:"days,omitempty"`
	// StartTime and EndTime are zero-padded 24-hour "HH:MM" strings; the
	// window is inclusive on both ends. Both set or both empty.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type CategoryRule struct {
	AllowedActions []Action `json:"allowed_actions,omitempty"`
}

type AccessRules struct {
	AllowedRoles     []string                      `json:"allowed_roles,omitempty"`
	TimeRestrictions *TimeRestrictions             `json:"time_restrictions,omitempty"`
	CategoryRules    map[DataCategory]CategoryRule `json:"category_rules,omitempty"`
}

type SharingRules struct {
	AllowedRecipients []string `json:"allowed_recipients,omitempty"`
	AllowedPurposes   []string `json:"allowed_purposes,omitempty"`
}

type RetentionRules struct {
	MaxAgeDays int `json:"max_age_days"`
}

// EncryptionRules configures downstream encryption services. It never vetoes
// access.
type EncryptionRules struct {
	Algorithm       string `json:"algorithm"`
	KeyRotationDays int    `json:"key_rotation_days,omitempty"`
}

// AnonymizationRules configures downstream anonymization. It never vetoes
// access.
type AnonymizationRules struct {
	Technique string   `json:"technique"`
	Fields    []string `json:"fields,omitempty"`
}

func (*AccessRules) ruleSet()        {}
func (*SharingRules) ruleSet()       {}
func (*RetentionRules) ruleSet()     {}
func (*EncryptionRules) ruleSet()    {}
func (*AnonymizationRules) ruleSet() {}

func (r *AccessRules) Validate() error {
	if tr := r.TimeRestrictions; tr != nil {
		if (tr.StartTime == "") != (tr.EndTime == "") {
			return fmt.Errorf("%w: time restriction needs both start_time and end_time", consentinel_errors.ErrInvalidPolicyRules)
		}
		if tr.StartTime != "" {
			if !validClock(tr.StartTime) || !validClock(tr.EndTime) {
				return fmt.Errorf("%w: times must be zero-padded HH:MM", consentinel_errors.ErrInvalidPolicyRules)
			}
			if tr.StartTime > tr.EndTime {
				return fmt.Errorf("%w: start_time after end_time", consentinel_errors.ErrInvalidPolicyRules)
			}
		}
		for _, d := range tr.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", consentinel_errors.ErrInvalidPolicyRules, d)
			}
		}
	}
	for cat := range r.CategoryRules {
		if !KnownCategory(cat) {
			return fmt.Errorf("%w: unknown data category %q", consentinel_errors.ErrInvalidPolicyRules, cat)
		}
	}
	return nil
}

func (r *SharingRules) Validate() error {
	for _, rec := range r.AllowedRecipients {
		if rec == "" {
			return fmt.Errorf("%w: empty recipient", consentinel_errors.ErrInvalidPolicyRules)
		}
	}
	for _, p := range r.AllowedPurposes {
		if p == "" {
			return fmt.Errorf("%w: empty purpose", consentinel_errors.ErrInvalidPolicyRules)
		}
	}
	return nil
}

func (r *RetentionRules) Validate() error {
	if r.MaxAgeDays <= 0 {
		return fmt.Errorf("%w: max_age_days must be positive", consentinel_errors.ErrInvalidPolicyRules)
	}
	return nil
}

func (r *EncryptionRules) Validate() error {
	if r.Algorithm == "" {
		return fmt.Errorf("%w: algorithm is required", consentinel_errors.ErrInvalidPolicyRules)
	}
	if r.KeyRotationDays < 0 {
		return fmt.Errorf("%w: key_rotation_days must not be negative", consentinel_errors.ErrInvalidPolicyRules)
	}
	return nil
}

func (r *AnonymizationRules) Validate() error {
	if r.Technique == "" {
		return fmt.Errorf("%w: technique is required", consentinel_errors.ErrInvalidPolicyRules)
	}
	return nil
}

// validClock reports whether s is a zero-padded 24-hour "HH:MM" string.
// Lexicographic comparison on such strings matches numeric comparison.
func validClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	return hour < 24 && minute < 60
}

// DecodeRules turns a raw JSON payload into the typed rule variant for the
// given policy type. Unknown types are rejected here, at the write boundary.
func DecodeRules(pt PolicyType, raw json.RawMessage) (RuleSet, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var rules RuleSet
	switch pt {
	case PolicyTypeAccess:
		rules = &AccessRules{}
	case PolicyTypeSharing:
		rules = &SharingRules{}
	case PolicyTypeRetention:
		rules = &RetentionRules{}
	case PolicyTypeEncryption:
		rules = &EncryptionRules{}
	case PolicyTypeAnonymization:
		rules = &AnonymizationRules{}
	default:
		return nil, fmt.Errorf("%w: unknown policy type %q", consentinel_errors.ErrInvalidPolicyData, pt)
	}
	if err := json.Unmarshal(raw, rules); err != nil {
		return nil, fmt.Errorf("%w: %v", consentinel_errors.ErrInvalidPolicyRules, err)
	}
	return rules, nil
}

// UnmarshalJSON decodes the rules payload according to the policy type so a
// Policy can bind straight from a request body.
func (p *Policy) UnmarshalJSON(data []byte) error {
	type alias Policy
	aux := &struct {
		Rules json.RawMessage `json:"rules"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	rules, err := DecodeRules(p.Type, aux.Rules)
	if err != nil {
		return err
	}
	p.Rules = rules
	return nil
}

// Validate checks a policy before it is written: known type and scope, a
// scope target matching the scope, and a well-formed rules payload.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", consentinel_errors.ErrInvalidPolicyData)
	}
	switch p.Type {
	case PolicyTypeAccess, PolicyTypeSharing, PolicyTypeRetention, PolicyTypeEncryption, PolicyTypeAnonymization:
	default:
		return fmt.Errorf("%w: unknown policy type %q", consentinel_errors.ErrInvalidPolicyData, p.Type)
	}
	switch p.Scope {
	case ScopeGlobal:
		if p.OrganizationID != "" || p.PatientID != "" || p.DataCategory != "" {
			return fmt.Errorf("%w: global policies take no scope target", consentinel_errors.ErrInvalidPolicyData)
		}
	case ScopeOrganization:
		if p.OrganizationID == "" {
			return fmt.Errorf("%w: organization scope needs organization_id", consentinel_errors.ErrInvalidPolicyData)
		}
	case ScopePatient:
		if p.PatientID == "" {
			return fmt.Errorf("%w: patient scope needs patient_id", consentinel_errors.ErrInvalidPolicyData)
		}
	case ScopeDataCategory:
		if !KnownCategory(p.DataCategory) {
			return fmt.Errorf("%w: data_category scope needs a known category", consentinel_errors.ErrInvalidPolicyData)
		}
	default:
		return fmt.Errorf("%w: unknown policy scope %q", consentinel_errors.ErrInvalidPolicyData, p.Scope)
	}
	if p.Rules == nil {
		return fmt.Errorf("%w: rules payload is required", consentinel_errors.ErrInvalidPolicyData)
	}
	return p.Rules.Validate()
}

// PolicySearchCriteria narrows the admin policy listing.
type PolicySearchCriteria struct {
	Name        string
	Type        PolicyType
	Scope       PolicyScope
	Active      *bool
	MinPriority int
	MaxPriority int
	Limit       int
}
