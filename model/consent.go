// model/consent.go
package model

import (
	"time"
)

// AccessLevel gates whether any access is possible before category- and
// policy-level checks apply.
type AccessLevel string

const (
	AccessLevelNone    AccessLevel = "none"
	AccessLevelLimited AccessLevel = "limited"
	AccessLevelFull    AccessLevel = "full"
)

// DataCategory is the unit of both consent and policy targeting.
type DataCategory string

const (
	CategoryMedicalHistory DataCategory = "medical_history"
	CategoryTreatments     DataCategory = "treatments"
	CategoryImaging        DataCategory = "imaging"
	CategoryPrescriptions  DataCategory = "prescriptions"
	CategoryPathology      DataCategory = "pathology"
	CategoryVitals         DataCategory = "vitals"
)

// DataCategories lists every recognized category, in a stable order.
var DataCategories = []DataCategory{
	CategoryMedicalHistory,
	CategoryTreatments,
	CategoryImaging,
	CategoryPrescriptions,
	CategoryPathology,
	CategoryVitals,
}

// KnownCategory reports whether c is one of the recognized data categories.
func KnownCategory(c DataCategory) bool {
	for _, known := range DataCategories {
		if c == known {
			return true
		}
	}
	return false
}

// SharingPreference qualifies how widely data in a consented category may be
// shared. "all" is the default applied at grant time.
type SharingPreference string

const (
	ShareAll      SharingPreference = "all"
	ShareInternal SharingPreference = "internal"
	ShareNone     SharingPreference = "none"
)

type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
	ActionExport Action = "export"
	ActionSync   Action = "sync"
)

// DataActions lists the actions an access check can ask about. Grant and
// revoke are lifecycle verbs recorded in the audit trail, not data actions.
var DataActions = []Action{
	ActionView,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionExport,
	ActionSync,
}

// KnownDataAction reports whether a is one of the checkable data actions.
func KnownDataAction(a Action) bool {
	for _, known := range DataActions {
		if a == known {
			return true
		}
	}
	return false
}

// Consent is a patient's time-bounded authorization for one organization to
// access specified categories of their health data. Rows are superseded
// (ValidUntil moved to now) or revoked (AccessLevel set to none), never
// deleted; at most one consent per (patient, organization) pair is active at
// any instant.
type Consent struct {
	ID             string                             `json:"id"`
	PatientID      string                             `json:"patient_id"`
	OrganizationID string                             `json:"organization_id"`
	AccessLevel    AccessLevel                        `json:"access_level"`
	Categories     map[DataCategory]SharingPreference `json:"categories"`
	Purposes       []string                           `json:"purposes,omitempty"`
	ValidFrom      time.Time                          `json:"valid_from"`
	ValidUntil     *time.Time                         `json:"valid_until,omitempty"` // nil = indefinite
	CreatedBy      string                             `json:"created_by"`
	LastModifiedBy string                             `json:"last_modified_by"`
	Version        int                                `json:"version"`
	CreatedAt      time.Time                          `json:"created_at"`
	UpdatedAt      time.Time                          `json:"updated_at"`
}

// ActiveAt reports whether the consent grants anything at the given instant:
// access level above none, validity window started, and not yet expired.
func (c *Consent) ActiveAt(now time.Time) bool {
	if c.AccessLevel == AccessLevelNone || c.AccessLevel == "" {
		return false
	}
	if now.Before(c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && !c.ValidUntil.After(now) {
		return false
	}
	return true
}

// Covers reports whether the consent's category mapping includes cat with a
// sharing preference other than "none".
func (c *Consent) Covers(cat DataCategory) bool {
	pref, ok := c.Categories[cat]
	return ok && pref != ShareNone
}

// GrantConsentRequest carries a grant call through the service layer.
type GrantConsentRequest struct {
	PatientID      string         `json:"patient_id" binding:"required"`
	OrganizationID string         `json:"organization_id" binding:"required"`
	AccessLevel    AccessLevel    `json:"access_level" binding:"required"`
	Categories     []DataCategory `json:"categories"`
	Purposes       []string       `json:"purposes"`
	ValidUntil     *time.Time     `json:"valid_until"`
}
