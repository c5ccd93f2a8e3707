// util/validation_util.go

package util

import (
	"fmt"
	"time"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

// ValidateGrantRequest checks the grant preconditions. A grant with access
// level "none" is a standing denial and needs no categories; any other level
// must name at least one known category.
func (v *ValidationUtil) ValidateGrantRequest(req model.GrantConsentRequest, now time.Time) error {
	if req.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", consentinel_errors.ErrInvalidConsentData)
	}
	if req.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", consentinel_errors.ErrInvalidConsentData)
	}
	switch req.AccessLevel {
	case model.AccessLevelNone, model.AccessLevelLimited, model.AccessLevelFull:
	default:
		return fmt.Errorf("%w: unknown access level %q", consentinel_errors.ErrInvalidConsentData, req.AccessLevel)
	}
	if req.AccessLevel != model.AccessLevelNone {
		if len(req.Categories) == 0 {
			return consentinel_errors.ErrEmptyCategories
		}
		for _, cat := range req.Categories {
			if !model.KnownCategory(cat) {
				return fmt.Errorf("%w: unknown data category %q", consentinel_errors.ErrInvalidConsentData, cat)
			}
		}
	}
	if req.ValidUntil != nil && !req.ValidUntil.After(now) {
		return consentinel_errors.ErrConsentExpiry
	}
	return nil
}

func (v *ValidationUtil) ValidatePolicy(policy model.Policy) error {
	if policy.Priority < 0 {
		return fmt.Errorf("%w: priority cannot be negative", consentinel_errors.ErrInvalidPolicyData)
	}
	return policy.Validate()
}

func (v *ValidationUtil) ValidateOrganization(organization model.Organization) error {
	if organization.Name == "" {
		return fmt.Errorf("%w: name is required", consentinel_errors.ErrInvalidOrgData)
	}
	switch organization.Type {
	case "", "clinic", "hospital", "lab", "partner":
	default:
		return fmt.Errorf("%w: unknown organization type %q", consentinel_errors.ErrInvalidOrgData, organization.Type)
	}
	return nil
}
