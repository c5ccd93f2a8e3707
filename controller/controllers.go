// controller/controllers.go
package controller

import (
	"github.com/medtrail/consentinel/audit"
	"github.com/medtrail/consentinel/service"
)

type Controllers struct {
	Consent    *ConsentController
	Access     *AccessController
	Policy     *PolicyController
	Org        *OrganizationController
	Audit      *AuditController
	Compliance *ComplianceController
	Privacy    *PrivacyController
}

func InitializeControllers(services *service.Services, auditService audit.Service) *Controllers {
	return &Controllers{
		Consent:    NewConsentController(services.Consent),
		Access:     NewAccessController(services.Evaluator),
		Policy:     NewPolicyController(services.Policy),
		Org:        NewOrganizationController(services.Org),
		Audit:      NewAuditController(auditService),
		Compliance: NewComplianceController(services.Compliance),
		Privacy:    NewPrivacyController(),
	}
}
