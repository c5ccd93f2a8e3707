// service/services.go
package service

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/medtrail/consentinel/audit"
	"github.com/medtrail/consentinel/dao"
	pdp_dao "github.com/medtrail/consentinel/pdp/dao"
	"github.com/medtrail/consentinel/pdp/engine"
	"github.com/medtrail/consentinel/util"
)

type Services struct {
	Consent    IConsentService
	Policy     IPolicyService
	Org        IOrganizationService
	Compliance IComplianceService
	Evaluator  *engine.Evaluator
}

// InitializeServices wires the DAOs, the evaluator, and the service layer.
// The retrieval DAO is shared between the evaluator (reads) and the policy
// service (snapshot flushes after writes).
func InitializeServices(
	driver neo4j.Driver,
	auditService audit.Service,
	validationUtil *util.ValidationUtil,
	cacheService *util.CacheService,
	notificationSvc *util.NotificationService,
	eventBus *util.EventBus,
	retrievalDAO *pdp_dao.PolicyRetrievalDAO,
	grantRetries int,
) (*Services, error) {
	consentDAO := dao.NewConsentDAO(driver, auditService)
	policyDAO := dao.NewPolicyDAO(driver, auditService)
	organizationDAO := dao.NewOrganizationDAO(driver, auditService)

	services := &Services{
		Consent:    NewConsentService(consentDAO, validationUtil, notificationSvc, eventBus, grantRetries),
		Policy:     NewPolicyService(policyDAO, validationUtil, cacheService, notificationSvc, eventBus, retrievalDAO),
		Org:        NewOrganizationService(organizationDAO, validationUtil, cacheService, notificationSvc, eventBus),
		Compliance: NewComplianceService(auditService, consentDAO, policyDAO, notificationSvc, 0, 0),
		Evaluator:  engine.NewEvaluator(consentDAO, retrievalDAO, auditService),
	}

	return services, nil
}
