// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
)

// NotificationService fans consent and policy changes out to interested
// parties. The current sink is the structured log; a queue or webhook
// dispatcher would slot in behind the same methods.
type NotificationService struct {
}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

func (n *NotificationService) NotifyConsentChange(ctx context.Context, changeType string, consent model.Consent) error {
	switch changeType {
	case "granted":
		logger.Info("NOTIFICATION: Consent granted",
			zap.String("consentID", consent.ID),
			zap.String("patientID", consent.PatientID),
			zap.String("organizationID", consent.OrganizationID),
			zap.String("accessLevel", string(consent.AccessLevel)))
	case "revoked":
		logger.Info("NOTIFICATION: Consent revoked",
			zap.String("consentID", consent.ID),
			zap.String("patientID", consent.PatientID),
			zap.String("organizationID", consent.OrganizationID))
	default:
		return fmt.Errorf("unknown change type: %s", changeType)
	}
	return nil
}

func (n *NotificationService) NotifyPolicyChange(ctx context.Context, changeType string, policy model.Policy) error {
	switch changeType {
	case "created":
		logger.Info("NOTIFICATION: New policy created",
			zap.String("policyID", policy.ID),
			zap.String("policyName", policy.Name))
	case "updated":
		logger.Info("NOTIFICATION: Policy updated",
			zap.String("policyID", policy.ID),
			zap.String("policyName", policy.Name))
	case "deleted":
		logger.Info("NOTIFICATION: Policy deleted",
			zap.String("policyID", policy.ID))
	default:
		return fmt.Errorf("unknown change type: %s", changeType)
	}
	return nil
}

func (n *NotificationService) NotifyOrganizationChange(ctx context.Context, changeType string, org model.Organization) error {
	logger.Info("Notifying organization change",
		zap.String("changeType", changeType),
		zap.String("orgID", org.ID),
		zap.String("orgName", org.Name))
	return nil
}

// NotifyAdmins surfaces compliance findings to operators.
func (n *NotificationService) NotifyAdmins(ctx context.Context, message string) error {
	logger.Warn("Notifying admins", zap.String("message", message))
	return nil
}
