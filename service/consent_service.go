// service/consent_service.go
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/medtrail/consentinel/dao"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/util"
)

// IConsentService defines the interface for consent lifecycle operations
type IConsentService interface {
	GrantConsent(ctx context.Context, req model.GrantConsentRequest, actorID string) (*model.Consent, error)
	RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error)
	GetConsent(ctx context.Context, consentID string) (*model.Consent, error)
	ActiveConsent(ctx context.Context, patientID, organizationID string) (*model.Consent, error)
	PatientConsents(ctx context.Context, patientID string, includeExpired bool) ([]*model.Consent, error)
	OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool) ([]*model.Consent, error)
}

// consentStore is the slice of the consent DAO the service depends on.
type consentStore interface {
	PairVersion(ctx context.Context, patientID, organizationID string) (int64, error)
	CreateConsent(ctx context.Context, consent *model.Consent, expectedVersion int64) (*model.Consent, error)
	GetConsent(ctx context.Context, consentID string) (*model.Consent, error)
	ActiveConsent(ctx context.Context, patientID, organizationID string, now time.Time) (*model.Consent, error)
	RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error)
	PatientConsents(ctx context.Context, patientID string, includeExpired bool, now time.Time) ([]*model.Consent, error)
	OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool, now time.Time) ([]*model.Consent, error)
}

// ConsentService handles business logic for consent operations. Grants go
// through the optimistic pair version: on a conflict the service re-reads
// the version and retries, bounded by grantRetries.
type ConsentService struct {
	consentDAO      consentStore
	validationUtil  *util.ValidationUtil
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
	grantRetries    int
	now             func() time.Time
}

var _ IConsentService = &ConsentService{}

// NewConsentService creates a new instance of ConsentService
func NewConsentService(consentDAO *dao.ConsentDAO, validationUtil *util.ValidationUtil, notificationSvc *util.NotificationService, eventBus *util.EventBus, grantRetries int) *ConsentService {
	if grantRetries <= 0 {
		grantRetries = 3
	}
	service := &ConsentService{
		consentDAO:      consentDAO,
		validationUtil:  validationUtil,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
		grantRetries:    grantRetries,
		now:             time.Now,
	}

	// Set up event subscriptions
	eventBus.Subscribe(util.EventConsentGranted, service.handleConsentGranted)
	eventBus.Subscribe(util.EventConsentRevoked, service.handleConsentRevoked)

	return service
}

func (s *ConsentService) handleConsentGranted(ctx context.Context, event util.Event) error {
	consent := event.Payload.(model.Consent)
	logger.Info("Consent granted event received", zap.String("consentID", consent.ID))

	if err := s.notificationSvc.NotifyConsentChange(ctx, "granted", consent); err != nil {
		logger.Warn("Failed to send consent grant notification", zap.Error(err), zap.String("consentID", consent.ID))
	}
	return nil
}

func (s *ConsentService) handleConsentRevoked(ctx context.Context, event util.Event) error {
	consent := event.Payload.(model.Consent)
	logger.Info("Consent revoked event received", zap.String("consentID", consent.ID))

	if err := s.notificationSvc.NotifyConsentChange(ctx, "revoked", consent); err != nil {
		logger.Warn("Failed to send consent revocation notification", zap.Error(err), zap.String("consentID", consent.ID))
	}
	return nil
}

// GrantConsent validates the request and writes the new consent, superseding
// whatever row was active for the pair. Concurrent grants for the same pair
// race on the anchor version; the losers retry from a fresh read so exactly
// one row per pair is left valid.
func (s *ConsentService) GrantConsent(ctx context.Context, req model.GrantConsentRequest, actorID string) (*model.Consent, error) {
	now := s.now().UTC()
	if err := s.validationUtil.ValidateGrantRequest(req, now); err != nil {
		return nil, err
	}

	categories := make(map[model.DataCategory]model.SharingPreference, len(req.Categories))
	for _, cat := range req.Categories {
		categories[cat] = model.ShareAll
	}

	consent := &model.Consent{
		PatientID:      req.PatientID,
		OrganizationID: req.OrganizationID,
		AccessLevel:    req.AccessLevel,
		Categories:     categories,
		Purposes:       req.Purposes,
		ValidUntil:     req.ValidUntil,
		CreatedBy:      actorID,
	}

	var created *model.Consent
	for attempt := 1; ; attempt++ {
		version, err := s.consentDAO.PairVersion(ctx, req.PatientID, req.OrganizationID)
		if err != nil {
			logger.Error("Error reading consent pair version", zap.Error(err), zap.String("patientID", req.PatientID))
			return nil, err
		}

		created, err = s.consentDAO.CreateConsent(ctx, consent, version)
		if err == nil {
			break
		}
		if !errors.Is(err, consentinel_errors.ErrConsentConflict) {
			logger.Error("Error creating consent", zap.Error(err), zap.String("actorID", actorID))
			return nil, err
		}
		if attempt >= s.grantRetries {
			logger.Error("Consent grant retries exhausted",
				zap.String("patientID", req.PatientID),
				zap.String("organizationID", req.OrganizationID),
				zap.Int("attempts", attempt))
			return nil, consentinel_errors.ErrConsentConflict
		}
		logger.Warn("Consent version conflict, retrying",
			zap.String("patientID", req.PatientID),
			zap.String("organizationID", req.OrganizationID),
			zap.Int("attempt", attempt))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventConsentGranted, *created)

	logger.Info("Consent granted successfully",
		zap.String("consentID", created.ID),
		zap.String("actorID", actorID))
	return created, nil
}

// RevokeConsent revokes a consent by ID. Revoking twice is a no-op reported
// through the second return value; both calls are audited.
func (s *ConsentService) RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error) {
	revoked, alreadyRevoked, err := s.consentDAO.RevokeConsent(ctx, consentID, actorID, reason)
	if err != nil {
		logger.Error("Error revoking consent", zap.Error(err), zap.String("consentID", consentID), zap.String("actorID", actorID))
		return nil, false, err
	}

	if !alreadyRevoked {
		s.eventBus.Publish(ctx, util.EventConsentRevoked, *revoked)
	}

	logger.Info("Consent revoked successfully",
		zap.String("consentID", consentID),
		zap.Bool("alreadyRevoked", alreadyRevoked),
		zap.String("actorID", actorID))
	return revoked, alreadyRevoked, nil
}

// GetConsent retrieves a consent by its ID
func (s *ConsentService) GetConsent(ctx context.Context, consentID string) (*model.Consent, error) {
	consent, err := s.consentDAO.GetConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, consentinel_errors.ErrConsentNotFound) {
			return nil, consentinel_errors.ErrConsentNotFound
		}
		logger.Error("Error retrieving consent", zap.Error(err), zap.String("consentID", consentID))
		return nil, consentinel_errors.ErrInternalServer
	}
	return consent, nil
}

// ActiveConsent returns the consent currently in force for the pair, or nil.
func (s *ConsentService) ActiveConsent(ctx context.Context, patientID, organizationID string) (*model.Consent, error) {
	return s.consentDAO.ActiveConsent(ctx, patientID, organizationID, s.now().UTC())
}

// PatientConsents lists a patient's consents
func (s *ConsentService) PatientConsents(ctx context.Context, patientID string, includeExpired bool) ([]*model.Consent, error) {
	consents, err := s.consentDAO.PatientConsents(ctx, patientID, includeExpired, s.now().UTC())
	if err != nil {
		logger.Error("Error listing patient consents", zap.Error(err), zap.String("patientID", patientID))
		return nil, err
	}
	return consents, nil
}

// OrganizationConsents lists the consents granted to an organization
func (s *ConsentService) OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool) ([]*model.Consent, error) {
	consents, err := s.consentDAO.OrganizationConsents(ctx, organizationID, includeExpired, s.now().UTC())
	if err != nil {
		logger.Error("Error listing organization consents", zap.Error(err), zap.String("organizationID", organizationID))
		return nil, err
	}
	return consents, nil
}
