// service/organization_service.go
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/medtrail/consentinel/dao"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/util"
)

// IOrganizationService defines the interface for organization operations
type IOrganizationService interface {
	CreateOrganization(ctx context.Context, org model.Organization, actorID string) (*model.Organization, error)
	UpdateOrganization(ctx context.Context, org model.Organization, actorID string) (*model.Organization, error)
	DeleteOrganization(ctx context.Context, orgID string, actorID string) error
	GetOrganization(ctx context.Context, orgID string) (*model.Organization, error)
	ListOrganizations(ctx context.Context, limit int, offset int) ([]*model.Organization, error)
	SearchOrganizations(ctx context.Context, criteria model.OrganizationSearchCriteria) ([]*model.Organization, error)
}

// OrganizationService handles business logic for the organization registry
type OrganizationService struct {
	orgDAO          *dao.OrganizationDAO
	validationUtil  *util.ValidationUtil
	cacheService    *util.CacheService
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
}

var _ IOrganizationService = &OrganizationService{}

// NewOrganizationService creates a new instance of OrganizationService
func NewOrganizationService(orgDAO *dao.OrganizationDAO, validationUtil *util.ValidationUtil, cacheService *util.CacheService, notificationSvc *util.NotificationService, eventBus *util.EventBus) *OrganizationService {
	service := &OrganizationService{
		orgDAO:          orgDAO,
		validationUtil:  validationUtil,
		cacheService:    cacheService,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
	}

	// Set up event subscriptions
	eventBus.Subscribe(util.EventOrganizationCreated, service.handleOrganizationCreated)
	eventBus.Subscribe(util.EventOrganizationUpdated, service.handleOrganizationUpdated)
	eventBus.Subscribe(util.EventOrganizationDeleted, service.handleOrganizationDeleted)

	return service
}

func (s *OrganizationService) handleOrganizationCreated(ctx context.Context, event util.Event) error {
	org := event.Payload.(model.Organization)
	logger.Info("Organization created event received", zap.String("orgID", org.ID))

	if err := s.notificationSvc.NotifyOrganizationChange(ctx, "created", org); err != nil {
		logger.Warn("Failed to send organization creation notification", zap.Error(err), zap.String("orgID", org.ID))
	}
	return nil
}

func (s *OrganizationService) handleOrganizationUpdated(ctx context.Context, event util.Event) error {
	org := event.Payload.(model.Organization)
	logger.Info("Organization updated event received", zap.String("orgID", org.ID))

	if err := s.notificationSvc.NotifyOrganizationChange(ctx, "updated", org); err != nil {
		logger.Warn("Failed to send organization update notification", zap.Error(err), zap.String("orgID", org.ID))
	}
	return nil
}

func (s *OrganizationService) handleOrganizationDeleted(ctx context.Context, event util.Event) error {
	orgID := event.Payload.(string)
	logger.Info("Organization deleted event received", zap.String("orgID", orgID))

	if err := s.notificationSvc.NotifyOrganizationChange(ctx, "deleted", model.Organization{ID: orgID}); err != nil {
		logger.Warn("Failed to send organization deletion notification", zap.Error(err), zap.String("orgID", orgID))
	}
	return nil
}

// CreateOrganization registers a new organization
func (s *OrganizationService) CreateOrganization(ctx context.Context, org model.Organization, actorID string) (*model.Organization, error) {
	if err := s.validationUtil.ValidateOrganization(org); err != nil {
		return nil, err
	}

	orgID, err := s.orgDAO.CreateOrganization(ctx, org, actorID)
	if err != nil {
		logger.Error("Error creating organization", zap.Error(err), zap.String("actorID", actorID))
		return nil, err
	}

	created, err := s.orgDAO.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	// Update cache
	if err := s.cacheService.SetOrganization(ctx, *created); err != nil {
		logger.Warn("Failed to cache organization", zap.Error(err), zap.String("orgID", orgID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventOrganizationCreated, *created)

	logger.Info("Organization created successfully", zap.String("orgID", orgID), zap.String("actorID", actorID))
	return created, nil
}

// UpdateOrganization handles updates to an existing organization
func (s *OrganizationService) UpdateOrganization(ctx context.Context, org model.Organization, actorID string) (*model.Organization, error) {
	if err := s.validationUtil.ValidateOrganization(org); err != nil {
		return nil, err
	}

	updatedOrg, err := s.orgDAO.UpdateOrganization(ctx, org, actorID)
	if err != nil {
		logger.Error("Error updating organization", zap.Error(err), zap.String("orgID", org.ID), zap.String("actorID", actorID))
		return nil, err
	}

	// Update cache
	if err := s.cacheService.SetOrganization(ctx, *updatedOrg); err != nil {
		logger.Warn("Failed to update organization in cache", zap.Error(err), zap.String("orgID", org.ID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventOrganizationUpdated, *updatedOrg)

	logger.Info("Organization updated successfully", zap.String("orgID", org.ID), zap.String("actorID", actorID))
	return updatedOrg, nil
}

// DeleteOrganization removes an organization from the registry
func (s *OrganizationService) DeleteOrganization(ctx context.Context, orgID string, actorID string) error {
	err := s.orgDAO.DeleteOrganization(ctx, orgID, actorID)
	if err != nil {
		logger.Error("Error deleting organization", zap.Error(err), zap.String("orgID", orgID), zap.String("actorID", actorID))
		return err
	}

	// Remove from cache
	if err := s.cacheService.DeleteOrganization(ctx, orgID); err != nil {
		logger.Warn("Failed to delete organization from cache", zap.Error(err), zap.String("orgID", orgID))
	}

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventOrganizationDeleted, orgID)

	logger.Info("Organization deleted successfully", zap.String("orgID", orgID), zap.String("actorID", actorID))
	return nil
}

// GetOrganization retrieves an organization by its ID
func (s *OrganizationService) GetOrganization(ctx context.Context, orgID string) (*model.Organization, error) {
	// Try to get from cache first
	cachedOrg, err := s.cacheService.GetOrganization(ctx, orgID)
	if err == nil && cachedOrg != nil {
		return cachedOrg, nil
	}

	org, err := s.orgDAO.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, consentinel_errors.ErrOrganizationNotFound) {
			return nil, consentinel_errors.ErrOrganizationNotFound
		}
		logger.Error("Error retrieving organization", zap.Error(err), zap.String("orgID", orgID))
		return nil, consentinel_errors.ErrInternalServer
	}

	// Update cache
	if err := s.cacheService.SetOrganization(ctx, *org); err != nil {
		logger.Warn("Failed to cache organization", zap.Error(err), zap.String("orgID", orgID))
	}

	return org, nil
}

// ListOrganizations retrieves all organizations, possibly with pagination
func (s *OrganizationService) ListOrganizations(ctx context.Context, limit int, offset int) ([]*model.Organization, error) {
	orgs, err := s.orgDAO.ListOrganizations(ctx, limit, offset)
	if err != nil {
		logger.Error("Error listing organizations", zap.Error(err), zap.Int("limit", limit), zap.Int("offset", offset))
		return nil, err
	}

	return orgs, nil
}

// SearchOrganizations searches for organizations based on given criteria
func (s *OrganizationService) SearchOrganizations(ctx context.Context, criteria model.OrganizationSearchCriteria) ([]*model.Organization, error) {
	orgs, err := s.orgDAO.SearchOrganizations(ctx, criteria)
	if err != nil {
		logger.Error("Error searching organizations", zap.Error(err), zap.Any("criteria", criteria))
		return nil, err
	}

	return orgs, nil
}
