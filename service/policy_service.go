// service/policy_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medtrail/consentinel/dao"
	"github.com/medtrail/consentinel/db"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/util"
)

const (
	bulkImportLock    = "policies:bulk"
	bulkImportLockTTL = time.Minute
)

// SnapshotFlusher invalidates cached applicable-policy snapshots. Every
// policy write must flush so the evaluator never decides on a stale set
// longer than the write takes to land.
type SnapshotFlusher interface {
	FlushSnapshots()
}

// IPolicyService defines the interface for policy operations
type IPolicyService interface {
	CreatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error)
	UpdatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error)
	DeletePolicy(ctx context.Context, policyID string, actorID string) error
	GetPolicy(ctx context.Context, policyID string) (*model.Policy, error)
	ListPolicies(ctx context.Context, limit int, offset int) ([]*model.Policy, error)
	SearchPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.Policy, error)
	BulkCreatePolicies(ctx context.Context, policies []model.Policy, actorID string) ([]string, error)
}

// PolicyService handles business logic for policy operations
type PolicyService struct {
	policyDAO       *dao.PolicyDAO
	validationUtil  *util.ValidationUtil
	cacheService    *util.CacheService
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
	flusher         SnapshotFlusher
}

var _ IPolicyService = &PolicyService{}

// NewPolicyService creates a new instance of PolicyService
func NewPolicyService(policyDAO *dao.PolicyDAO, validationUtil *util.ValidationUtil, cacheService *util.CacheService, notificationSvc *util.NotificationService, eventBus *util.EventBus, flusher SnapshotFlusher) *PolicyService {
	service := &PolicyService{
		policyDAO:       policyDAO,
		validationUtil:  validationUtil,
		cacheService:    cacheService,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
		flusher:         flusher,
	}

	// Set up event subscriptions
	eventBus.Subscribe(util.EventPolicyCreated, service.handlePolicyCreated)
	eventBus.Subscribe(util.EventPolicyUpdated, service.handlePolicyUpdated)
	eventBus.Subscribe(util.EventPolicyDeleted, service.handlePolicyDeleted)

	return service
}

func (s *PolicyService) handlePolicyCreated(ctx context.Context, event util.Event) error {
	policy := event.Payload.(model.Policy)
	logger.Info("Policy created event received", zap.String("policyID", policy.ID))

	if err := s.notificationSvc.NotifyPolicyChange(ctx, "created", policy); err != nil {
		logger.Warn("Failed to send policy creation notification", zap.Error(err), zap.String("policyID", policy.ID))
	}
	return nil
}

func (s *PolicyService) handlePolicyUpdated(ctx context.Context, event util.Event) error {
	payload, ok := event.Payload.(map[string]model.Policy)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}
	oldPolicy, newPolicy := payload["old"], payload["new"]

	logger.Info("Policy updated event received",
		zap.String("policyID", newPolicy.ID),
		zap.Int("oldVersion", oldPolicy.Version),
		zap.Int("newVersion", newPolicy.Version))

	if err := s.notificationSvc.NotifyPolicyChange(ctx, "updated", newPolicy); err != nil {
		logger.Warn("Failed to send policy update notification", zap.Error(err), zap.String("policyID", newPolicy.ID))
	}
	return nil
}

func (s *PolicyService) handlePolicyDeleted(ctx context.Context, event util.Event) error {
	policyID, ok := event.Payload.(string)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}

	logger.Info("Policy deleted event received", zap.String("policyID", policyID))

	if err := s.notificationSvc.NotifyPolicyChange(ctx, "deleted", model.Policy{ID: policyID}); err != nil {
		logger.Warn("Failed to send policy deletion notification", zap.Error(err), zap.String("policyID", policyID))
	}
	return nil
}

// CreatePolicy handles the creation of a new policy
func (s *PolicyService) CreatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error) {
	if err := s.validationUtil.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	if err := s.checkPolicyConflicts(ctx, policy); err != nil {
		return nil, err
	}

	policyID, err := s.policyDAO.CreatePolicy(ctx, policy, actorID)
	if err != nil {
		logger.Error("Error creating policy", zap.Error(err), zap.String("actorID", actorID))
		return nil, err
	}

	created, err := s.policyDAO.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *created); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policyID))
	}

	// The evaluator must see the new policy on its next decision
	s.flusher.FlushSnapshots()

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventPolicyCreated, *created)

	logger.Info("Policy created successfully", zap.String("policyID", policyID), zap.String("actorID", actorID))
	return created, nil
}

// UpdatePolicy handles updates to an existing policy. The caller's Version
// field is the version it read; a concurrent writer in between surfaces as
// ErrPolicyConflict from the store.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error) {
	if err := s.validationUtil.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	oldPolicy, err := s.policyDAO.GetPolicy(ctx, policy.ID)
	if err != nil {
		logger.Error("Error retrieving existing policy", zap.Error(err), zap.String("policyID", policy.ID))
		return nil, err
	}

	// Check if there are any differences between the old and new policies
	if !s.hasPolicyChanged(oldPolicy, &policy) {
		logger.Info("No changes detected in the policy, skipping update", zap.String("policyID", policy.ID))
		return oldPolicy, nil
	}

	updatedPolicy, err := s.policyDAO.UpdatePolicy(ctx, policy, actorID)
	if err != nil {
		logger.Error("Error updating policy", zap.Error(err), zap.String("policyID", policy.ID), zap.String("actorID", actorID))
		return nil, err
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *updatedPolicy); err != nil {
		logger.Warn("Failed to update policy in cache", zap.Error(err), zap.String("policyID", policy.ID))
	}

	s.flusher.FlushSnapshots()

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventPolicyUpdated, map[string]model.Policy{
		"old": *oldPolicy,
		"new": *updatedPolicy,
	})

	logger.Info("Policy updated successfully", zap.String("policyID", policy.ID), zap.String("actorID", actorID))
	return updatedPolicy, nil
}

// DeletePolicy handles the deletion of a policy
func (s *PolicyService) DeletePolicy(ctx context.Context, policyID string, actorID string) error {
	err := s.policyDAO.DeletePolicy(ctx, policyID, actorID)
	if err != nil {
		logger.Error("Error deleting policy", zap.Error(err), zap.String("policyID", policyID), zap.String("actorID", actorID))
		return err
	}

	// Remove from cache
	if err := s.cacheService.DeletePolicy(ctx, policyID); err != nil {
		logger.Warn("Failed to delete policy from cache", zap.Error(err), zap.String("policyID", policyID))
	}

	s.flusher.FlushSnapshots()

	// Publish event for asynchronous processing
	s.eventBus.Publish(ctx, util.EventPolicyDeleted, policyID)

	logger.Info("Policy deleted successfully", zap.String("policyID", policyID), zap.String("actorID", actorID))
	return nil
}

// GetPolicy retrieves a policy by its ID
func (s *PolicyService) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	// Try to get from cache first
	cachedPolicy, err := s.cacheService.GetPolicy(ctx, policyID)
	if err == nil && cachedPolicy != nil {
		return cachedPolicy, nil
	}

	policy, err := s.policyDAO.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, consentinel_errors.ErrPolicyNotFound) {
			return nil, consentinel_errors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, consentinel_errors.ErrInternalServer
	}

	// Update cache
	if err := s.cacheService.SetPolicy(ctx, *policy); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policyID))
	}

	return policy, nil
}

// ListPolicies retrieves all policies, possibly with pagination
func (s *PolicyService) ListPolicies(ctx context.Context, limit int, offset int) ([]*model.Policy, error) {
	policies, err := s.policyDAO.ListPolicies(ctx, limit, offset)
	if err != nil {
		logger.Error("Error listing policies", zap.Error(err), zap.Int("limit", limit), zap.Int("offset", offset))
		return nil, err
	}

	return policies, nil
}

// SearchPolicies searches for policies based on given criteria
func (s *PolicyService) SearchPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.Policy, error) {
	policies, err := s.policyDAO.SearchPolicies(ctx, criteria)
	if err != nil {
		logger.Error("Error searching policies", zap.Error(err), zap.Any("criteria", criteria))
		return nil, err
	}

	return policies, nil
}

// BulkCreatePolicies creates multiple policies in parallel. Imports are
// serialized through a redis lock; the per-create conflict check cannot see
// rows a concurrent import is still writing.
func (s *PolicyService) BulkCreatePolicies(ctx context.Context, policies []model.Policy, actorID string) ([]string, error) {
	locked, err := db.LockResource(ctx, bulkImportLock, bulkImportLockTTL)
	if err != nil {
		logger.Error("Could not reach the lock store for bulk import", zap.Error(err), zap.String("actorID", actorID))
		return nil, consentinel_errors.ErrInternalServer
	}
	if !locked {
		return nil, consentinel_errors.ErrBulkImportInProgress
	}
	defer func() {
		if err := db.UnlockResource(ctx, bulkImportLock); err != nil {
			logger.Warn("Failed to release bulk import lock", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	policyIDs := make([]string, len(policies))

	// Limit concurrency to avoid overwhelming the store
	semaphore := make(chan struct{}, 10)

	for i, policy := range policies {
		i, policy := i, policy
		g.Go(func() error {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			createdPolicy, err := s.CreatePolicy(ctx, policy, actorID)
			if err != nil {
				return err
			}
			policyIDs[i] = createdPolicy.ID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Error in bulk create policies", zap.Error(err), zap.String("actorID", actorID))
		return nil, fmt.Errorf("failed to bulk create policies: %w", err)
	}

	logger.Info("Bulk create policies completed", zap.Int("count", len(policyIDs)), zap.String("actorID", actorID))
	return policyIDs, nil
}

// checkPolicyConflicts rejects a second policy with the same name and scope
// target; such pairs are almost always a double submission.
func (s *PolicyService) checkPolicyConflicts(ctx context.Context, policy model.Policy) error {
	existing, err := s.policyDAO.SearchPolicies(ctx, model.PolicySearchCriteria{
		Name:  policy.Name,
		Scope: policy.Scope,
		Limit: 10,
	})
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.ID == policy.ID {
			continue
		}
		if p.OrganizationID == policy.OrganizationID &&
			p.PatientID == policy.PatientID &&
			p.DataCategory == policy.DataCategory {
			return fmt.Errorf("%w: policy %q already exists for this scope", consentinel_errors.ErrPolicyConflict, policy.Name)
		}
	}
	return nil
}

// hasPolicyChanged checks if there are any differences between the old and new policies
func (s *PolicyService) hasPolicyChanged(oldPolicy, newPolicy *model.Policy) bool {
	if oldPolicy.Name != newPolicy.Name ||
		oldPolicy.Description != newPolicy.Description ||
		oldPolicy.Type != newPolicy.Type ||
		oldPolicy.Scope != newPolicy.Scope ||
		oldPolicy.OrganizationID != newPolicy.OrganizationID ||
		oldPolicy.PatientID != newPolicy.PatientID ||
		oldPolicy.DataCategory != newPolicy.DataCategory ||
		oldPolicy.Priority != newPolicy.Priority ||
		oldPolicy.Active != newPolicy.Active ||
		!reflect.DeepEqual(oldPolicy.ExpiresAt, newPolicy.ExpiresAt) ||
		!reflect.DeepEqual(oldPolicy.Rules, newPolicy.Rules) {
		return true
	}
	return false
}
