// dao/policy_dao.go
package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/medtrail/consentinel/audit"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	consentinel_neo4j "github.com/medtrail/consentinel/model/neo4j"
	helper_util "github.com/medtrail/consentinel/util/helper"
)

type PolicyDAO struct {
	Driver       neo4j.Driver
	AuditService audit.Service
}

func NewPolicyDAO(driver neo4j.Driver, auditService audit.Service) *PolicyDAO {
	return &PolicyDAO{Driver: driver, AuditService: auditService}
}

// CreatePolicy creates a new policy node in Neo4j
func (dao *PolicyDAO) CreatePolicy(ctx context.Context, policy model.Policy, actorID string) (string, error) {
	start := time.Now()
	logger.Info("Creating new policy",
		zap.String("policyName", policy.Name),
		zap.String("policyType", string(policy.Type)))
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		// First, check if the policy already exists
		checkQuery := `
        MATCH (p:` + consentinel_neo4j.LabelPolicy + ` {id: $id})
        RETURN p.id
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"id": policy.ID})
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, consentinel_errors.ErrPolicyConflict
		}

		createQuery := `
        CREATE (p:` + consentinel_neo4j.LabelPolicy + ` {id: $id})
        SET p += $props
        RETURN p.id as id
        `

		rulesJSON, err := json.Marshal(policy.Rules)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal policy rules: %w", err)
		}

		parameters := map[string]interface{}{
			"id": policy.ID,
			"props": map[string]interface{}{
				"name":           policy.Name,
				"description":    policy.Description,
				"type":           string(policy.Type),
				"scope":          string(policy.Scope),
				"organizationID": policy.OrganizationID,
				"patientID":      policy.PatientID,
				"dataCategory":   string(policy.DataCategory),
				"rules":          string(rulesJSON),
				"priority":       policy.Priority,
				"active":         policy.Active,
				"expiresAt":      formatNullableTime(policy.ExpiresAt),
				"version":        1,
				"createdAt":      now.Format(time.RFC3339),
				"updatedAt":      now.Format(time.RFC3339),
			},
		}
		createResult, err := transaction.Run(createQuery, parameters)
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if createResult.Next() {
			id, found := createResult.Record().Get("id")
			if !found {
				return nil, consentinel_errors.ErrInternalServer
			}
			return id, nil
		}
		return nil, consentinel_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create policy",
			zap.Error(err),
			zap.String("policyName", policy.Name),
			zap.Duration("duration", duration))
		return "", err
	}

	policyID := fmt.Sprintf("%v", result)
	logger.Info("Policy created successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:        actorID,
		Action:         model.ActionCreate,
		OrganizationID: policy.OrganizationID,
		Success:        true,
		Reason:         "Policy created",
		PolicyID:       policyID,
		Details:        createPolicyChangeDetails(nil, &policy),
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}
	return policyID, nil
}

// UpdatePolicy updates an existing policy in Neo4j. The write only lands if
// the stored version still matches the version the caller read; a stale
// caller gets ErrPolicyConflict and must re-read.
func (dao *PolicyDAO) UpdatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error) {
	start := time.Now()
	logger.Info("Updating policy", zap.String("policyID", policy.ID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	var updatedPolicy *model.Policy
	oldPolicy, err := dao.GetPolicy(ctx, policy.ID)
	if err != nil {
		return nil, err
	}

	_, err = session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + consentinel_neo4j.LabelPolicy + ` {id: $id})
        WHERE p.version = $expectedVersion
        SET p.name = $name, p.description = $description, p.type = $type,
            p.scope = $scope, p.organizationID = $organizationID, p.patientID = $patientID,
            p.dataCategory = $dataCategory, p.rules = $rules, p.priority = $priority,
            p.active = $active, p.expiresAt = $expiresAt,
            p.version = p.version + 1, p.updatedAt = $updatedAt
        RETURN p
        `

		rulesJSON, err := json.Marshal(policy.Rules)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal policy rules: %w", err)
		}

		parameters := map[string]interface{}{
			"id":              policy.ID,
			"expectedVersion": policy.Version,
			"name":            policy.Name,
			"description":     policy.Description,
			"type":            string(policy.Type),
			"scope":           string(policy.Scope),
			"organizationID":  policy.OrganizationID,
			"patientID":       policy.PatientID,
			"dataCategory":    string(policy.DataCategory),
			"rules":           string(rulesJSON),
			"priority":        policy.Priority,
			"active":          policy.Active,
			"expiresAt":       formatNullableTime(policy.ExpiresAt),
			"updatedAt":       time.Now().UTC().Format(time.RFC3339),
		}
		result, err := transaction.Run(query, parameters)
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if result.Next() {
			node := result.Record().Values[0].(neo4j.Node)
			updatedPolicy, err = mapNodeToPolicy(node)
			if err != nil {
				return nil, err
			}
			return nil, nil
		}
		// The policy existed a moment ago, so a missing row means the
		// version guard rejected a stale write.
		return nil, consentinel_errors.ErrPolicyConflict
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update policy",
			zap.Error(err),
			zap.String("policyID", policy.ID),
			zap.Duration("duration", duration))
		return nil, err
	}

	logger.Info("Policy updated successfully",
		zap.String("policyID", policy.ID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:        actorID,
		Action:         model.ActionUpdate,
		OrganizationID: updatedPolicy.OrganizationID,
		Success:        true,
		Reason:         "Policy updated",
		PolicyID:       policy.ID,
		Details:        createPolicyChangeDetails(oldPolicy, updatedPolicy),
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return updatedPolicy, nil
}

// DeletePolicy deletes a policy from Neo4j
func (dao *PolicyDAO) DeletePolicy(ctx context.Context, policyID string, actorID string) error {
	start := time.Now()
	logger.Info("Deleting policy", zap.String("policyID", policyID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + consentinel_neo4j.LabelPolicy + ` {id: $id})
        DETACH DELETE p
        `
		result, err := transaction.Run(query, map[string]interface{}{"id": policyID})
		if err != nil {
			return nil, fmt.Errorf("failed to execute delete query: %w", err)
		}
		summary, err := result.Consume()
		if err != nil {
			return nil, fmt.Errorf("failed to consume delete result: %w", err)
		}
		if summary.Counters().NodesDeleted() == 0 {
			return nil, consentinel_errors.ErrPolicyNotFound
		}
		return nil, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy deleted successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:  actorID,
		Action:   model.ActionDelete,
		Success:  true,
		Reason:   "Policy deleted",
		PolicyID: policyID,
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return nil
}

// GetPolicy retrieves a policy from Neo4j by its ID
func (dao *PolicyDAO) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	start := time.Now()

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:` + consentinel_neo4j.LabelPolicy + ` {id: $id})
    RETURN p
    `
	result, err := session.Run(query, map[string]interface{}{"id": policyID})
	if err != nil {
		logger.Error("Failed to execute get policy query",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			logger.Error("Failed to map policy node to struct",
				zap.Error(err),
				zap.String("policyID", policyID),
				zap.Duration("duration", time.Since(start)))
			return nil, err
		}
		return policy, nil
	}

	logger.Warn("Policy not found",
		zap.String("policyID", policyID),
		zap.Duration("duration", time.Since(start)))
	return nil, consentinel_errors.ErrPolicyNotFound
}

// ListPolicies retrieves policies from Neo4j with pagination, in the order
// the evaluator would consider them.
func (dao *PolicyDAO) ListPolicies(ctx context.Context, limit int, offset int) ([]*model.Policy, error) {
	start := time.Now()
	logger.Debug("Listing policies", zap.Int("limit", limit), zap.Int("offset", offset))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:` + consentinel_neo4j.LabelPolicy + `)
    RETURN p
    ORDER BY p.priority DESC, p.id ASC
    SKIP $offset
    LIMIT $limit
    `
	result, err := session.Run(query, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		logger.Error("Failed to execute list policies query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	var policies []*model.Policy
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			logger.Error("Failed to map policy node to struct",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			return nil, err
		}
		policies = append(policies, policy)
	}

	logger.Info("Policies listed successfully",
		zap.Int("count", len(policies)),
		zap.Duration("duration", time.Since(start)))

	return policies, nil
}

// CountActivePolicies counts policies whose active flag is set and whose
// expiry, if any, has not passed.
func (dao *PolicyDAO) CountActivePolicies(ctx context.Context, now time.Time) (int64, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:` + consentinel_neo4j.LabelPolicy + `)
    WHERE p.active = true AND (p.expiresAt IS NULL OR p.expiresAt > $now)
    RETURN count(p) as active
    `
	result, err := session.Run(query, map[string]interface{}{
		"now": now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to count active policies", zap.Error(err))
		return 0, consentinel_errors.ErrDatabaseOperation
	}

	if result.Next() {
		if count, ok := result.Record().Values[0].(int64); ok {
			return count, nil
		}
	}
	return 0, nil
}

// CountExpiredActivePolicies counts policies still flagged active whose
// expiry has passed. The evaluator ignores them, so a nonzero count means
// stale rows nobody cleaned up.
func (dao *PolicyDAO) CountExpiredActivePolicies(ctx context.Context, now time.Time) (int64, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:` + consentinel_neo4j.LabelPolicy + `)
    WHERE p.active = true AND p.expiresAt IS NOT NULL AND p.expiresAt <= $now
    RETURN count(p) as stale
    `
	result, err := session.Run(query, map[string]interface{}{
		"now": now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to count expired active policies", zap.Error(err))
		return 0, consentinel_errors.ErrDatabaseOperation
	}

	if result.Next() {
		if count, ok := result.Record().Values[0].(int64); ok {
			return count, nil
		}
	}
	return 0, nil
}

// SearchPolicies searches for policies based on given criteria
func (dao *PolicyDAO) SearchPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.Policy, error) {
	start := time.Now()
	logger.Debug("Searching policies", zap.Any("criteria", criteria))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	var queryBuilder strings.Builder
	queryBuilder.WriteString("MATCH (p:" + consentinel_neo4j.LabelPolicy + ") WHERE 1=1")

	params := make(map[string]interface{})

	if criteria.Name != "" {
		queryBuilder.WriteString(" AND p.name = $name")
		params["name"] = criteria.Name
	}

	if criteria.Type != "" {
		queryBuilder.WriteString(" AND p.type = $type")
		params["type"] = string(criteria.Type)
	}

	if criteria.Scope != "" {
		queryBuilder.WriteString(" AND p.scope = $scope")
		params["scope"] = string(criteria.Scope)
	}

	if criteria.Active != nil {
		queryBuilder.WriteString(" AND p.active = $active")
		params["active"] = *criteria.Active
	}

	if criteria.MinPriority > 0 {
		queryBuilder.WriteString(" AND p.priority >= $minPriority")
		params["minPriority"] = criteria.MinPriority
	}

	if criteria.MaxPriority > 0 {
		queryBuilder.WriteString(" AND p.priority <= $maxPriority")
		params["maxPriority"] = criteria.MaxPriority
	}

	queryBuilder.WriteString(" RETURN p ORDER BY p.priority DESC, p.id ASC")

	if criteria.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $limit")
		params["limit"] = criteria.Limit
	}

	result, err := session.Run(queryBuilder.String(), params)
	if err != nil {
		logger.Error("Failed to execute search policies query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	var policies []*model.Policy
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			logger.Error("Failed to map policy node to struct",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			return nil, err
		}
		policies = append(policies, policy)
	}

	logger.Info("Policies searched successfully",
		zap.Int("count", len(policies)),
		zap.Duration("duration", time.Since(start)))

	return policies, nil
}

// Helper function to create change details for audit log
func createPolicyChangeDetails(oldPolicy, newPolicy *model.Policy) json.RawMessage {
	changes := make(map[string]interface{})
	if oldPolicy == nil {
		changes["action"] = "created"
	} else if newPolicy == nil {
		changes["action"] = "deleted"
	} else {
		changes["action"] = "updated"
		if oldPolicy.Name != newPolicy.Name {
			changes["name"] = map[string]string{"old": oldPolicy.Name, "new": newPolicy.Name}
		}
		if oldPolicy.Priority != newPolicy.Priority {
			changes["priority"] = map[string]int{"old": oldPolicy.Priority, "new": newPolicy.Priority}
		}
		if oldPolicy.Active != newPolicy.Active {
			changes["active"] = map[string]bool{"old": oldPolicy.Active, "new": newPolicy.Active}
		}
	}
	changeDetails, _ := json.Marshal(changes)
	return changeDetails
}

// Helper function to map Neo4j Node to Policy struct
func mapNodeToPolicy(node neo4j.Node) (*model.Policy, error) {
	props := node.Props
	policy := &model.Policy{}

	// ID
	if id, ok := props["id"].(string); ok {
		policy.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for policy ID: %v", props["id"])
	}

	// Name
	if name, ok := props["name"].(string); ok {
		policy.Name = name
	} else {
		return nil, fmt.Errorf("failed to assert type for policy name: %v", props["name"])
	}

	// Description
	if description, ok := props["description"].(string); ok {
		policy.Description = description
	}

	// Type
	if policyType, ok := props["type"].(string); ok {
		policy.Type = model.PolicyType(policyType)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy type: %v", props["type"])
	}

	// Scope
	if scope, ok := props["scope"].(string); ok {
		policy.Scope = model.PolicyScope(scope)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy scope: %v", props["scope"])
	}

	// Scope targets are empty strings for the scopes they do not apply to
	if organizationID, ok := props["organizationID"].(string); ok {
		policy.OrganizationID = organizationID
	}
	if patientID, ok := props["patientID"].(string); ok {
		policy.PatientID = patientID
	}
	if dataCategory, ok := props["dataCategory"].(string); ok {
		policy.DataCategory = model.DataCategory(dataCategory)
	}

	// Rules
	if rulesJSON, ok := props["rules"].(string); ok {
		rules, err := model.DecodeRules(policy.Type, json.RawMessage(rulesJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to decode policy rules: %w", err)
		}
		policy.Rules = rules
	} else {
		return nil, fmt.Errorf("failed to assert type for policy rules: %v", props["rules"])
	}

	// Priority
	if priority, ok := props["priority"].(int64); ok {
		policy.Priority = int(priority)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy priority: %v", props["priority"])
	}

	// Active
	if active, ok := props["active"].(bool); ok {
		policy.Active = active
	} else {
		return nil, fmt.Errorf("failed to assert type for policy active: %v", props["active"])
	}

	// ExpiresAt
	if expiresAt, ok := props["expiresAt"]; ok {
		policy.ExpiresAt, _ = helper_util.ParseNullableTime(expiresAt)
	}

	// Version
	if version, ok := props["version"].(int64); ok {
		policy.Version = int(version)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy version: %v", props["version"])
	}

	// CreatedAt
	if createdAt, ok := props["createdAt"].(string); ok {
		policy.CreatedAt, _ = helper_util.ParseTime(createdAt)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy createdAt: %v", props["createdAt"])
	}

	// UpdatedAt
	if updatedAt, ok := props["updatedAt"].(string); ok {
		policy.UpdatedAt, _ = helper_util.ParseTime(updatedAt)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy updatedAt: %v", props["updatedAt"])
	}

	return policy, nil
}
