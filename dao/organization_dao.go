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

type OrganizationDAO struct {
	Driver       neo4j.Driver
	AuditService audit.Service
}

func NewOrganizationDAO(driver neo4j.Driver, auditService audit.Service) *OrganizationDAO {
	return &OrganizationDAO{Driver: driver, AuditService: auditService}
}

// CreateOrganization registers an organization. A consent grant may already
// have created a placeholder node for the ID; registration claims it. An ID
// that is already registered (has a type) conflicts.
func (dao *OrganizationDAO) CreateOrganization(ctx context.Context, org model.Organization, actorID string) (string, error) {
	start := time.Now()
	logger.Info("Creating new organization", zap.String("orgName", org.Name))
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		checkQuery := `
        MATCH (o:` + consentinel_neo4j.LabelOrganization + ` {id: $id})
        WHERE o.type IS NOT NULL
        RETURN o.id
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"id": org.ID})
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, consentinel_errors.ErrOrgConflict
		}

		query := `
        MERGE (o:` + consentinel_neo4j.LabelOrganization + ` {id: $id})
        ON CREATE SET o.createdAt = $now
        SET o += $props
        RETURN o.id as id
        `

		params := map[string]interface{}{
			"id":  org.ID,
			"now": time.Now().UTC().Format(time.RFC3339),
			"props": map[string]interface{}{
				"name":      org.Name,
				"type":      org.Type,
				"updatedAt": time.Now().UTC().Format(time.RFC3339),
			},
		}

		result, err := transaction.Run(query, params)
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}

		if result.Next() {
			return result.Record().Values[0], nil
		}

		return nil, consentinel_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create organization",
			zap.Error(err),
			zap.String("orgName", org.Name),
			zap.Duration("duration", duration))
		return "", err
	}

	orgID := fmt.Sprintf("%v", result)
	logger.Info("Organization created successfully",
		zap.String("orgID", orgID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:        actorID,
		Action:         model.ActionCreate,
		OrganizationID: orgID,
		Success:        true,
		Reason:         "Organization registered",
		Details:        createOrgChangeDetails(nil, &org),
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return orgID, nil
}

func (dao *OrganizationDAO) UpdateOrganization(ctx context.Context, org model.Organization, actorID string) (*model.Organization, error) {
	start := time.Now()
	logger.Info("Updating organization", zap.String("orgID", org.ID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	var updatedOrg *model.Organization
	oldOrg, err := dao.GetOrganization(ctx, org.ID)
	if err != nil {
		return nil, err
	}

	_, err = session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (o:` + consentinel_neo4j.LabelOrganization + ` {id: $id})
        SET o += $props
        RETURN o
        `

		params := map[string]interface{}{
			"id": org.ID,
			"props": map[string]interface{}{
				"name":      org.Name,
				"type":      org.Type,
				"updatedAt": time.Now().UTC().Format(time.RFC3339),
			},
		}

		result, err := transaction.Run(query, params)
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}

		if result.Next() {
			node := result.Record().Values[0].(neo4j.Node)
			updatedOrg, err = mapNodeToOrganization(node)
			if err != nil {
				return nil, fmt.Errorf("failed to map organization node to struct: %w", err)
			}
			return nil, nil
		}

		return nil, consentinel_errors.ErrOrganizationNotFound
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update organization",
			zap.Error(err),
			zap.String("orgID", org.ID),
			zap.Duration("duration", duration))
		return nil, err
	}

	logger.Info("Organization updated successfully",
		zap.String("orgID", org.ID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:        actorID,
		Action:         model.ActionUpdate,
		OrganizationID: org.ID,
		Success:        true,
		Reason:         "Organization updated",
		Details:        createOrgChangeDetails(oldOrg, updatedOrg),
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return updatedOrg, nil
}

// DeleteOrganization removes a registered organization. Consent rows that
// reference it stay in place; history is never deleted with the registry
// entry.
func (dao *OrganizationDAO) DeleteOrganization(ctx context.Context, orgID string, actorID string) error {
	start := time.Now()
	logger.Info("Deleting organization", zap.String("orgID", orgID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (o:` + consentinel_neo4j.LabelOrganization + ` {id: $id})
        DETACH DELETE o
        `
		result, err := transaction.Run(query, map[string]interface{}{"id": orgID})
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}

		summary, err := result.Consume()
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}

		if summary.Counters().NodesDeleted() == 0 {
			return nil, consentinel_errors.ErrOrganizationNotFound
		}

		return nil, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete organization",
			zap.Error(err),
			zap.String("orgID", orgID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Organization deleted successfully",
		zap.String("orgID", orgID),
		zap.Duration("duration", duration))

	entry := audit.Entry{
		ActorID:        actorID,
		Action:         model.ActionDelete,
		OrganizationID: orgID,
		Success:        true,
		Reason:         "Organization deleted",
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return nil
}

func (dao *OrganizationDAO) GetOrganization(ctx context.Context, orgID string) (*model.Organization, error) {
	start := time.Now()

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (o:` + consentinel_neo4j.LabelOrganization + ` {id: $id})
    RETURN o
    `
	result, err := session.Run(query, map[string]interface{}{"id": orgID})
	if err != nil {
		logger.Error("Failed to execute get organization query",
			zap.Error(err),
			zap.String("orgID", orgID),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		org, err := mapNodeToOrganization(node)
		if err != nil {
			logger.Error("Failed to map organization node to struct",
				zap.Error(err),
				zap.String("orgID", orgID),
				zap.Duration("duration", time.Since(start)))
			return nil, consentinel_errors.ErrInternalServer
		}
		return org, nil
	}

	logger.Warn("Organization not found",
		zap.String("orgID", orgID),
		zap.Duration("duration", time.Since(start)))
	return nil, consentinel_errors.ErrOrganizationNotFound
}

func (dao *OrganizationDAO) ListOrganizations(ctx context.Context, limit int, offset int) ([]*model.Organization, error) {
	start := time.Now()
	logger.Debug("Listing organizations", zap.Int("limit", limit), zap.Int("offset", offset))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (o:` + consentinel_neo4j.LabelOrganization + `)
    RETURN o
    ORDER BY o.createdAt DESC
    SKIP $offset
    LIMIT $limit
    `
	result, err := session.Run(query, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		logger.Error("Failed to execute list organizations query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	var orgs []*model.Organization
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		org, err := mapNodeToOrganization(node)
		if err != nil {
			logger.Error("Failed to map organization node to struct",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			return nil, consentinel_errors.ErrInternalServer
		}
		orgs = append(orgs, org)
	}

	logger.Info("Organizations listed successfully",
		zap.Int("count", len(orgs)),
		zap.Duration("duration", time.Since(start)))

	return orgs, nil
}

// orgSortFields is the allowlist for SearchOrganizations sort keys; the sort
// key is spliced into the query text and must never come from user input
// unchecked.
var orgSortFields = map[string]bool{
	"name":      true,
	"type":      true,
	"createdAt": true,
	"updatedAt": true,
}

func (dao *OrganizationDAO) SearchOrganizations(ctx context.Context, criteria model.OrganizationSearchCriteria) ([]*model.Organization, error) {
	start := time.Now()
	logger.Debug("Searching organizations", zap.Any("criteria", criteria))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf("MATCH (o:%s) WHERE 1=1", consentinel_neo4j.LabelOrganization))

	params := make(map[string]interface{})

	if criteria.Name != "" {
		queryBuilder.WriteString(" AND toLower(o.name) CONTAINS toLower($name)")
		params["name"] = criteria.Name
	}

	if criteria.ID != "" {
		queryBuilder.WriteString(" AND o.id = $id")
		params["id"] = criteria.ID
	}

	if criteria.Type != "" {
		queryBuilder.WriteString(" AND o.type = $type")
		params["type"] = criteria.Type
	}

	if criteria.FromDate != nil {
		queryBuilder.WriteString(" AND o.createdAt >= $fromDate")
		params["fromDate"] = criteria.FromDate.UTC().Format(time.RFC3339)
	}

	if criteria.ToDate != nil {
		queryBuilder.WriteString(" AND o.createdAt <= $toDate")
		params["toDate"] = criteria.ToDate.UTC().Format(time.RFC3339)
	}

	queryBuilder.WriteString(" RETURN o")

	if orgSortFields[criteria.SortBy] {
		queryBuilder.WriteString(fmt.Sprintf(" ORDER BY o.%s", criteria.SortBy))
		if strings.EqualFold(criteria.SortOrder, "desc") {
			queryBuilder.WriteString(" DESC")
		} else {
			queryBuilder.WriteString(" ASC")
		}
	} else {
		queryBuilder.WriteString(" ORDER BY o.createdAt DESC")
	}

	if criteria.Offset > 0 {
		queryBuilder.WriteString(" SKIP $offset")
		params["offset"] = criteria.Offset
	}

	if criteria.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $limit")
		params["limit"] = criteria.Limit
	}

	result, err := session.Run(queryBuilder.String(), params)
	if err != nil {
		logger.Error("Failed to execute search organizations query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	var orgs []*model.Organization
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		org, err := mapNodeToOrganization(node)
		if err != nil {
			logger.Error("Failed to map organization node to struct",
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			return nil, consentinel_errors.ErrInternalServer
		}
		orgs = append(orgs, org)
	}

	logger.Info("Organizations searched successfully",
		zap.Int("count", len(orgs)),
		zap.Duration("duration", time.Since(start)))

	return orgs, nil
}

// Helper function to map Neo4j Node to Organization struct
func mapNodeToOrganization(node neo4j.Node) (*model.Organization, error) {
	props := node.Props
	org := &model.Organization{}

	if id, ok := props["id"].(string); ok {
		org.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for organization ID: %v", props["id"])
	}

	if name, ok := props["name"].(string); ok {
		org.Name = name
	}
	if orgType, ok := props["type"].(string); ok {
		org.Type = orgType
	}
	if createdAt, ok := props["createdAt"].(string); ok {
		org.CreatedAt, _ = helper_util.ParseTime(createdAt)
	}
	if updatedAt, ok := props["updatedAt"].(string); ok {
		org.UpdatedAt, _ = helper_util.ParseTime(updatedAt)
	}

	return org, nil
}

// Helper function to create change details for audit log
func createOrgChangeDetails(oldOrg, newOrg *model.Organization) json.RawMessage {
	changes := make(map[string]interface{})
	if oldOrg == nil {
		changes["action"] = "created"
	} else if newOrg == nil {
		changes["action"] = "deleted"
	} else {
		changes["action"] = "updated"
		if oldOrg.Name != newOrg.Name {
			changes["name"] = map[string]string{"old": oldOrg.Name, "new": newOrg.Name}
		}
		if oldOrg.Type != newOrg.Type {
			changes["type"] = map[string]string{"old": oldOrg.Type, "new": newOrg.Type}
		}
	}
	changeDetails, _ := json.Marshal(changes)
	return changeDetails
}
