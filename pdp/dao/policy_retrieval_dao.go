package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	consentinel_neo4j "github.com/medtrail/consentinel/model/neo4j"
)

// PolicyRetrievalDAO serves the evaluator's applicable-policy reads. Results
// are held in a short-TTL in-process snapshot cache; every policy write must
// call FlushSnapshots so a stale snapshot never outlives the TTL after a
// change.
type PolicyRetrievalDAO struct {
	Driver    neo4j.Driver
	snapshots *gocache.Cache
}

func NewPolicyRetrievalDAO(driver neo4j.Driver, snapshotTTL time.Duration) *PolicyRetrievalDAO {
	if snapshotTTL <= 0 {
		snapshotTTL = 30 * time.Second
	}
	return &PolicyRetrievalDAO{
		Driver:    driver,
		snapshots: gocache.New(snapshotTTL, 2*snapshotTTL),
	}
}

// ApplicablePolicies returns the active, unexpired policies whose scope
// covers the request: global ∪ patient ∪ organization ∪ data category,
// ordered by priority descending with ties broken by ascending ID. Callers
// must treat the returned slice as read-only; snapshots are shared.
func (dao *PolicyRetrievalDAO) ApplicablePolicies(ctx context.Context, patientID, organizationID string, category model.DataCategory, now time.Time) ([]*model.Policy, error) {
	start := time.Now()
	key := snapshotKey(patientID, organizationID, category)
	if cached, ok := dao.snapshots.Get(key); ok {
		logger.Debug("Applicable-policy snapshot hit", zap.String("key", key))
		return cached.([]*model.Policy), nil
	}

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + consentinel_neo4j.LabelPolicy + `)
        WHERE p.active = true
          AND (p.expiresAt IS NULL OR p.expiresAt > $now)
          AND (
            p.scope = 'global'
            OR (p.scope = 'patient' AND p.patientID = $patientID)
            OR ($organizationID <> '' AND p.scope = 'organization' AND p.organizationID = $organizationID)
            OR (p.scope = 'data_category' AND p.dataCategory = $category)
          )
        RETURN p
        ORDER BY p.priority DESC, p.id ASC
        `

		params := map[string]interface{}{
			"patientID":      patientID,
			"organizationID": organizationID,
			"category":       string(category),
			"now":            now.UTC().Format(time.RFC3339),
		}

		result, err := tx.Run(query, params)
		if err != nil {
			return nil, err
		}

		var policies []*model.Policy
		for result.Next() {
			policyNode := result.Record().Values[0].(neo4j.Node)
			policy, err := mapPolicyNode(policyNode)
			if err != nil {
				return nil, err
			}
			policies = append(policies, policy)
		}

		return policies, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to retrieve applicable policies",
			zap.Error(err),
			zap.String("patientID", patientID),
			zap.String("organizationID", organizationID),
			zap.Duration("duration", duration))
		return nil, err
	}

	policies := result.([]*model.Policy)
	dao.snapshots.SetDefault(key, policies)

	logger.Debug("Retrieved applicable policies",
		zap.Int("policy_count", len(policies)),
		zap.String("patientID", patientID),
		zap.Duration("duration", duration))

	return policies, nil
}

// FlushSnapshots drops every cached snapshot. Called on every policy write.
func (dao *PolicyRetrievalDAO) FlushSnapshots() {
	dao.snapshots.Flush()
	logger.Debug("Applicable-policy snapshots flushed")
}

func snapshotKey(patientID, organizationID string, category model.DataCategory) string {
	return patientID + "|" + organizationID + "|" + string(category)
}

// mapPolicyNode maps the evaluation-relevant projection of a policy node.
func mapPolicyNode(node neo4j.Node) (*model.Policy, error) {
	props := node.Props
	policy := &model.Policy{}

	id, ok := props[consentinel_neo4j.AttrID].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy ID: %v", props[consentinel_neo4j.AttrID])
	}
	policy.ID = id

	name, ok := props[consentinel_neo4j.AttrName].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy name: %v", props[consentinel_neo4j.AttrName])
	}
	policy.Name = name

	typeStr, ok := props[consentinel_neo4j.AttrType].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy type: %v", props[consentinel_neo4j.AttrType])
	}
	policy.Type = model.PolicyType(typeStr)

	scope, ok := props[consentinel_neo4j.AttrScope].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy scope: %v", props[consentinel_neo4j.AttrScope])
	}
	policy.Scope = model.PolicyScope(scope)

	priority, ok := props[consentinel_neo4j.AttrPriority].(int64)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy priority: %v", props[consentinel_neo4j.AttrPriority])
	}
	policy.Priority = int(priority)

	active, ok := props[consentinel_neo4j.AttrActive].(bool)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy active: %v", props[consentinel_neo4j.AttrActive])
	}
	policy.Active = active

	if patientID, ok := props[consentinel_neo4j.AttrPatientID].(string); ok {
		policy.PatientID = patientID
	}
	if organizationID, ok := props[consentinel_neo4j.AttrOrganizationID].(string); ok {
		policy.OrganizationID = organizationID
	}
	if category, ok := props[consentinel_neo4j.AttrDataCategory].(string); ok {
		policy.DataCategory = model.DataCategory(category)
	}

	rulesJSON, ok := props[consentinel_neo4j.AttrRules].(string)
	if !ok {
		return nil, fmt.Errorf("failed to assert type for policy rules: %v", props[consentinel_neo4j.AttrRules])
	}
	rules, err := model.DecodeRules(policy.Type, json.RawMessage(rulesJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decode policy rules: %w", err)
	}
	policy.Rules = rules

	return policy, nil
}
