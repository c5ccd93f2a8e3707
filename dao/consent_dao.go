// dao/consent_dao.go
package dao

import (
	"context"
	"encoding/json"
	"fmt"
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

// ConsentDAO owns the consent rows. Every mutation goes through a single
// write transaction guarded by the per-pair anchor version, so a supersede
// plus insert appears atomic to any concurrent reader and concurrent grants
// for one pair resolve to exactly one winner. Rows are never deleted.
type ConsentDAO struct {
	Driver       neo4j.Driver
	AuditService audit.Service
}

func NewConsentDAO(driver neo4j.Driver, auditService audit.Service) *ConsentDAO {
	return &ConsentDAO{Driver: driver, AuditService: auditService}
}

// PairVersion reads the optimistic token for a (patient, organization) pair.
// A pair that has never been granted reports version 0.
func (dao *ConsentDAO) PairVersion(ctx context.Context, patientID, organizationID string) (int64, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (a:` + consentinel_neo4j.LabelConsentAnchor + ` {patientID: $patientID, organizationID: $organizationID})
    RETURN a.version
    `
	result, err := session.Run(query, map[string]interface{}{
		"patientID":      patientID,
		"organizationID": organizationID,
	})
	if err != nil {
		return 0, consentinel_errors.ErrDatabaseOperation
	}
	if result.Next() {
		if version, ok := result.Record().Values[0].(int64); ok {
			return version, nil
		}
	}
	return 0, nil
}

// CreateConsent supersedes whatever consent row is currently valid for the
// pair and inserts the new one, in one transaction. The anchor version must
// still equal expectedVersion or the write fails with ErrConsentConflict and
// the caller retries from a fresh read.
func (dao *ConsentDAO) CreateConsent(ctx context.Context, consent *model.Consent, expectedVersion int64) (*model.Consent, error) {
	start := time.Now()
	logger.Info("Creating consent",
		zap.String("patientID", consent.PatientID),
		zap.String("organizationID", consent.OrganizationID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if consent.ID == "" {
		consent.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	categoriesJSON, _ := json.Marshal(consent.Categories)
	purposesJSON, _ := json.Marshal(consent.Purposes)

	result, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		query := `
        MERGE (a:` + consentinel_neo4j.LabelConsentAnchor + ` {patientID: $patientID, organizationID: $organizationID})
        ON CREATE SET a.version = 0
        WITH a
        WHERE a.version = $expectedVersion
        SET a.version = a.version + 1
        WITH a
        OPTIONAL MATCH (old:` + consentinel_neo4j.LabelConsent + ` {patientID: $patientID, organizationID: $organizationID})
        WHERE old.validFrom <= $now AND (old.validUntil IS NULL OR old.validUntil > $now)
        WITH a, collect(old) AS olds
        CREATE (c:` + consentinel_neo4j.LabelConsent + `)
        SET c = $props
        WITH c, olds
        MERGE (org:` + consentinel_neo4j.LabelOrganization + ` {id: $organizationID})
        ON CREATE SET org.name = $organizationID, org.createdAt = $now, org.updatedAt = $now
        MERGE (c)-[:` + consentinel_neo4j.RelGrantedTo + `]->(org)
        FOREACH (o IN olds |
          SET o.validUntil = $now, o.updatedAt = $now, o.lastModifiedBy = $createdBy
          MERGE (o)-[:` + consentinel_neo4j.RelSupersededBy + `]->(c))
        RETURN c, [o IN olds | o.id] AS superseded
        `

		params := map[string]interface{}{
			"patientID":       consent.PatientID,
			"organizationID":  consent.OrganizationID,
			"expectedVersion": expectedVersion,
			"now":             now.Format(time.RFC3339),
			"createdBy":       consent.CreatedBy,
			"props": map[string]interface{}{
				"id":             consent.ID,
				"patientID":      consent.PatientID,
				"organizationID": consent.OrganizationID,
				"accessLevel":    string(consent.AccessLevel),
				"categories":     string(categoriesJSON),
				"purposes":       string(purposesJSON),
				"validFrom":      now.Format(time.RFC3339),
				"validUntil":     formatNullableTime(consent.ValidUntil),
				"createdBy":      consent.CreatedBy,
				"lastModifiedBy": consent.CreatedBy,
				"version":        1,
				"createdAt":      now.Format(time.RFC3339),
				"updatedAt":      now.Format(time.RFC3339),
			},
		}

		result, err := tx.Run(query, params)
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if !result.Next() {
			// The anchor moved between the caller's read and this write.
			return nil, consentinel_errors.ErrConsentConflict
		}

		record := result.Record()
		node := record.Values[0].(neo4j.Node)
		created, err := mapNodeToConsent(node)
		if err != nil {
			return nil, err
		}

		var supersededIDs []string
		if raw, ok := record.Values[1].([]interface{}); ok {
			for _, id := range raw {
				if s, ok := id.(string); ok {
					supersededIDs = append(supersededIDs, s)
				}
			}
		}
		return map[string]interface{}{"consent": created, "superseded": supersededIDs}, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create consent",
			zap.Error(err),
			zap.String("patientID", consent.PatientID),
			zap.String("organizationID", consent.OrganizationID),
			zap.Duration("duration", duration))
		return nil, err
	}

	payload := result.(map[string]interface{})
	created := payload["consent"].(*model.Consent)
	supersededIDs := payload["superseded"].([]string)

	logger.Info("Consent created successfully",
		zap.String("consentID", created.ID),
		zap.Strings("superseded", supersededIDs),
		zap.Duration("duration", duration))

	details, _ := json.Marshal(map[string]interface{}{
		"access_level": created.AccessLevel,
		"superseded":   supersededIDs,
	})
	entry := audit.Entry{
		ActorID:        created.CreatedBy,
		PatientID:      created.PatientID,
		Action:         model.ActionGrant,
		OrganizationID: created.OrganizationID,
		Success:        true,
		Reason:         "Consent granted",
		ConsentID:      created.ID,
		Details:        details,
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return created, nil
}

// GetConsent retrieves one consent row by ID.
func (dao *ConsentDAO) GetConsent(ctx context.Context, consentID string) (*model.Consent, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (c:` + consentinel_neo4j.LabelConsent + ` {id: $id})
    RETURN c
    `
	result, err := session.Run(query, map[string]interface{}{"id": consentID})
	if err != nil {
		return nil, consentinel_errors.ErrDatabaseOperation
	}
	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		return mapNodeToConsent(node)
	}
	return nil, consentinel_errors.ErrConsentNotFound
}

// ActiveConsent returns the latest consent row whose validity window covers
// now for the pair, regardless of access level: a standing deny-all row is a
// legitimate result the evaluator must see. No row returns (nil, nil).
func (dao *ConsentDAO) ActiveConsent(ctx context.Context, patientID, organizationID string, now time.Time) (*model.Consent, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	// Timestamps are stored as UTC RFC3339 strings; string comparison is
	// chronological by construction.
	query := `
    MATCH (c:` + consentinel_neo4j.LabelConsent + ` {patientID: $patientID, organizationID: $organizationID})
    WHERE c.validFrom <= $now AND (c.validUntil IS NULL OR c.validUntil > $now)
    RETURN c
    ORDER BY c.createdAt DESC
    LIMIT 1
    `
	result, err := session.Run(query, map[string]interface{}{
		"patientID":      patientID,
		"organizationID": organizationID,
		"now":            now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, consentinel_errors.ErrDatabaseOperation
	}
	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		return mapNodeToConsent(node)
	}
	return nil, nil
}

// RevokeConsent sets the access level to none and closes the validity
// window. Revoking an already-revoked consent is a no-op that still reports
// success and is still audited; the validity window is not moved again.
func (dao *ConsentDAO) RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error) {
	start := time.Now()
	logger.Info("Revoking consent", zap.String("consentID", consentID), zap.String("actorID", actorID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	now := time.Now().UTC()

	result, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (c:` + consentinel_neo4j.LabelConsent + ` {id: $id})
        WITH c, (c.accessLevel = 'none') AS alreadyRevoked
        FOREACH (x IN CASE WHEN alreadyRevoked THEN [] ELSE [c] END |
          SET x.accessLevel = 'none',
              x.validUntil = $now,
              x.updatedAt = $now,
              x.lastModifiedBy = $actorID,
              x.version = x.version + 1)
        RETURN c, alreadyRevoked
        `
		result, err := tx.Run(query, map[string]interface{}{
			"id":      consentID,
			"now":     now.Format(time.RFC3339),
			"actorID": actorID,
		})
		if err != nil {
			return nil, consentinel_errors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, consentinel_errors.ErrConsentNotFound
		}

		record := result.Record()
		node := record.Values[0].(neo4j.Node)
		revoked, err := mapNodeToConsent(node)
		if err != nil {
			return nil, err
		}
		alreadyRevoked := record.Values[1].(bool)
		return map[string]interface{}{"consent": revoked, "alreadyRevoked": alreadyRevoked}, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to revoke consent",
			zap.Error(err),
			zap.String("consentID", consentID),
			zap.Duration("duration", duration))
		return nil, false, err
	}

	payload := result.(map[string]interface{})
	revoked := payload["consent"].(*model.Consent)
	alreadyRevoked := payload["alreadyRevoked"].(bool)

	logger.Info("Consent revoked",
		zap.String("consentID", consentID),
		zap.Bool("alreadyRevoked", alreadyRevoked),
		zap.Duration("duration", duration))

	if reason == "" {
		reason = "Consent revoked"
	}
	if alreadyRevoked {
		reason = reason + " (already revoked)"
	}
	entry := audit.Entry{
		ActorID:        actorID,
		PatientID:      revoked.PatientID,
		Action:         model.ActionRevoke,
		OrganizationID: revoked.OrganizationID,
		Success:        true,
		Reason:         reason,
		ConsentID:      revoked.ID,
	}
	if err := dao.AuditService.Append(ctx, entry); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}

	return revoked, alreadyRevoked, nil
}

// PatientConsents lists a patient's consent rows for display. Listings never
// feed authorization decisions.
func (dao *ConsentDAO) PatientConsents(ctx context.Context, patientID string, includeExpired bool, now time.Time) ([]*model.Consent, error) {
	return dao.listConsents(ctx, "patientID", patientID, includeExpired, now)
}

// OrganizationConsents lists the consent rows granted to an organization.
func (dao *ConsentDAO) OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool, now time.Time) ([]*model.Consent, error) {
	return dao.listConsents(ctx, "organizationID", organizationID, includeExpired, now)
}

func (dao *ConsentDAO) listConsents(ctx context.Context, field, value string, includeExpired bool, now time.Time) ([]*model.Consent, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `MATCH (c:` + consentinel_neo4j.LabelConsent + ` {` + field + `: $value})`
	if !includeExpired {
		query += ` WHERE c.validFrom <= $now AND (c.validUntil IS NULL OR c.validUntil > $now)`
	}
	query += `
    RETURN c
    ORDER BY c.createdAt DESC
    `

	result, err := session.Run(query, map[string]interface{}{
		"value": value,
		"now":   now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to list consents",
			zap.Error(err),
			zap.String(field, value),
			zap.Duration("duration", time.Since(start)))
		return nil, consentinel_errors.ErrDatabaseOperation
	}

	var consents []*model.Consent
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		consent, err := mapNodeToConsent(node)
		if err != nil {
			return nil, err
		}
		consents = append(consents, consent)
	}

	logger.Debug("Consents listed",
		zap.String(field, value),
		zap.Int("count", len(consents)),
		zap.Duration("duration", time.Since(start)))

	return consents, nil
}

// CountExpiringConsents counts consents that are currently valid but expire
// before the deadline. Standing denials carry no expiry worth flagging, so
// accessLevel 'none' rows are skipped.
func (dao *ConsentDAO) CountExpiringConsents(ctx context.Context, now, deadline time.Time) (int64, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (c:` + consentinel_neo4j.LabelConsent + `)
    WHERE c.validUntil IS NOT NULL
      AND c.validUntil > $now
      AND c.validUntil <= $deadline
      AND c.accessLevel <> 'none'
    RETURN count(c) as expiring
    `
	result, err := session.Run(query, map[string]interface{}{
		"now":      now.UTC().Format(time.RFC3339),
		"deadline": deadline.UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to count expiring consents", zap.Error(err))
		return 0, consentinel_errors.ErrDatabaseOperation
	}

	if result.Next() {
		if count, ok := result.Record().Values[0].(int64); ok {
			return count, nil
		}
	}
	return 0, nil
}

// Helper function to map Neo4j Node to Consent struct
func mapNodeToConsent(node neo4j.Node) (*model.Consent, error) {
	props := node.Props
	consent := &model.Consent{}

	if id, ok := props["id"].(string); ok {
		consent.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for consent ID: %v", props["id"])
	}

	if patientID, ok := props["patientID"].(string); ok {
		consent.PatientID = patientID
	} else {
		return nil, fmt.Errorf("failed to assert type for consent patientID: %v", props["patientID"])
	}

	if organizationID, ok := props["organizationID"].(string); ok {
		consent.OrganizationID = organizationID
	} else {
		return nil, fmt.Errorf("failed to assert type for consent organizationID: %v", props["organizationID"])
	}

	if accessLevel, ok := props["accessLevel"].(string); ok {
		consent.AccessLevel = model.AccessLevel(accessLevel)
	} else {
		return nil, fmt.Errorf("failed to assert type for consent accessLevel: %v", props["accessLevel"])
	}

	if categoriesJSON, ok := props["categories"].(string); ok {
		if err := json.Unmarshal([]byte(categoriesJSON), &consent.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consent categories: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to assert type for consent categories: %v", props["categories"])
	}

	if purposesJSON, ok := props["purposes"].(string); ok {
		if err := json.Unmarshal([]byte(purposesJSON), &consent.Purposes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consent purposes: %w", err)
		}
	}

	if validFrom, ok := props["validFrom"].(string); ok {
		consent.ValidFrom, _ = helper_util.ParseTime(validFrom)
	} else {
		return nil, fmt.Errorf("failed to assert type for consent validFrom: %v", props["validFrom"])
	}

	if validUntil, ok := props["validUntil"]; ok {
		consent.ValidUntil, _ = helper_util.ParseNullableTime(validUntil)
	}

	if createdBy, ok := props["createdBy"].(string); ok {
		consent.CreatedBy = createdBy
	}
	if lastModifiedBy, ok := props["lastModifiedBy"].(string); ok {
		consent.LastModifiedBy = lastModifiedBy
	}

	if version, ok := props["version"].(int64); ok {
		consent.Version = int(version)
	} else {
		return nil, fmt.Errorf("failed to assert type for consent version: %v", props["version"])
	}

	if createdAt, ok := props["createdAt"].(string); ok {
		consent.CreatedAt, _ = helper_util.ParseTime(createdAt)
	}
	if updatedAt, ok := props["updatedAt"].(string); ok {
		consent.UpdatedAt, _ = helper_util.ParseTime(updatedAt)
	}

	return consent, nil
}

// Helper function to format nullable time
func formatNullableTime(t *time.Time) interface{} {
	if t != nil {
		return t.UTC().Format(time.RFC3339)
	}
	return nil
}
