// db/db.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/medtrail/consentinel/config"
	logger "github.com/medtrail/consentinel/logging"
)

var Neo4jDriver neo4j.Driver

func InitNeo4j() error {
	var err error
	uri := config.GetString("neo4j.uri")
	logger.Info("Connecting to Neo4j at URI", zap.String("uri", uri))
	Neo4jDriver, err = neo4j.NewDriver(
		uri,
		neo4j.BasicAuth(
			config.GetString("neo4j.username"),
			config.GetString("neo4j.password"),
			"",
		),
		func(c *neo4j.Config) {
			c.MaxConnectionLifetime = 30 * time.Minute
			c.MaxConnectionPoolSize = 50
			c.Log = neo4j.ConsoleLogger(neo4j.ERROR)
		},
	)

	if err != nil {
		return fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	// Test the connection
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Neo4jDriver.VerifyConnectivity()
	if err != nil {
		return fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	if err := ensureSchema(); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Successfully connected to Neo4j")
	return nil
}

// ensureSchema creates the uniqueness constraints and lookup indexes the
// consent and policy queries depend on. All statements are idempotent.
func ensureSchema() error {
	statements := []string{
		"CREATE CONSTRAINT consent_id_unique IF NOT EXISTS FOR (c:Consent) REQUIRE c.id IS UNIQUE",
		"CREATE CONSTRAINT policy_id_unique IF NOT EXISTS FOR (p:Policy) REQUIRE p.id IS UNIQUE",
		"CREATE CONSTRAINT organization_id_unique IF NOT EXISTS FOR (o:Organization) REQUIRE o.id IS UNIQUE",
		// One anchor per pair keeps the MERGE in the grant transaction race-safe
		"CREATE CONSTRAINT consent_anchor_pair_unique IF NOT EXISTS FOR (a:ConsentAnchor) REQUIRE (a.patientID, a.organizationID) IS UNIQUE",
		// Active-consent lookup is always by (patient, organization)
		"CREATE INDEX consent_pair_idx IF NOT EXISTS FOR (c:Consent) ON (c.patientID, c.organizationID)",
		// Applicable-policy retrieval filters on scope and active
		"CREATE INDEX policy_scope_idx IF NOT EXISTS FOR (p:Policy) ON (p.scope, p.active)",
	}

	session := Neo4jDriver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	for _, stmt := range statements {
		if _, err := session.Run(stmt, nil); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

func CloseNeo4j() {
	if Neo4jDriver != nil {
		_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := Neo4jDriver.Close()
		if err != nil {
			logger.Error("Error closing Neo4j connection", zap.Error(err))
		} else {
			logger.Info("Neo4j connection closed successfully")
		}
	}
}

