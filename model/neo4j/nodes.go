// model/neo4j/nodes.go
package consentinel_neo4j

// Node Labels
const (
	// LabelOrganization represents a healthcare organization (clinic, hospital, lab)
	LabelOrganization = "Organization"

	// LabelConsent represents one patient-to-organization consent row
	LabelConsent = "Consent"

	// LabelConsentAnchor carries the optimistic version for a
	// (patient, organization) pair; every grant bumps it
	LabelConsentAnchor = "ConsentAnchor"

	// LabelPolicy represents a data access/sharing/retention policy
	LabelPolicy = "Policy"
)

// Relationship Types
const (
	// RelGrantedTo links a consent to the organization it authorizes
	RelGrantedTo = "GRANTED_TO"

	// RelSupersededBy links a superseded consent to the grant that replaced it
	RelSupersededBy = "SUPERSEDED_BY"
)
