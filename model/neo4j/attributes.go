// model/neo4j/attributes.go
package consentinel_neo4j

// Attribute Keys
const (
	// AttrID represents the unique identifier of a node
	AttrID = "id"

	// AttrName represents the name attribute of a node
	AttrName = "name"

	// AttrDescription represents the description attribute of a node
	AttrDescription = "description"

	// AttrPatientID represents the patient identifier on a consent or policy
	AttrPatientID = "patientID"

	// AttrOrganizationID represents the organization identifier of a node
	AttrOrganizationID = "organizationID"

	// AttrAccessLevel represents the access level of a consent
	AttrAccessLevel = "accessLevel"

	// AttrCategories represents the JSON-encoded category map of a consent
	AttrCategories = "categories"

	// AttrPurposes represents the purposes list of a consent
	AttrPurposes = "purposes"

	// AttrValidFrom represents the start of a consent's validity window
	AttrValidFrom = "validFrom"

	// AttrValidUntil represents the end of a consent's validity window
	AttrValidUntil = "validUntil"

	// AttrCreatedBy represents the actor that created a node
	AttrCreatedBy = "createdBy"

	// AttrLastModifiedBy represents the actor that last modified a node
	AttrLastModifiedBy = "lastModifiedBy"

	// AttrType represents the policy type
	AttrType = "type"

	// AttrScope represents the policy scope
	AttrScope = "scope"

	// AttrDataCategory represents the data category targeted by a policy
	AttrDataCategory = "dataCategory"

	// AttrRules represents the JSON-encoded rules payload of a policy
	AttrRules = "rules"

	// AttrPriority represents the priority of a policy
	AttrPriority = "priority"

	// AttrActive represents whether a node is active
	AttrActive = "active"

	// AttrExpiresAt represents the expiration timestamp of a policy
	AttrExpiresAt = "expiresAt"

	// AttrVersion represents the optimistic concurrency token of a node
	AttrVersion = "version"

	// AttrCreatedAt represents the creation timestamp of a node
	AttrCreatedAt = "createdAt"

	// AttrUpdatedAt represents the last update timestamp of a node
	AttrUpdatedAt = "updatedAt"
)
