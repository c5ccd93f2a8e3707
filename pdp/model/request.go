package model

import (
	"time"

	"github.com/medtrail/consentinel/model"
)

// AccessRequest is one attempt by an actor to perform an action on a
// patient's data. OrganizationID is mandatory for authorization decisions;
// organization-less lookups are reserved for display listings.
type AccessRequest struct {
	ActorID        string             `json:"actor_id"`
	PatientID      string             `json:"patient_id"`
	OrganizationID string             `json:"organization_id"`
	Category       model.DataCategory `json:"category"`
	Action         model.Action       `json:"action"`
	Context        RequestContext     `json:"context"`
	Timestamp      time.Time          `json:"timestamp"`
}

// RequestContext carries the request attributes policies evaluate against.
type RequestContext struct {
	Role          string     `json:"role,omitempty"`
	Recipient     string     `json:"recipient,omitempty"`
	Purpose       string     `json:"purpose,omitempty"`
	DataCreatedAt *time.Time `json:"data_created_at,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
}
