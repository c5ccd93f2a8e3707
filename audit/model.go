// audit/model.go
package audit

import (
	"encoding/json"
	"time"

	"github.com/medtrail/consentinel/model"
)

// Entry is one immutable audit record: who attempted what action on whose
// data, when, under what consent, and with what outcome.
type Entry struct {
	ID             string             `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	ActorID        string             `json:"actor_id"`
	PatientID      string             `json:"patient_id"`
	DataCategory   model.DataCategory `json:"data_category,omitempty"`
	Action         model.Action       `json:"action"`
	OrganizationID string             `json:"organization_id,omitempty"`
	Success        bool               `json:"success"`
	Reason         string             `json:"reason"`
	ConsentID      string             `json:"consent_id,omitempty"`
	PolicyID       string             `json:"policy_id,omitempty"` // the denying policy, when one denied
	IPAddress      string             `json:"ip_address,omitempty"`
	UserAgent      string             `json:"user_agent,omitempty"`
	Details        json.RawMessage    `json:"details,omitempty"`
}
