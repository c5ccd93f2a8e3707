// middleware/access_guard.go

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

// AccessDecider is the evaluator surface the guard needs.
type AccessDecider interface {
	CheckAccess(ctx context.Context, req *pdp_model.AccessRequest) (*pdp_model.AccessDecision, error)
}

// AccessGuard blocks the request unless the evaluator grants the actor's
// organization access to the patient's data in the given category. The
// patient is read from the patient_id path parameter, the organization from
// the authenticated token. An evaluator failure denies; the response carries
// the stable reason code, never internal detail.
func AccessGuard(decider AccessDecider, category model.DataCategory, action model.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &pdp_model.AccessRequest{
			ActorID:        c.GetString("actorID"),
			PatientID:      c.Param("patient_id"),
			OrganizationID: c.GetString("actorOrganizationID"),
			Category:       category,
			Action:         action,
			Context: pdp_model.RequestContext{
				Role:      c.GetString("actorRole"),
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			},
			Timestamp: time.Now().UTC(),
		}

		decision, err := decider.CheckAccess(c.Request.Context(), req)
		if err != nil {
			logger.Warn("Access guard evaluation failed",
				zap.String("actorID", req.ActorID),
				zap.String("patientID", req.PatientID),
				zap.Error(err))
		}
		if decision == nil || !decision.Granted {
			reasonCode := pdp_model.ReasonCodeEvaluationError
			if decision != nil {
				reasonCode = decision.ReasonCode
			}
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied", "reason_code": reasonCode})
			c.Abort()
			return
		}

		c.Set("consentID", decision.ConsentID)
		c.Next()
	}
}
