// controller/access_controller.go
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
	"github.com/medtrail/consentinel/util"
)

// AccessDecider is the evaluator surface the controller needs.
type AccessDecider interface {
	CheckAccess(ctx context.Context, req *pdp_model.AccessRequest) (*pdp_model.AccessDecision, error)
}

type AccessController struct {
	decider AccessDecider
}

func NewAccessController(decider AccessDecider) *AccessController {
	return &AccessController{
		decider: decider,
	}
}

// RegisterRoutes registers the API routes
func (ac *AccessController) RegisterRoutes(r *gin.RouterGroup) {
	access := r.Group("/access")
	{
		access.POST("/check", ac.CheckAccess)
	}
}

// CheckAccess endpoint decides one access request. Malformed requests are
// rejected here without touching the evaluator; a request missing its
// organization goes through so the denial is audited like any other.
func (ac *AccessController) CheckAccess(c *gin.Context) {
	var req pdp_model.AccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid access request", err)
		return
	}

	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	if req.PatientID == "" {
		util.RespondWithError(c, http.StatusBadRequest, "patient_id is required", consentinel_errors.ErrInvalidConsentData)
		return
	}
	if !model.KnownDataAction(req.Action) {
		util.RespondWithError(c, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action), consentinel_errors.ErrUnknownAction)
		return
	}
	if !model.KnownCategory(req.Category) {
		util.RespondWithError(c, http.StatusBadRequest, fmt.Sprintf("unknown data category %q", req.Category), consentinel_errors.ErrInvalidConsentData)
		return
	}

	// The caller's token fills whatever the request body leaves out.
	if req.ActorID == "" {
		req.ActorID = actorID
	}
	if req.OrganizationID == "" {
		req.OrganizationID = c.GetString("actorOrganizationID")
	}
	if req.Context.Role == "" {
		req.Context.Role = util.GetActorRole(c)
	}
	if req.Context.IPAddress == "" {
		req.Context.IPAddress = c.ClientIP()
	}
	if req.Context.UserAgent == "" {
		req.Context.UserAgent = c.Request.UserAgent()
	}

	decision, err := ac.decider.CheckAccess(c, &req)
	if err != nil && errors.Is(err, consentinel_errors.ErrMissingOrganization) {
		c.JSON(http.StatusBadRequest, decision)
		return
	}
	// Evaluation failures still yield a deny decision; the caller gets the
	// reason code while the detail stays in the logs and audit trail.
	c.JSON(http.StatusOK, decision)
}
