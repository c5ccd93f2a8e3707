// controller/audit_controller.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medtrail/consentinel/audit"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/util"
	helper_util "github.com/medtrail/consentinel/util/helper"
)

type AuditController struct {
	auditService audit.Service
}

func NewAuditController(auditService audit.Service) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// RegisterRoutes registers the API routes
func (ac *AuditController) RegisterRoutes(r *gin.RouterGroup) {
	auditGroup := r.Group("/audit")
	{
		auditGroup.GET("/patient/:patient_id", ac.PatientTrail)
		auditGroup.GET("/actor/:actor_id", ac.ActorTrail)
	}
}

// PatientTrail endpoint returns every recorded access attempt and consent
// change touching one patient, newest first.
func (ac *AuditController) PatientTrail(c *gin.Context) {
	patientID := c.Param("patient_id")
	from, to, err := helper_util.GetTimeRangeParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid time range", err)
		return
	}
	limit, err := auditLimit(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	entries, err := ac.auditService.QueryByPatient(c, patientID, from, to, limit)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query audit trail", err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// ActorTrail endpoint returns everything one actor did, newest first.
func (ac *AuditController) ActorTrail(c *gin.Context) {
	actorID := c.Param("actor_id")
	from, to, err := helper_util.GetTimeRangeParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid time range", err)
		return
	}
	limit, err := auditLimit(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	entries, err := ac.auditService.QueryByActor(c, actorID, from, to, limit)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query audit trail", err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func auditLimit(c *gin.Context) (int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		return 0, consentinel_errors.ErrInvalidPagination
	}
	return limit, nil
}
