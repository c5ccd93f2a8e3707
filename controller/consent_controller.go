// controller/consent_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/service"
	"github.com/medtrail/consentinel/util"
)

type ConsentController struct {
	consentService service.IConsentService
}

func NewConsentController(consentService service.IConsentService) *ConsentController {
	return &ConsentController{
		consentService: consentService,
	}
}

// RegisterRoutes registers the API routes
func (cc *ConsentController) RegisterRoutes(r *gin.RouterGroup) {
	consents := r.Group("/consents")
	{
		consents.POST("", cc.GrantConsent)
		consents.DELETE("/:id", cc.RevokeConsent)
		consents.GET("/:id", cc.GetConsent)
		consents.GET("/active", cc.ActiveConsent)
		consents.GET("/patient/:patient_id", cc.PatientConsents)
		consents.GET("/organization/:organization_id", cc.OrganizationConsents)
	}
}

// GrantConsent endpoint
func (cc *ConsentController) GrantConsent(c *gin.Context) {
	var req model.GrantConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid consent data", consentinel_errors.ErrInvalidConsentData)
		return
	}
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	consent, err := cc.consentService.GrantConsent(c, req, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, consent)
}

// RevokeConsent endpoint. Revoking an already revoked consent succeeds and
// reports already_revoked true.
func (cc *ConsentController) RevokeConsent(c *gin.Context) {
	consentID := c.Param("id")
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	revoked, alreadyRevoked, err := cc.consentService.RevokeConsent(c, consentID, actorID, c.Query("reason"))
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consent":         revoked,
		"already_revoked": alreadyRevoked,
	})
}

// GetConsent endpoint
func (cc *ConsentController) GetConsent(c *gin.Context) {
	consentID := c.Param("id")

	consent, err := cc.consentService.GetConsent(c, consentID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, consent)
}

// ActiveConsent endpoint returns the consent currently in force for a
// (patient, organization) pair, including standing denials.
func (cc *ConsentController) ActiveConsent(c *gin.Context) {
	patientID := c.Query("patient_id")
	organizationID := c.Query("organization_id")
	if patientID == "" || organizationID == "" {
		util.RespondWithError(c, http.StatusBadRequest, "patient_id and organization_id are required", consentinel_errors.ErrInvalidConsentData)
		return
	}

	consent, err := cc.consentService.ActiveConsent(c, patientID, organizationID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}
	if consent == nil {
		util.RespondWithError(c, http.StatusNotFound, "No active consent for this pair", consentinel_errors.ErrConsentNotFound)
		return
	}

	c.JSON(http.StatusOK, consent)
}

// PatientConsents endpoint
func (cc *ConsentController) PatientConsents(c *gin.Context) {
	patientID := c.Param("patient_id")
	includeExpired := c.Query("include_expired") == "true"

	consents, err := cc.consentService.PatientConsents(c, patientID, includeExpired)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, consents)
}

// OrganizationConsents endpoint
func (cc *ConsentController) OrganizationConsents(c *gin.Context) {
	organizationID := c.Param("organization_id")
	includeExpired := c.Query("include_expired") == "true"

	consents, err := cc.consentService.OrganizationConsents(c, organizationID, includeExpired)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, consents)
}
