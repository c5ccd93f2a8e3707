// controller/organization_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/service"
	"github.com/medtrail/consentinel/util"
	helper_util "github.com/medtrail/consentinel/util/helper"
)

type OrganizationController struct {
	organizationService service.IOrganizationService
}

func NewOrganizationController(organizationService service.IOrganizationService) *OrganizationController {
	return &OrganizationController{
		organizationService: organizationService,
	}
}

// RegisterRoutes registers the API routes
func (oc *OrganizationController) RegisterRoutes(r *gin.RouterGroup) {
	organizations := r.Group("/organizations")
	{
		organizations.POST("", oc.CreateOrganization)
		organizations.PUT("/:id", oc.UpdateOrganization)
		organizations.DELETE("/:id", oc.DeleteOrganization)
		organizations.GET("/:id", oc.GetOrganization)
		organizations.GET("", oc.ListOrganizations)
		organizations.POST("/search", oc.SearchOrganizations)
	}
}

// CreateOrganization endpoint
func (oc *OrganizationController) CreateOrganization(c *gin.Context) {
	var org model.Organization
	if err := c.ShouldBindJSON(&org); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid organization data", consentinel_errors.ErrInvalidOrgData)
		return
	}
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	createdOrg, err := oc.organizationService.CreateOrganization(c, org, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createdOrg)
}

// UpdateOrganization endpoint
func (oc *OrganizationController) UpdateOrganization(c *gin.Context) {
	orgID := c.Param("id")
	var org model.Organization
	if err := c.ShouldBindJSON(&org); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid organization data", consentinel_errors.ErrInvalidOrgData)
		return
	}
	org.ID = orgID
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	updatedOrg, err := oc.organizationService.UpdateOrganization(c, org, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, updatedOrg)
}

// DeleteOrganization endpoint unregisters an organization. Consent history
// referencing it stays untouched.
func (oc *OrganizationController) DeleteOrganization(c *gin.Context) {
	orgID := c.Param("id")
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	if err := oc.organizationService.DeleteOrganization(c, orgID, actorID); err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetOrganization endpoint
func (oc *OrganizationController) GetOrganization(c *gin.Context) {
	orgID := c.Param("id")

	org, err := oc.organizationService.GetOrganization(c, orgID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

// ListOrganizations endpoint
func (oc *OrganizationController) ListOrganizations(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	orgs, err := oc.organizationService.ListOrganizations(c, limit, offset)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, orgs)
}

// SearchOrganizations endpoint
func (oc *OrganizationController) SearchOrganizations(c *gin.Context) {
	var criteria model.OrganizationSearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid search criteria", consentinel_errors.ErrInvalidSearchCriteria)
		return
	}

	orgs, err := oc.organizationService.SearchOrganizations(c, criteria)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, orgs)
}
