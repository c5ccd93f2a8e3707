// controller/policy_controller.go
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

type PolicyController struct {
	policyService service.IPolicyService
}

func NewPolicyController(policyService service.IPolicyService) *PolicyController {
	return &PolicyController{
		policyService: policyService,
	}
}

// RegisterRoutes registers the API routes
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("", pc.CreatePolicy)
		policies.POST("/bulk", pc.BulkCreatePolicies)
		policies.PUT("/:id", pc.UpdatePolicy)
		policies.DELETE("/:id", pc.DeletePolicy)
		policies.GET("/:id", pc.GetPolicy)
		policies.GET("", pc.ListPolicies)
		policies.POST("/search", pc.SearchPolicies)
	}
}

// CreatePolicy endpoint
func (pc *PolicyController) CreatePolicy(c *gin.Context) {
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", consentinel_errors.ErrInvalidPolicyData)
		return
	}
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	createdPolicy, err := pc.policyService.CreatePolicy(c, policy, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createdPolicy)
}

// BulkCreatePolicies endpoint creates several policies in one call. The
// batch is not atomic; any failure aborts the remainder and reports which
// creations went through.
func (pc *PolicyController) BulkCreatePolicies(c *gin.Context) {
	var policies []model.Policy
	if err := c.ShouldBindJSON(&policies); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", consentinel_errors.ErrInvalidPolicyData)
		return
	}
	if len(policies) == 0 {
		util.RespondWithError(c, http.StatusBadRequest, "Empty policy batch", consentinel_errors.ErrInvalidPolicyData)
		return
	}
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	policyIDs, err := pc.policyService.BulkCreatePolicies(c, policies, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"policy_ids": policyIDs})
}

// UpdatePolicy endpoint
func (pc *PolicyController) UpdatePolicy(c *gin.Context) {
	policyID := c.Param("id")
	var policy model.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", consentinel_errors.ErrInvalidPolicyData)
		return
	}
	policy.ID = policyID
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	updatedPolicy, err := pc.policyService.UpdatePolicy(c, policy, actorID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, updatedPolicy)
}

// DeletePolicy endpoint
func (pc *PolicyController) DeletePolicy(c *gin.Context) {
	policyID := c.Param("id")
	actorID, err := util.GetActorID(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", consentinel_errors.ErrUnauthorized)
		return
	}

	if err := pc.policyService.DeletePolicy(c, policyID, actorID); err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetPolicy endpoint
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	policyID := c.Param("id")

	policy, err := pc.policyService.GetPolicy(c, policyID)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ListPolicies endpoint
func (pc *PolicyController) ListPolicies(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	policies, err := pc.policyService.ListPolicies(c, limit, offset)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, policies)
}

// SearchPolicies endpoint
func (pc *PolicyController) SearchPolicies(c *gin.Context) {
	var criteria model.PolicySearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid search criteria", consentinel_errors.ErrInvalidSearchCriteria)
		return
	}

	policies, err := pc.policyService.SearchPolicies(c, criteria)
	if err != nil {
		util.RespondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, policies)
}
