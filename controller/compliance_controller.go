// controller/compliance_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrail/consentinel/service"
	"github.com/medtrail/consentinel/util"
)

type ComplianceController struct {
	complianceService service.IComplianceService
}

func NewComplianceController(complianceService service.IComplianceService) *ComplianceController {
	return &ComplianceController{
		complianceService: complianceService,
	}
}

// RegisterRoutes registers the API routes
func (cc *ComplianceController) RegisterRoutes(r *gin.RouterGroup) {
	compliance := r.Group("/compliance")
	{
		compliance.GET("/report", cc.GetReport)
	}
}

// GetReport endpoint runs the compliance checks and returns the snapshot.
// An unhealthy report is still a 200; the body says what is wrong.
func (cc *ComplianceController) GetReport(c *gin.Context) {
	report, err := cc.complianceService.GenerateReport(c)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to generate compliance report", err)
		return
	}

	c.JSON(http.StatusOK, report)
}
