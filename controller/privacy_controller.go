// controller/privacy_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrail/consentinel/model"
)

// PrivacyPolicyDocument is the versioned statement served to patients about
// how their health data is handled.
type PrivacyPolicyDocument struct {
	Version        string               `json:"version"`
	EffectiveDate  string               `json:"effective_date"`
	Summary        string               `json:"summary"`
	DataCategories []model.DataCategory `json:"data_categories"`
	Rights         []string             `json:"rights"`
	Contact        string               `json:"contact"`
}

var currentPrivacyPolicy = PrivacyPolicyDocument{
	Version:       "2024-05",
	EffectiveDate: "2024-05-01",
	Summary: "Health data is shared only with organizations holding an active " +
		"patient consent, subject to organizational policies layered on top. " +
		"Every access attempt, granted or denied, is recorded.",
	DataCategories: model.DataCategories,
	Rights: []string{
		"grant consent to an organization for named data categories",
		"revoke consent at any time with immediate effect",
		"register a standing denial that blocks all access",
		"request the full audit trail of accesses to your data",
	},
	Contact: "privacy@medtrail.example",
}

type PrivacyController struct{}

func NewPrivacyController() *PrivacyController {
	return &PrivacyController{}
}

// RegisterRoutes registers the API routes
func (pc *PrivacyController) RegisterRoutes(r *gin.RouterGroup) {
	privacy := r.Group("/privacy")
	{
		privacy.GET("/policy", pc.GetPrivacyPolicy)
	}
}

// GetPrivacyPolicy endpoint serves the current privacy-policy document.
func (pc *PrivacyController) GetPrivacyPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, currentPrivacyPolicy)
}
