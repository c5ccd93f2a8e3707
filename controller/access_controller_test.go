// controller/access_controller_test.go
package controller_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrail/consentinel/controller"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

type stubDecider struct {
	decision *pdp_model.AccessDecision
	err      error
	lastReq  *pdp_model.AccessRequest
}

func (d *stubDecider) CheckAccess(ctx context.Context, req *pdp_model.AccessRequest) (*pdp_model.AccessDecision, error) {
	d.lastReq = req
	return d.decision, d.err
}

func setupAccessRouter(decider controller.AccessDecider) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("actorID", "dr-lee")
		c.Set("actorRole", "clinician")
		c.Set("actorOrganizationID", "org-1")
		c.Next()
	})
	api := router.Group("/api/v1")
	controller.NewAccessController(decider).RegisterRoutes(api)
	return router
}

func postCheck(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/access/check", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ehr-client/2.4")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAccessController(t *testing.T) {
	logger.InitLogger("../logging")
	defer logger.Sync()

	t.Run("CheckAccess_Granted", func(t *testing.T) {
		decider := &stubDecider{decision: &pdp_model.AccessDecision{
			Granted:    true,
			ReasonCode: pdp_model.ReasonCodeGranted,
			ConsentID:  "consent-1",
			Timestamp:  time.Now().UTC(),
		}}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"patient_id": "patient-1", "category": "medical_history", "action": "view"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"granted":true`)
		assert.Contains(t, w.Body.String(), "consent-1")
	})

	t.Run("CheckAccess_FillsRequestFromToken", func(t *testing.T) {
		decider := &stubDecider{decision: &pdp_model.AccessDecision{
			Granted:    true,
			ReasonCode: pdp_model.ReasonCodeGranted,
		}}
		router := setupAccessRouter(decider)

		postCheck(router, `{"patient_id": "patient-1", "category": "medical_history", "action": "view"}`)

		require.NotNil(t, decider.lastReq)
		assert.Equal(t, "dr-lee", decider.lastReq.ActorID)
		assert.Equal(t, "org-1", decider.lastReq.OrganizationID)
		assert.Equal(t, "clinician", decider.lastReq.Context.Role)
		assert.Equal(t, "ehr-client/2.4", decider.lastReq.Context.UserAgent)
		assert.NotEmpty(t, decider.lastReq.Context.IPAddress)
	})

	t.Run("CheckAccess_BodyOverridesToken", func(t *testing.T) {
		decider := &stubDecider{decision: &pdp_model.AccessDecision{
			Granted:    false,
			ReasonCode: pdp_model.ReasonCodeNoConsent,
		}}
		router := setupAccessRouter(decider)

		postCheck(router, `{"patient_id": "patient-1", "organization_id": "org-2", "category": "prescriptions", "action": "export", "context": {"role": "researcher"}}`)

		require.NotNil(t, decider.lastReq)
		assert.Equal(t, "org-2", decider.lastReq.OrganizationID)
		assert.Equal(t, "researcher", decider.lastReq.Context.Role)
	})

	t.Run("CheckAccess_Denied", func(t *testing.T) {
		decider := &stubDecider{decision: &pdp_model.AccessDecision{
			Granted:    false,
			ReasonCode: pdp_model.ReasonCodeNoConsent,
			Timestamp:  time.Now().UTC(),
		}}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"patient_id": "patient-1", "category": "medical_history", "action": "view"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"granted":false`)
		assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeNoConsent)
	})

	t.Run("CheckAccess_MissingPatient", func(t *testing.T) {
		decider := &stubDecider{}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"category": "medical_history", "action": "view"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, decider.lastReq)
	})

	t.Run("CheckAccess_UnknownAction", func(t *testing.T) {
		decider := &stubDecider{}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"patient_id": "patient-1", "category": "medical_history", "action": "grant"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, decider.lastReq)
	})

	t.Run("CheckAccess_UnknownCategory", func(t *testing.T) {
		decider := &stubDecider{}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"patient_id": "patient-1", "category": "shoe_size", "action": "view"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, decider.lastReq)
	})

	t.Run("CheckAccess_MissingOrganizationIsAudited", func(t *testing.T) {
		decider := &stubDecider{
			decision: &pdp_model.AccessDecision{
				Granted:    false,
				ReasonCode: pdp_model.ReasonCodeInvalidRequest,
			},
			err: consentinel_errors.ErrMissingOrganization,
		}
		noOrgRouter := gin.New()
		noOrgRouter.Use(func(c *gin.Context) {
			c.Set("actorID", "dr-lee")
			c.Next()
		})
		api := noOrgRouter.Group("/api/v1")
		controller.NewAccessController(decider).RegisterRoutes(api)

		w := postCheck(noOrgRouter, `{"patient_id": "patient-1", "category": "medical_history", "action": "view"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeInvalidRequest)
		require.NotNil(t, decider.lastReq, "the evaluator must see the request so the denial lands in the audit trail")
	})

	t.Run("CheckAccess_EvaluatorErrorStillReturnsDecision", func(t *testing.T) {
		decider := &stubDecider{
			decision: &pdp_model.AccessDecision{
				Granted:    false,
				ReasonCode: pdp_model.ReasonCodeEvaluationError,
			},
			err: assert.AnError,
		}
		router := setupAccessRouter(decider)

		w := postCheck(router, `{"patient_id": "patient-1", "category": "medical_history", "action": "view"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"granted":false`)
		assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeEvaluationError)
	})
}
