// middleware/access_guard_test.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	pdp_model "github.com/medtrail/consentinel/pdp/model"
)

func init() {
	logger.InitLogger("../logging")
	gin.SetMode(gin.TestMode)
}

type fakeDecider struct {
	decision *pdp_model.AccessDecision
	err      error
	lastReq  *pdp_model.AccessRequest
}

func (f *fakeDecider) CheckAccess(ctx context.Context, req *pdp_model.AccessRequest) (*pdp_model.AccessDecision, error) {
	f.lastReq = req
	return f.decision, f.err
}

func guardedRouter(decider AccessDecider) *gin.Engine {
	router := gin.New()
	router.GET("/records/:patient_id",
		func(c *gin.Context) { // stands in for the auth middleware
			c.Set("actorID", "actor-1")
			c.Set("actorRole", "clinician")
			c.Set("actorOrganizationID", "org-1")
		},
		AccessGuard(decider, model.CategoryMedicalHistory, model.ActionView),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"consent_id": c.GetString("consentID")})
		})
	return router
}

func TestAccessGuardAllowsGrantedRequests(t *testing.T) {
	decider := &fakeDecider{decision: &pdp_model.AccessDecision{
		Granted:    true,
		ReasonCode: pdp_model.ReasonCodeGranted,
		ConsentID:  "consent-9",
	}}
	router := guardedRouter(decider)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patient-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "consent-9")

	require.NotNil(t, decider.lastReq)
	assert.Equal(t, "actor-1", decider.lastReq.ActorID)
	assert.Equal(t, "patient-1", decider.lastReq.PatientID)
	assert.Equal(t, "org-1", decider.lastReq.OrganizationID)
	assert.Equal(t, model.CategoryMedicalHistory, decider.lastReq.Category)
	assert.Equal(t, model.ActionView, decider.lastReq.Action)
	assert.Equal(t, "clinician", decider.lastReq.Context.Role)
}

func TestAccessGuardBlocksDenials(t *testing.T) {
	decider := &fakeDecider{decision: &pdp_model.AccessDecision{
		Granted:    false,
		ReasonCode: pdp_model.ReasonCodeNoConsent,
	}}
	router := guardedRouter(decider)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patient-1", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeNoConsent)
}

func TestAccessGuardFailsClosedOnEvaluatorError(t *testing.T) {
	decider := &fakeDecider{
		decision: &pdp_model.AccessDecision{
			Granted:    false,
			ReasonCode: pdp_model.ReasonCodeEvaluationError,
		},
		err: errors.New("store down"),
	}
	router := guardedRouter(decider)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patient-1", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeEvaluationError)
	assert.NotContains(t, w.Body.String(), "store down")
}

func TestAccessGuardDeniesWhenDecisionMissing(t *testing.T) {
	decider := &fakeDecider{err: errors.New("evaluator wired wrong")}
	router := guardedRouter(decider)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/patient-1", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), pdp_model.ReasonCodeEvaluationError)
}
