// controller/policy_controller_test.go
package controller_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/medtrail/consentinel/controller"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/service"
	mocks "github.com/medtrail/consentinel/test/mock"
)

func setupPolicyRouter(svc service.IPolicyService) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("actorID", "admin-1")
		c.Next()
	})
	api := router.Group("/api/v1")
	controller.NewPolicyController(svc).RegisterRoutes(api)
	return router
}

const accessPolicyJSON = `{
	"name": "clinician-only",
	"description": "restricts record access to clinicians",
	"type": "access",
	"scope": "global",
	"rules": {"allowed_roles": ["clinician"]},
	"priority": 10,
	"active": true
}`

func TestPolicyController(t *testing.T) {
	logger.InitLogger("../logging")
	defer logger.Sync()

	t.Run("CreatePolicy_Success", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("CreatePolicy", mock.Anything, mock.Anything, "admin-1").
			Return(&model.Policy{ID: "policy-1", Name: "clinician-only"}, nil).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies", bytes.NewBufferString(accessPolicyJSON))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "policy-1")
		mockSvc.AssertExpectations(t)
	})

	t.Run("CreatePolicy_UnknownRuleShape", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		router := setupPolicyRouter(mockSvc)

		body := `{"name": "broken", "type": "teleportation", "scope": "global", "rules": {}}`
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockSvc.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CreatePolicy_ValidationError", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("CreatePolicy", mock.Anything, mock.Anything, "admin-1").
			Return(nil, consentinel_errors.ErrInvalidPolicyData).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies", bytes.NewBufferString(accessPolicyJSON))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("BulkCreatePolicies_Success", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("BulkCreatePolicies", mock.Anything, mock.Anything, "admin-1").
			Return([]string{"policy-1", "policy-2"}, nil).Once()
		router := setupPolicyRouter(mockSvc)

		body := "[" + accessPolicyJSON + "," + accessPolicyJSON + "]"
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies/bulk", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "policy-2")
	})

	t.Run("BulkCreatePolicies_EmptyBatch", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies/bulk", bytes.NewBufferString(`[]`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockSvc.AssertNotCalled(t, "BulkCreatePolicies", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UpdatePolicy_UsesPathID", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("UpdatePolicy", mock.Anything, mock.MatchedBy(func(p model.Policy) bool {
			return p.ID == "policy-1"
		}), "admin-1").
			Return(&model.Policy{ID: "policy-1", Name: "clinician-only"}, nil).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPut, "/api/v1/policies/policy-1", bytes.NewBufferString(accessPolicyJSON))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("UpdatePolicy_NotFound", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("UpdatePolicy", mock.Anything, mock.Anything, "admin-1").
			Return(nil, consentinel_errors.ErrPolicyNotFound).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPut, "/api/v1/policies/missing", bytes.NewBufferString(accessPolicyJSON))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("DeletePolicy_Success", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("DeletePolicy", mock.Anything, "policy-1", "admin-1").Return(nil).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodDelete, "/api/v1/policies/policy-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("GetPolicy_NotFound", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("GetPolicy", mock.Anything, "missing").
			Return(nil, consentinel_errors.ErrPolicyNotFound).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/policies/missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ListPolicies_Pagination", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("ListPolicies", mock.Anything, 5, 10).
			Return([]*model.Policy{{ID: "policy-1"}}, nil).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/policies?limit=5&offset=10", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("ListPolicies_BadPagination", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodGet, "/api/v1/policies?limit=lots", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockSvc.AssertNotCalled(t, "ListPolicies", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SearchPolicies_Success", func(t *testing.T) {
		mockSvc := new(mocks.MockPolicyService)
		mockSvc.On("SearchPolicies", mock.Anything, mock.Anything).
			Return([]*model.Policy{{ID: "policy-1"}, {ID: "policy-2"}}, nil).Once()
		router := setupPolicyRouter(mockSvc)

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/policies/search", bytes.NewBufferString(`{"type": "access", "active": true}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "policy-2")
	})
}
