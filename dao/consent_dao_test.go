package dao_test

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medtrail/consentinel/audit"
	"github.com/medtrail/consentinel/dao"
	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	mocks "github.com/medtrail/consentinel/test/mock"
)

func init() {
	logger.InitLogger("../logging")
}

func consentDAOFixture() (*dao.ConsentDAO, *mocks.MockSession, *mocks.MockAuditService) {
	driver := new(mocks.MockDriver)
	session := new(mocks.MockSession)
	auditSvc := new(mocks.MockAuditService)
	driver.On("NewSession", mock.Anything).Return(session)
	session.On("Close").Return(nil)
	return dao.NewConsentDAO(driver, auditSvc), session, auditSvc
}

// consentNode builds a stored consent row the way the grant write shapes it.
func consentNode(id string) neo4j.Node {
	return neo4j.Node{Props: map[string]interface{}{
		"id":             id,
		"patientID":      "patient-1",
		"organizationID": "org-1",
		"accessLevel":    "full",
		"categories":     `{"medical_history":"internal"}`,
		"purposes":       `["treatment"]`,
		"validFrom":      "2024-05-01T00:00:00Z",
		"createdBy":      "patient-1",
		"lastModifiedBy": "patient-1",
		"version":        int64(1),
		"createdAt":      "2024-05-01T00:00:00Z",
		"updatedAt":      "2024-05-01T00:00:00Z",
	}}
}

func TestPairVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("existing anchor", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
		result.On("Next").Return(true).Once()
		result.On("Record").Return(&neo4j.Record{Values: []interface{}{int64(4)}, Keys: []string{"a.version"}})

		version, err := consentDAO.PairVersion(ctx, "patient-1", "org-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), version)
	})

	t.Run("never granted pair reports zero", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
		result.On("Next").Return(false).Once()

		version, err := consentDAO.PairVersion(ctx, "patient-1", "org-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), version)
	})

	t.Run("store failure", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

		_, err := consentDAO.PairVersion(ctx, "patient-1", "org-1")
		assert.ErrorIs(t, err, consentinel_errors.ErrDatabaseOperation)
	})
}

func TestGetConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("maps stored row", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
		result.On("Next").Return(true).Once()
		result.On("Record").Return(&neo4j.Record{Values: []interface{}{consentNode("consent-1")}, Keys: []string{"c"}})

		consent, err := consentDAO.GetConsent(ctx, "consent-1")
		require.NoError(t, err)
		assert.Equal(t, "consent-1", consent.ID)
		assert.Equal(t, model.AccessLevelFull, consent.AccessLevel)
		assert.Equal(t, model.ShareInternal, consent.Categories[model.CategoryMedicalHistory])
		assert.Equal(t, []string{"treatment"}, consent.Purposes)
		assert.Nil(t, consent.ValidUntil)
		assert.Equal(t, 1, consent.Version)
	})

	t.Run("unknown id", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
		result.On("Next").Return(false).Once()

		_, err := consentDAO.GetConsent(ctx, "missing")
		assert.ErrorIs(t, err, consentinel_errors.ErrConsentNotFound)
	})
}

func TestActiveConsent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	t.Run("no row in force means nil without error", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
		result.On("Next").Return(false).Once()

		consent, err := consentDAO.ActiveConsent(ctx, "patient-1", "org-1", now)
		require.NoError(t, err)
		assert.Nil(t, consent)
	})

	t.Run("queries with utc rfc3339 now", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		result := new(mocks.MockResult)
		var params map[string]interface{}
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				params = args.Get(1).(map[string]interface{})
			}).
			Return(result, nil)
		result.On("Next").Return(true).Once()
		result.On("Record").Return(&neo4j.Record{Values: []interface{}{consentNode("consent-1")}, Keys: []string{"c"}})

		consent, err := consentDAO.ActiveConsent(ctx, "patient-1", "org-1", now)
		require.NoError(t, err)
		require.NotNil(t, consent)
		assert.Equal(t, "2024-05-10T12:00:00Z", params["now"])
	})

	t.Run("store failure", func(t *testing.T) {
		consentDAO, session, _ := consentDAOFixture()
		session.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

		_, err := consentDAO.ActiveConsent(ctx, "patient-1", "org-1", now)
		assert.ErrorIs(t, err, consentinel_errors.ErrDatabaseOperation)
	})
}

func TestCreateConsentVersionGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("zero rows means the anchor moved", func(t *testing.T) {
		consentDAO, session, auditSvc := consentDAOFixture()

		var work neo4j.TransactionWork
		session.On("WriteTransaction", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				work = args.Get(0).(neo4j.TransactionWork)
			}).
			Return(nil, consentinel_errors.ErrConsentConflict)

		consent := &model.Consent{
			PatientID:      "patient-1",
			OrganizationID: "org-1",
			AccessLevel:    model.AccessLevelFull,
			Categories:     map[model.DataCategory]model.SharingPreference{model.CategoryMedicalHistory: model.ShareInternal},
			CreatedBy:      "patient-1",
		}
		_, err := consentDAO.CreateConsent(ctx, consent, 2)
		assert.ErrorIs(t, err, consentinel_errors.ErrConsentConflict)
		auditSvc.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)

		// The transaction work itself reports the conflict when the guarded
		// write touches no rows.
		require.NotNil(t, work)
		tx := new(mocks.MockTransaction)
		result := new(mocks.MockResult)
		var params map[string]interface{}
		tx.On("Run", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				params = args.Get(1).(map[string]interface{})
			}).
			Return(result, nil)
		result.On("Next").Return(false).Once()

		_, workErr := work(tx)
		assert.ErrorIs(t, workErr, consentinel_errors.ErrConsentConflict)
		assert.Equal(t, int64(2), params["expectedVersion"])
	})

	t.Run("successful write appends one grant entry", func(t *testing.T) {
		consentDAO, session, auditSvc := consentDAOFixture()

		created := &model.Consent{
			ID:             "consent-1",
			PatientID:      "patient-1",
			OrganizationID: "org-1",
			AccessLevel:    model.AccessLevelFull,
			CreatedBy:      "patient-1",
			Version:        1,
		}
		session.On("WriteTransaction", mock.Anything, mock.Anything).Return(map[string]interface{}{
			"consent":    created,
			"superseded": []string{"consent-0"},
		}, nil)
		auditSvc.On("Append", mock.Anything, mock.MatchedBy(func(e audit.Entry) bool {
			return e.Action == model.ActionGrant &&
				e.ConsentID == "consent-1" &&
				e.PatientID == "patient-1" &&
				e.Success &&
				e.DataCategory == ""
		})).Return(nil).Once()

		got, err := consentDAO.CreateConsent(ctx, &model.Consent{
			PatientID:      "patient-1",
			OrganizationID: "org-1",
			AccessLevel:    model.AccessLevelFull,
			CreatedBy:      "patient-1",
		}, 0)
		require.NoError(t, err)
		assert.Equal(t, "consent-1", got.ID)
		auditSvc.AssertExpectations(t)
	})
}
