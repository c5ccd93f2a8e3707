// test/mock/consent_service.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/service"
)

// MockConsentService is a mock implementation of service.IConsentService
type MockConsentService struct {
	mock.Mock
}

var _ service.IConsentService = (*MockConsentService)(nil)

func (m *MockConsentService) GrantConsent(ctx context.Context, req model.GrantConsentRequest, actorID string) (*model.Consent, error) {
	args := m.Called(ctx, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consent), args.Error(1)
}

func (m *MockConsentService) RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error) {
	args := m.Called(ctx, consentID, actorID, reason)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Consent), args.Bool(1), args.Error(2)
}

func (m *MockConsentService) GetConsent(ctx context.Context, consentID string) (*model.Consent, error) {
	args := m.Called(ctx, consentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consent), args.Error(1)
}

func (m *MockConsentService) ActiveConsent(ctx context.Context, patientID, organizationID string) (*model.Consent, error) {
	args := m.Called(ctx, patientID, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consent), args.Error(1)
}

func (m *MockConsentService) PatientConsents(ctx context.Context, patientID string, includeExpired bool) ([]*model.Consent, error) {
	args := m.Called(ctx, patientID, includeExpired)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Consent), args.Error(1)
}

func (m *MockConsentService) OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool) ([]*model.Consent, error) {
	args := m.Called(ctx, organizationID, includeExpired)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Consent), args.Error(1)
}
