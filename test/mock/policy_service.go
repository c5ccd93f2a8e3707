// test/mock/policy_service.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/service"
)

// MockPolicyService is a mock implementation of service.IPolicyService
type MockPolicyService struct {
	mock.Mock
}

var _ service.IPolicyService = (*MockPolicyService)(nil)

func (m *MockPolicyService) CreatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error) {
	args := m.Called(ctx, policy, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Policy), args.Error(1)
}

func (m *MockPolicyService) UpdatePolicy(ctx context.Context, policy model.Policy, actorID string) (*model.Policy, error) {
	args := m.Called(ctx, policy, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Policy), args.Error(1)
}

func (m *MockPolicyService) DeletePolicy(ctx context.Context, policyID string, actorID string) error {
	args := m.Called(ctx, policyID, actorID)
	return args.Error(0)
}

func (m *MockPolicyService) GetPolicy(ctx context.Context, policyID string) (*model.Policy, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Policy), args.Error(1)
}

func (m *MockPolicyService) ListPolicies(ctx context.Context, limit int, offset int) ([]*model.Policy, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Policy), args.Error(1)
}

func (m *MockPolicyService) SearchPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.Policy, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Policy), args.Error(1)
}

func (m *MockPolicyService) BulkCreatePolicies(ctx context.Context, policies []model.Policy, actorID string) ([]string, error) {
	args := m.Called(ctx, policies, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
