// test/mock/audit.go
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/medtrail/consentinel/audit"
)

// MockAuditService is a mock implementation of audit.Service
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) Append(ctx context.Context, entry audit.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditService) QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]audit.Entry, error) {
	args := m.Called(ctx, patientID, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Entry), args.Error(1)
}

func (m *MockAuditService) QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]audit.Entry, error) {
	args := m.Called(ctx, actorID, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Entry), args.Error(1)
}

func (m *MockAuditService) RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]audit.Entry, error) {
	args := m.Called(ctx, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Entry), args.Error(1)
}

func (m *MockAuditService) FailedWrites() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *MockAuditService) DroppedWrites() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *MockAuditService) Close() {
	m.Called()
}
