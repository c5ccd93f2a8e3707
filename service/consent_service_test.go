// service/consent_service_test.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/model"
	"github.com/medtrail/consentinel/util"
)

func init() {
	logger.InitLogger("../logging")
}

// fakeConsentStore mimics the anchor-guarded write path in memory: a create
// succeeds only when the caller's expected version matches, and a successful
// create bumps the version and closes the windows of the rows it supersedes.
type fakeConsentStore struct {
	mu      sync.Mutex
	version int64
	rows    []*model.Consent
	creates int

	failCreates bool
	getErr      error
}

func (f *fakeConsentStore) PairVersion(ctx context.Context, patientID, organizationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, nil
}

func (f *fakeConsentStore) CreateConsent(ctx context.Context, consent *model.Consent, expectedVersion int64) (*model.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreates || expectedVersion != f.version {
		return nil, consentinel_errors.ErrConsentConflict
	}
	f.version++

	now := time.Now().UTC()
	for _, row := range f.rows {
		if row.ValidUntil == nil || row.ValidUntil.After(now) {
			until := now
			row.ValidUntil = &until
		}
	}

	created := *consent
	created.ID = fmt.Sprintf("consent-%d", len(f.rows)+1)
	created.ValidFrom = now
	created.Version = 1
	created.CreatedAt = now
	f.rows = append(f.rows, &created)
	return &created, nil
}

func (f *fakeConsentStore) GetConsent(ctx context.Context, consentID string) (*model.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, row := range f.rows {
		if row.ID == consentID {
			return row, nil
		}
	}
	return nil, consentinel_errors.ErrConsentNotFound
}

func (f *fakeConsentStore) ActiveConsent(ctx context.Context, patientID, organizationID string, now time.Time) (*model.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		row := f.rows[i]
		if !row.ValidFrom.After(now) && (row.ValidUntil == nil || row.ValidUntil.After(now)) {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeConsentStore) RevokeConsent(ctx context.Context, consentID, actorID, reason string) (*model.Consent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID != consentID {
			continue
		}
		if row.AccessLevel == model.AccessLevelNone {
			return row, true, nil
		}
		row.AccessLevel = model.AccessLevelNone
		now := time.Now().UTC()
		row.ValidUntil = &now
		row.LastModifiedBy = actorID
		return row, false, nil
	}
	return nil, false, consentinel_errors.ErrConsentNotFound
}

func (f *fakeConsentStore) PatientConsents(ctx context.Context, patientID string, includeExpired bool, now time.Time) ([]*model.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Consent(nil), f.rows...), nil
}

func (f *fakeConsentStore) OrganizationConsents(ctx context.Context, organizationID string, includeExpired bool, now time.Time) ([]*model.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Consent(nil), f.rows...), nil
}

func (f *fakeConsentStore) activeCount(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if !row.ValidFrom.After(now) && (row.ValidUntil == nil || row.ValidUntil.After(now)) {
			count++
		}
	}
	return count
}

func (f *fakeConsentStore) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func newTestConsentService(store consentStore, retries int) *ConsentService {
	return &ConsentService{
		consentDAO:      store,
		validationUtil:  util.NewValidationUtil(),
		notificationSvc: util.NewNotificationService(),
		eventBus:        util.NewEventBus(),
		grantRetries:    retries,
		now:             time.Now,
	}
}

func grantRequest() model.GrantConsentRequest {
	return model.GrantConsentRequest{
		PatientID:      "patient-1",
		OrganizationID: "org-1",
		AccessLevel:    model.AccessLevelFull,
		Categories:     []model.DataCategory{model.CategoryMedicalHistory},
	}
}

func TestGrantConsentRejectsInvalidRequests(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*model.GrantConsentRequest)
		wantErr error
	}{
		{
			name:    "missing patient",
			mutate:  func(r *model.GrantConsentRequest) { r.PatientID = "" },
			wantErr: consentinel_errors.ErrInvalidConsentData,
		},
		{
			name:    "missing organization",
			mutate:  func(r *model.GrantConsentRequest) { r.OrganizationID = "" },
			wantErr: consentinel_errors.ErrInvalidConsentData,
		},
		{
			name:    "unknown access level",
			mutate:  func(r *model.GrantConsentRequest) { r.AccessLevel = "partial" },
			wantErr: consentinel_errors.ErrInvalidConsentData,
		},
		{
			name:    "no categories on limited grant",
			mutate:  func(r *model.GrantConsentRequest) { r.AccessLevel = model.AccessLevelLimited; r.Categories = nil },
			wantErr: consentinel_errors.ErrEmptyCategories,
		},
		{
			name:    "unknown category",
			mutate:  func(r *model.GrantConsentRequest) { r.Categories = []model.DataCategory{"genome"} },
			wantErr: consentinel_errors.ErrInvalidConsentData,
		},
		{
			name:    "expiry in the past",
			mutate:  func(r *model.GrantConsentRequest) { r.ValidUntil = &past },
			wantErr: consentinel_errors.ErrConsentExpiry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeConsentStore{}
			svc := newTestConsentService(store, 3)

			req := grantRequest()
			tt.mutate(&req)

			_, err := svc.GrantConsent(context.Background(), req, "actor-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.createCalls(), "store must not be written for invalid input")
		})
	}
}

func TestGrantConsentDenyAllNeedsNoCategories(t *testing.T) {
	store := &fakeConsentStore{}
	svc := newTestConsentService(store, 3)

	req := grantRequest()
	req.AccessLevel = model.AccessLevelNone
	req.Categories = nil

	created, err := svc.GrantConsent(context.Background(), req, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessLevelNone, created.AccessLevel)
	assert.Empty(t, created.Categories)
}

func TestGrantConsentSupersedesActiveRow(t *testing.T) {
	store := &fakeConsentStore{}
	svc := newTestConsentService(store, 3)

	first, err := svc.GrantConsent(context.Background(), grantRequest(), "actor-1")
	require.NoError(t, err)

	second := grantRequest()
	second.AccessLevel = model.AccessLevelLimited
	second.Categories = []model.DataCategory{model.CategoryTreatments}
	replacement, err := svc.GrantConsent(context.Background(), second, "actor-1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.activeCount(time.Now().UTC()), "exactly one row stays valid")

	active, err := svc.ActiveConsent(context.Background(), "patient-1", "org-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, replacement.ID, active.ID)
	assert.NotEqual(t, first.ID, active.ID)
}

func TestConcurrentGrantsLeaveOneActiveRow(t *testing.T) {
	store := &fakeConsentStore{}
	svc := newTestConsentService(store, 10)

	const writers = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GrantConsent(context.Background(), grantRequest(), "actor-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(writers), store.version, "every grant bumps the pair version once")
	assert.Equal(t, 1, store.activeCount(time.Now().UTC()))
}

func TestGrantConsentStopsAfterRetryBudget(t *testing.T) {
	store := &fakeConsentStore{failCreates: true}
	svc := newTestConsentService(store, 3)

	_, err := svc.GrantConsent(context.Background(), grantRequest(), "actor-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, consentinel_errors.ErrConsentConflict)
	assert.Equal(t, 3, store.createCalls())
}

func TestRevokeConsentIsIdempotent(t *testing.T) {
	store := &fakeConsentStore{}
	svc := newTestConsentService(store, 3)

	events := make(chan model.Consent, 4)
	svc.eventBus.Subscribe(util.EventConsentRevoked, func(ctx context.Context, event util.Event) error {
		events <- event.Payload.(model.Consent)
		return nil
	})

	created, err := svc.GrantConsent(context.Background(), grantRequest(), "actor-1")
	require.NoError(t, err)

	revoked, alreadyRevoked, err := svc.RevokeConsent(context.Background(), created.ID, "actor-2", "patient request")
	require.NoError(t, err)
	assert.False(t, alreadyRevoked)
	assert.Equal(t, model.AccessLevelNone, revoked.AccessLevel)
	require.NotNil(t, revoked.ValidUntil)
	firstUntil := *revoked.ValidUntil

	select {
	case got := <-events:
		assert.Equal(t, created.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a revocation event")
	}

	again, alreadyRevoked, err := svc.RevokeConsent(context.Background(), created.ID, "actor-3", "")
	require.NoError(t, err)
	assert.True(t, alreadyRevoked)
	assert.Equal(t, firstUntil, *again.ValidUntil, "second revoke must not move the window")

	select {
	case <-events:
		t.Fatal("idempotent revoke must not publish a second event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRevokeConsentUnknownID(t *testing.T) {
	store := &fakeConsentStore{}
	svc := newTestConsentService(store, 3)

	_, _, err := svc.RevokeConsent(context.Background(), "nope", "actor-1", "")
	assert.ErrorIs(t, err, consentinel_errors.ErrConsentNotFound)
}

func TestGetConsentShieldsStoreErrors(t *testing.T) {
	store := &fakeConsentStore{getErr: errors.New("connection reset")}
	svc := newTestConsentService(store, 3)

	_, err := svc.GetConsent(context.Background(), "consent-1")
	assert.ErrorIs(t, err, consentinel_errors.ErrInternalServer)
}
