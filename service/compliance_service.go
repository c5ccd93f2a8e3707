// service/compliance_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medtrail/consentinel/audit"
	"github.com/medtrail/consentinel/dao"
	logger "github.com/medtrail/consentinel/logging"
	"github.com/medtrail/consentinel/util"
)

const (
	CheckStatusOK      = "ok"
	CheckStatusWarning = "warning"
	CheckStatusFailing = "failing"

	// How many recent audit entries the denial-rate check samples.
	denialSampleSize = 500
)

// ComplianceCheck is one named health probe and its outcome.
type ComplianceCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// ComplianceReport is a point-in-time snapshot of the system's compliance
// posture. Healthy is false when any check is failing.
type ComplianceReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Checks      []ComplianceCheck `json:"checks"`
	Healthy     bool              `json:"healthy"`
}

// IComplianceService defines the interface for compliance monitoring
type IComplianceService interface {
	GenerateReport(ctx context.Context) (*ComplianceReport, error)
}

// ComplianceService runs periodic hygiene checks over the audit index and the
// consent and policy stores. A check that cannot reach its store reports
// failing rather than aborting the whole report; operators want the partial
// picture.
type ComplianceService struct {
	auditService    audit.Service
	consentDAO      *dao.ConsentDAO
	policyDAO       *dao.PolicyDAO
	notificationSvc *util.NotificationService
	lookback        time.Duration
	expiryWindow    time.Duration
	now             func() time.Time
}

var _ IComplianceService = &ComplianceService{}

// NewComplianceService creates a new instance of ComplianceService. The
// lookback window bounds the denial-rate sample; the expiry window is how far
// ahead expiring consents are flagged.
func NewComplianceService(auditService audit.Service, consentDAO *dao.ConsentDAO, policyDAO *dao.PolicyDAO, notificationSvc *util.NotificationService, lookback, expiryWindow time.Duration) *ComplianceService {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if expiryWindow <= 0 {
		expiryWindow = 30 * 24 * time.Hour
	}
	return &ComplianceService{
		auditService:    auditService,
		consentDAO:      consentDAO,
		policyDAO:       policyDAO,
		notificationSvc: notificationSvc,
		lookback:        lookback,
		expiryWindow:    expiryWindow,
		now:             time.Now,
	}
}

// GenerateReport runs all checks concurrently and aggregates the results.
func (s *ComplianceService) GenerateReport(ctx context.Context) (*ComplianceReport, error) {
	start := time.Now()
	now := s.now().UTC()

	var mu sync.Mutex
	var checks []ComplianceCheck
	add := func(check ComplianceCheck) {
		mu.Lock()
		defer mu.Unlock()
		checks = append(checks, check)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		add(s.checkAuditPipeline())
		return nil
	})
	g.Go(func() error {
		add(s.checkDenialRate(gctx, now))
		return nil
	})
	g.Go(func() error {
		add(s.checkExpiringConsents(gctx, now))
		return nil
	})
	g.Go(func() error {
		add(s.checkActivePolicies(gctx, now))
		return nil
	})
	g.Go(func() error {
		add(s.checkStalePolicies(gctx, now))
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &ComplianceReport{
		GeneratedAt: now,
		Checks:      checks,
		Healthy:     true,
	}
	for _, check := range report.Checks {
		if check.Status == CheckStatusFailing {
			report.Healthy = false
			break
		}
	}

	logger.Info("Compliance report generated",
		zap.Bool("healthy", report.Healthy),
		zap.Int("checks", len(report.Checks)),
		zap.Duration("duration", time.Since(start)))

	if !report.Healthy {
		if err := s.notificationSvc.NotifyAdmins(ctx, "compliance report unhealthy"); err != nil {
			logger.Warn("Failed to notify admins about unhealthy report", zap.Error(err))
		}
	}

	return report, nil
}

// checkAuditPipeline inspects the recorder's failure counters. A dropped
// write is a hole in the audit trail and fails the check outright.
func (s *ComplianceService) checkAuditPipeline() ComplianceCheck {
	check := ComplianceCheck{Name: "audit_pipeline"}
	dropped := s.auditService.DroppedWrites()
	failed := s.auditService.FailedWrites()

	switch {
	case dropped > 0:
		check.Status = CheckStatusFailing
		check.Detail = fmt.Sprintf("%d audit entries dropped after retries", dropped)
	case failed > 0:
		check.Status = CheckStatusWarning
		check.Detail = fmt.Sprintf("%d audit writes failed and were retried", failed)
	default:
		check.Status = CheckStatusOK
		check.Detail = "all audit writes acknowledged"
	}
	return check
}

// checkDenialRate samples recent access decisions and reports the denied
// fraction. Decision entries are the ones carrying a data category;
// lifecycle entries do not.
func (s *ComplianceService) checkDenialRate(ctx context.Context, now time.Time) ComplianceCheck {
	check := ComplianceCheck{Name: "decision_denial_rate"}

	entries, err := s.auditService.RecentEntries(ctx, now.Add(-s.lookback), now, denialSampleSize)
	if err != nil {
		logger.Error("Denial rate check could not query audit index", zap.Error(err))
		check.Status = CheckStatusFailing
		check.Detail = "audit index unavailable"
		return check
	}

	var total, denied int
	for _, entry := range entries {
		if entry.DataCategory == "" {
			continue
		}
		total++
		if !entry.Success {
			denied++
		}
	}

	if total == 0 {
		check.Status = CheckStatusOK
		check.Detail = "no access decisions in window"
		return check
	}

	rate := float64(denied) / float64(total)
	check.Detail = fmt.Sprintf("%d of %d decisions denied (%.0f%%)", denied, total, rate*100)
	if rate > 0.5 {
		check.Status = CheckStatusWarning
	} else {
		check.Status = CheckStatusOK
	}
	return check
}

func (s *ComplianceService) checkExpiringConsents(ctx context.Context, now time.Time) ComplianceCheck {
	check := ComplianceCheck{Name: "expiring_consents"}

	count, err := s.consentDAO.CountExpiringConsents(ctx, now, now.Add(s.expiryWindow))
	if err != nil {
		logger.Error("Expiring consent check could not query store", zap.Error(err))
		check.Status = CheckStatusFailing
		check.Detail = "consent store unavailable"
		return check
	}

	if count > 0 {
		check.Status = CheckStatusWarning
		check.Detail = fmt.Sprintf("%d consents expire within %s", count, s.expiryWindow)
	} else {
		check.Status = CheckStatusOK
		check.Detail = "no consents expiring in window"
	}
	return check
}

func (s *ComplianceService) checkActivePolicies(ctx context.Context, now time.Time) ComplianceCheck {
	check := ComplianceCheck{Name: "active_policies"}

	count, err := s.policyDAO.CountActivePolicies(ctx, now)
	if err != nil {
		logger.Error("Active policy check could not query store", zap.Error(err))
		check.Status = CheckStatusFailing
		check.Detail = "policy store unavailable"
		return check
	}

	if count == 0 {
		check.Status = CheckStatusWarning
		check.Detail = "no active policies; consents are the only control"
	} else {
		check.Status = CheckStatusOK
		check.Detail = fmt.Sprintf("%d active policies", count)
	}
	return check
}

func (s *ComplianceService) checkStalePolicies(ctx context.Context, now time.Time) ComplianceCheck {
	check := ComplianceCheck{Name: "stale_policies"}

	count, err := s.policyDAO.CountExpiredActivePolicies(ctx, now)
	if err != nil {
		logger.Error("Stale policy check could not query store", zap.Error(err))
		check.Status = CheckStatusFailing
		check.Detail = "policy store unavailable"
		return check
	}

	if count > 0 {
		check.Status = CheckStatusWarning
		check.Detail = fmt.Sprintf("%d expired policies still flagged active", count)
	} else {
		check.Status = CheckStatusOK
		check.Detail = "no expired policies flagged active"
	}
	return check
}
