// audit/service.go
package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
)

const writeTimeout = 5 * time.Second

// Service records audit entries with at-least-once semantics. Append makes a
// synchronous best-effort write; a failed write is queued for background
// retry and never blocks or changes the caller's decision.
type Service interface {
	Append(ctx context.Context, entry Entry) error
	QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]Entry, error)
	QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]Entry, error)
	RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]Entry, error)
	FailedWrites() int64
	DroppedWrites() int64
	Close()
}

type Options struct {
	RetryQueueSize int
	RetryInterval  time.Duration
	MaxRetries     int
}

type retryEntry struct {
	entry   Entry
	attempt int
}

type service struct {
	repo    Repository
	queue   chan retryEntry
	retryIn time.Duration
	retries int

	failed  atomic.Int64
	dropped atomic.Int64

	stop chan struct{}
	done chan struct{}
}

func NewService(repo Repository, opts Options) Service {
	if opts.RetryQueueSize <= 0 {
		opts.RetryQueueSize = 1024
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	s := &service{
		repo:    repo,
		queue:   make(chan retryEntry, opts.RetryQueueSize),
		retryIn: opts.RetryInterval,
		retries: opts.MaxRetries,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.retryLoop()
	return s
}

// Append writes one audit entry. The write runs on a detached context so a
// caller-side cancellation never aborts an in-flight write. The returned
// error is informational; decisions must not depend on it.
func (s *service) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.repo.Append(wctx, entry); err != nil {
		s.failed.Add(1)
		logger.Warn("Audit write failed, queued for retry",
			zap.String("entryID", entry.ID),
			zap.Error(err))
		s.enqueue(retryEntry{entry: entry})
		return fmt.Errorf("%w: %v", consentinel_errors.ErrAuditWrite, err)
	}
	return nil
}

func (s *service) QueryByPatient(ctx context.Context, patientID string, from, to time.Time, limit int) ([]Entry, error) {
	return s.repo.QueryByPatient(ctx, patientID, from, to, limit)
}

func (s *service) QueryByActor(ctx context.Context, actorID string, from, to time.Time, limit int) ([]Entry, error) {
	return s.repo.QueryByActor(ctx, actorID, from, to, limit)
}

func (s *service) RecentEntries(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	return s.repo.RecentEntries(ctx, from, to, limit)
}

func (s *service) FailedWrites() int64 {
	return s.failed.Load()
}

func (s *service) DroppedWrites() int64 {
	return s.dropped.Load()
}

// Close stops the retry worker after giving queued entries one final attempt.
func (s *service) Close() {
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(2 * writeTimeout):
		logger.Warn("Audit retry worker did not drain in time")
	}
}

func (s *service) enqueue(re retryEntry) {
	select {
	case s.queue <- re:
	default:
		s.dropped.Add(1)
		logger.Error("Audit retry queue full, entry dropped",
			zap.String("entryID", re.entry.ID))
	}
}

func (s *service) retryLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case re := <-s.queue:
			timer := time.NewTimer(s.retryIn)
			select {
			case <-timer.C:
				s.attempt(re)
			case <-s.stop:
				timer.Stop()
				s.attempt(re)
				s.drain()
				return
			}
		}
	}
}

func (s *service) drain() {
	for {
		select {
		case re := <-s.queue:
			s.attempt(re)
		default:
			return
		}
	}
}

func (s *service) attempt(re retryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.repo.Append(ctx, re.entry); err == nil {
		logger.Info("Audit entry recovered on retry",
			zap.String("entryID", re.entry.ID),
			zap.Int("attempt", re.attempt+1))
		return
	} else if re.attempt+1 >= s.retries {
		s.dropped.Add(1)
		logger.Error("Audit entry dropped after retries exhausted",
			zap.String("entryID", re.entry.ID),
			zap.Int("attempts", re.attempt+1),
			zap.Error(err))
		return
	}
	s.enqueue(retryEntry{entry: re.entry, attempt: re.attempt + 1})
}
