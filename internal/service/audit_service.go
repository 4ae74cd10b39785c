package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/models"
)

type ledgerAuditStore interface {
	CreditViolations(ctx context.Context) ([]models.CreditViolation, error)
	SeatViolations(ctx context.Context) ([]models.SeatViolation, error)
	DuplicateActive(ctx context.Context) ([]models.DuplicateActive, error)
}

// LedgerAuditService re-checks the ledger invariants over committed data.
type LedgerAuditService struct {
	store   ledgerAuditStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLedgerAuditService constructs a LedgerAuditService.
func NewLedgerAuditService(store ledgerAuditStore, metrics *MetricsService, logger *zap.Logger) *LedgerAuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerAuditService{store: store, metrics: metrics, logger: logger}
}

// Run performs one audit pass and publishes the counts as gauges.
func (s *LedgerAuditService) Run(ctx context.Context) (*models.LedgerAuditReport, error) {
	report := &models.LedgerAuditReport{
		CheckedAt:        time.Now().UTC(),
		CreditViolations: []models.CreditViolation{},
		SeatViolations:   []models.SeatViolation{},
		Duplicates:       []models.DuplicateActive{},
	}

	credits, err := s.store.CreditViolations(ctx)
	if err != nil {
		return nil, internalError(err, "failed to audit credit caps")
	}
	seats, err := s.store.SeatViolations(ctx)
	if err != nil {
		return nil, internalError(err, "failed to audit seat capacity")
	}
	dups, err := s.store.DuplicateActive(ctx)
	if err != nil {
		return nil, internalError(err, "failed to audit duplicate enrollments")
	}
	report.CreditViolations = append(report.CreditViolations, credits...)
	report.SeatViolations = append(report.SeatViolations, seats...)
	report.Duplicates = append(report.Duplicates, dups...)

	for _, v := range report.CreditViolations {
		s.logger.Warn("ledger violation", zap.String("invariant", string(models.InvariantCreditCap)),
			zap.String("student_id", v.StudentID), zap.Int("consumed", v.Consumed), zap.Int("max_credits", v.MaxCredits))
	}
	for _, v := range report.SeatViolations {
		s.logger.Warn("ledger violation", zap.String("invariant", string(models.InvariantSeatCapacity)),
			zap.String("course_id", v.CourseID), zap.Int("consumed", v.Consumed), zap.Int("capacity", v.Capacity))
	}
	for _, v := range report.Duplicates {
		s.logger.Warn("ledger violation", zap.String("invariant", string(models.InvariantUniqueActive)),
			zap.String("student_id", v.StudentID), zap.String("course_id", v.CourseID), zap.Int("rows", v.Rows))
	}

	s.metrics.SetViolations(report)
	if report.Clean() {
		s.logger.Debug("ledger audit clean")
	}
	return report, nil
}
