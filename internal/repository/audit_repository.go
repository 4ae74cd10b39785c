package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/krs-api/internal/models"
)

// LedgerAuditRepository runs the cross-row consistency queries over the ledger.
type LedgerAuditRepository struct {
	db *sqlx.DB
}

// NewLedgerAuditRepository constructs a LedgerAuditRepository.
func NewLedgerAuditRepository(db *sqlx.DB) *LedgerAuditRepository {
	return &LedgerAuditRepository{db: db}
}

// CreditViolations lists students whose active credits exceed their cap.
func (r *LedgerAuditRepository) CreditViolations(ctx context.Context) ([]models.CreditViolation, error) {
	const query = `SELECT s.id AS student_id, s.nim, SUM(c.credits) AS consumed, s.max_credits
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        WHERE e.status = $1
        GROUP BY s.id, s.nim, s.max_credits
        HAVING SUM(c.credits) > s.max_credits
        ORDER BY s.nim`
	var out []models.CreditViolation
	if err := r.db.SelectContext(ctx, &out, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("audit credit cap: %w", err)
	}
	return out, nil
}

// SeatViolations lists courses whose active seats exceed their capacity.
func (r *LedgerAuditRepository) SeatViolations(ctx context.Context) ([]models.SeatViolation, error) {
	const query = `SELECT c.id AS course_id, c.code, COUNT(*) AS consumed, c.capacity
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.status = $1
        GROUP BY c.id, c.code, c.capacity
        HAVING COUNT(*) > c.capacity
        ORDER BY c.code`
	var out []models.SeatViolation
	if err := r.db.SelectContext(ctx, &out, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("audit seat capacity: %w", err)
	}
	return out, nil
}

// DuplicateActive lists (student, course) pairs with more than one active row.
func (r *LedgerAuditRepository) DuplicateActive(ctx context.Context) ([]models.DuplicateActive, error) {
	const query = `SELECT student_id, course_id, COUNT(*) AS active_rows
        FROM enrollments
        WHERE status = $1
        GROUP BY student_id, course_id
        HAVING COUNT(*) > 1`
	var out []models.DuplicateActive
	if err := r.db.SelectContext(ctx, &out, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("audit duplicate enrollments: %w", err)
	}
	return out, nil
}
