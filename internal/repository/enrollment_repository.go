package repository

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/krs-api/internal/models"
)

// LedgerTx is the set of ledger operations available inside one transaction.
// Callers lock the student row before the course row.
type LedgerTx interface {
	LockStudent(ctx context.Context, id string) (*models.Student, error)
	LockCourse(ctx context.Context, id string) (*models.Course, error)
	FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	ConsumedCredits(ctx context.Context, studentID string) (int, error)
	ConsumedSeats(ctx context.Context, courseID string) (int, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
	Cancel(ctx context.Context, id string, at time.Time) error
	UpdateStudent(ctx context.Context, student *models.Student) error
	UpdateCourse(ctx context.Context, course *models.Course) error
	DeleteByStudent(ctx context.Context, studentID string) (int64, error)
	DeleteStudent(ctx context.Context, id string) error
	DeleteCancelledByCourse(ctx context.Context, courseID string) (int64, error)
	DeleteCourse(ctx context.Context, id string) error
}

// EnrollmentRepository owns the enrollment ledger.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// WithinLedgerTx runs fn in a single transaction. The transaction commits
// only when fn returns nil; a panic in fn rolls back before propagating.
func (r *EnrollmentRepository) WithinLedgerTx(ctx context.Context, fn func(LedgerTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// FindByID returns a single ledger entry.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, registered_at, status, cancelled_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, mapLookupError("find enrollment", err)
	}
	return &enrollment, nil
}

// ListActiveCourses streams the student's active courses ordered by code.
// Each range over the returned sequence runs the query again.
func (r *EnrollmentRepository) ListActiveCourses(ctx context.Context, studentID string) iter.Seq2[models.Course, error] {
	const query = `SELECT c.id, c.code, c.title, c.credits, c.semester, c.schedule, c.lecturer, c.room, c.capacity, c.created_at, c.updated_at
        FROM enrollments e JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY c.code`
	return func(yield func(models.Course, error) bool) {
		rows, err := r.db.QueryxContext(ctx, query, studentID, models.EnrollmentStatusActive)
		if err != nil {
			yield(models.Course{}, fmt.Errorf("list active courses: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var course models.Course
			if err := rows.StructScan(&course); err != nil {
				yield(models.Course{}, fmt.Errorf("scan active course: %w", err))
				return
			}
			if !yield(course, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Course{}, fmt.Errorf("iterate active courses: %w", err))
		}
	}
}

// ListAvailableCourses returns courses the student holds no active row for
// and that still have a free seat, ordered by code.
func (r *EnrollmentRepository) ListAvailableCourses(ctx context.Context, studentID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.code, c.title, c.credits, c.semester, c.schedule, c.lecturer, c.room, c.capacity, c.created_at, c.updated_at
        FROM courses c
        WHERE NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.student_id = $1 AND e.status = $2)
        AND (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id AND e.status = $2) < c.capacity
        ORDER BY c.code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list available courses: %w", err)
	}
	return courses, nil
}

// ConsumedCredits sums the credits of the student's active enrollments.
func (r *EnrollmentRepository) ConsumedCredits(ctx context.Context, studentID string) (int, error) {
	return consumedCredits(ctx, r.db, studentID)
}

// ConsumedSeats counts the active enrollments of a course.
func (r *EnrollmentRepository) ConsumedSeats(ctx context.Context, courseID string) (int, error) {
	return consumedSeats(ctx, r.db, courseID)
}

// ListRoster returns the active participants of a course ordered by NIM.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, s.id AS student_id, s.nim, s.full_name, s.semester, e.registered_at
        FROM enrollments e JOIN students s ON s.id = e.student_id
        WHERE e.course_id = $1 AND e.status = $2
        ORDER BY s.nim`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

type ledgerTx struct {
	tx *sqlx.Tx
}

func (l *ledgerTx) LockStudent(ctx context.Context, id string) (*models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE id = $1 FOR UPDATE"
	var student models.Student
	if err := l.tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, mapLookupError("lock student", err)
	}
	return &student, nil
}

func (l *ledgerTx) LockCourse(ctx context.Context, id string) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE id = $1 FOR UPDATE"
	var course models.Course
	if err := l.tx.GetContext(ctx, &course, query, id); err != nil {
		return nil, mapLookupError("lock course", err)
	}
	return &course, nil
}

func (l *ledgerTx) FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, registered_at, status, cancelled_at FROM enrollments
        WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := l.tx.GetContext(ctx, &enrollment, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

func (l *ledgerTx) ConsumedCredits(ctx context.Context, studentID string) (int, error) {
	return consumedCredits(ctx, l.tx, studentID)
}

func (l *ledgerTx) ConsumedSeats(ctx context.Context, courseID string) (int, error) {
	return consumedSeats(ctx, l.tx, courseID)
}

func (l *ledgerTx) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, registered_at, status, cancelled_at)
        VALUES (:id, :student_id, :course_id, :registered_at, :status, :cancelled_at)`
	if _, err := l.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return mapWriteError("insert enrollment", err)
	}
	return nil
}

func (l *ledgerTx) Cancel(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1 AND status = $4`
	if _, err := l.tx.ExecContext(ctx, query, id, models.EnrollmentStatusCancelled, at, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("cancel enrollment: %w", err)
	}
	return nil
}

func (l *ledgerTx) UpdateStudent(ctx context.Context, student *models.Student) error {
	return updateStudent(ctx, l.tx, student)
}

func (l *ledgerTx) UpdateCourse(ctx context.Context, course *models.Course) error {
	return updateCourse(ctx, l.tx, course)
}

func (l *ledgerTx) DeleteByStudent(ctx context.Context, studentID string) (int64, error) {
	res, err := l.tx.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete student enrollments: %w", err)
	}
	return res.RowsAffected()
}

func (l *ledgerTx) DeleteStudent(ctx context.Context, id string) error {
	if _, err := l.tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

func (l *ledgerTx) DeleteCancelledByCourse(ctx context.Context, courseID string) (int64, error) {
	res, err := l.tx.ExecContext(ctx, `DELETE FROM enrollments WHERE course_id = $1 AND status = $2`, courseID, models.EnrollmentStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("delete course history: %w", err)
	}
	return res.RowsAffected()
}

func (l *ledgerTx) DeleteCourse(ctx context.Context, id string) error {
	if _, err := l.tx.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

func consumedCredits(ctx context.Context, q sqlx.QueryerContext, studentID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0) FROM enrollments e JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.status = $2`
	var total int
	if err := sqlx.GetContext(ctx, q, &total, query, studentID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("consumed credits: %w", err)
	}
	return total, nil
}

func consumedSeats(ctx context.Context, q sqlx.QueryerContext, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`
	var seats int
	if err := sqlx.GetContext(ctx, q, &seats, query, courseID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("consumed seats: %w", err)
	}
	return seats, nil
}
