package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/internal/repository"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
	"github.com/noah-isme/krs-api/pkg/logger"
)

type ledgerStore interface {
	WithinLedgerTx(ctx context.Context, fn func(repository.LedgerTx) error) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListActiveCourses(ctx context.Context, studentID string) iter.Seq2[models.Course, error]
	ListAvailableCourses(ctx context.Context, studentID string) ([]models.Course, error)
	ConsumedCredits(ctx context.Context, studentID string) (int, error)
	ConsumedSeats(ctx context.Context, courseID string) (int, error)
	ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollmentConfig carries the term labels and minimum load shown on study plans.
type EnrollmentConfig struct {
	AcademicYear string
	Term         string
	MinCredits   int
}

// EnrollmentService is the registration engine. Every mutation runs in one
// ledger transaction that locks the student row and then the course row.
type EnrollmentService struct {
	ledger   ledgerStore
	students studentReader
	courses  courseReader
	metrics  *MetricsService
	logger   *zap.Logger
	config   EnrollmentConfig
	now      func() time.Time
}

// NewEnrollmentService constructs the engine.
func NewEnrollmentService(ledger ledgerStore, students studentReader, courses courseReader, metrics *MetricsService, logger *zap.Logger, config EnrollmentConfig) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		ledger:   ledger,
		students: students,
		courses:  courses,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Enroll registers the student for the course. The first failing check wins:
// unknown student, unknown course, already enrolled, credit cap, capacity.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	start := time.Now()
	var created *models.Enrollment
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		student, course, err := lockPair(ctx, tx, studentID, courseID)
		if err != nil {
			return err
		}

		if _, err := tx.FindActive(ctx, student.ID, course.ID); err == nil {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, fmt.Sprintf("student %s already enrolled in %s", student.NIM, course.Code))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to check enrollment")
		}

		consumed, err := tx.ConsumedCredits(ctx, student.ID)
		if err != nil {
			return internalError(err, "failed to compute consumed credits")
		}
		if err := evaluateQuota(student, consumed, course); err != nil {
			return err
		}

		seats, err := tx.ConsumedSeats(ctx, course.ID)
		if err != nil {
			return internalError(err, "failed to compute consumed seats")
		}
		if err := evaluateCapacity(course, seats); err != nil {
			return err
		}

		enrollment := &models.Enrollment{
			ID:           uuid.NewString(),
			StudentID:    student.ID,
			CourseID:     course.ID,
			RegisteredAt: s.now().UTC(),
			Status:       models.EnrollmentStatusActive,
		}
		if err := tx.Insert(ctx, enrollment); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, fmt.Sprintf("student %s already enrolled in %s", student.NIM, course.Code))
			}
			return internalError(err, "failed to record enrollment")
		}
		created = enrollment
		return nil
	})
	err = s.finish(ctx, "enroll", start, err, zap.String("student_id", studentID), zap.String("course_id", courseID))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Drop cancels the student's active enrollment in the course.
func (s *EnrollmentService) Drop(ctx context.Context, studentID, courseID string) error {
	start := time.Now()
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		student, course, err := lockPair(ctx, tx, studentID, courseID)
		if err != nil {
			return err
		}

		active, err := tx.FindActive(ctx, student.ID, course.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not enrolled in %s", student.NIM, course.Code))
			}
			return internalError(err, "failed to load enrollment")
		}

		if err := tx.Cancel(ctx, active.ID, s.now().UTC()); err != nil {
			return internalError(err, "failed to cancel enrollment")
		}
		return nil
	})
	return s.finish(ctx, "drop", start, err, zap.String("student_id", studentID), zap.String("course_id", courseID))
}

// Enrollment returns one ledger entry, active or cancelled.
func (s *EnrollmentService) Enrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return nil, err
	}
	enrollment, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListAvailable returns the courses the student may still try to take,
// ordered by code. It is a display hint; Enroll re-checks everything.
func (s *EnrollmentService) ListAvailable(ctx context.Context, studentID string) ([]models.Course, error) {
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	courses, err := s.ledger.ListAvailableCourses(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list available courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// ListEnrolled streams the student's active courses ordered by code. The
// sequence can be ranged over more than once; each pass reads the ledger again.
func (s *EnrollmentService) ListEnrolled(ctx context.Context, studentID string) iter.Seq2[models.Course, error] {
	return func(yield func(models.Course, error) bool) {
		if _, err := s.student(ctx, studentID); err != nil {
			yield(models.Course{}, err)
			return
		}
		for course, err := range s.ledger.ListActiveCourses(ctx, studentID) {
			if err != nil {
				yield(models.Course{}, internalError(err, "failed to list enrolled courses"))
				return
			}
			if !yield(course, nil) {
				return
			}
		}
	}
}

// ConsumedCredits returns the credits held by the student's active enrollments.
func (s *EnrollmentService) ConsumedCredits(ctx context.Context, studentID string) (int, error) {
	if _, err := s.student(ctx, studentID); err != nil {
		return 0, err
	}
	total, err := s.ledger.ConsumedCredits(ctx, studentID)
	if err != nil {
		return 0, internalError(err, "failed to compute consumed credits")
	}
	return total, nil
}

// CourseSeats returns the live seat usage of a course.
func (s *EnrollmentService) CourseSeats(ctx context.Context, courseID string) (*models.SeatUsage, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	seats, err := s.ledger.ConsumedSeats(ctx, courseID)
	if err != nil {
		return nil, internalError(err, "failed to compute consumed seats")
	}
	remaining := course.Capacity - seats
	if remaining < 0 {
		remaining = 0
	}
	return &models.SeatUsage{
		CourseID:  course.ID,
		Code:      course.Code,
		Capacity:  course.Capacity,
		Consumed:  seats,
		Remaining: remaining,
	}, nil
}

// StudyPlan assembles the student's registration card for the term.
func (s *EnrollmentService) StudyPlan(ctx context.Context, studentID string) (*models.StudyPlan, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}

	plan := &models.StudyPlan{
		Student:      *student,
		AcademicYear: s.config.AcademicYear,
		Term:         s.config.Term,
		Courses:      []models.Course{},
		MaxCredits:   student.MaxCredits,
		MinCredits:   s.config.MinCredits,
	}
	for course, err := range s.ledger.ListActiveCourses(ctx, studentID) {
		if err != nil {
			return nil, internalError(err, "failed to list enrolled courses")
		}
		plan.Courses = append(plan.Courses, course)
		plan.TotalCredits += course.Credits
	}
	plan.RemainingCaps = plan.MaxCredits - plan.TotalCredits
	plan.BelowMinimum = plan.TotalCredits < plan.MinCredits
	return plan, nil
}

// Roster returns the course and its active participants ordered by NIM.
func (s *EnrollmentService) Roster(ctx context.Context, courseID string) (*models.Course, []models.RosterEntry, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	roster, err := s.ledger.ListRoster(ctx, courseID)
	if err != nil {
		return nil, nil, internalError(err, "failed to list roster")
	}
	return course, roster, nil
}

func (s *EnrollmentService) student(ctx context.Context, id string) (*models.Student, error) {
	if err := checkID(id, appErrors.ErrUnknownStudent); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrUnknownStudent, "failed to load student")
	}
	return student, nil
}

func (s *EnrollmentService) course(ctx context.Context, id string) (*models.Course, error) {
	if err := checkID(id, appErrors.ErrUnknownCourse); err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrUnknownCourse, "failed to load course")
	}
	return course, nil
}

// finish normalises the transaction error, records the transition and logs it.
func (s *EnrollmentService) finish(ctx context.Context, operation string, start time.Time, err error, fields ...zap.Field) error {
	log := logger.FromContext(ctx, s.logger).With(fields...)
	if err == nil {
		s.metrics.RecordTransition(operation, ResultOK, time.Since(start))
		log.Info(operation+" committed")
		return nil
	}

	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		appErr = internalError(err, fmt.Sprintf("failed to commit %s", operation))
	}
	if appErr.Status >= 500 {
		s.metrics.RecordTransition(operation, ResultError, time.Since(start))
		log.Error(operation+" failed", zap.Error(err))
	} else {
		s.metrics.RecordTransition(operation, ResultRejected, time.Since(start))
		log.Info(operation+" rejected", zap.String("code", appErr.Code), zap.String("reason", appErr.Message))
	}
	return appErr
}

func lockPair(ctx context.Context, tx repository.LedgerTx, studentID, courseID string) (*models.Student, *models.Course, error) {
	if err := checkID(studentID, appErrors.ErrUnknownStudent); err != nil {
		return nil, nil, err
	}
	student, err := tx.LockStudent(ctx, studentID)
	if err != nil {
		return nil, nil, lookupError(err, appErrors.ErrUnknownStudent, "failed to lock student")
	}
	if err := checkID(courseID, appErrors.ErrUnknownCourse); err != nil {
		return nil, nil, err
	}
	course, err := tx.LockCourse(ctx, courseID)
	if err != nil {
		return nil, nil, lookupError(err, appErrors.ErrUnknownCourse, "failed to lock course")
	}
	return student, course, nil
}

// checkID rejects ids that cannot name a row. Every key is a UUID.
func checkID(id string, notFound *appErrors.Error) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(notFound, "")
	}
	return nil
}

func lookupError(err error, notFound *appErrors.Error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(notFound, "")
	}
	return internalError(err, message)
}

func internalError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
