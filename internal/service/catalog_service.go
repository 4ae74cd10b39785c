package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/internal/repository"
	"github.com/noah-isme/krs-api/pkg/cache"
	"github.com/noah-isme/krs-api/pkg/catalog"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
)

type catalogStudentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByNIM(ctx context.Context, nim string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
}

type catalogCourseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	InsertIfAbsent(ctx context.Context, course *models.Course) (bool, error)
}

type catalogLedger interface {
	WithinLedgerTx(ctx context.Context, fn func(repository.LedgerTx) error) error
}

// CreateStudentRequest holds payload for creating a student. MaxCredits
// falls back to the configured default when omitted.
type CreateStudentRequest struct {
	NIM        string `json:"nim" validate:"required,max=32"`
	FullName   string `json:"full_name" validate:"required"`
	Major      string `json:"major"`
	Semester   int    `json:"semester" validate:"required,gte=1,lte=14"`
	MaxCredits *int   `json:"max_credits" validate:"omitempty,gte=1"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	NIM        string `json:"nim" validate:"required,max=32"`
	FullName   string `json:"full_name" validate:"required"`
	Major      string `json:"major"`
	Semester   int    `json:"semester" validate:"required,gte=1,lte=14"`
	MaxCredits int    `json:"max_credits" validate:"required,gte=1"`
}

// CreateCourseRequest holds payload for creating a course.
type CreateCourseRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Title    string `json:"title" validate:"required"`
	Credits  int    `json:"credits" validate:"required,gte=1"`
	Semester int    `json:"semester" validate:"required,gte=1,lte=14"`
	Schedule string `json:"schedule"`
	Lecturer string `json:"lecturer"`
	Room     string `json:"room"`
	Capacity *int   `json:"capacity" validate:"omitempty,gte=1"`
}

// UpdateCourseRequest holds payload for updating a course.
type UpdateCourseRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Title    string `json:"title" validate:"required"`
	Credits  int    `json:"credits" validate:"required,gte=1"`
	Semester int    `json:"semester" validate:"required,gte=1,lte=14"`
	Schedule string `json:"schedule"`
	Lecturer string `json:"lecturer"`
	Room     string `json:"room"`
	Capacity int    `json:"capacity" validate:"required,gte=1"`
}

func (r *CreateStudentRequest) trim() {
	r.NIM = strings.TrimSpace(r.NIM)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Major = strings.TrimSpace(r.Major)
}

func (r *UpdateStudentRequest) trim() {
	r.NIM = strings.TrimSpace(r.NIM)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Major = strings.TrimSpace(r.Major)
}

func (r *CreateCourseRequest) trim() {
	r.Code = strings.TrimSpace(r.Code)
	r.Title = strings.TrimSpace(r.Title)
}

func (r *UpdateCourseRequest) trim() {
	r.Code = strings.TrimSpace(r.Code)
	r.Title = strings.TrimSpace(r.Title)
}

// CatalogConfig holds catalog defaults.
type CatalogConfig struct {
	DefaultMaxCredits int
}

type coursePage struct {
	Items []models.Course `json:"items"`
	Total int             `json:"total"`
}

// CatalogService manages the student and course master data. Changes that
// could break a ledger invariant run inside a ledger transaction.
type CatalogService struct {
	students  catalogStudentStore
	courses   catalogCourseStore
	ledger    catalogLedger
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	config    CatalogConfig
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(students catalogStudentStore, courses catalogCourseStore, ledger catalogLedger, cache *CacheService, validate *validator.Validate, logger *zap.Logger, config CatalogConfig) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultMaxCredits <= 0 {
		config.DefaultMaxCredits = 24
	}
	return &CatalogService{students: students, courses: courses, ledger: ledger, cache: cache, validator: validate, logger: logger, config: config}
}

// ListStudents returns a page of students.
func (s *CatalogService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, pagination(filter.Page, filter.PageSize, total), nil
}

// GetStudent returns a student by ID.
func (s *CatalogService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "failed to load student")
	}
	return student, nil
}

// CreateStudent validates and stores a new student.
func (s *CatalogService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	req.trim()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	nim := req.NIM
	if err := s.ensureUniqueNIM(ctx, nim, ""); err != nil {
		return nil, err
	}

	maxCredits := s.config.DefaultMaxCredits
	if req.MaxCredits != nil {
		maxCredits = *req.MaxCredits
	}
	student := &models.Student{
		NIM:        nim,
		FullName:   req.FullName,
		Major:      req.Major,
		Semester:   req.Semester,
		MaxCredits: maxCredits,
	}
	if err := s.students.Create(ctx, student); err != nil {
		return nil, writeError(err, "nim", nim, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("nim", student.NIM))
	return student, nil
}

// UpdateStudent replaces a student's master data. The new credit cap may not
// fall below the credits the student already holds. A NIM taken by another
// student is rejected by the unique index on write.
func (s *CatalogService) UpdateStudent(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	req.trim()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return nil, err
	}
	nim := req.NIM

	var updated *models.Student
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		student, err := tx.LockStudent(ctx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "failed to lock student")
		}
		consumed, err := tx.ConsumedCredits(ctx, id)
		if err != nil {
			return internalError(err, "failed to compute consumed credits")
		}
		if req.MaxCredits < consumed {
			return appErrors.CreditCapExceeded(consumed, req.MaxCredits)
		}

		student.NIM = nim
		student.FullName = req.FullName
		student.Major = req.Major
		student.Semester = req.Semester
		student.MaxCredits = req.MaxCredits
		if err := tx.UpdateStudent(ctx, student); err != nil {
			return writeError(err, "nim", nim, "failed to update student")
		}
		updated = student
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return updated, nil
}

// DeleteStudent removes the student together with every ledger row it owns.
func (s *CatalogService) DeleteStudent(ctx context.Context, id string) error {
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return err
	}
	var removed int64
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		if _, err := tx.LockStudent(ctx, id); err != nil {
			return lookupError(err, appErrors.ErrNotFound, "failed to lock student")
		}
		n, err := tx.DeleteByStudent(ctx, id)
		if err != nil {
			return internalError(err, "failed to delete enrollments")
		}
		removed = n
		if err := tx.DeleteStudent(ctx, id); err != nil {
			return internalError(err, "failed to delete student")
		}
		return nil
	})
	if err != nil {
		return appErrors.FromError(err)
	}
	s.logger.Info("student deleted", zap.String("student_id", id), zap.Int64("enrollments_removed", removed))
	return nil
}

// ListCourses returns a page of the catalog, served from cache when enabled.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	key := cache.CatalogKey(fmt.Sprintf("p%d", filter.Page), fmt.Sprintf("s%d", filter.PageSize), fmt.Sprintf("sem%d", filter.Semester),
		strings.ToLower(filter.Search), filter.SortBy, strings.ToLower(filter.SortOrder))

	var page coursePage
	if !s.cache.Get(ctx, key, &page) {
		courses, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, nil, internalError(err, "failed to list courses")
		}
		if courses == nil {
			courses = []models.Course{}
		}
		page = coursePage{Items: courses, Total: total}
		s.cache.Set(ctx, key, page)
	}
	return page.Items, pagination(filter.Page, filter.PageSize, page.Total), nil
}

// GetCourse returns a course by ID.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "failed to load course")
	}
	return course, nil
}

// CreateCourse validates and stores a new course.
func (s *CatalogService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	req.trim()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := req.Code
	exists, err := s.courses.ExistsByCode(ctx, code, "")
	if err != nil {
		return nil, internalError(err, "failed to check course code")
	}
	if exists {
		return nil, duplicate("code", code)
	}

	capacity := catalog.DefaultCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	course := &models.Course{
		Code:     code,
		Title:    req.Title,
		Credits:  req.Credits,
		Semester: req.Semester,
		Schedule: req.Schedule,
		Lecturer: req.Lecturer,
		Room:     req.Room,
		Capacity: capacity,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, writeError(err, "code", code, "failed to create course")
	}
	s.cache.Invalidate(ctx, cache.CatalogPattern)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// UpdateCourse replaces a course's master data. Capacity may not drop below
// the seats in use and credits are frozen while anyone holds the course.
// A code taken by another course is rejected by the unique index on write.
func (s *CatalogService) UpdateCourse(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	req.trim()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return nil, err
	}
	code := req.Code

	var updated *models.Course
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		course, err := tx.LockCourse(ctx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "failed to lock course")
		}
		seats, err := tx.ConsumedSeats(ctx, id)
		if err != nil {
			return internalError(err, "failed to compute consumed seats")
		}
		if req.Capacity < seats {
			return appErrors.CapacityExceeded(seats, req.Capacity)
		}
		if req.Credits != course.Credits && seats > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course %s has %d active enrollments; credits cannot change", course.Code, seats))
		}

		course.Code = code
		course.Title = req.Title
		course.Credits = req.Credits
		course.Semester = req.Semester
		course.Schedule = req.Schedule
		course.Lecturer = req.Lecturer
		course.Room = req.Room
		course.Capacity = req.Capacity
		if err := tx.UpdateCourse(ctx, course); err != nil {
			return writeError(err, "code", code, "failed to update course")
		}
		updated = course
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	s.cache.Invalidate(ctx, cache.CatalogPattern)
	return updated, nil
}

// DeleteCourse removes a course nobody holds, along with its cancelled history.
func (s *CatalogService) DeleteCourse(ctx context.Context, id string) error {
	if err := checkID(id, appErrors.ErrNotFound); err != nil {
		return err
	}
	err := s.ledger.WithinLedgerTx(ctx, func(tx repository.LedgerTx) error {
		course, err := tx.LockCourse(ctx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "failed to lock course")
		}
		seats, err := tx.ConsumedSeats(ctx, id)
		if err != nil {
			return internalError(err, "failed to compute consumed seats")
		}
		if seats > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course %s has %d active enrollments", course.Code, seats))
		}
		if _, err := tx.DeleteCancelledByCourse(ctx, id); err != nil {
			return internalError(err, "failed to delete course history")
		}
		if err := tx.DeleteCourse(ctx, id); err != nil {
			return internalError(err, "failed to delete course")
		}
		return nil
	})
	if err != nil {
		return appErrors.FromError(err)
	}
	s.cache.Invalidate(ctx, cache.CatalogPattern)
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

// SeedCourses inserts every course whose code is not in the catalog yet and
// returns how many were written. Existing rows are left untouched.
func (s *CatalogService) SeedCourses(ctx context.Context, seeds []catalog.Course) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		course := &models.Course{
			Code:     seed.Code,
			Title:    seed.Title,
			Credits:  seed.Credits,
			Semester: seed.Semester,
			Schedule: seed.Schedule,
			Lecturer: seed.Lecturer,
			Room:     seed.Room,
			Capacity: seed.Capacity,
		}
		ok, err := s.courses.InsertIfAbsent(ctx, course)
		if err != nil {
			return inserted, internalError(err, "failed to seed catalog")
		}
		if ok {
			inserted++
		}
	}
	if inserted > 0 {
		s.cache.Invalidate(ctx, cache.CatalogPattern)
	}
	s.logger.Info("catalog seeded", zap.Int("inserted", inserted), zap.Int("skipped", len(seeds)-inserted))
	return inserted, nil
}

func (s *CatalogService) ensureUniqueNIM(ctx context.Context, nim, excludeID string) error {
	exists, err := s.students.ExistsByNIM(ctx, nim, excludeID)
	if err != nil {
		return internalError(err, "failed to check nim")
	}
	if exists {
		return duplicate("nim", nim)
	}
	return nil
}

func duplicate(field, value string) *appErrors.Error {
	e := appErrors.Clone(appErrors.ErrDuplicateKey, fmt.Sprintf("%s %s already exists", field, value))
	e.Details = map[string]interface{}{"field": field, "value": value}
	return e
}

func writeError(err error, field, value, message string) error {
	if errors.Is(err, repository.ErrDuplicateKey) {
		return duplicate(field, value)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "")
	}
	return internalError(err, message)
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
