package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/krs-api/internal/models"
)

const courseColumns = "id, code, title, credits, semester, schedule, lecturer, room, capacity, created_at, updated_at"

// CourseRepository manages persistence for the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching the provided filters.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.Semester > 0 {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(title) LIKE $%d OR LOWER(lecturer) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base := fmt.Sprintf("FROM courses WHERE %s", strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"code":     "code",
		"title":    "title",
		"credits":  "credits",
		"semester": "semester",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, base, column, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID fetches a course by ID. sql.ErrNoRows is returned unwrapped.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE id = $1"
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, mapLookupError("find course", err)
	}
	return &course, nil
}

// FindByCode fetches a course by its catalog code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE code = $1"
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by code: %w", err)
	}
	return &course, nil
}

// ExistsByCode checks if a course code is taken optionally excluding an ID.
func (r *CourseRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM courses WHERE code = $1"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	stampCourse(course)
	const query = `INSERT INTO courses (id, code, title, credits, semester, schedule, lecturer, room, capacity, created_at, updated_at)
        VALUES (:id, :code, :title, :credits, :semester, :schedule, :lecturer, :room, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return mapWriteError("create course", err)
	}
	return nil
}

// InsertIfAbsent inserts the course unless its code already exists and
// reports whether a row was written.
func (r *CourseRepository) InsertIfAbsent(ctx context.Context, course *models.Course) (bool, error) {
	stampCourse(course)
	const query = `INSERT INTO courses (id, code, title, credits, semester, schedule, lecturer, room, capacity, created_at, updated_at)
        VALUES (:id, :code, :title, :credits, :semester, :schedule, :lecturer, :room, :capacity, :created_at, :updated_at)
        ON CONFLICT (code) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return false, fmt.Errorf("seed course %s: %w", course.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed course %s: %w", course.Code, err)
	}
	return affected > 0, nil
}

func stampCourse(course *models.Course) {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
}

func updateCourse(ctx context.Context, ext sqlx.ExtContext, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, title = :title, credits = :credits, semester = :semester, schedule = :schedule, lecturer = :lecturer, room = :room, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, course); err != nil {
		return mapWriteError("update course", err)
	}
	return nil
}
