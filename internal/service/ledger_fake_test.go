package service

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/internal/repository"
)

// memLedger is an in-memory store whose transactions are serialised by one
// mutex and rolled back by restoring a snapshot.
type memLedger struct {
	mu          sync.Mutex
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments []models.Enrollment

	insertErr error
}

func newMemLedger() *memLedger {
	return &memLedger{students: map[string]models.Student{}, courses: map[string]models.Course{}}
}

func (m *memLedger) addStudent(nim string, maxCredits int) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.Student{ID: uuid.NewString(), NIM: nim, FullName: "Student " + nim, Semester: 1, MaxCredits: maxCredits}
	m.students[s.ID] = s
	return s
}

func (m *memLedger) addCourse(code string, credits, capacity int) models.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := models.Course{ID: uuid.NewString(), Code: code, Title: "Course " + code, Credits: credits, Semester: 1, Capacity: capacity}
	m.courses[c.ID] = c
	return c
}

func (m *memLedger) rows() []models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Enrollment(nil), m.enrollments...)
}

func (m *memLedger) activeCount(studentID, courseID string) int {
	n := 0
	for _, e := range m.rows() {
		if e.Status == models.EnrollmentStatusActive && (studentID == "" || e.StudentID == studentID) && (courseID == "" || e.CourseID == courseID) {
			n++
		}
	}
	return n
}

type memSnapshot struct {
	students    map[string]models.Student
	courses     map[string]models.Course
	enrollments []models.Enrollment
}

func (m *memLedger) snapshot() memSnapshot {
	snap := memSnapshot{
		students:    make(map[string]models.Student, len(m.students)),
		courses:     make(map[string]models.Course, len(m.courses)),
		enrollments: append([]models.Enrollment(nil), m.enrollments...),
	}
	for k, v := range m.students {
		snap.students[k] = v
	}
	for k, v := range m.courses {
		snap.courses[k] = v
	}
	return snap
}

func (m *memLedger) WithinLedgerTx(ctx context.Context, fn func(repository.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(&memTx{m: m}); err != nil {
		m.students, m.courses, m.enrollments = snap.students, snap.courses, snap.enrollments
		return err
	}
	return nil
}

func (m *memLedger) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memLedger) ListActiveCourses(ctx context.Context, studentID string) iter.Seq2[models.Course, error] {
	return func(yield func(models.Course, error) bool) {
		m.mu.Lock()
		var out []models.Course
		for _, e := range m.enrollments {
			if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive {
				out = append(out, m.courses[e.CourseID])
			}
		}
		m.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
		for _, c := range out {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (m *memLedger) ListAvailableCourses(ctx context.Context, studentID string) ([]models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Course
	for _, c := range m.courses {
		tx := &memTx{m: m}
		if _, err := tx.FindActive(ctx, studentID, c.ID); err == nil {
			continue
		}
		if seats, _ := tx.ConsumedSeats(ctx, c.ID); seats >= c.Capacity {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memLedger) ConsumedCredits(ctx context.Context, studentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{m: m}).ConsumedCredits(ctx, studentID)
}

func (m *memLedger) ConsumedSeats(ctx context.Context, courseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{m: m}).ConsumedSeats(ctx, courseID)
}

func (m *memLedger) ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RosterEntry
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.Status == models.EnrollmentStatusActive {
			s := m.students[e.StudentID]
			out = append(out, models.RosterEntry{EnrollmentID: e.ID, StudentID: s.ID, NIM: s.NIM, FullName: s.FullName, Semester: s.Semester, RegisteredAt: e.RegisteredAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NIM < out[j].NIM })
	return out, nil
}

type memTx struct {
	m *memLedger
}

func (t *memTx) LockStudent(ctx context.Context, id string) (*models.Student, error) {
	s, ok := t.m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (t *memTx) LockCourse(ctx context.Context, id string) (*models.Course, error) {
	c, ok := t.m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (t *memTx) FindActive(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	for _, e := range t.m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && e.Status == models.EnrollmentStatusActive {
			e := e
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *memTx) ConsumedCredits(ctx context.Context, studentID string) (int, error) {
	total := 0
	for _, e := range t.m.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive {
			total += t.m.courses[e.CourseID].Credits
		}
	}
	return total, nil
}

func (t *memTx) ConsumedSeats(ctx context.Context, courseID string) (int, error) {
	seats := 0
	for _, e := range t.m.enrollments {
		if e.CourseID == courseID && e.Status == models.EnrollmentStatusActive {
			seats++
		}
	}
	return seats, nil
}

func (t *memTx) Insert(ctx context.Context, e *models.Enrollment) error {
	if t.m.insertErr != nil {
		return t.m.insertErr
	}
	if _, ok := t.m.students[e.StudentID]; !ok {
		return fmt.Errorf("insert enrollment: foreign key student %s", e.StudentID)
	}
	if _, ok := t.m.courses[e.CourseID]; !ok {
		return fmt.Errorf("insert enrollment: foreign key course %s", e.CourseID)
	}
	if _, err := t.FindActive(ctx, e.StudentID, e.CourseID); err == nil {
		return fmt.Errorf("insert enrollment: %w", repository.ErrDuplicateKey)
	}
	t.m.enrollments = append(t.m.enrollments, *e)
	return nil
}

func (t *memTx) Cancel(ctx context.Context, id string, at time.Time) error {
	for i := range t.m.enrollments {
		if t.m.enrollments[i].ID == id && t.m.enrollments[i].Status == models.EnrollmentStatusActive {
			t.m.enrollments[i].Status = models.EnrollmentStatusCancelled
			t.m.enrollments[i].CancelledAt = &at
		}
	}
	return nil
}

func (t *memTx) UpdateStudent(ctx context.Context, s *models.Student) error {
	for id, other := range t.m.students {
		if id != s.ID && other.NIM == s.NIM {
			return fmt.Errorf("update student: %w", repository.ErrDuplicateKey)
		}
	}
	t.m.students[s.ID] = *s
	return nil
}

func (t *memTx) UpdateCourse(ctx context.Context, c *models.Course) error {
	for id, other := range t.m.courses {
		if id != c.ID && other.Code == c.Code {
			return fmt.Errorf("update course: %w", repository.ErrDuplicateKey)
		}
	}
	t.m.courses[c.ID] = *c
	return nil
}

func (t *memTx) DeleteByStudent(ctx context.Context, studentID string) (int64, error) {
	return t.deleteWhere(func(e models.Enrollment) bool { return e.StudentID == studentID }), nil
}

func (t *memTx) DeleteStudent(ctx context.Context, id string) error {
	for _, e := range t.m.enrollments {
		if e.StudentID == id {
			return fmt.Errorf("delete student: enrollments still reference %s", id)
		}
	}
	delete(t.m.students, id)
	return nil
}

func (t *memTx) DeleteCancelledByCourse(ctx context.Context, courseID string) (int64, error) {
	return t.deleteWhere(func(e models.Enrollment) bool {
		return e.CourseID == courseID && e.Status == models.EnrollmentStatusCancelled
	}), nil
}

func (t *memTx) DeleteCourse(ctx context.Context, id string) error {
	for _, e := range t.m.enrollments {
		if e.CourseID == id {
			return fmt.Errorf("delete course: enrollments still reference %s", id)
		}
	}
	delete(t.m.courses, id)
	return nil
}

func (t *memTx) deleteWhere(match func(models.Enrollment) bool) int64 {
	kept := t.m.enrollments[:0:0]
	var removed int64
	for _, e := range t.m.enrollments {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.m.enrollments = kept
	return removed
}

// memStudents and memCourses expose the catalog side of memLedger.
type memStudents struct{ *memLedger }

func (s memStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (s memStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Student
	for _, st := range s.students {
		if filter.Search == "" || strings.Contains(strings.ToLower(st.FullName), strings.ToLower(filter.Search)) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NIM < out[j].NIM })
	return out, len(out), nil
}

func (s memStudents) ExistsByNIM(ctx context.Context, nim, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.students {
		if st.NIM == nim && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s memStudents) Create(ctx context.Context, st *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.students {
		if other.NIM == st.NIM {
			return fmt.Errorf("create student: %w", repository.ErrDuplicateKey)
		}
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.students[st.ID] = *st
	return nil
}

type memCourses struct{ *memLedger }

func (c memCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	course, ok := c.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (c memCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Course
	for _, course := range c.courses {
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, len(out), nil
}

func (c memCourses) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, course := range c.courses {
		if course.Code == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (c memCourses) Create(ctx context.Context, course *models.Course) error {
	inserted, err := c.InsertIfAbsent(ctx, course)
	if err != nil {
		return err
	}
	if !inserted {
		return fmt.Errorf("create course: %w", repository.ErrDuplicateKey)
	}
	return nil
}

func (c memCourses) InsertIfAbsent(ctx context.Context, course *models.Course) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, other := range c.courses {
		if other.Code == course.Code {
			return false, nil
		}
	}
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	c.courses[course.ID] = *course
	return true, nil
}
