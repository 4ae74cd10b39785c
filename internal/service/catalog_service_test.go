package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/catalog"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func newCatalog(t *testing.T) (*CatalogService, *EnrollmentService, *memLedger, *memCache) {
	t.Helper()
	engine, ledger, metrics := newEngine(t)
	store := newMemCache()
	cacheSvc := NewCacheService(store, metrics, time.Minute, zap.NewNop(), true)
	svc := NewCatalogService(memStudents{ledger}, memCourses{ledger}, ledger, cacheSvc, nil, zap.NewNop(), CatalogConfig{DefaultMaxCredits: 24})
	return svc, engine, ledger, store
}

func intPtr(v int) *int { return &v }

func TestCreateStudentDefaultsAndDuplicates(t *testing.T) {
	svc, _, _, _ := newCatalog(t)

	student, err := svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: " 2021001 ", FullName: "Ani", Semester: 3})
	require.NoError(t, err)
	assert.Equal(t, "2021001", student.NIM)
	assert.Equal(t, 24, student.MaxCredits)

	custom, err := svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: "2021002", FullName: "Budi", Semester: 1, MaxCredits: intPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, 20, custom.MaxCredits)

	_, err = svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: "2021001", FullName: "Other", Semester: 1})
	appErr := requireCode(t, err, appErrors.ErrDuplicateKey)
	assert.Equal(t, "nim", appErr.Details["field"])

	_, err = svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: "2021003", FullName: "Zero", Semester: 1, MaxCredits: intPtr(0)})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestUpdateStudentCannotCutBelowHeldCredits(t *testing.T) {
	svc, engine, ledger, _ := newCatalog(t)
	student := ledger.addStudent("2021001", 24)
	course := ledger.addCourse("TI101", 6, 40)
	_, err := engine.Enroll(context.Background(), student.ID, course.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStudent(context.Background(), student.ID, UpdateStudentRequest{NIM: "2021001", FullName: "Ani", Semester: 2, MaxCredits: 5})
	appErr := requireCode(t, err, appErrors.ErrCreditCapExceeded)
	assert.Equal(t, "credit cap exceeded: 6 > 5", appErr.Message)

	updated, err := svc.UpdateStudent(context.Background(), student.ID, UpdateStudentRequest{NIM: "2021001", FullName: "Ani", Semester: 2, MaxCredits: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.MaxCredits)
	assert.Equal(t, 2, updated.Semester)

	_, err = svc.UpdateStudent(context.Background(), "missing", UpdateStudentRequest{NIM: "x", FullName: "x", Semester: 1, MaxCredits: 24})
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestDeleteStudentCascadesLedger(t *testing.T) {
	svc, engine, ledger, _ := newCatalog(t)
	student := ledger.addStudent("2021001", 24)
	other := ledger.addStudent("2021002", 24)
	first := ledger.addCourse("TI101", 3, 40)
	second := ledger.addCourse("TI102", 4, 40)

	a, err := engine.Enroll(context.Background(), student.ID, first.ID)
	require.NoError(t, err)
	b, err := engine.Enroll(context.Background(), student.ID, second.ID)
	require.NoError(t, err)
	kept, err := engine.Enroll(context.Background(), other.ID, first.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteStudent(context.Background(), student.ID))

	for _, id := range []string{a.ID, b.ID} {
		_, err := engine.Enrollment(context.Background(), id)
		requireCode(t, err, appErrors.ErrNotFound)
	}
	survivor, err := engine.Enrollment(context.Background(), kept.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, survivor.StudentID)

	seats, err := engine.CourseSeats(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seats.Consumed)
	seats, err = engine.CourseSeats(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Zero(t, seats.Consumed)

	_, err = engine.Enroll(context.Background(), student.ID, first.ID)
	requireCode(t, err, appErrors.ErrUnknownStudent)
	requireCode(t, svc.DeleteStudent(context.Background(), student.ID), appErrors.ErrNotFound)
}

func TestUpdateStudentLooksUpBeforeUniqueness(t *testing.T) {
	svc, _, ledger, _ := newCatalog(t)
	ledger.addStudent("2021001", 24)
	target := ledger.addStudent("2021002", 24)

	req := UpdateStudentRequest{NIM: "2021001", FullName: "Budi", Semester: 1, MaxCredits: 24}
	_, err := svc.UpdateStudent(context.Background(), uuid.NewString(), req)
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateStudent(context.Background(), target.ID, req)
	appErr := requireCode(t, err, appErrors.ErrDuplicateKey)
	assert.Equal(t, "nim", appErr.Details["field"])

	got, err := svc.GetStudent(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, "2021002", got.NIM)
}

func TestCatalogTrimsBeforeValidating(t *testing.T) {
	svc, _, ledger, _ := newCatalog(t)

	_, err := svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: "   ", FullName: "Ani", Semester: 1})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.CreateStudent(context.Background(), CreateStudentRequest{NIM: "2021001", FullName: " \t ", Semester: 1})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "  ", Title: "Algoritma", Credits: 3, Semester: 1})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "TI101", Title: "   ", Credits: 3, Semester: 1})
	requireCode(t, err, appErrors.ErrValidation)

	student := ledger.addStudent("2021001", 24)
	course := ledger.addCourse("TI101", 3, 40)
	_, err = svc.UpdateStudent(context.Background(), student.ID, UpdateStudentRequest{NIM: "  ", FullName: "Ani", Semester: 1, MaxCredits: 24})
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.UpdateCourse(context.Background(), course.ID, UpdateCourseRequest{Code: "TI101", Title: " ", Credits: 3, Semester: 1, Capacity: 40})
	requireCode(t, err, appErrors.ErrValidation)

	assert.Len(t, ledger.students, 1)
	assert.Len(t, ledger.courses, 1)
}

func TestCatalogMalformedIDsAreNotFound(t *testing.T) {
	svc, _, _, _ := newCatalog(t)

	_, err := svc.GetStudent(context.Background(), "abc")
	requireCode(t, err, appErrors.ErrNotFound)
	_, err = svc.UpdateStudent(context.Background(), "abc", UpdateStudentRequest{NIM: "2021001", FullName: "Ani", Semester: 1, MaxCredits: 24})
	requireCode(t, err, appErrors.ErrNotFound)
	requireCode(t, svc.DeleteStudent(context.Background(), "abc"), appErrors.ErrNotFound)

	_, err = svc.GetCourse(context.Background(), "TI101")
	requireCode(t, err, appErrors.ErrNotFound)
	_, err = svc.UpdateCourse(context.Background(), "TI101", UpdateCourseRequest{Code: "TI101", Title: "Algoritma", Credits: 3, Semester: 1, Capacity: 40})
	requireCode(t, err, appErrors.ErrNotFound)
	requireCode(t, svc.DeleteCourse(context.Background(), "TI101"), appErrors.ErrNotFound)
}

func TestUpdateCourseGuards(t *testing.T) {
	svc, engine, ledger, _ := newCatalog(t)
	course := ledger.addCourse("TI101", 3, 40)
	for _, nim := range []string{"2021001", "2021002"} {
		st := ledger.addStudent(nim, 24)
		_, err := engine.Enroll(context.Background(), st.ID, course.ID)
		require.NoError(t, err)
	}
	base := UpdateCourseRequest{Code: "TI101", Title: "Algoritma", Credits: 3, Semester: 1, Capacity: 40}

	req := base
	req.Capacity = 1
	_, err := svc.UpdateCourse(context.Background(), course.ID, req)
	requireCode(t, err, appErrors.ErrCapacityExceeded)

	req = base
	req.Credits = 4
	_, err = svc.UpdateCourse(context.Background(), course.ID, req)
	requireCode(t, err, appErrors.ErrConflict)

	req = base
	req.Capacity = 2
	updated, err := svc.UpdateCourse(context.Background(), course.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)
	assert.Equal(t, "Algoritma", updated.Title)

	other := ledger.addCourse("TI102", 3, 40)
	req = base
	_, err = svc.UpdateCourse(context.Background(), other.ID, req)
	requireCode(t, err, appErrors.ErrDuplicateKey)
}

func TestDeleteCourse(t *testing.T) {
	svc, engine, ledger, _ := newCatalog(t)
	student := ledger.addStudent("2021001", 24)
	course := ledger.addCourse("TI101", 3, 40)
	_, err := engine.Enroll(context.Background(), student.ID, course.ID)
	require.NoError(t, err)

	requireCode(t, svc.DeleteCourse(context.Background(), course.ID), appErrors.ErrConflict)

	require.NoError(t, engine.Drop(context.Background(), student.ID, course.ID))
	require.NoError(t, svc.DeleteCourse(context.Background(), course.ID))
	assert.Empty(t, ledger.rows())

	_, err = svc.GetCourse(context.Background(), course.ID)
	requireCode(t, err, appErrors.ErrNotFound)
	requireCode(t, svc.DeleteCourse(context.Background(), course.ID), appErrors.ErrNotFound)
}

func TestListCoursesUsesCacheAndInvalidates(t *testing.T) {
	svc, _, _, store := newCatalog(t)
	_, err := svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "TI101", Title: "Algoritma", Credits: 3, Semester: 1})
	require.NoError(t, err)

	courses, page, err := svc.ListCourses(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 40, courses[0].Capacity)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, store.size())

	cached, _, err := svc.ListCourses(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, courses[0].ID, cached[0].ID)

	_, err = svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "TI102", Title: "Struktur Data", Credits: 3, Semester: 1, Capacity: intPtr(35)})
	require.NoError(t, err)
	assert.Zero(t, store.size())

	courses, _, err = svc.ListCourses(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 2)

	_, err = svc.CreateCourse(context.Background(), CreateCourseRequest{Code: "TI102", Title: "Dup", Credits: 3, Semester: 1})
	requireCode(t, err, appErrors.ErrDuplicateKey)
}

func TestSeedCoursesIsIdempotent(t *testing.T) {
	svc, _, _, _ := newCatalog(t)
	seeds := []catalog.Course{
		{Code: "TI101", Title: "Algoritma dan Pemrograman", Credits: 3, Semester: 1, Capacity: 40},
		{Code: "TI102", Title: "Struktur Data", Credits: 3, Semester: 1, Capacity: 35},
	}

	n, err := svc.SeedCourses(context.Background(), seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.SeedCourses(context.Background(), seeds)
	require.NoError(t, err)
	assert.Zero(t, n)

	courses, _, err := svc.ListCourses(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 2)
}
