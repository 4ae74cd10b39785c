package handler

import (
	"context"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/response"
)

type enrollmentEngine interface {
	Enroll(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	Drop(ctx context.Context, studentID, courseID string) error
	ListAvailable(ctx context.Context, studentID string) ([]models.Course, error)
	ListEnrolled(ctx context.Context, studentID string) iter.Seq2[models.Course, error]
	ConsumedCredits(ctx context.Context, studentID string) (int, error)
	StudyPlan(ctx context.Context, studentID string) (*models.StudyPlan, error)
	Enrollment(ctx context.Context, id string) (*models.Enrollment, error)
}

// EnrollRequest selects the course to take.
type EnrollRequest struct {
	CourseID string `json:"course_id" binding:"required"`
}

// EnrollmentHandler exposes the student-facing KRS endpoints.
type EnrollmentHandler struct {
	engine enrollmentEngine
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(engine enrollmentEngine) *EnrollmentHandler {
	return &EnrollmentHandler{engine: engine}
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Enrollment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body EnrollRequest true "Course to take"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "course_id is required"))
		return
	}
	enrollment, err := h.engine.Enroll(c.Request.Context(), c.Param("id"), req.CourseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop a course
// @Tags Enrollment
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/enrollments/{courseId} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	if err := h.engine.Drop(c.Request.Context(), c.Param("id"), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Available godoc
// @Summary Courses open to the student
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/available [get]
func (h *EnrollmentHandler) Available(c *gin.Context) {
	courses, err := h.engine.ListAvailable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Enrolled godoc
// @Summary Courses the student currently holds
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/enrolled [get]
func (h *EnrollmentHandler) Enrolled(c *gin.Context) {
	courses := make([]models.Course, 0)
	for course, err := range h.engine.ListEnrolled(c.Request.Context(), c.Param("id")) {
		if err != nil {
			response.Error(c, err)
			return
		}
		courses = append(courses, course)
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Credits godoc
// @Summary Credits currently taken
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *EnrollmentHandler) Credits(c *gin.Context) {
	credits, err := h.engine.ConsumedCredits(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"student_id": c.Param("id"), "consumed_credits": credits}, nil)
}

// StudyPlan godoc
// @Summary KRS summary
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/study-plan [get]
func (h *EnrollmentHandler) StudyPlan(c *gin.Context) {
	plan, err := h.engine.StudyPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Get godoc
// @Summary Get a ledger entry
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.engine.Enrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
