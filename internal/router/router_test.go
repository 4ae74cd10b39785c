package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/krs-api/internal/handler"
	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/config"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
)

type tokens map[string]*models.JWTClaims

func (t tokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

func newEngine(env string) http.Handler {
	cfg := &config.Config{Env: env, APIPrefix: "/api/v1"}
	return New(Options{
		Config: cfg,
		Tokens: tokens{"student": {UserID: "u1", Role: models.RoleStudent, StudentID: "s-1"}},
	}, Handlers{
		Auth:       handler.NewAuthHandler(nil),
		Students:   handler.NewStudentHandler(nil),
		Courses:    handler.NewCourseHandler(nil, nil, nil),
		Enrollment: handler.NewEnrollmentHandler(nil),
		Audit:      handler.NewAuditHandler(nil),
		Health:     handler.NewHealthHandler(nil, nil),
	})
}

func serve(h http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRoutesRequireAuthAndRoles(t *testing.T) {
	r := newEngine(config.EnvDevelopment)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/students", ""))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/students", "student"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/api/v1/students/s-2/enrollments", "student"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/courses/c-1/roster", "student"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/audit/ledger", "student"))
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/v1/enrollments/e-1", "student"))
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/auth/me", "student"))
}

func TestDocsHiddenInProduction(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(newEngine(config.EnvDevelopment), http.MethodGet, "/docs/index.html", ""))
	assert.Equal(t, http.StatusNotFound, serve(newEngine(config.EnvProduction), http.MethodGet, "/docs/index.html", ""))
}
