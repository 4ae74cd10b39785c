package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/krs-api/internal/models"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newProtectedRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := stubValidator{
		"admin":   {UserID: "u1", Role: models.RoleAdmin},
		"student": {UserID: "u2", Role: models.RoleStudent, StudentID: "s-1"},
		"staff":   {UserID: "u3", Role: models.RoleStaff},
	}
	r := gin.New()
	r.GET("/students/:id", JWT(validator), RBAC(allowed...), func(c *gin.Context) {
		claims, _ := Claims(c)
		c.String(http.StatusOK, claims.UserID)
	})
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newProtectedRouter(string(models.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/students/s-1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/students/s-1", "bogus").Code)

	req := httptest.NewRequest(http.MethodGet, "/students/s-1", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization header")
}

func TestRBACRolesAndSelf(t *testing.T) {
	r := newProtectedRouter(string(models.RoleAdmin), Self)

	w := get(r, "/students/s-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/students/s-1", "student").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/students/s-2", "student").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/students/s-1", "staff").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRoles(models.RoleStaff), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, get(r, "/x", "").Code)
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	codes  []int
}

func (o *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+path)
	o.codes = append(o.codes, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/courses/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	get(r, "/courses/abc", "")
	get(r, "/nowhere", "")

	assert.Equal(t, []string{"GET /courses/:id", "GET unmatched"}, obs.routes)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNotFound}, obs.codes)
}

func TestMetricsNilObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, get(r, "/ok", "").Code)
}
