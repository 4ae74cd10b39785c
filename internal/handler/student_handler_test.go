package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/krs-api/internal/service"
)

// Malformed ids are rejected by the services before any store is reached,
// so nil stores are enough here.
func TestMalformedIDsReturnNotFound(t *testing.T) {
	catalog := service.NewCatalogService(nil, nil, nil, nil, nil, nil, service.CatalogConfig{})
	engine := service.NewEnrollmentService(nil, nil, nil, nil, nil, service.EnrollmentConfig{})

	cases := []struct {
		name   string
		handle func(*gin.Context)
		id     string
		code   string
	}{
		{"student detail", NewStudentHandler(catalog).Get, "abc", "NOT_FOUND"},
		{"student delete", NewStudentHandler(catalog).Delete, "abc", "NOT_FOUND"},
		{"study plan", NewEnrollmentHandler(engine).StudyPlan, "2021001", "UNKNOWN_STUDENT"},
		{"credits", NewEnrollmentHandler(engine).Credits, "2021001", "UNKNOWN_STUDENT"},
		{"enrollment", NewEnrollmentHandler(engine).Get, "e-1", "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/", "", gin.Params{{Key: "id", Value: tc.id}})
			tc.handle(c)
			require.Equal(t, http.StatusNotFound, w.Code)
			env := decode(t, w.Body.Bytes())
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}
