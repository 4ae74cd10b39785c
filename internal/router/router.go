package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/handler"
	internalmiddleware "github.com/noah-isme/krs-api/internal/middleware"
	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/config"
	"github.com/noah-isme/krs-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/krs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/krs-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by New.
type Handlers struct {
	Auth       *handler.AuthHandler
	Students   *handler.StudentHandler
	Courses    *handler.CourseHandler
	Enrollment *handler.EnrollmentHandler
	Audit      *handler.AuditHandler
	Health     *handler.HealthHandler
}

// Options carries the cross-cutting collaborators of the engine.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Tokens   internalmiddleware.TokenValidator
	Observer internalmiddleware.HTTPObserver
}

var (
	admin   = string(models.RoleAdmin)
	staff   = string(models.RoleStaff)
	student = string(models.RoleStudent)
)

// New builds the gin engine with every route of the API.
func New(opts Options, h Handlers) *gin.Engine {
	if opts.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(opts.Config.CORS.AllowedOrigins))
	if opts.Observer != nil {
		r.Use(internalmiddleware.Metrics(opts.Observer))
	}

	r.GET("/health", h.Health.Health)
	r.GET("/ready", h.Health.Ready)
	r.GET("/metrics", h.Health.Prometheus)

	if opts.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.Config.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(opts.Tokens))
	secured.GET("/auth/me", h.Auth.Me)

	students := secured.Group("/students")
	students.GET("", internalmiddleware.RBAC(admin, staff), h.Students.List)
	students.POST("", internalmiddleware.RBAC(admin, staff), h.Students.Create)
	students.GET("/:id", internalmiddleware.RBAC(admin, staff, internalmiddleware.Self), h.Students.Get)
	students.PUT("/:id", internalmiddleware.RBAC(admin, staff), h.Students.Update)
	students.DELETE("/:id", internalmiddleware.RBAC(admin), h.Students.Delete)

	self := internalmiddleware.RBAC(admin, staff, internalmiddleware.Self)
	students.POST("/:id/enrollments", self, h.Enrollment.Enroll)
	students.DELETE("/:id/enrollments/:courseId", self, h.Enrollment.Drop)
	students.GET("/:id/courses/available", self, h.Enrollment.Available)
	students.GET("/:id/courses/enrolled", self, h.Enrollment.Enrolled)
	students.GET("/:id/credits", self, h.Enrollment.Credits)
	students.GET("/:id/study-plan", self, h.Enrollment.StudyPlan)

	courses := secured.Group("/courses")
	courses.GET("", internalmiddleware.RBAC(admin, staff, student), h.Courses.List)
	courses.GET("/:id", internalmiddleware.RBAC(admin, staff, student), h.Courses.Get)
	courses.GET("/:id/seats", internalmiddleware.RBAC(admin, staff, student), h.Courses.Seats)
	courses.GET("/:id/roster", internalmiddleware.RBAC(admin, staff), h.Courses.Roster)
	courses.POST("", internalmiddleware.RBAC(admin, staff), h.Courses.Create)
	courses.PUT("/:id", internalmiddleware.RBAC(admin, staff), h.Courses.Update)
	courses.DELETE("/:id", internalmiddleware.RBAC(admin), h.Courses.Delete)

	secured.GET("/enrollments/:id", internalmiddleware.RBAC(admin, staff), h.Enrollment.Get)
	secured.GET("/audit/ledger", internalmiddleware.RBAC(admin, staff), h.Audit.Ledger)

	return r
}
