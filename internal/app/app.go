// Package app assembles repositories and services from configuration. Both
// the HTTP server and krsctl build on it.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/krs-api/internal/handler"
	"github.com/noah-isme/krs-api/internal/repository"
	"github.com/noah-isme/krs-api/internal/router"
	"github.com/noah-isme/krs-api/internal/service"
	"github.com/noah-isme/krs-api/pkg/cache"
	"github.com/noah-isme/krs-api/pkg/catalog"
	"github.com/noah-isme/krs-api/pkg/config"
	"github.com/noah-isme/krs-api/pkg/database"
	"github.com/noah-isme/krs-api/pkg/export"
)

// App holds the wired services of one process.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics    *service.MetricsService
	Auth       *service.AuthService
	Catalog    *service.CatalogService
	Enrollment *service.EnrollmentService
	Audit      *service.LedgerAuditService
	Export     *service.ExportService
}

// New opens the database and, when catalog caching is enabled, Redis. A Redis
// outage downgrades to uncached reads instead of failing startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}
	if cfg.Catalog.CacheEnabled {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("catalog cache disabled", zap.Error(err))
		} else {
			a.Redis = client
		}
	}

	a.wire()
	return a, nil
}

func (a *App) wire() {
	validate := validator.New()
	a.Metrics = service.NewMetricsService()

	students := repository.NewStudentRepository(a.DB)
	courses := repository.NewCourseRepository(a.DB)
	ledger := repository.NewEnrollmentRepository(a.DB)

	var cacheRepo service.CacheRepository
	if a.Redis != nil {
		cacheRepo = repository.NewCacheRepository(a.Redis)
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.Metrics, a.Config.Catalog.CacheTTL, a.Logger, cacheRepo != nil)

	a.Auth = service.NewAuthService(repository.NewUserRepository(a.DB), validate, a.Logger, service.AuthConfig{
		AccessTokenSecret: a.Config.JWT.Secret,
		AccessTokenExpiry: a.Config.JWT.Expiration,
		Issuer:            a.Config.JWT.Issuer,
	})
	a.Catalog = service.NewCatalogService(students, courses, ledger, cacheSvc, validate, a.Logger, service.CatalogConfig{
		DefaultMaxCredits: a.Config.Academic.DefaultMaxCredits,
	})
	a.Enrollment = service.NewEnrollmentService(ledger, students, courses, a.Metrics, a.Logger, service.EnrollmentConfig{
		AcademicYear: a.Config.Academic.AcademicYear,
		Term:         a.Config.Academic.CurrentTerm,
		MinCredits:   a.Config.Academic.MinCredits,
	})
	a.Audit = service.NewLedgerAuditService(repository.NewLedgerAuditRepository(a.DB), a.Metrics, a.Logger)
	a.Export = service.NewExportService(a.Enrollment, export.NewCSVExporter())
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	applied, err := database.Migrate(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		a.Logger.Info("migration applied", zap.String("file", name))
	}
	return nil
}

// Seed loads a catalog document and inserts the courses that do not exist yet.
func (a *App) Seed(ctx context.Context, path string) (int, error) {
	seeds, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	return a.Catalog.SeedCourses(ctx, seeds)
}

// Engine builds the HTTP engine over the wired services.
func (a *App) Engine() *gin.Engine {
	return router.New(router.Options{
		Config:   a.Config,
		Logger:   a.Logger,
		Tokens:   a.Auth,
		Observer: a.Metrics,
	}, router.Handlers{
		Auth:       handler.NewAuthHandler(a.Auth),
		Students:   handler.NewStudentHandler(a.Catalog),
		Courses:    handler.NewCourseHandler(a.Catalog, a.Enrollment, a.Export),
		Enrollment: handler.NewEnrollmentHandler(a.Enrollment),
		Audit:      handler.NewAuditHandler(a.Audit),
		Health:     handler.NewHealthHandler(a.Metrics.Handler(), a.DB),
	})
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return a.DB.Close()
}
