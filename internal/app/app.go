package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/internal/database"
	"github.com/librimongo/librimongo/internal/handlers"
	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/internal/validation"
)

type App struct {
	config     *config.Config
	logger     *logrus.Logger
	db         *database.Database
	services   *services.Services
	handlers   *handlers.Handlers
	validation *middleware.ValidationMiddleware
	router     *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	// Initialize services
	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	// Initialize request validation
	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}
	app.validation = middleware.NewValidationMiddleware(validator)

	// Initialize handlers
	app.handlers = handlers.New(app.logger, services)

	// Setup router
	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.MessageBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.CompressionMiddleware())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Authentication routes
	auth := router.Group("/auth")
	{
		auth.POST("/register", a.handlers.Auth.Register)
		auth.POST("/login", a.handlers.Auth.Login)
		auth.POST("/logout", middleware.Auth(a.services.Auth, a.logger), a.handlers.Auth.Logout)
		auth.POST("/password", middleware.Auth(a.services.Auth, a.logger), a.handlers.Auth.ChangePassword)
	}

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		// Catalog routes
		books := api.Group("/books")
		books.Use(a.validation.ValidatePathIDs("bookId"))
		{
			books.GET("", a.handlers.Book.List)
			books.GET("/search", a.handlers.Book.Search)
			books.GET("/content/search", a.handlers.Book.SearchContent)
			books.GET("/genres", a.handlers.Book.Genres)
			books.GET("/languages", a.handlers.Book.Languages)
			books.GET("/popular", a.handlers.Recommendation.Popular)
			books.POST("", middleware.AdminOnly(), a.validation.ValidateBook(), a.handlers.Book.Create)
			books.GET("/:bookId", a.handlers.Book.Get)
			books.PUT("/:bookId", middleware.AdminOnly(), a.validation.ValidateBookUpdate(), a.handlers.Book.Update)
			books.DELETE("/:bookId", middleware.AdminOnly(), a.handlers.Book.Delete)
			books.GET("/:bookId/content", a.handlers.Book.GetContent)
			books.PUT("/:bookId/content", middleware.AdminOnly(), a.handlers.Book.SetContent)
			books.GET("/:bookId/similar", a.handlers.Recommendation.Similar)
			books.POST("/:bookId/read", a.handlers.Book.MarkRead)

			// Reviews
			books.GET("/:bookId/reviews", a.handlers.Review.ListForBook)
			books.POST("/:bookId/reviews", a.validation.ValidateReview(), a.handlers.Review.Create)

			// Lending
			books.POST("/:bookId/loans", a.handlers.Loan.Lend)
			books.GET("/:bookId/loans", middleware.AdminOnly(), a.handlers.Book.LoanHistory)
		}

		reviews := api.Group("/reviews")
		{
			reviews.PUT("/:reviewId", a.validation.ValidateReviewUpdate(), a.handlers.Review.Update)
			reviews.DELETE("/:reviewId", a.handlers.Review.Delete)
		}

		loans := api.Group("/loans")
		loans.Use(a.validation.ValidatePathIDs("loanId"))
		{
			loans.POST("/:loanId/return", a.handlers.Loan.Return)
			loans.GET("/overdue", middleware.AdminOnly(), a.handlers.Loan.Overdue)
		}

		// Current-user routes
		me := api.Group("/users/me")
		{
			me.GET("/profile", a.handlers.User.Profile)
			me.PUT("/profile", a.handlers.User.UpdateProfile)
			me.GET("/loans", a.handlers.User.ActiveLoans)
			me.GET("/history", a.handlers.User.LoanHistory)
			me.GET("/statistics", a.handlers.User.Statistics)
			me.GET("/reviews", a.handlers.User.Reviews)
			me.GET("/preferences", a.handlers.User.Preferences)
			me.PUT("/preferences", a.validation.ValidatePreferences(), a.handlers.User.UpdatePreferences)
			me.GET("/similar", a.handlers.Recommendation.SimilarUsers)
		}

		// Recommendations
		api.GET("/recommendations", a.handlers.Recommendation.Get)

		// Interaction logging
		api.POST("/interactions", a.validation.ValidateInteraction(), a.handlers.Interaction.Record)
	}

	a.router = router
}
