package services

import (
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/internal/database"
	"github.com/librimongo/librimongo/internal/messaging"
)

type Services struct {
	Auth           *AuthService
	Health         *HealthService
	RateLimit      *RateLimitService
	MessageBus     *messaging.MessageBus
	Catalog        *CatalogService
	Documents      *DocumentService
	Lending        *LendingService
	Activity       *ActivityService
	Recommendation *RecommendationService
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	healthService := NewHealthService(cfg, logger, db)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis)

	messageBus := messaging.NewMessageBus(cfg, logger)

	catalogService := NewCatalogService(db.PG, logger)
	documentService := NewDocumentService(db.Mongo, logger)
	authService := NewAuthService(cfg, logger, catalogService, db.Redis)

	lendingService := NewLendingService(db.PG, documentService, logger,
		cfg.Lending.LoanPeriodDays, cfg.Lending.MaxLoanDays)

	activityService := NewActivityService(documentService, messageBus, logger)

	recommendationService := NewRecommendationService(
		catalogService, documentService, activityService, logger, cfg.Recommendation,
	)

	return &Services{
		Auth:           authService,
		Health:         healthService,
		RateLimit:      rateLimitService,
		MessageBus:     messageBus,
		Catalog:        catalogService,
		Documents:      documentService,
		Lending:        lendingService,
		Activity:       activityService,
		Recommendation: recommendationService,
	}, nil
}
