package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Auth           *AuthHandler
	Book           *BookHandler
	Review         *ReviewHandler
	Loan           *LoanHandler
	User           *UserHandler
	Recommendation *RecommendationHandler
	Interaction    *InteractionHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Auth:           NewAuthHandler(logger, services.Auth),
		Book:           NewBookHandler(logger, services.Catalog, services.Documents, services.Recommendation),
		Review:         NewReviewHandler(logger, services.Catalog, services.Documents, services.Recommendation),
		Loan:           NewLoanHandler(logger, services.Lending, services.Recommendation),
		User:           NewUserHandler(logger, services.Catalog, services.Documents, services.Lending),
		Recommendation: NewRecommendationHandler(logger, services.Recommendation),
		Interaction:    NewInteractionHandler(logger, services.Recommendation),
	}
}

// serviceError maps the service-layer sentinel errors onto HTTP statuses.
// Anything unrecognized is a 500.
func serviceError(c *gin.Context, logger *logrus.Logger, err error) {
	type mapping struct {
		target error
		status int
		code   string
	}

	mappings := []mapping{
		{services.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
		{services.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
		{services.ErrLoanNotFound, http.StatusNotFound, "LOAN_NOT_FOUND"},
		{services.ErrReviewNotFound, http.StatusNotFound, "REVIEW_NOT_FOUND"},
		{services.ErrISBNExists, http.StatusConflict, "ISBN_EXISTS"},
		{services.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
		{services.ErrNoCopiesAvailable, http.StatusConflict, "NO_COPIES_AVAILABLE"},
		{services.ErrAlreadyOnLoan, http.StatusConflict, "ALREADY_ON_LOAN"},
		{services.ErrBookHasActiveLoans, http.StatusConflict, "BOOK_HAS_ACTIVE_LOANS"},
		{services.ErrInvalidRating, http.StatusBadRequest, "INVALID_RATING"},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{
				"error": gin.H{
					"code":    m.code,
					"message": m.target.Error(),
				},
			})
			return
		}
	}

	logger.WithError(err).Error("Unhandled service error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_SERVER_ERROR",
			"message": "Internal server error",
		},
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
