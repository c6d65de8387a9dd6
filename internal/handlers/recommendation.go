package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type RecommendationHandler struct {
	logger *logrus.Logger
	engine *services.RecommendationService
}

func NewRecommendationHandler(logger *logrus.Logger, engine *services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{logger: logger, engine: engine}
}

// Get serves personalized recommendations for the authenticated user.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	limit := intQuery(c, "limit", 0)
	excludeRead := c.DefaultQuery("exclude_read", "true") != "false"

	books, err := h.engine.RecommendationsForUser(c.Request.Context(), userID, limit, excludeRead)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:      userID,
		Books:       books,
		GeneratedAt: time.Now().UTC(),
	})
}

// Similar serves the catalog-page "similar items" list for a book.
func (h *RecommendationHandler) Similar(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	books, err := h.engine.RecommendationsForBook(c.Request.Context(), bookID, intQuery(c, "limit", 0))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *RecommendationHandler) Popular(c *gin.Context) {
	books, err := h.engine.PopularBooks(c.Request.Context(),
		intQuery(c, "limit", 0), intQuery(c, "window_days", 0))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"books": books})
}

// SimilarUsers exposes the user-similarity scan for the current user.
func (h *RecommendationHandler) SimilarUsers(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	similar, err := h.engine.SimilarUsers(c.Request.Context(), userID, 0, intQuery(c, "limit", 0))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"similar_users": similar})
}
