package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type ReviewHandler struct {
	logger         *logrus.Logger
	catalog        *services.CatalogService
	documents      *services.DocumentService
	recommendation *services.RecommendationService
}

func NewReviewHandler(logger *logrus.Logger, catalog *services.CatalogService, documents *services.DocumentService, recommendation *services.RecommendationService) *ReviewHandler {
	return &ReviewHandler{
		logger:         logger,
		catalog:        catalog,
		documents:      documents,
		recommendation: recommendation,
	}
}

func (h *ReviewHandler) ListForBook(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	reviews, err := h.documents.ReviewsForBook(c.Request.Context(), bookID, intQuery(c, "limit", 0))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	response := gin.H{"reviews": reviews}
	if avg, rated, err := h.documents.AverageRating(c.Request.Context(), bookID); err != nil {
		h.logger.WithError(err).Warn("Failed to fetch average rating")
	} else if rated {
		response["average_rating"] = avg
	}

	c.JSON(http.StatusOK, response)
}

func (h *ReviewHandler) Create(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	var req models.ReviewCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	book, err := h.catalog.BookByID(c.Request.Context(), bookID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}
	if book == nil {
		serviceError(c, h.logger, services.ErrBookNotFound)
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	review, err := h.documents.AddReview(c.Request.Context(), bookID, userID, req.Rating, req.Text)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	h.recommendation.RecordInteraction(c.Request.Context(), userID, bookID,
		models.InteractionReview, map[string]interface{}{"rating": req.Rating})

	c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) Update(c *gin.Context) {
	reviewID := c.Param("reviewId")

	var req models.ReviewUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	if err := h.documents.UpdateReview(c.Request.Context(), reviewID, userID, req); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	review, err := h.documents.ReviewByID(c.Request.Context(), reviewID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	reviewID := c.Param("reviewId")

	userID, _ := middleware.GetUserFromContext(c)
	if err := h.documents.DeleteReview(c.Request.Context(), reviewID, userID); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "review deleted"})
}
