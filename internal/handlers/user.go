package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type UserHandler struct {
	logger    *logrus.Logger
	catalog   *services.CatalogService
	documents *services.DocumentService
	lending   *services.LendingService
}

func NewUserHandler(logger *logrus.Logger, catalog *services.CatalogService, documents *services.DocumentService, lending *services.LendingService) *UserHandler {
	return &UserHandler{
		logger:    logger,
		catalog:   catalog,
		documents: documents,
		lending:   lending,
	}
}

// Profile aggregates the account row with live counters from both stores.
func (h *UserHandler) Profile(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	user, err := h.catalog.UserByID(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}
	if user == nil {
		serviceError(c, h.logger, services.ErrUserNotFound)
		return
	}

	profile := models.UserProfile{User: *user}

	if count, err := h.catalog.CountActiveLoans(c.Request.Context(), userID); err != nil {
		h.logger.WithError(err).Warn("Failed to count active loans")
	} else {
		profile.ActiveLoans = count
	}

	if count, err := h.documents.BooksReadCount(c.Request.Context(), userID); err != nil {
		h.logger.WithError(err).Warn("Failed to count books read")
	} else {
		profile.TotalBooksRead = count
	}

	if count, err := h.documents.CountReviewsByUser(c.Request.Context(), userID); err != nil {
		h.logger.WithError(err).Warn("Failed to count reviews")
	} else {
		profile.TotalReviews = count
	}

	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	user, err := h.catalog.UpdateUserProfile(c.Request.Context(), userID, req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ActiveLoans(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	loans, err := h.lending.ActiveLoansForUser(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"loans": loans})
}

func (h *UserHandler) LoanHistory(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	history, err := h.documents.LoanHistoryForUser(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// Statistics serves the detailed reading-statistics view: totals plus a
// per-month loan breakdown.
func (h *UserHandler) Statistics(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	stats, err := h.documents.ReadingStatistics(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *UserHandler) Reviews(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 10)
	reviews, total, err := h.documents.ReviewsByUserPaged(c.Request.Context(), userID, page, perPage)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews":     reviews,
		"page":        page,
		"per_page":    perPage,
		"total_items": total,
	})
}

func (h *UserHandler) Preferences(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)

	prefs, err := h.documents.Preferences(c.Request.Context(), userID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, prefs)
}

func (h *UserHandler) UpdatePreferences(c *gin.Context) {
	var req models.PreferencesUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	prefs, err := h.documents.UpdatePreferences(c.Request.Context(), userID, req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, prefs)
}
