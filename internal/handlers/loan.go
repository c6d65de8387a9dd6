package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type LoanHandler struct {
	logger         *logrus.Logger
	lending        *services.LendingService
	recommendation *services.RecommendationService
}

func NewLoanHandler(logger *logrus.Logger, lending *services.LendingService, recommendation *services.RecommendationService) *LoanHandler {
	return &LoanHandler{
		logger:         logger,
		lending:        lending,
		recommendation: recommendation,
	}
}

func (h *LoanHandler) Lend(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	var req models.LendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "INVALID_REQUEST_BODY", err.Error())
			return
		}
	}

	userID, _ := middleware.GetUserFromContext(c)
	loan, err := h.lending.Lend(c.Request.Context(), userID, bookID, req.Days)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	h.recommendation.RecordInteraction(c.Request.Context(), userID, bookID,
		models.InteractionLoan, nil)

	c.JSON(http.StatusCreated, loan)
}

func (h *LoanHandler) Return(c *gin.Context) {
	loanID, err := uuid.Parse(c.Param("loanId"))
	if err != nil {
		badRequest(c, "INVALID_LOAN_ID", "Invalid loan ID format")
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	loan, err := h.lending.Return(c.Request.Context(), userID, loanID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	h.recommendation.RecordInteraction(c.Request.Context(), userID, loan.BookID,
		models.InteractionReturn, nil)

	c.JSON(http.StatusOK, loan)
}

// Overdue lists all open loans past their due date. Admin only.
func (h *LoanHandler) Overdue(c *gin.Context) {
	loans, err := h.lending.OverdueLoans(c.Request.Context())
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"loans": loans})
}
