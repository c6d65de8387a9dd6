package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type BookHandler struct {
	logger         *logrus.Logger
	catalog        *services.CatalogService
	documents      *services.DocumentService
	recommendation *services.RecommendationService
}

func NewBookHandler(logger *logrus.Logger, catalog *services.CatalogService, documents *services.DocumentService, recommendation *services.RecommendationService) *BookHandler {
	return &BookHandler{
		logger:         logger,
		catalog:        catalog,
		documents:      documents,
		recommendation: recommendation,
	}
}

func parseBookID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("bookId"))
	if err != nil {
		badRequest(c, "INVALID_BOOK_ID", "Invalid book ID format")
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func (h *BookHandler) List(c *gin.Context) {
	filter := models.BookFilter{
		Title:         c.Query("title"),
		Author:        c.Query("author"),
		Genre:         c.Query("genre"),
		Language:      c.Query("language"),
		YearFrom:      intQuery(c, "year_from", 0),
		YearTo:        intQuery(c, "year_to", 0),
		AvailableOnly: c.Query("available") == "true",
	}

	response, err := h.catalog.ListBooks(c.Request.Context(), filter,
		c.DefaultQuery("sort_by", "title"), c.DefaultQuery("sort_order", "asc"),
		intQuery(c, "page", 1), intQuery(c, "per_page", 12))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *BookHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "MISSING_QUERY", "Query parameter 'q' is required")
		return
	}

	response, err := h.catalog.SearchBooks(c.Request.Context(), query,
		intQuery(c, "page", 1), intQuery(c, "per_page", 12))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Get serves a single book with its average rating and records a view
// interaction for the requesting user.
func (h *BookHandler) Get(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
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

	response := gin.H{"book": book}
	if avg, rated, err := h.documents.AverageRating(c.Request.Context(), bookID); err != nil {
		h.logger.WithError(err).Warn("Failed to fetch average rating")
	} else if rated {
		response["average_rating"] = avg
	}

	userID, _ := middleware.GetUserFromContext(c)
	h.recommendation.RecordInteraction(c.Request.Context(), userID, bookID, models.InteractionView, nil)

	c.JSON(http.StatusOK, response)
}

func (h *BookHandler) Create(c *gin.Context) {
	var req models.BookCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	book, err := h.catalog.CreateBook(c.Request.Context(), req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	if req.Content != "" {
		if err := h.documents.SetBookContent(c.Request.Context(), book.ID, req.Content, req.ContentFormat); err != nil {
			h.logger.WithError(err).WithField("book_id", book.ID).
				Warn("Failed to store book content")
		}
	}

	c.JSON(http.StatusCreated, book)
}

func (h *BookHandler) Update(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	var req models.BookUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	book, err := h.catalog.UpdateBook(c.Request.Context(), bookID, req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, book)
}

func (h *BookHandler) Delete(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteBook(c.Request.Context(), bookID); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	if err := h.documents.DeleteBookContent(c.Request.Context(), bookID); err != nil {
		h.logger.WithError(err).WithField("book_id", bookID).
			Warn("Failed to delete book content")
	}

	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

func (h *BookHandler) GetContent(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	text, err := h.documents.BookContent(c.Request.Context(), bookID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}
	if text == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "CONTENT_NOT_FOUND",
				"message": "No content stored for this book",
			},
		})
		return
	}

	c.JSON(http.StatusOK, text)
}

func (h *BookHandler) SetContent(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
		return
	}

	var req models.BookContentRequest
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

	if err := h.documents.SetBookContent(c.Request.Context(), bookID, req.Content, req.Format); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "content updated"})
}

// SearchContent finds books whose stored text contains the query.
func (h *BookHandler) SearchContent(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		badRequest(c, "MISSING_QUERY", "Query parameter 'q' is required")
		return
	}

	ids, err := h.documents.SearchBookContent(c.Request.Context(), query,
		intQuery(c, "limit", 20))
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	books, err := h.catalog.BooksByIDs(c.Request.Context(), ids)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"query": query, "books": books})
}

// MarkRead records the book as read for the requesting user without a
// loan, so externally-read books still count toward statistics and
// recommendations.
func (h *BookHandler) MarkRead(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
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
	if err := h.documents.MarkBookRead(c.Request.Context(), userID, bookID); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "book marked as read"})
}

// LoanHistory lists the book's lending record, newest first.
func (h *BookHandler) LoanHistory(c *gin.Context) {
	bookID, ok := parseBookID(c)
	if !ok {
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

	history, err := h.documents.LoanHistoryForBook(c.Request.Context(), bookID)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "history": history})
}

func (h *BookHandler) Genres(c *gin.Context) {
	genres, err := h.catalog.Genres(c.Request.Context())
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

func (h *BookHandler) Languages(c *gin.Context) {
	languages, err := h.catalog.Languages(c.Request.Context())
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": languages})
}
