package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type InteractionHandler struct {
	logger *logrus.Logger
	engine *services.RecommendationService
}

func NewInteractionHandler(logger *logrus.Logger, engine *services.RecommendationService) *InteractionHandler {
	return &InteractionHandler{logger: logger, engine: engine}
}

// Record accepts an interaction event. Logging is best-effort: the
// response reports success without failing the request.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	recorded := h.engine.RecordInteraction(c.Request.Context(), userID, req.BookID, req.Type, req.Details)

	c.JSON(http.StatusAccepted, gin.H{"recorded": recorded})
}
