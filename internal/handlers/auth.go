package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

type AuthHandler struct {
	logger *logrus.Logger
	auth   *services.AuthService
}

func NewAuthHandler(logger *logrus.Logger, auth *services.AuthService) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.TokenResponse{Token: token, User: *user})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	user, err := h.auth.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	token, err := h.auth.GenerateToken(user)
	if err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{Token: token, User: *user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	userID, _ := middleware.GetUserFromContext(c)
	if err := h.auth.RevokeToken(userID); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", err.Error())
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	if err := h.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		serviceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
