package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/internal/middleware"
	"github.com/librimongo/librimongo/internal/services"
	"github.com/librimongo/librimongo/pkg/models"
)

// memoryAccounts backs the auth flow without a database.
type memoryAccounts struct {
	users map[uuid.UUID]*models.User
}

func (m *memoryAccounts) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *memoryAccounts) UserByLogin(_ context.Context, login string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == login || user.Email == login {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryAccounts) CreateUser(_ context.Context, req models.RegisterRequest, passwordHash string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == req.Username || user.Email == req.Email {
			return nil, services.ErrUserExists
		}
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user
	copied := *user
	return &copied, nil
}

func (m *memoryAccounts) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	user, ok := m.users[id]
	if !ok {
		return services.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	// Closed port: session bookkeeping degrades gracefully.
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	t.Cleanup(func() { redisClient.Close() })

	auth := services.NewAuthService(cfg, logger, &memoryAccounts{
		users: make(map[uuid.UUID]*models.User),
	}, redisClient)
	handler := NewAuthHandler(logger, auth)

	router := gin.New()
	router.POST("/auth/register", handler.Register)
	router.POST("/auth/login", handler.Login)

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(auth, logger))
	protected.GET("/whoami", func(c *gin.Context) {
		userID, isAdmin := middleware.GetUserFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "is_admin": isAdmin})
	})
	protected.GET("/admin", middleware.AdminOnly(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuthFlow(t *testing.T) {
	router := newAuthRouter(t)

	register := models.RegisterRequest{
		Username: "reader",
		Email:    "reader@example.com",
		Password: "correct horse battery staple",
	}

	var token string

	t.Run("register issues a token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/register", register, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp models.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "reader", resp.User.Username)
		assert.Empty(t, resp.User.PasswordHash, "hash must not leak into responses")

		token = resp.Token
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/register", register, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "USER_EXISTS", errorCode(t, rec))
	})

	t.Run("login with wrong password is unauthorized", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/login", models.LoginRequest{
			Login:    "reader",
			Password: "nope",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
	})

	t.Run("login succeeds with email", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/login", models.LoginRequest{
			Login:    "reader@example.com",
			Password: register.Password,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("bearer token grants access", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/whoami", nil, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("missing authorization header", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/whoami", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "MISSING_AUTHORIZATION", errorCode(t, rec))
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/whoami", nil, map[string]string{
			"Authorization": token,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_AUTHORIZATION_FORMAT", errorCode(t, rec))
	})

	t.Run("tampered token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/whoami", nil, map[string]string{
			"Authorization": "Bearer " + token + "x",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))
	})

	t.Run("non-admin is forbidden on admin routes", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/admin", nil, map[string]string{
			"Authorization": "Bearer " + token,
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	})
}
