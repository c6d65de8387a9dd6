package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/librimongo/librimongo/internal/config"
	"github.com/librimongo/librimongo/pkg/models"
)

// fakeAccounts is an in-memory userAccounts store.
type fakeAccounts struct {
	users map[uuid.UUID]*models.User
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeAccounts) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeAccounts) UserByLogin(_ context.Context, login string) (*models.User, error) {
	for _, user := range f.users {
		if user.Username == login || user.Email == login {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, req models.RegisterRequest, passwordHash string) (*models.User, error) {
	for _, user := range f.users {
		if user.Username == req.Username || user.Email == req.Email {
			return nil, ErrUserExists
		}
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[user.ID] = user
	copied := *user
	return &copied, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	user, ok := f.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

// The redis client points at a closed port: session writes degrade to
// warnings and validation tolerates the lookup failure.
func newTestAuth(t *testing.T) (*AuthService, *fakeAccounts) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	t.Cleanup(func() { redisClient.Close() })

	accounts := newFakeAccounts()
	return NewAuthService(cfg, logger, accounts, redisClient), accounts
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service, accounts := newTestAuth(t)

	req := models.RegisterRequest{
		Username: "reader",
		Email:    "reader@example.com",
		Password: "correct horse battery staple",
	}

	user, err := service.Register(context.Background(), req)
	require.NoError(t, err)

	t.Run("password is stored as a bcrypt hash", func(t *testing.T) {
		stored := accounts.users[user.ID]
		assert.NotEqual(t, req.Password, stored.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword(
			[]byte(stored.PasswordHash), []byte(req.Password)))
	})

	t.Run("login with username", func(t *testing.T) {
		got, err := service.Authenticate(context.Background(), "reader", req.Password)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("login with email", func(t *testing.T) {
		got, err := service.Authenticate(context.Background(), "reader@example.com", req.Password)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := service.Authenticate(context.Background(), "reader", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := service.Authenticate(context.Background(), "stranger", req.Password)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	service, _ := newTestAuth(t)

	user := &models.User{
		ID:       uuid.New(),
		Username: "reader",
		IsAdmin:  true,
	}

	token, err := service.GenerateToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("valid token yields the original claims", func(t *testing.T) {
		claims, err := service.ValidateToken(token)
		require.NoError(t, err)

		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, user.Username, claims.Username)
		assert.True(t, claims.IsAdmin)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		_, err := service.ValidateToken(token + "x")
		assert.Error(t, err)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := service.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestChangePassword(t *testing.T) {
	service, accounts := newTestAuth(t)

	user, err := service.Register(context.Background(), models.RegisterRequest{
		Username: "reader",
		Email:    "reader@example.com",
		Password: "old password",
	})
	require.NoError(t, err)

	t.Run("wrong current password", func(t *testing.T) {
		err := service.ChangePassword(context.Background(), user.ID, "guess", "new password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := service.ChangePassword(context.Background(), uuid.New(), "old password", "new password")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("successful change replaces the hash", func(t *testing.T) {
		require.NoError(t, service.ChangePassword(
			context.Background(), user.ID, "old password", "new password"))

		stored := accounts.users[user.ID]
		assert.NoError(t, bcrypt.CompareHashAndPassword(
			[]byte(stored.PasswordHash), []byte("new password")))

		_, err := service.Authenticate(context.Background(), "reader", "old password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
