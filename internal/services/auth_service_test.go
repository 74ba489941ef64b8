package services

import (
	"context"
	"testing"

	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(userRepo *mockUserRepo) *AuthService {
	return NewAuthService(userRepo, &config.Config{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 24,
	})
}

func TestAuthService_Login_InactiveUser(t *testing.T) {
	userRepo := &mockUserRepo{}
	service := newAuthFixture(userRepo)

	userRepo.mockFindByEmail = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{
			Email:  email,
			Status: models.StatusInactive,
		}, nil
	}

	result, err := service.Login(context.Background(), "inactive@example.com", "password")
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Equal(t, "account inactive or suspended", err.Error())
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	userRepo := &mockUserRepo{}
	service := newAuthFixture(userRepo)

	hash, err := service.HashPassword("correct horse")
	require.NoError(t, err)

	userRepo.mockFindByEmail = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{
			Email:             email,
			Status:            models.StatusActive,
			EncryptedPassword: hash,
		}, nil
	}

	result, err := service.Login(context.Background(), "tenant@example.com", "wrong")
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Equal(t, "invalid credentials", err.Error())
}

func TestAuthService_Login_Success(t *testing.T) {
	userRepo := &mockUserRepo{}
	service := newAuthFixture(userRepo)

	hash, err := service.HashPassword("correct horse")
	require.NoError(t, err)

	userRepo.mockFindByEmail = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{
			ID:                42,
			Email:             email,
			Role:              models.RoleTenant,
			Status:            models.StatusActive,
			EncryptedPassword: hash,
		}, nil
	}

	result, err := service.Login(context.Background(), "tenant@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, uint(42), result.User.ID)
	assert.Equal(t, models.RoleTenant, result.User.Role)
}
