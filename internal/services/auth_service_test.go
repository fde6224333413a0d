package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenana/wallet-service/internal/infrastructure/auth"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

func newMockedAuthService(t *testing.T, adminEmail string) (*authService, serviceMocks, *auth.TokenManager) {
	ctrl := gomock.NewController(t)
	m := newServiceMocks(ctrl)
	tokens := auth.NewTokenManager("secret", time.Hour)
	roles := auth.NewRoleCache(m.redis, m.users, 15*time.Minute)
	return NewAuthService(m.users, m.redis, tokens, roles, adminEmail), m, tokens
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("successful registration", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "")
		userID := uuid.New()

		m.users.EXPECT().GetByEmail(gomock.Any(), "ann@example.com").Return(nil, pkgerrors.ErrUserNotFound)
		m.users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
			assert.Equal(t, "ann@example.com", u.Email)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")))
			u.ID = userID
			return nil
		})

		user, err := svc.Register(ctx, " Ann@Example.com ", "ann", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, userID, user.ID)
	})

	t.Run("email taken", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "")
		m.users.EXPECT().GetByEmail(gomock.Any(), "ann@example.com").Return(&models.User{ID: uuid.New()}, nil)

		_, err := svc.Register(ctx, "ann@example.com", "ann", "hunter22")
		assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc, _, _ := newMockedAuthService(t, "")

		_, err := svc.Register(ctx, "not-an-email", "ann", "hunter22")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		_, err = svc.Register(ctx, "ann@example.com", "", "hunter22")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		_, err = svc.Register(ctx, "ann@example.com", "ann", "short")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	user := &models.User{ID: userID, Email: "ann@example.com", PasswordHash: string(hash)}

	t.Run("successful login", func(t *testing.T) {
		svc, m, tokens := newMockedAuthService(t, "")
		m.users.EXPECT().GetByEmail(gomock.Any(), "ann@example.com").Return(user, nil)
		m.redis.EXPECT().Set(gomock.Any(), redis.TokenKey(userID), gomock.Any(), time.Hour).Return(nil)

		session, err := svc.Login(ctx, "ann@example.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, userID, session.UserID)

		parsed, err := tokens.Parse(session.Token)
		require.NoError(t, err)
		assert.Equal(t, userID, parsed)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "")
		m.users.EXPECT().GetByEmail(gomock.Any(), "ann@example.com").Return(user, nil)

		_, err := svc.Login(ctx, "ann@example.com", "wrongpass")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "")
		m.users.EXPECT().GetByEmail(gomock.Any(), "bob@example.com").Return(nil, pkgerrors.ErrUserNotFound)

		_, err := svc.Login(ctx, "bob@example.com", "hunter22")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
	})

	t.Run("session store down", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "")
		m.users.EXPECT().GetByEmail(gomock.Any(), "ann@example.com").Return(user, nil)
		m.redis.EXPECT().Set(gomock.Any(), redis.TokenKey(userID), gomock.Any(), time.Hour).Return(errors.New("connection refused"))

		_, err := svc.Login(ctx, "ann@example.com", "hunter22")
		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	})
}

func TestAuthService_Logout(t *testing.T) {
	svc, m, _ := newMockedAuthService(t, "")
	userID := uuid.New()

	m.redis.EXPECT().Del(gomock.Any(), redis.TokenKey(userID)).Return(nil)
	m.redis.EXPECT().Del(gomock.Any(), redis.AdminRoleKey(userID)).Return(nil)

	assert.NoError(t, svc.Logout(context.Background(), userID))
}

func TestAuthService_BootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("owner account", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "Owner@Example.com")
		m.users.EXPECT().GetByID(gomock.Any(), userID).Return(&models.User{ID: userID, Email: "owner@example.com"}, nil)
		m.users.EXPECT().AssignRole(gomock.Any(), userID, models.RoleAdmin).Return(nil)
		m.redis.EXPECT().Del(gomock.Any(), redis.AdminRoleKey(userID)).Return(nil)

		assert.NoError(t, svc.BootstrapAdmin(ctx, userID))
	})

	t.Run("other account", func(t *testing.T) {
		svc, m, _ := newMockedAuthService(t, "owner@example.com")
		m.users.EXPECT().GetByID(gomock.Any(), userID).Return(&models.User{ID: userID, Email: "ann@example.com"}, nil)

		assert.ErrorIs(t, svc.BootstrapAdmin(ctx, userID), pkgerrors.ErrForbidden)
	})

	t.Run("not configured", func(t *testing.T) {
		svc, _, _ := newMockedAuthService(t, "")

		assert.ErrorIs(t, svc.BootstrapAdmin(ctx, userID), pkgerrors.ErrForbidden)
	})
}
