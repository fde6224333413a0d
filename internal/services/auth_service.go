package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/infrastructure/auth"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
	"github.com/tenana/wallet-service/internal/repository"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	authTracer        = "auth-service"
	minPasswordLength = 6
	maxUsernameLength = 50
)

type AuthService interface {
	Register(ctx context.Context, email, username, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	BootstrapAdmin(ctx context.Context, userID uuid.UUID) error
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type authService struct {
	userRepo    repository.UserRepository
	redisClient redis.RedisClient
	tokens      *auth.TokenManager
	roles       *auth.RoleCache
	adminEmail  string
}

func NewAuthService(
	userRepo repository.UserRepository,
	redisClient redis.RedisClient,
	tokens *auth.TokenManager,
	roles *auth.RoleCache,
	adminEmail string,
) *authService {
	return &authService{
		userRepo:    userRepo,
		redisClient: redisClient,
		tokens:      tokens,
		roles:       roles,
		adminEmail:  strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}

func (s *authService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "Register")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if err := validateCredentials(email, username, password); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, email)
	if existingUser != nil {
		span.SetStatus(codes.Error, "email already registered")
		slog.Warn("email already registered", "existing_id", existingUser.ID)
		return nil, pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		slog.Error("failed to check user existence", "error", err)
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user", "username", username, "error", err)
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

// Login issues a token and pins it in Redis; the auth middleware accepts
// only the pinned token, so a new login revokes the previous one.
func (s *authService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.RecordError(err)
			slog.Error("failed to load user for login", "error", err)
			return nil, err
		}
		slog.Warn("login for unknown email")
		return nil, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("invalid password", "user_id", user.ID)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(user.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token generation failed")
		slog.Error("failed to generate JWT", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to generate token", pkgerrors.ErrInternal)
	}

	if err := s.redisClient.Set(ctx, redis.TokenKey(user.ID), token, s.tokens.TTL()); err != nil {
		span.RecordError(err)
		slog.Error("failed to pin JWT", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: failed to store session: %w", pkgerrors.ErrStoreUnavailable, err)
	}

	slog.Info("user logged in", "user_id", user.ID)
	return &models.Session{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes the pinned token and drops the cached admin check.
func (s *authService) Logout(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "Logout")
	defer span.End()

	if err := s.redisClient.Del(ctx, redis.TokenKey(userID)); err != nil {
		span.RecordError(err)
		slog.Error("failed to revoke token", "user_id", userID, "error", err)
		return fmt.Errorf("%w: failed to revoke token: %w", pkgerrors.ErrStoreUnavailable, err)
	}
	s.roles.Invalidate(ctx, userID)

	slog.Info("user logged out", "user_id", userID)
	return nil
}

// BootstrapAdmin grants the admin role to the configured owner account. It is
// idempotent and refused for everyone else.
func (s *authService) BootstrapAdmin(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer(authTracer).Start(ctx, "BootstrapAdmin")
	defer span.End()

	if s.adminEmail == "" {
		slog.Warn("admin bootstrap attempted without ADMIN_EMAIL", "user_id", userID)
		return pkgerrors.ErrForbidden
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if strings.ToLower(user.Email) != s.adminEmail {
		span.SetStatus(codes.Error, "not the bootstrap account")
		slog.Warn("admin bootstrap refused", "user_id", userID)
		return pkgerrors.ErrForbidden
	}

	if err := s.userRepo.AssignRole(ctx, userID, models.RoleAdmin); err != nil {
		span.RecordError(err)
		slog.Error("failed to assign admin role", "user_id", userID, "error", err)
		return err
	}
	s.roles.Invalidate(ctx, userID)

	slog.Info("admin role bootstrapped", "user_id", userID)
	return nil
}

func (s *authService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.roles.IsAdmin(ctx, userID)
}

func validateCredentials(email, username, password string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", pkgerrors.ErrInvalidInput)
	}
	if username == "" || len([]rune(username)) > maxUsernameLength {
		return fmt.Errorf("%w: username must be 1 to %d characters", pkgerrors.ErrInvalidInput, maxUsernameLength)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", pkgerrors.ErrInvalidInput, minPasswordLength)
	}
	return nil
}
