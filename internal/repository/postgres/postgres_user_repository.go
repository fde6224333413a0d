package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const userTracer = "user-repository"

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := startCall(ctx, userTracer, "CreateUser")
	defer func() { done(err) }()

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	switch {
	case user.Email == "":
		err = fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
	case user.Username == "":
		err = fmt.Errorf("%w: username is required", pkgerrors.ErrInvalidInput)
	case len(user.Username) > 50:
		err = fmt.Errorf("%w: username too long", pkgerrors.ErrInvalidInput)
	case user.PasswordHash == "":
		err = fmt.Errorf("%w: password_hash is required", pkgerrors.ErrInvalidInput)
	}
	if err != nil {
		return err
	}

	query := `INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, user.Email, user.Username, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = pkgerrors.ErrUsernameExists
			return err
		}
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		err = storeError("create user", err)
		return err
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID, "username", user.Username)
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.User, err error) {
	ctx, done := startCall(ctx, userTracer, "GetUserByID", attribute.String("user_id", id.String()))
	defer func() { done(err) }()

	query := `SELECT id, email, username, password_hash, created_at FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (_ *models.User, err error) {
	ctx, done := startCall(ctx, userTracer, "GetUserByEmail")
	defer func() { done(err) }()

	if email == "" {
		err = fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
		return nil, err
	}
	query := `SELECT id, email, username, password_hash, created_at FROM users WHERE lower(email) = lower($1)`
	return r.getOne(ctx, query, email)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		slog.Error("failed to get user", "error", err)
		return nil, storeError("get user", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (_ bool, err error) {
	ctx, done := startCall(ctx, userTracer, "HasRole", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`
	if err = r.db.QueryRowContext(ctx, query, userID, role).Scan(&ok); err != nil {
		slog.Error("failed to check role", "method", "HasRole", "user_id", userID, "role", role, "error", err)
		err = storeError("check role", err)
		return false, err
	}
	return ok, nil
}

func (r *PostgresUserRepository) AssignRole(ctx context.Context, userID uuid.UUID, role models.Role) (err error) {
	ctx, done := startCall(ctx, userTracer, "AssignRole", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	query := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`
	if _, err = r.db.ExecContext(ctx, query, userID, role); err != nil {
		slog.Error("failed to assign role", "method", "AssignRole", "user_id", userID, "role", role, "error", err)
		err = storeError("assign role", err)
		return err
	}

	slog.Info("role assigned", "method", "AssignRole", "user_id", userID, "role", role)
	return nil
}
