package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
	AssignRole(ctx context.Context, userID uuid.UUID, role models.Role) error
}
