package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
)

type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListAll(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
}
