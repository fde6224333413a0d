package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}
