package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
)

type DepositRepository interface {
	Create(ctx context.Context, deposit *models.Deposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	Reject(ctx context.Context, id uuid.UUID, notes string) (*models.Deposit, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deposit, error)
	// ListAll returns every deposit, or only those in status when it is non-zero.
	ListAll(ctx context.Context, status models.DepositStatus) ([]models.Deposit, error)
}
