package repository

import (
	"context"

	"github.com/tenana/wallet-service/internal/models"
)

type StatsRepository interface {
	Overview(ctx context.Context) (*models.Overview, error)
}
