package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/tenana/wallet-service/internal/models"
)

type PostgresStatsRepository struct {
	db *sql.DB
}

func NewPostgresStatsRepository(db *sql.DB) *PostgresStatsRepository {
	return &PostgresStatsRepository{db: db}
}

func (r *PostgresStatsRepository) Overview(ctx context.Context) (_ *models.Overview, err error) {
	ctx, done := startCall(ctx, "stats-repository", "Overview")
	defer func() { done(err) }()

	query := `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM products),
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM orders WHERE status = 'pending'),
			(SELECT count(*) FROM deposits WHERE status = 'pending'),
			(SELECT count(*) FROM deposits WHERE status = 'approved' AND created_at >= now() - interval '7 days'),
			(SELECT COALESCE(SUM(balance), 0) FROM wallets)`

	var o models.Overview
	err = r.db.QueryRowContext(ctx, query).Scan(
		&o.Users,
		&o.Products,
		&o.Orders,
		&o.PendingOrders,
		&o.PendingDeposits,
		&o.ApprovedDepositsWeek,
		&o.TotalWalletBalance,
	)
	if err != nil {
		slog.Error("failed to load overview", "method", "Overview", "error", err)
		err = storeError("load overview", err)
		return nil, err
	}
	return &o, nil
}
