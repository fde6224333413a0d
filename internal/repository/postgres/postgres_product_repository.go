package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.Product, err error) {
	ctx, done := startCall(ctx, "product-repository", "GetProductByID", attribute.String("product_id", id.String()))
	defer func() { done(err) }()

	query := `
			SELECT id, title, price, COALESCE(file_url, ''), COALESCE(external_link, '')
			FROM products
			WHERE id = $1
`
	var p models.Product
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Title,
		&p.Price,
		&p.FileURL,
		&p.ExternalLink,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrProductNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get product", "method", "GetByID", "product_id", id, "error", err)
		err = storeError("get product", err)
		return nil, err
	}
	return &p, nil
}
