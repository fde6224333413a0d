package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const orderTracer = "order-repository"

const orderColumns = `id, user_id, product_id, product_title, amount, status, COALESCE(customer_instructions, ''), created_at`

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.Order, err error) {
	ctx, done := startCall(ctx, orderTracer, "GetOrderByID", attribute.String("order_id", id.String()))
	defer func() { done(err) }()

	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrOrderNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get order", "method", "GetByID", "order_id", id, "error", err)
		err = storeError("get order", err)
		return nil, err
	}
	return o, nil
}

// Approve marks a pending order completed. Money is not touched here.
func (r *PostgresOrderRepository) Approve(ctx context.Context, id uuid.UUID) (_ *models.Order, err error) {
	ctx, done := startCall(ctx, orderTracer, "ApproveOrder", attribute.String("order_id", id.String()))
	defer func() { done(err) }()

	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3 RETURNING ` + orderColumns
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, models.OrderCompleted, id, models.OrderPending))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = classifyOrder(ctx, r.db, id, models.OrderCompleted)
		slog.Warn("order not approvable", "method", "Approve", "order_id", id, "error", err)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to approve order", "method", "Approve", "order_id", id, "error", err)
		err = storeError("approve order", err)
		return nil, err
	}

	slog.Info("order approved", "method", "Approve", "order_id", id, "user_id", o.UserID)
	return o, nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) (_ []models.Order, err error) {
	ctx, done := startCall(ctx, orderTracer, "ListOrdersByUser", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return queryOrders(ctx, r.db, query, userID)
}

func (r *PostgresOrderRepository) ListAll(ctx context.Context, status models.OrderStatus) (_ []models.Order, err error) {
	ctx, done := startCall(ctx, orderTracer, "ListAllOrders")
	defer func() { done(err) }()

	if status == 0 {
		return queryOrders(ctx, r.db, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	return queryOrders(ctx, r.db, query, status)
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list orders", "error", err)
		return nil, storeError("list orders", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storeError("scan order", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list orders", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.ProductID,
		&o.ProductTitle,
		&o.Amount,
		&o.Status,
		&o.CustomerInstructions,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// classifyOrder explains why a conditional update towards target matched no
// row: reaching the same state again is already processed, anything else is
// an invalid transition.
func classifyOrder(ctx context.Context, q querier, id uuid.UUID, target models.OrderStatus) error {
	var status models.OrderStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrOrderNotFound
	case err != nil:
		return storeError("get order status", err)
	case status == target:
		return fmt.Errorf("order is %s: %w", status, pkgerrors.ErrAlreadyProcessed)
	default:
		return fmt.Errorf("order is %s, cannot become %s: %w", status, target, pkgerrors.ErrInvalidTransition)
	}
}
