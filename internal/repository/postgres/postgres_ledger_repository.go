package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const ledgerTracer = "ledger-repository"

const (
	debitWalletQuery = `
		UPDATE wallets
		SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2
		AND balance >= $1
		RETURNING balance`

	creditWalletQuery = `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`

	insertOrderQuery = `INSERT INTO orders (user_id, product_id, product_title, amount, status, customer_instructions) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
)

type PostgresLedgerRepository struct {
	db *sql.DB
}

func NewPostgresLedgerRepository(db *sql.DB) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db}
}

func (r *PostgresLedgerRepository) GetWallet(ctx context.Context, userID uuid.UUID) (_ *models.Wallet, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "GetWallet", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	var w models.Wallet
	query := `SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`
	err = r.db.QueryRowContext(ctx, query, userID).Scan(&w.UserID, &w.Balance, &w.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrWalletNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get wallet", "method", "GetWallet", "user_id", userID, "error", err)
		err = storeError("get wallet", err)
		return nil, err
	}
	return &w, nil
}

func (r *PostgresLedgerRepository) Debit(ctx context.Context, order *models.Order) (_ decimal.Decimal, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "Debit")
	defer func() { done(err) }()

	if err = validateOrder(order); err != nil {
		slog.Error("invalid order", "method", "Debit", "error", err)
		return decimal.Zero, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Debit", "error", err)
		err = storeError("begin transaction", err)
		return decimal.Zero, err
	}

	balance, err := debitWallet(ctx, dbTx, order.UserID, order.Amount)
	if err != nil {
		err = rollback(dbTx, "Debit", err)
		return decimal.Zero, err
	}

	if err = insertOrder(ctx, dbTx, order); err != nil {
		err = rollback(dbTx, "Debit", err)
		return decimal.Zero, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Debit", "error", err)
		err = storeError("commit transaction", err)
		return decimal.Zero, err
	}

	slog.Info("wallet debited", "method", "Debit", "user_id", order.UserID, "order_id", order.ID, "amount", order.Amount.String(), "balance", balance.String(), "status", order.Status)
	return balance, nil
}

func (r *PostgresLedgerRepository) Checkout(ctx context.Context, userID uuid.UUID, orders []*models.Order) (_ decimal.Decimal, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "Checkout",
		attribute.String("user_id", userID.String()),
		attribute.Int("lines", len(orders)))
	defer func() { done(err) }()

	if len(orders) == 0 {
		err = fmt.Errorf("%w: checkout has no lines", pkgerrors.ErrInvalidInput)
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		if err = validateOrder(o); err != nil {
			return decimal.Zero, err
		}
		if o.UserID != userID {
			err = fmt.Errorf("%w: order belongs to another user", pkgerrors.ErrInvalidInput)
			return decimal.Zero, err
		}
		total = total.Add(o.Amount)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Checkout", "error", err)
		err = storeError("begin transaction", err)
		return decimal.Zero, err
	}

	balance, err := debitWallet(ctx, dbTx, userID, total)
	if err != nil {
		err = rollback(dbTx, "Checkout", err)
		return decimal.Zero, err
	}

	for _, o := range orders {
		if err = insertOrder(ctx, dbTx, o); err != nil {
			err = rollback(dbTx, "Checkout", err)
			return decimal.Zero, err
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Checkout", "error", err)
		err = storeError("commit transaction", err)
		return decimal.Zero, err
	}

	slog.Info("checkout completed", "method", "Checkout", "user_id", userID, "lines", len(orders), "total", total.String(), "balance", balance.String())
	return balance, nil
}

// Credit adds amount to the user's wallet outside any deposit or order. It is
// not part of LedgerRepository: client-facing flows credit only through
// ApproveDeposit and CancelOrder, and this entry point is kept for seeding
// and operator tooling.
func (r *PostgresLedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "Credit", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	if !amount.IsPositive() {
		err = fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
		return decimal.Zero, err
	}

	balance, err := creditWallet(ctx, r.db, userID, amount)
	if err != nil {
		return decimal.Zero, err
	}

	slog.Info("wallet credited", "method", "Credit", "user_id", userID, "amount", amount.String(), "balance", balance.String())
	return balance, nil
}

func (r *PostgresLedgerRepository) ApproveDeposit(ctx context.Context, depositID uuid.UUID) (_ *models.Deposit, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "ApproveDeposit", attribute.String("deposit_id", depositID.String()))
	defer func() { done(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "ApproveDeposit", "error", err)
		err = storeError("begin transaction", err)
		return nil, err
	}

	query := `UPDATE deposits SET status = $1, updated_at = now() WHERE id = $2 AND status = $3 RETURNING ` + depositColumns
	deposit, err := scanDeposit(dbTx.QueryRowContext(ctx, query, models.DepositApproved, depositID, models.DepositPending))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = classifyDeposit(ctx, dbTx, depositID)
		slog.Warn("deposit not approvable", "method", "ApproveDeposit", "deposit_id", depositID, "error", err)
		err = rollback(dbTx, "ApproveDeposit", err)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to update deposit status", "method", "ApproveDeposit", "deposit_id", depositID, "error", err)
		err = rollback(dbTx, "ApproveDeposit", storeError("update deposit status", err))
		return nil, err
	}

	balance, err := creditWallet(ctx, dbTx, deposit.UserID, deposit.Amount)
	if err != nil {
		err = rollback(dbTx, "ApproveDeposit", err)
		return nil, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "ApproveDeposit", "error", err)
		err = storeError("commit transaction", err)
		return nil, err
	}

	slog.Info("deposit approved", "method", "ApproveDeposit", "deposit_id", depositID, "user_id", deposit.UserID, "amount", deposit.Amount.String(), "balance", balance.String())
	return deposit, nil
}

func (r *PostgresLedgerRepository) CancelOrder(ctx context.Context, orderID uuid.UUID) (_ *models.Order, err error) {
	ctx, done := startCall(ctx, ledgerTracer, "CancelOrder", attribute.String("order_id", orderID.String()))
	defer func() { done(err) }()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "CancelOrder", "error", err)
		err = storeError("begin transaction", err)
		return nil, err
	}

	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3 RETURNING ` + orderColumns
	order, err := scanOrder(dbTx.QueryRowContext(ctx, query, models.OrderCancelled, orderID, models.OrderPending))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = classifyOrder(ctx, dbTx, orderID, models.OrderCancelled)
		slog.Warn("order not cancellable", "method", "CancelOrder", "order_id", orderID, "error", err)
		err = rollback(dbTx, "CancelOrder", err)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to update order status", "method", "CancelOrder", "order_id", orderID, "error", err)
		err = rollback(dbTx, "CancelOrder", storeError("update order status", err))
		return nil, err
	}

	balance, err := creditWallet(ctx, dbTx, order.UserID, order.Amount)
	if err != nil {
		err = rollback(dbTx, "CancelOrder", err)
		return nil, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "CancelOrder", "error", err)
		err = storeError("commit transaction", err)
		return nil, err
	}

	slog.Info("order cancelled and refunded", "method", "CancelOrder", "order_id", orderID, "user_id", order.UserID, "amount", order.Amount.String(), "balance", balance.String())
	return order, nil
}

// debitWallet is the conditional decrement. A missing wallet and a short
// balance look the same: no row is updated.
func debitWallet(ctx context.Context, q querier, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, debitWalletQuery, amount, userID).Scan(&balance)
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("insufficient funds", "user_id", userID, "amount", amount.String())
		return decimal.Zero, pkgerrors.ErrInsufficientFunds
	}
	if err != nil {
		slog.Error("failed to debit wallet", "user_id", userID, "error", err)
		return decimal.Zero, storeError("debit wallet", err)
	}
	return balance, nil
}

func creditWallet(ctx context.Context, q querier, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := q.QueryRowContext(ctx, creditWalletQuery, userID, amount).Scan(&balance); err != nil {
		slog.Error("failed to credit wallet", "user_id", userID, "error", err)
		return decimal.Zero, storeError("credit wallet", err)
	}
	return balance, nil
}

func insertOrder(ctx context.Context, q querier, o *models.Order) error {
	err := q.QueryRowContext(ctx, insertOrderQuery,
		o.UserID, o.ProductID, o.ProductTitle, o.Amount, o.Status, nullString(o.CustomerInstructions),
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		slog.Error("failed to create order", "user_id", o.UserID, "product_title", o.ProductTitle, "error", err)
		return storeError("create order", err)
	}
	return nil
}

func validateOrder(o *models.Order) error {
	if o == nil {
		return pkgerrors.ErrNilOrder
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if o.ProductTitle == "" {
		return fmt.Errorf("%w: product title is required", pkgerrors.ErrInvalidInput)
	}
	if o.Status != models.OrderPending && o.Status != models.OrderCompleted {
		return fmt.Errorf("%w: new order must be pending or completed", pkgerrors.ErrInvalidInput)
	}
	return nil
}
