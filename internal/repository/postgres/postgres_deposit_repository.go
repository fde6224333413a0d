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

const depositTracer = "deposit-repository"

const depositColumns = `id, user_id, amount, payment_method, sender_number, transaction_id, status, COALESCE(admin_notes, ''), created_at, updated_at`

type PostgresDepositRepository struct {
	db *sql.DB
}

func NewPostgresDepositRepository(db *sql.DB) *PostgresDepositRepository {
	return &PostgresDepositRepository{db: db}
}

func (r *PostgresDepositRepository) Create(ctx context.Context, d *models.Deposit) (err error) {
	ctx, done := startCall(ctx, depositTracer, "CreateDeposit")
	defer func() { done(err) }()

	if d == nil {
		err = pkgerrors.ErrNilDeposit
		slog.Error("failed to create deposit", "method", "Create", "error", err)
		return err
	}
	if !d.Amount.IsPositive() {
		err = fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
		return err
	}
	if !d.PaymentMethod.Valid() {
		err = fmt.Errorf("%w: unknown payment method %q", pkgerrors.ErrInvalidInput, d.PaymentMethod)
		return err
	}

	query := `INSERT INTO deposits (user_id, amount, payment_method, sender_number, transaction_id, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		d.UserID, d.Amount, d.PaymentMethod, d.SenderNumber, d.TransactionID, models.DepositPending,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		slog.Error("failed to create deposit", "method", "Create", "user_id", d.UserID, "error", err)
		err = storeError("create deposit", err)
		return err
	}

	d.Status = models.DepositPending
	slog.Info("deposit created", "method", "Create", "deposit_id", d.ID, "user_id", d.UserID, "amount", d.Amount.String(), "payment_method", d.PaymentMethod)
	return nil
}

func (r *PostgresDepositRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.Deposit, err error) {
	ctx, done := startCall(ctx, depositTracer, "GetDepositByID", attribute.String("deposit_id", id.String()))
	defer func() { done(err) }()

	d, err := scanDeposit(r.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrDepositNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get deposit", "method", "GetByID", "deposit_id", id, "error", err)
		err = storeError("get deposit", err)
		return nil, err
	}
	return d, nil
}

// Reject is conditional on the deposit still being pending, so a second call
// reports ErrAlreadyProcessed instead of overwriting the first decision.
func (r *PostgresDepositRepository) Reject(ctx context.Context, id uuid.UUID, notes string) (_ *models.Deposit, err error) {
	ctx, done := startCall(ctx, depositTracer, "RejectDeposit", attribute.String("deposit_id", id.String()))
	defer func() { done(err) }()

	query := `UPDATE deposits SET status = $1, admin_notes = $2, updated_at = now() WHERE id = $3 AND status = $4 RETURNING ` + depositColumns
	d, err := scanDeposit(r.db.QueryRowContext(ctx, query, models.DepositRejected, notes, id, models.DepositPending))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = classifyDeposit(ctx, r.db, id)
		slog.Warn("deposit not rejectable", "method", "Reject", "deposit_id", id, "error", err)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to reject deposit", "method", "Reject", "deposit_id", id, "error", err)
		err = storeError("reject deposit", err)
		return nil, err
	}

	slog.Info("deposit rejected", "method", "Reject", "deposit_id", id, "user_id", d.UserID)
	return d, nil
}

func (r *PostgresDepositRepository) ListByUser(ctx context.Context, userID uuid.UUID) (_ []models.Deposit, err error) {
	ctx, done := startCall(ctx, depositTracer, "ListDepositsByUser", attribute.String("user_id", userID.String()))
	defer func() { done(err) }()

	query := `SELECT ` + depositColumns + ` FROM deposits WHERE user_id = $1 ORDER BY created_at DESC`
	return queryDeposits(ctx, r.db, query, userID)
}

func (r *PostgresDepositRepository) ListAll(ctx context.Context, status models.DepositStatus) (_ []models.Deposit, err error) {
	ctx, done := startCall(ctx, depositTracer, "ListAllDeposits")
	defer func() { done(err) }()

	if status == 0 {
		return queryDeposits(ctx, r.db, `SELECT `+depositColumns+` FROM deposits ORDER BY created_at DESC`)
	}
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE status = $1 ORDER BY created_at DESC`
	return queryDeposits(ctx, r.db, query, status)
}

func queryDeposits(ctx context.Context, q querier, query string, args ...any) ([]models.Deposit, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list deposits", "error", err)
		return nil, storeError("list deposits", err)
	}
	defer rows.Close()

	deposits := []models.Deposit{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, storeError("scan deposit", err)
		}
		deposits = append(deposits, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list deposits", err)
	}
	return deposits, nil
}

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var d models.Deposit
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Amount,
		&d.PaymentMethod,
		&d.SenderNumber,
		&d.TransactionID,
		&d.Status,
		&d.AdminNotes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// classifyDeposit explains why a conditional update on a deposit matched no row.
func classifyDeposit(ctx context.Context, q querier, id uuid.UUID) error {
	var status models.DepositStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM deposits WHERE id = $1`, id).Scan(&status)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrDepositNotFound
	case err != nil:
		return storeError("get deposit status", err)
	default:
		return fmt.Errorf("deposit is %s: %w", status, pkgerrors.ErrAlreadyProcessed)
	}
}
