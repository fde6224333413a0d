package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/models"
)

// LedgerRepository is the only writer of wallet balances. Every method runs
// its check-and-mutate as one server-side transaction.
type LedgerRepository interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// Debit subtracts order.Amount from the owner's wallet and records the
	// order. It returns ErrInsufficientFunds without mutating anything when
	// the balance is too low.
	Debit(ctx context.Context, order *models.Order) (newBalance decimal.Decimal, err error)
	// Checkout debits the sum of all orders at once and records every order,
	// or does nothing.
	Checkout(ctx context.Context, userID uuid.UUID, orders []*models.Order) (newBalance decimal.Decimal, err error)
	// ApproveDeposit moves a pending deposit to approved and credits its
	// amount in the same transaction.
	ApproveDeposit(ctx context.Context, depositID uuid.UUID) (*models.Deposit, error)
	// CancelOrder moves a pending order to cancelled and refunds its amount.
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}
