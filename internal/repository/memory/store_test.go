package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenana/wallet-service/internal/models"
	"github.com/tenana/wallet-service/internal/repository"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
)

var (
	_ repository.LedgerRepository  = (*LedgerRepository)(nil)
	_ repository.DepositRepository = (*DepositRepository)(nil)
	_ repository.OrderRepository   = (*OrderRepository)(nil)
	_ repository.ProductRepository = (*ProductRepository)(nil)
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.StatsRepository   = (*StatsRepository)(nil)
)

func order(userID uuid.UUID, amount int64) *models.Order {
	return &models.Order{UserID: userID, ProductTitle: "Icon Pack", Amount: decimal.NewFromInt(amount), Status: models.OrderCompleted}
}

func TestLedgerRepository_NoDirectCredit(t *testing.T) {
	iface := reflect.TypeOf((*repository.LedgerRepository)(nil)).Elem()
	_, ok := iface.MethodByName("Credit")
	assert.False(t, ok, "services must credit only through ApproveDeposit and CancelOrder")
}

func TestLedger_DebitAndCredit(t *testing.T) {
	s := NewStore()
	ledger := s.Ledger()
	ctx := context.Background()
	userID := uuid.New()

	_, err := ledger.Debit(ctx, order(userID, 1))
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

	_, err = ledger.GetWallet(ctx, userID)
	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotFound)

	balance, err := ledger.Credit(ctx, userID, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "100", balance.String())

	o := order(userID, 100)
	balance, err = ledger.Debit(ctx, o)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.NotEqual(t, uuid.Nil, o.ID)

	_, err = ledger.Credit(ctx, userID, decimal.Zero)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestLedger_CheckoutAllOrNothing(t *testing.T) {
	s := NewStore()
	ledger := s.Ledger()
	ctx := context.Background()
	userID := uuid.New()
	_, err := ledger.Credit(ctx, userID, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = ledger.Checkout(ctx, userID, []*models.Order{order(userID, 60), order(userID, 60)})
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
	orders, err := s.Orders().ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	balance, err := ledger.Checkout(ctx, userID, []*models.Order{order(userID, 60), order(userID, 40)})
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	orders, err = s.Orders().ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].CreatedAt.After(orders[1].CreatedAt))
}

func TestDeposits_Workflow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	d := &models.Deposit{UserID: userID, Amount: decimal.NewFromInt(250), PaymentMethod: models.PaymentRocket, SenderNumber: "018", TransactionID: "R1"}
	require.NoError(t, s.Deposits().Create(ctx, d))
	assert.Equal(t, models.DepositPending, d.Status)

	approved, err := s.Ledger().ApproveDeposit(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, approved.Status)

	_, err = s.Ledger().ApproveDeposit(ctx, d.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyProcessed)
	_, err = s.Deposits().Reject(ctx, d.ID, "late")
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyProcessed)
	_, err = s.Ledger().ApproveDeposit(ctx, uuid.New())
	assert.ErrorIs(t, err, pkgerrors.ErrDepositNotFound)

	w, err := s.Ledger().GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "250", w.Balance.String())

	pending, err := s.Deposits().ListAll(ctx, models.DepositPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := s.Deposits().ListAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_CreationTimesStrictlyIncrease(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	_, err := s.Ledger().Credit(ctx, userID, decimal.NewFromInt(100))
	require.NoError(t, err)

	var created []time.Time
	for i := 0; i < 3; i++ {
		d := &models.Deposit{UserID: userID, Amount: decimal.NewFromInt(5), PaymentMethod: models.PaymentRocket, SenderNumber: "018", TransactionID: "R1"}
		require.NoError(t, s.Deposits().Create(ctx, d))
		created = append(created, d.CreatedAt)

		o := order(userID, 10)
		_, err := s.Ledger().Debit(ctx, o)
		require.NoError(t, err)
		created = append(created, o.CreatedAt)
	}

	// the clock stepping back must not reorder new records
	s.now = func() time.Time { return frozen.Add(-time.Hour) }
	d := &models.Deposit{UserID: userID, Amount: decimal.NewFromInt(5), PaymentMethod: models.PaymentRocket, SenderNumber: "018", TransactionID: "R2"}
	require.NoError(t, s.Deposits().Create(ctx, d))
	created = append(created, d.CreatedAt)

	for i := 1; i < len(created); i++ {
		assert.True(t, created[i].After(created[i-1]), "record %d not after record %d", i, i-1)
	}

	deposits, err := s.Deposits().ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, deposits, 4)
	assert.Equal(t, d.ID, deposits[0].ID)
}

func TestOrders_Transitions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	_, err := s.Ledger().Credit(ctx, userID, decimal.NewFromInt(100))
	require.NoError(t, err)

	o := order(userID, 70)
	o.Status = models.OrderPending
	_, err = s.Ledger().Debit(ctx, o)
	require.NoError(t, err)

	cancelled, err := s.Ledger().CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	_, err = s.Orders().Approve(ctx, o.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	_, err = s.Ledger().CancelOrder(ctx, o.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyProcessed)

	w, err := s.Ledger().GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "100", w.Balance.String())
}

func TestUsers_CreateAndRoles(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	users := s.Users()

	u := &models.User{Email: "Ana@Example.com", Username: "ana", PasswordHash: "h"}
	require.NoError(t, users.Create(ctx, u))
	assert.ErrorIs(t, users.Create(ctx, &models.User{Email: "ana@example.com", Username: "other", PasswordHash: "h"}), pkgerrors.ErrUsernameExists)

	found, err := users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	ok, err := users.HasRole(ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, users.AssignRole(ctx, u.ID, models.RoleAdmin))
	ok, err = users.HasRole(ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStats_Overview(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()
	s.PutProduct(models.Product{Title: "Icon Pack", Price: decimal.NewFromInt(10)})
	_, err := s.Ledger().Credit(ctx, userID, decimal.RequireFromString("12.50"))
	require.NoError(t, err)
	require.NoError(t, s.Deposits().Create(ctx, &models.Deposit{UserID: userID, Amount: decimal.NewFromInt(5), PaymentMethod: models.PaymentBkash}))

	o, err := s.Stats().Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Products)
	assert.Equal(t, int64(1), o.PendingDeposits)
	assert.Equal(t, "12.5", o.TotalWalletBalance.String())
}
