package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
)

func newMockedWalletService(t *testing.T) (*walletService, serviceMocks) {
	ctrl := gomock.NewController(t)
	m := newServiceMocks(ctrl)
	svc := NewWalletService(m.ledger, m.deposits, m.orders, m.products, m.redis, m.producer,
		testTopic, 5*time.Minute, decimal.NewFromInt(1000))
	return svc, m
}

func TestWalletService_GetBalance(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	versionKey := redis.BalanceVersionKey(userID)

	t.Run("cached balance", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().Get(gomock.Any(), versionKey).Return("4", nil)
		m.redis.EXPECT().Get(gomock.Any(), redis.BalanceKey(userID, 4)).Return("250.5", nil)

		balance, err := svc.GetBalance(ctx, userID)
		assert.NoError(t, err)
		assert.Equal(t, "250.5", balance.String())
	})

	t.Run("cache miss reads ledger and caches", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().Get(gomock.Any(), versionKey).Return("", redis.ErrKeyNotFound)
		m.redis.EXPECT().Get(gomock.Any(), redis.BalanceKey(userID, 0)).Return("", redis.ErrKeyNotFound)
		m.ledger.EXPECT().GetWallet(gomock.Any(), userID).
			Return(&models.Wallet{UserID: userID, Balance: decimal.NewFromInt(100)}, nil)
		m.redis.EXPECT().Set(gomock.Any(), redis.BalanceKey(userID, 0), "100", 5*time.Minute).Return(nil)

		balance, err := svc.GetBalance(ctx, userID)
		assert.NoError(t, err)
		assert.Equal(t, "100", balance.String())
	})

	t.Run("missing wallet is zero", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().Get(gomock.Any(), versionKey).Return("7", nil)
		m.redis.EXPECT().Get(gomock.Any(), redis.BalanceKey(userID, 7)).Return("", redis.ErrKeyNotFound)
		m.ledger.EXPECT().GetWallet(gomock.Any(), userID).Return(nil, pkgerrors.ErrWalletNotFound)
		m.redis.EXPECT().Set(gomock.Any(), redis.BalanceKey(userID, 7), "0", 5*time.Minute).Return(nil)

		balance, err := svc.GetBalance(ctx, userID)
		assert.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("unreadable version skips the cache", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().Get(gomock.Any(), versionKey).Return("", errors.New("connection refused"))
		m.ledger.EXPECT().GetWallet(gomock.Any(), userID).
			Return(&models.Wallet{UserID: userID, Balance: decimal.NewFromInt(40)}, nil)

		balance, err := svc.GetBalance(ctx, userID)
		assert.NoError(t, err)
		assert.Equal(t, "40", balance.String())
	})

	t.Run("store failure", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().Get(gomock.Any(), versionKey).Return("", redis.ErrKeyNotFound)
		m.redis.EXPECT().Get(gomock.Any(), redis.BalanceKey(userID, 0)).Return("", redis.ErrKeyNotFound)
		m.ledger.EXPECT().GetWallet(gomock.Any(), userID).Return(nil, pkgerrors.ErrStoreUnavailable)

		_, err := svc.GetBalance(ctx, userID)
		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	})
}

func TestWalletService_Purchase(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	product := &models.Product{ID: uuid.New(), Title: "Icon Pack", Price: decimal.NewFromInt(300)}

	t.Run("successful purchase", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		orderID := uuid.New()

		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, o *models.Order) (decimal.Decimal, error) {
				assert.Equal(t, userID, o.UserID)
				assert.Equal(t, "Icon Pack", o.ProductTitle)
				assert.Equal(t, "300", o.Amount.String())
				assert.Equal(t, models.OrderCompleted, o.Status)
				assert.Equal(t, uuid.NullUUID{UUID: product.ID, Valid: true}, o.ProductID)
				o.ID = orderID
				return decimal.NewFromInt(200), nil
			})
		m.redis.EXPECT().Incr(gomock.Any(), redis.BalanceVersionKey(userID)).Return(int64(1), nil)
		m.producer.EXPECT().Send(gomock.Any(), testTopic, userID.String(), gomock.Any()).Return(nil)

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, Title: "Icon Pack"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "200", res.Balance.String())
		require.Len(t, res.Orders, 1)
		assert.Equal(t, orderID, res.Orders[0].ID)
	})

	t.Run("instructions make the order pending", func(t *testing.T) {
		svc, m := newMockedWalletService(t)

		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, o *models.Order) (decimal.Decimal, error) {
				assert.Equal(t, models.OrderPending, o.Status)
				assert.Equal(t, "send to my work email", o.CustomerInstructions)
				return decimal.NewFromInt(200), nil
			})
		m.redis.EXPECT().Incr(gomock.Any(), redis.BalanceVersionKey(userID)).Return(int64(1), nil)
		m.producer.EXPECT().Send(gomock.Any(), testTopic, userID.String(), gomock.Any()).Return(nil)

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, Instructions: "  send to my work email "})
		require.NoError(t, err)
		assert.Equal(t, models.OrderPending, res.Orders[0].Status)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		svc, m := newMockedWalletService(t)

		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).Return(decimal.Zero, pkgerrors.ErrInsufficientFunds)
		expectCachedBalance(m, userID, "100")

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "100", res.Balance.String())
		assert.Empty(t, res.Orders)
	})

	t.Run("price changed", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		shown := decimal.NewFromInt(250)

		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, Price: &shown})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.Nil(t, res)
	})

	t.Run("unknown product", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		missing := uuid.New()

		m.products.EXPECT().GetByID(gomock.Any(), missing).Return(nil, pkgerrors.ErrProductNotFound)

		_, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: missing})
		assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
	})

	t.Run("missing product id", func(t *testing.T) {
		svc, _ := newMockedWalletService(t)

		_, err := svc.Purchase(ctx, userID, PurchaseRequest{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestWalletService_PurchaseIdempotency(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	product := &models.Product{ID: uuid.New(), Title: "Font Bundle", Price: decimal.NewFromInt(50)}
	requestKey := redis.RequestKey(userID, "req-1")

	t.Run("duplicate request", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().SetNX(gomock.Any(), requestKey, "pending", 24*time.Hour).Return(false, nil)

		_, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, RequestID: "req-1"})
		assert.ErrorIs(t, err, pkgerrors.ErrRequestAlreadyProcessed)
	})

	t.Run("success marks request done", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().SetNX(gomock.Any(), requestKey, "pending", 24*time.Hour).Return(true, nil)
		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).Return(decimal.NewFromInt(50), nil)
		m.redis.EXPECT().Incr(gomock.Any(), redis.BalanceVersionKey(userID)).Return(int64(1), nil)
		m.producer.EXPECT().Send(gomock.Any(), testTopic, userID.String(), gomock.Any()).Return(nil)
		m.redis.EXPECT().Set(gomock.Any(), requestKey, "done", 24*time.Hour).Return(nil)

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, RequestID: "req-1"})
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("declined purchase releases the key", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().SetNX(gomock.Any(), requestKey, "pending", 24*time.Hour).Return(true, nil)
		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).Return(decimal.Zero, pkgerrors.ErrInsufficientFunds)
		expectCachedBalance(m, userID, "10")
		m.redis.EXPECT().Del(gomock.Any(), requestKey).Return(nil)

		res, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, RequestID: "req-1"})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})

	t.Run("store failure keeps the key", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.redis.EXPECT().SetNX(gomock.Any(), requestKey, "pending", 24*time.Hour).Return(true, nil)
		m.products.EXPECT().GetByID(gomock.Any(), product.ID).Return(product, nil)
		m.ledger.EXPECT().Debit(gomock.Any(), gomock.Any()).
			Return(decimal.Zero, errors.Join(pkgerrors.ErrStoreUnavailable, errors.New("connection reset")))

		_, err := svc.Purchase(ctx, userID, PurchaseRequest{ProductID: product.ID, RequestID: "req-1"})
		assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	})
}

func TestWalletService_Checkout(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	icons := &models.Product{ID: uuid.New(), Title: "Icon Pack", Price: decimal.RequireFromString("19.99")}
	fonts := &models.Product{ID: uuid.New(), Title: "Font Bundle", Price: decimal.NewFromInt(5)}

	t.Run("whole cart in one debit", func(t *testing.T) {
		svc, m := newMockedWalletService(t)

		m.products.EXPECT().GetByID(gomock.Any(), icons.ID).Return(icons, nil)
		m.products.EXPECT().GetByID(gomock.Any(), fonts.ID).Return(fonts, nil)
		m.ledger.EXPECT().Checkout(gomock.Any(), userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, orders []*models.Order) (decimal.Decimal, error) {
				require.Len(t, orders, 2)
				assert.Equal(t, "39.98", orders[0].Amount.String())
				assert.Equal(t, "5", orders[1].Amount.String())
				for _, o := range orders {
					o.ID = uuid.New()
				}
				return decimal.RequireFromString("55.02"), nil
			})
		m.redis.EXPECT().Incr(gomock.Any(), redis.BalanceVersionKey(userID)).Return(int64(1), nil)
		m.producer.EXPECT().Send(gomock.Any(), testTopic, userID.String(), gomock.Any()).Return(nil)

		res, err := svc.Checkout(ctx, userID, CheckoutRequest{Lines: []CheckoutLine{
			{ProductID: icons.ID, Quantity: 2},
			{ProductID: fonts.ID, Quantity: 1},
		}})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "44.98", res.Total.String())
		assert.Len(t, res.Orders, 2)
	})

	t.Run("insufficient funds debits nothing", func(t *testing.T) {
		svc, m := newMockedWalletService(t)

		m.products.EXPECT().GetByID(gomock.Any(), icons.ID).Return(icons, nil)
		m.ledger.EXPECT().Checkout(gomock.Any(), userID, gomock.Any()).Return(decimal.Zero, pkgerrors.ErrInsufficientFunds)
		expectCachedBalance(m, userID, "10")

		res, err := svc.Checkout(ctx, userID, CheckoutRequest{Lines: []CheckoutLine{{ProductID: icons.ID, Quantity: 1}}})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "19.99", res.Total.String())
	})

	t.Run("invalid line stops before the ledger", func(t *testing.T) {
		svc, m := newMockedWalletService(t)

		m.products.EXPECT().GetByID(gomock.Any(), icons.ID).Return(icons, nil)

		_, err := svc.Checkout(ctx, userID, CheckoutRequest{Lines: []CheckoutLine{
			{ProductID: icons.ID, Quantity: 1},
			{ProductID: fonts.ID, Quantity: 0},
		}})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("empty cart", func(t *testing.T) {
		svc, _ := newMockedWalletService(t)

		_, err := svc.Checkout(ctx, userID, CheckoutRequest{})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}

func TestWalletService_TopUp(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("pending deposit is recorded", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		depositID := uuid.New()

		m.deposits.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, d *models.Deposit) error {
				assert.Equal(t, userID, d.UserID)
				assert.Equal(t, "01700000000", d.SenderNumber)
				assert.Equal(t, "TX123", d.TransactionID)
				d.ID = depositID
				d.Status = models.DepositPending
				return nil
			})
		m.producer.EXPECT().Send(gomock.Any(), testTopic, userID.String(), gomock.Any()).Return(nil)

		deposit, err := svc.TopUp(ctx, userID, TopUpRequest{
			Amount:        decimal.NewFromInt(500),
			PaymentMethod: models.PaymentBkash,
			SenderNumber:  " 01700000000 ",
			TransactionID: "TX123",
		})
		require.NoError(t, err)
		assert.Equal(t, depositID, deposit.ID)
		assert.Equal(t, models.DepositPending, deposit.Status)
	})

	valid := TopUpRequest{
		Amount:        decimal.NewFromInt(500),
		PaymentMethod: models.PaymentRocket,
		SenderNumber:  "01800000000",
		TransactionID: "TX9",
	}
	tests := []struct {
		name   string
		mutate func(*TopUpRequest)
	}{
		{"zero amount", func(r *TopUpRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *TopUpRequest) { r.Amount = decimal.NewFromInt(-5) }},
		{"fractional cents", func(r *TopUpRequest) { r.Amount = decimal.RequireFromString("10.005") }},
		{"above maximum", func(r *TopUpRequest) { r.Amount = decimal.NewFromInt(1001) }},
		{"unknown method", func(r *TopUpRequest) { r.PaymentMethod = "paypal" }},
		{"empty sender", func(r *TopUpRequest) { r.SenderNumber = "  " }},
		{"empty transaction id", func(r *TopUpRequest) { r.TransactionID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newMockedWalletService(t)
			req := valid
			tt.mutate(&req)

			deposit, err := svc.TopUp(ctx, userID, req)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
			assert.Nil(t, deposit)
		})
	}
}

func TestWalletService_GetDelivery(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	productID := uuid.New()

	completed := &models.Order{
		ID:           uuid.New(),
		UserID:       userID,
		ProductID:    uuid.NullUUID{UUID: productID, Valid: true},
		ProductTitle: "Icon Pack",
		Status:       models.OrderCompleted,
	}

	t.Run("completed order exposes links", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.orders.EXPECT().GetByID(gomock.Any(), completed.ID).Return(completed, nil)
		m.products.EXPECT().GetByID(gomock.Any(), productID).Return(&models.Product{
			ID: productID, FileURL: "https://files.example.com/icons.zip",
		}, nil)

		delivery, err := svc.GetDelivery(ctx, userID, completed.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://files.example.com/icons.zip", delivery.FileURL)
		assert.Equal(t, "Icon Pack", delivery.ProductTitle)
	})

	t.Run("deleted product keeps the snapshot", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.orders.EXPECT().GetByID(gomock.Any(), completed.ID).Return(completed, nil)
		m.products.EXPECT().GetByID(gomock.Any(), productID).Return(nil, pkgerrors.ErrProductNotFound)

		delivery, err := svc.GetDelivery(ctx, userID, completed.ID)
		require.NoError(t, err)
		assert.Empty(t, delivery.FileURL)
		assert.Equal(t, "Icon Pack", delivery.ProductTitle)
	})

	t.Run("another user's order", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		m.orders.EXPECT().GetByID(gomock.Any(), completed.ID).Return(completed, nil)

		_, err := svc.GetDelivery(ctx, uuid.New(), completed.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrOrderNotFound)
	})

	t.Run("pending order", func(t *testing.T) {
		svc, m := newMockedWalletService(t)
		pending := *completed
		pending.Status = models.OrderPending
		m.orders.EXPECT().GetByID(gomock.Any(), pending.ID).Return(&pending, nil)

		_, err := svc.GetDelivery(ctx, userID, pending.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrOrderNotFulfilled)
	})
}
