package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tenana/wallet-service/internal/infrastructure/kafka"
	"github.com/tenana/wallet-service/internal/infrastructure/observability"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	"github.com/tenana/wallet-service/internal/models"
	"github.com/tenana/wallet-service/internal/repository"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	walletTracer      = "wallet-service"
	requestKeyTTL     = 24 * time.Hour
	maxCheckoutLines  = 50
	maxLineQuantity   = 100
	maxTextFieldRunes = 255
)

type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Purchase(ctx context.Context, userID uuid.UUID, req PurchaseRequest) (*PurchaseResult, error)
	Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (*PurchaseResult, error)
	TopUp(ctx context.Context, userID uuid.UUID, req TopUpRequest) (*models.Deposit, error)
	ListDeposits(ctx context.Context, userID uuid.UUID) ([]models.Deposit, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	GetDelivery(ctx context.Context, userID, orderID uuid.UUID) (*models.Delivery, error)
}

type PurchaseRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	// Title and Price are what the client displayed. The catalog is
	// authoritative; a differing price is rejected so the user never pays an
	// amount they did not see.
	Title        string           `json:"title,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Instructions string           `json:"customer_instructions,omitempty"`
	RequestID    string           `json:"request_id,omitempty"`
}

type CheckoutLine struct {
	ProductID    uuid.UUID        `json:"product_id"`
	Quantity     int              `json:"quantity"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Instructions string           `json:"customer_instructions,omitempty"`
}

type CheckoutRequest struct {
	Lines     []CheckoutLine `json:"lines"`
	RequestID string         `json:"request_id,omitempty"`
}

// PurchaseResult reports Success=false, with no error, when the wallet could
// not cover the amount; the caller is expected to prompt a top-up.
type PurchaseResult struct {
	Success bool            `json:"success"`
	Orders  []models.Order  `json:"orders,omitempty"`
	Balance decimal.Decimal `json:"balance"`
	Total   decimal.Decimal `json:"total"`
}

type TopUpRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	SenderNumber  string               `json:"sender_number"`
	TransactionID string               `json:"transaction_id"`
}

type walletService struct {
	ledger      repository.LedgerRepository
	deposits    repository.DepositRepository
	orders      repository.OrderRepository
	products    repository.ProductRepository
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	topic       string
	balanceTTL  time.Duration
	maxDeposit  decimal.Decimal
}

func NewWalletService(
	ledger repository.LedgerRepository,
	deposits repository.DepositRepository,
	orders repository.OrderRepository,
	products repository.ProductRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	topic string,
	balanceTTL time.Duration,
	maxDeposit decimal.Decimal,
) *walletService {
	return &walletService{
		ledger:      ledger,
		deposits:    deposits,
		orders:      orders,
		products:    products,
		redisClient: redisClient,
		producer:    producer,
		topic:       topic,
		balanceTTL:  balanceTTL,
		maxDeposit:  maxDeposit,
	}
}

func (s *walletService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "GetBalance")
	defer span.End()

	// version must be read before the store: a mutation committed meanwhile
	// bumps it and strands the write-back under a dead key.
	version, cacheable := s.balanceVersion(ctx, userID)
	balanceKey := redis.BalanceKey(userID, version)
	if cacheable {
		if cached, err := s.redisClient.Get(ctx, balanceKey); err == nil {
			balance, err := decimal.NewFromString(cached)
			if err == nil {
				slog.Debug("balance fetched from Redis", "user_id", userID, "balance", balance.String())
				return balance, nil
			}
			slog.Error("failed to parse cached balance", "user_id", userID, "value", cached, "error", err)
		}
	}

	balance := decimal.Zero
	wallet, err := s.ledger.GetWallet(ctx, userID)
	switch {
	case err == nil:
		balance = wallet.Balance
	case stderrors.Is(err, pkgerrors.ErrWalletNotFound):
		// no wallet row yet: the balance is zero until the first credit
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read wallet")
		slog.Error("failed to get balance", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	if cacheable {
		if err := s.redisClient.Set(ctx, balanceKey, balance.String(), s.balanceTTL); err != nil {
			slog.Error("failed to cache balance", "user_id", userID, "error", err)
		}
	}
	return balance, nil
}

// balanceVersion returns the current cache version of the user's balance.
// An unreadable version disables caching for this call.
func (s *walletService) balanceVersion(ctx context.Context, userID uuid.UUID) (int64, bool) {
	raw, err := s.redisClient.Get(ctx, redis.BalanceVersionKey(userID))
	if stderrors.Is(err, redis.ErrKeyNotFound) {
		return 0, true
	}
	if err != nil {
		slog.Error("failed to read balance version", "user_id", userID, "error", err)
		return 0, false
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Error("failed to parse balance version", "user_id", userID, "value", raw, "error", err)
		return 0, false
	}
	return version, true
}

func (s *walletService) Purchase(ctx context.Context, userID uuid.UUID, req PurchaseRequest) (res *PurchaseResult, err error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "Purchase")
	defer span.End()

	release, err := s.claimRequest(ctx, userID, req.RequestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() { release(settled(res, err)) }()

	order, err := s.buildOrder(ctx, userID, req.ProductID, 1, req.Price, req.Instructions)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		observability.LedgerOperations.WithLabelValues("debit", outcome(err)).Inc()
		return nil, err
	}

	balance, err := s.ledger.Debit(ctx, order)
	if stderrors.Is(err, pkgerrors.ErrInsufficientFunds) {
		observability.LedgerOperations.WithLabelValues("debit", outcome(err)).Inc()
		slog.Info("purchase declined, insufficient funds", "user_id", userID, "product_id", req.ProductID, "amount", order.Amount.String())
		current, balErr := s.GetBalance(ctx, userID)
		if balErr != nil {
			current = decimal.Zero
		}
		return &PurchaseResult{Success: false, Balance: current, Total: order.Amount}, nil
	}
	if err != nil {
		observability.LedgerOperations.WithLabelValues("debit", outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		slog.Error("failed to debit wallet", "user_id", userID, "product_id", req.ProductID, "error", err)
		return nil, err
	}
	observability.LedgerOperations.WithLabelValues("debit", "applied").Inc()

	s.invalidateBalance(ctx, userID)
	s.publish(ctx, models.WalletEvent{
		Type:     models.EventOrderCreated,
		UserID:   userID,
		OrderIDs: []uuid.UUID{order.ID},
		Amount:   order.Amount,
		Balance:  &balance,
	})

	slog.Info("purchase completed",
		"user_id", userID,
		"order_id", order.ID,
		"product_id", req.ProductID,
		"amount", order.Amount.String(),
		"status", order.Status.String(),
		"balance", balance.String())
	return &PurchaseResult{Success: true, Orders: []models.Order{*order}, Balance: balance, Total: order.Amount}, nil
}

// Checkout debits the whole cart in one ledger transaction: either every line
// becomes an order or none does.
func (s *walletService) Checkout(ctx context.Context, userID uuid.UUID, req CheckoutRequest) (res *PurchaseResult, err error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "Checkout", trace.WithAttributes(attribute.Int("lines", len(req.Lines))))
	defer span.End()

	if len(req.Lines) == 0 || len(req.Lines) > maxCheckoutLines {
		err = fmt.Errorf("%w: checkout needs between 1 and %d lines", pkgerrors.ErrInvalidInput, maxCheckoutLines)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	release, err := s.claimRequest(ctx, userID, req.RequestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() { release(settled(res, err)) }()

	orders := make([]*models.Order, 0, len(req.Lines))
	total := decimal.Zero
	for i, line := range req.Lines {
		order, err := s.buildOrder(ctx, userID, line.ProductID, line.Quantity, line.Price, line.Instructions)
		if err != nil {
			observability.LedgerOperations.WithLabelValues("checkout", outcome(err)).Inc()
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		orders = append(orders, order)
		total = total.Add(order.Amount)
	}

	balance, err := s.ledger.Checkout(ctx, userID, orders)
	if stderrors.Is(err, pkgerrors.ErrInsufficientFunds) {
		observability.LedgerOperations.WithLabelValues("checkout", outcome(err)).Inc()
		slog.Info("checkout declined, insufficient funds", "user_id", userID, "lines", len(orders), "total", total.String())
		current, balErr := s.GetBalance(ctx, userID)
		if balErr != nil {
			current = decimal.Zero
		}
		return &PurchaseResult{Success: false, Balance: current, Total: total}, nil
	}
	if err != nil {
		observability.LedgerOperations.WithLabelValues("checkout", outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		slog.Error("failed to check out cart", "user_id", userID, "lines", len(orders), "error", err)
		return nil, err
	}
	observability.LedgerOperations.WithLabelValues("checkout", "applied").Inc()

	result := &PurchaseResult{Success: true, Balance: balance, Total: total}
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		result.Orders = append(result.Orders, *o)
		ids = append(ids, o.ID)
	}

	s.invalidateBalance(ctx, userID)
	s.publish(ctx, models.WalletEvent{
		Type:     models.EventCheckoutCompleted,
		UserID:   userID,
		OrderIDs: ids,
		Amount:   total,
		Balance:  &balance,
	})

	slog.Info("checkout completed", "user_id", userID, "orders", len(ids), "total", total.String(), "balance", balance.String())
	return result, nil
}

func (s *walletService) TopUp(ctx context.Context, userID uuid.UUID, req TopUpRequest) (*models.Deposit, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "TopUp")
	defer span.End()

	if err := s.validateTopUp(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("top-up rejected", "user_id", userID, "error", err)
		return nil, err
	}

	deposit := &models.Deposit{
		UserID:        userID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		SenderNumber:  strings.TrimSpace(req.SenderNumber),
		TransactionID: strings.TrimSpace(req.TransactionID),
	}
	if err := s.deposits.Create(ctx, deposit); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create deposit")
		slog.Error("failed to submit deposit", "user_id", userID, "error", err)
		return nil, err
	}

	depositID := deposit.ID
	s.publish(ctx, models.WalletEvent{
		Type:      models.EventDepositSubmitted,
		UserID:    userID,
		DepositID: &depositID,
		Amount:    deposit.Amount,
	})

	slog.Info("deposit submitted",
		"user_id", userID,
		"deposit_id", deposit.ID,
		"amount", deposit.Amount.String(),
		"payment_method", deposit.PaymentMethod)
	return deposit, nil
}

func (s *walletService) ListDeposits(ctx context.Context, userID uuid.UUID) ([]models.Deposit, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "ListDeposits")
	defer span.End()

	deposits, err := s.deposits.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list deposits", "user_id", userID, "error", err)
		return nil, err
	}
	return deposits, nil
}

func (s *walletService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "ListOrders")
	defer span.End()

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list orders", "user_id", userID, "error", err)
		return nil, err
	}
	return orders, nil
}

// GetDelivery exposes the product artifact of a completed order to its owner.
// Orders of other users are reported as not found.
func (s *walletService) GetDelivery(ctx context.Context, userID, orderID uuid.UUID) (*models.Delivery, error) {
	ctx, span := otel.Tracer(walletTracer).Start(ctx, "GetDelivery")
	defer span.End()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if order.UserID != userID {
		slog.Warn("delivery requested for foreign order", "user_id", userID, "order_id", orderID)
		return nil, pkgerrors.ErrOrderNotFound
	}
	if order.Status != models.OrderCompleted {
		return nil, fmt.Errorf("order is %s: %w", order.Status, pkgerrors.ErrOrderNotFulfilled)
	}

	delivery := &models.Delivery{OrderID: order.ID, ProductTitle: order.ProductTitle}
	if !order.ProductID.Valid {
		return delivery, nil
	}
	product, err := s.products.GetByID(ctx, order.ProductID.UUID)
	if stderrors.Is(err, pkgerrors.ErrProductNotFound) {
		// the product was removed after purchase; the snapshot is all we have
		return delivery, nil
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to load product for delivery", "order_id", orderID, "product_id", order.ProductID.UUID, "error", err)
		return nil, err
	}
	delivery.FileURL = product.FileURL
	delivery.ExternalLink = product.ExternalLink
	return delivery, nil
}

// buildOrder snapshots title and price from the catalog. Orders carrying
// customer instructions need manual fulfilment and start as pending.
func (s *walletService) buildOrder(ctx context.Context, userID, productID uuid.UUID, quantity int, shownPrice *decimal.Decimal, instructions string) (*models.Order, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("%w: product id is required", pkgerrors.ErrInvalidInput)
	}
	if quantity < 1 || quantity > maxLineQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", pkgerrors.ErrInvalidInput, maxLineQuantity)
	}
	instructions = strings.TrimSpace(instructions)
	if len([]rune(instructions)) > 2000 {
		return nil, fmt.Errorf("%w: customer instructions are too long", pkgerrors.ErrInvalidInput)
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrProductNotFound) {
			return nil, err
		}
		slog.Error("failed to load product", "product_id", productID, "error", err)
		return nil, err
	}
	if !product.Price.IsPositive() {
		return nil, fmt.Errorf("%w: product %s has no price", pkgerrors.ErrInvalidInput, productID)
	}
	if shownPrice != nil && !shownPrice.Equal(product.Price) {
		slog.Warn("client price differs from catalog",
			"user_id", userID,
			"product_id", productID,
			"client_price", shownPrice.String(),
			"catalog_price", product.Price.String())
		return nil, fmt.Errorf("%w: price changed to %s", pkgerrors.ErrInvalidInput, product.Price.StringFixed(2))
	}

	status := models.OrderCompleted
	if instructions != "" {
		status = models.OrderPending
	}
	return &models.Order{
		UserID:               userID,
		ProductID:            uuid.NullUUID{UUID: product.ID, Valid: true},
		ProductTitle:         product.Title,
		Amount:               product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:               status,
		CustomerInstructions: instructions,
	}, nil
}

func (s *walletService) validateTopUp(req TopUpRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if req.Amount.Exponent() < -2 && !req.Amount.Equal(req.Amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", pkgerrors.ErrInvalidInput)
	}
	if s.maxDeposit.IsPositive() && req.Amount.GreaterThan(s.maxDeposit) {
		return fmt.Errorf("%w: amount exceeds the maximum of %s", pkgerrors.ErrInvalidInput, s.maxDeposit.String())
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", pkgerrors.ErrInvalidInput, req.PaymentMethod)
	}
	for field, v := range map[string]string{"sender number": req.SenderNumber, "transaction id": req.TransactionID} {
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("%w: %s is required", pkgerrors.ErrInvalidInput, field)
		}
		if len([]rune(v)) > maxTextFieldRunes {
			return fmt.Errorf("%w: %s is too long", pkgerrors.ErrInvalidInput, field)
		}
	}
	return nil
}

// claimRequest reserves an idempotency key for the request. The returned
// func drops the key again when the request provably had no effect, so the
// client may retry it; after a store failure the key is kept because the
// mutation may have committed.
func (s *walletService) claimRequest(ctx context.Context, userID uuid.UUID, requestID string) (func(error), error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return func(error) {}, nil
	}
	if len(requestID) > 128 {
		return nil, fmt.Errorf("%w: request id is too long", pkgerrors.ErrInvalidInput)
	}

	requestKey := redis.RequestKey(userID, requestID)
	ok, err := s.redisClient.SetNX(ctx, requestKey, "pending", requestKeyTTL)
	if err != nil {
		slog.Error("failed to set request key", "request_id", requestID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: failed to reserve request id: %w", pkgerrors.ErrStoreUnavailable, err)
	}
	if !ok {
		slog.Warn("request already processed", "request_id", requestID, "user_id", userID)
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}

	return func(err error) {
		switch {
		case err == nil:
			if setErr := s.redisClient.Set(ctx, requestKey, "done", requestKeyTTL); setErr != nil {
				slog.Error("failed to mark request done", "request_id", requestID, "error", setErr)
			}
		case stderrors.Is(err, pkgerrors.ErrStoreUnavailable):
			slog.Warn("keeping request key after store failure", "request_id", requestID, "user_id", userID)
		default:
			if delErr := s.redisClient.Del(ctx, requestKey); delErr != nil {
				slog.Error("failed to release request key", "request_id", requestID, "error", delErr)
			}
		}
	}, nil
}

// settled maps a declined purchase back to its cause; a declined attempt had
// no effect, so its request id may be reused.
func settled(res *PurchaseResult, err error) error {
	if err == nil && res != nil && !res.Success {
		return pkgerrors.ErrInsufficientFunds
	}
	return err
}

func (s *walletService) invalidateBalance(ctx context.Context, userID uuid.UUID) {
	invalidateBalance(ctx, s.redisClient, userID)
}

func (s *walletService) publish(ctx context.Context, event models.WalletEvent) {
	publish(ctx, s.producer, s.topic, event)
}

func invalidateBalance(ctx context.Context, redisClient redis.RedisClient, userID uuid.UUID) {
	if _, err := redisClient.Incr(ctx, redis.BalanceVersionKey(userID)); err != nil {
		slog.Error("failed to invalidate balance cache", "user_id", userID, "error", err)
	}
}

// publish is best-effort: the mutation it reports has already committed and
// is never undone because the event could not be sent.
func publish(ctx context.Context, producer kafka.KafkaProducer, topic string, event models.WalletEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal Kafka event", "type", event.Type, "user_id", event.UserID, "error", err)
		return
	}
	if err := producer.Send(context.WithoutCancel(ctx), topic, event.UserID.String(), eventBytes); err != nil {
		slog.Error("failed to send Kafka event", "type", event.Type, "user_id", event.UserID, "error", err)
		return
	}
	slog.Debug("wallet event sent", "type", event.Type, "user_id", event.UserID)
}

// outcome is the ledger_operations_total label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case stderrors.Is(err, pkgerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case stderrors.Is(err, pkgerrors.ErrAlreadyProcessed):
		return "already_processed"
	case stderrors.Is(err, pkgerrors.ErrInvalidTransition):
		return "invalid_transition"
	case stderrors.Is(err, pkgerrors.ErrInvalidInput),
		stderrors.Is(err, pkgerrors.ErrProductNotFound),
		stderrors.Is(err, pkgerrors.ErrDepositNotFound),
		stderrors.Is(err, pkgerrors.ErrOrderNotFound):
		return "rejected"
	default:
		return "error"
	}
}
