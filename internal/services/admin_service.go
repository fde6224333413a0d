package service

import (
	"context"
	"log/slog"
	"strings"

	stderrors "errors"

	"github.com/google/uuid"
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
	adminTracer        = "admin-service"
	defaultRejectNotes = "Rejected by admin"
)

// AdminService holds the privileged transitions. Callers are authorized by
// the admin middleware before any method here runs.
//
// The transition methods report applied=false with a nil error when the
// deposit or order was already in the requested terminal state.
type AdminService interface {
	ApproveDeposit(ctx context.Context, depositID uuid.UUID) (applied bool, err error)
	RejectDeposit(ctx context.Context, depositID uuid.UUID, notes string) (applied bool, err error)
	ApproveOrder(ctx context.Context, orderID uuid.UUID) (applied bool, err error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (applied bool, err error)
	ListDeposits(ctx context.Context, status models.DepositStatus) ([]models.Deposit, error)
	ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	Overview(ctx context.Context) (*models.Overview, error)
}

type adminService struct {
	ledger      repository.LedgerRepository
	deposits    repository.DepositRepository
	orders      repository.OrderRepository
	stats       repository.StatsRepository
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	topic       string
}

func NewAdminService(
	ledger repository.LedgerRepository,
	deposits repository.DepositRepository,
	orders repository.OrderRepository,
	stats repository.StatsRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	topic string,
) *adminService {
	return &adminService{
		ledger:      ledger,
		deposits:    deposits,
		orders:      orders,
		stats:       stats,
		redisClient: redisClient,
		producer:    producer,
		topic:       topic,
	}
}

// ApproveDeposit credits the deposit amount exactly once; the status change
// and the credit commit together in the ledger.
func (s *adminService) ApproveDeposit(ctx context.Context, depositID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "ApproveDeposit", trace.WithAttributes(attribute.String("deposit_id", depositID.String())))
	defer span.End()

	deposit, err := s.ledger.ApproveDeposit(ctx, depositID)
	observability.LedgerOperations.WithLabelValues("approve_deposit", outcome(err)).Inc()
	if applied, err := settle(span, "deposit", depositID, err); !applied {
		return false, err
	}

	s.invalidate(ctx, deposit.UserID)
	id := deposit.ID
	publish(ctx, s.producer, s.topic, models.WalletEvent{
		Type:      models.EventDepositApproved,
		UserID:    deposit.UserID,
		DepositID: &id,
		Amount:    deposit.Amount,
	})

	slog.Info("deposit approved", "deposit_id", depositID, "user_id", deposit.UserID, "amount", deposit.Amount.String())
	return true, nil
}

func (s *adminService) RejectDeposit(ctx context.Context, depositID uuid.UUID, notes string) (bool, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "RejectDeposit", trace.WithAttributes(attribute.String("deposit_id", depositID.String())))
	defer span.End()

	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = defaultRejectNotes
	}

	deposit, err := s.deposits.Reject(ctx, depositID, notes)
	observability.LedgerOperations.WithLabelValues("reject_deposit", outcome(err)).Inc()
	if applied, err := settle(span, "deposit", depositID, err); !applied {
		return false, err
	}

	id := deposit.ID
	publish(ctx, s.producer, s.topic, models.WalletEvent{
		Type:      models.EventDepositRejected,
		UserID:    deposit.UserID,
		DepositID: &id,
		Amount:    deposit.Amount,
	})

	slog.Info("deposit rejected", "deposit_id", depositID, "user_id", deposit.UserID, "notes", notes)
	return true, nil
}

// ApproveOrder authorizes delivery of a pending order. No money moves here.
func (s *adminService) ApproveOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "ApproveOrder", trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	order, err := s.orders.Approve(ctx, orderID)
	observability.LedgerOperations.WithLabelValues("approve_order", outcome(err)).Inc()
	if applied, err := settle(span, "order", orderID, err); !applied {
		return false, err
	}

	publish(ctx, s.producer, s.topic, models.WalletEvent{
		Type:     models.EventOrderApproved,
		UserID:   order.UserID,
		OrderIDs: []uuid.UUID{order.ID},
		Amount:   order.Amount,
	})

	slog.Info("order approved", "order_id", orderID, "user_id", order.UserID)
	return true, nil
}

// CancelOrder cancels a pending order and refunds what was paid for it.
func (s *adminService) CancelOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "CancelOrder", trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	order, err := s.ledger.CancelOrder(ctx, orderID)
	observability.LedgerOperations.WithLabelValues("cancel_order", outcome(err)).Inc()
	if applied, err := settle(span, "order", orderID, err); !applied {
		return false, err
	}

	s.invalidate(ctx, order.UserID)
	publish(ctx, s.producer, s.topic, models.WalletEvent{
		Type:     models.EventOrderCancelled,
		UserID:   order.UserID,
		OrderIDs: []uuid.UUID{order.ID},
		Amount:   order.Amount,
	})

	slog.Info("order cancelled and refunded", "order_id", orderID, "user_id", order.UserID, "amount", order.Amount.String())
	return true, nil
}

func (s *adminService) ListDeposits(ctx context.Context, status models.DepositStatus) ([]models.Deposit, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "ListDeposits")
	defer span.End()

	deposits, err := s.deposits.ListAll(ctx, status)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list all deposits", "status", status, "error", err)
		return nil, err
	}
	return deposits, nil
}

func (s *adminService) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "ListOrders")
	defer span.End()

	orders, err := s.orders.ListAll(ctx, status)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list all orders", "status", status, "error", err)
		return nil, err
	}
	return orders, nil
}

func (s *adminService) Overview(ctx context.Context) (*models.Overview, error) {
	ctx, span := otel.Tracer(adminTracer).Start(ctx, "Overview")
	defer span.End()

	overview, err := s.stats.Overview(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to build admin overview", "error", err)
		return nil, err
	}
	return overview, nil
}

func (s *adminService) invalidate(ctx context.Context, userID uuid.UUID) {
	invalidateBalance(ctx, s.redisClient, userID)
}

// settle turns an already-handled transition into a benign no-op and reports
// whether the caller should continue with the side effects.
func settle(span trace.Span, kind string, id uuid.UUID, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, pkgerrors.ErrAlreadyProcessed):
		span.SetAttributes(attribute.Bool("already_processed", true))
		slog.Info(kind+" already processed", kind+"_id", id, "detail", err.Error())
		return false, nil
	default:
		span.SetStatus(codes.Error, err.Error())
		if stderrors.Is(err, pkgerrors.ErrStoreUnavailable) {
			span.RecordError(err)
			slog.Error("failed to update "+kind, kind+"_id", id, "error", err)
		} else {
			slog.Warn(kind+" transition refused", kind+"_id", id, "error", err)
		}
		return false, err
	}
}
