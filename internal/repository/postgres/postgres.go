package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenana/wallet-service/internal/infrastructure/observability"
	pkgerrors "github.com/tenana/wallet-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// startCall opens a span for a repository method and returns the func that
// records its outcome in the span and in the repository metrics.
func startCall(ctx context.Context, tracerName, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		status := "success"
		switch {
		case err == nil:
		case stderrors.Is(err, pkgerrors.ErrStoreUnavailable):
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			// business outcome such as insufficient funds or not found
			status = "rejected"
			span.SetAttributes(attribute.String("outcome", err.Error()))
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, pkgerrors.ErrStoreUnavailable, err)
}

func rollback(tx *sql.Tx, method string, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
