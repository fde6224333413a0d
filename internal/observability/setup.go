package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tenana/wallet-service/internal/config"
	"github.com/tenana/wallet-service/internal/infrastructure/observability"
)

// Setup wires logging, metrics and tracing and returns the tracer shutdown
// func together with the /metrics handler.
func Setup(cfg *config.Config) (func(context.Context) error, http.Handler) {
	observability.InitLogger(cfg.LogLevel)
	observability.InitMetrics()
	tracerShutdown := observability.InitTracing(cfg.ServiceName, cfg.OTLPEndpoint)
	return tracerShutdown, promhttp.Handler()
}
