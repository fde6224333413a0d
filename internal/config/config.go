package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServiceName  string
	HTTPAddr     string
	MetricsAddr  string
	LogLevel     string
	OTLPEndpoint string

	// StorageDriver selects the ledger backend: "postgres" or "memory".
	StorageDriver string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string

	// ProductsFile seeds the memory store's catalog; empty means the
	// built-in catalog.
	ProductsFile string

	JWTSecret         string
	TokenTTL          time.Duration
	AdminRoleCacheTTL time.Duration
	BalanceCacheTTL   time.Duration
	AdminEmail        string

	// MaxDepositAmount caps a single top-up request; zero disables the cap.
	MaxDepositAmount decimal.Decimal
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "wallet-service"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:      os.Getenv("OTLP_ENDPOINT"),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		PostgresDSN:       getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=store sslmode=disable"),
		ProductsFile:      os.Getenv("PRODUCTS_FILE"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKER", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "wallet-events"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "wallet-service-cache"),
		JWTSecret:         getEnv("JWT_SECRET", "supersecret"),
		TokenTTL:          getDuration("TOKEN_TTL", 24*time.Hour),
		AdminRoleCacheTTL: getDuration("ADMIN_ROLE_CACHE_TTL", 15*time.Minute),
		BalanceCacheTTL:   getDuration("BALANCE_CACHE_TTL", 5*time.Minute),
		AdminEmail:        strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		MaxDepositAmount:  getDecimal("MAX_DEPOSIT_AMOUNT", decimal.NewFromInt(100000)),
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"storage_driver", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic,
		"max_deposit_amount", cfg.MaxDepositAmount.String())
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		slog.Warn("invalid amount, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
