package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/dispute"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultHoldTTL         = 30 * time.Minute
	defaultSweepInterval   = time.Minute
	defaultCleanupInterval = 10 * time.Minute
	defaultConsumerGroup   = "ledger-webhooks"
	defaultShutdownTimeout = 5 * time.Second
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой означает in-memory хранилище.
	PostgresDSN string

	// KafkaBrokers пустой означает запуск без Kafka.
	KafkaBrokers  []string
	ConsumerGroup string

	HoldTTL                  time.Duration
	SweepInterval            time.Duration
	EntitlementSweepInterval time.Duration
	CleanupInterval          time.Duration

	// DisputeOutcomes переопределяет маппинг исходов провайдера,
	// формат "code=won,code2=lost".
	DisputeOutcomes dispute.OutcomeTable
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                 defaultHTTPAddr,
		MetricsAddr:              defaultMetricsAddr,
		ConsumerGroup:            defaultConsumerGroup,
		HoldTTL:                  defaultHoldTTL,
		SweepInterval:            defaultSweepInterval,
		EntitlementSweepInterval: defaultSweepInterval,
		CleanupInterval:          defaultCleanupInterval,
	}
}

// LoadConfig читает конфигурацию из переменных окружения поверх defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LEDGER_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LEDGER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = os.Getenv("LEDGER_POSTGRES_DSN")
	if v := os.Getenv("LEDGER_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitNonEmpty(v)
	}
	if v := os.Getenv("LEDGER_KAFKA_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}

	var err error
	if cfg.HoldTTL, err = durationEnv("LEDGER_HOLD_TTL", cfg.HoldTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationEnv("LEDGER_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.EntitlementSweepInterval, err = durationEnv("LEDGER_ENTITLEMENT_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.CleanupInterval, err = durationEnv("LEDGER_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.CleanupInterval); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("LEDGER_DISPUTE_OUTCOMES"); v != "" {
		table, err := parseOutcomeOverrides(v)
		if err != nil {
			return Config{}, err
		}
		cfg.DisputeOutcomes = table
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseOutcomeOverrides строит таблицу исходов поверх дефолтной:
// "chargeback_upheld=lost,inquiry_closed=closed".
func parseOutcomeOverrides(raw string) (dispute.OutcomeTable, error) {
	table := dispute.DefaultOutcomeTable()

	for _, pair := range splitNonEmpty(raw) {
		code, status, found := strings.Cut(pair, "=")
		if !found || code == "" || status == "" {
			return nil, fmt.Errorf("malformed dispute outcome override %q", pair)
		}

		target := domain.DisputeStatus(strings.ToLower(strings.TrimSpace(status)))
		switch target {
		case domain.DisputeStatusWon, domain.DisputeStatusLost, domain.DisputeStatusClosed:
		default:
			return nil, fmt.Errorf("dispute outcome override %q: unsupported status %q", pair, status)
		}
		table[strings.ToLower(strings.TrimSpace(code))] = target
	}

	return table, nil
}
