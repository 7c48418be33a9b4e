package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/service/entitlement"
	"github.com/vladislavdragonenkov/ledger/internal/service/order"
	"github.com/vladislavdragonenkov/ledger/internal/service/reservation"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
	"github.com/vladislavdragonenkov/ledger/internal/storage/postgres"
)

const defaultTimeout = 5 * time.Minute

// Одноразовый запуск уборки просроченных hold'ов и entitlement'ов.
// Предназначен для внешнего cron, когда сервис запущен без фонового sweeper.
func main() {
	var (
		dsn       string
		batchSize int
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: LEDGER_POSTGRES_DSN)")
	flag.IntVar(&batchSize, "batch-size", 100, "number of expired records per batch")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("LEDGER_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("LEDGER_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	units := postgres.NewUnitRepository(store)
	orders := postgres.NewOrderRepository(store)
	reservations := postgres.NewReservationRepository(store)
	outbox := postgres.NewOutboxRepository(store)
	timeline := postgres.NewTimelineRepository(store)
	entitlements := postgres.NewEntitlementRepository(store)

	reservationSvc := reservation.NewService(units, reservations, nil, nil)
	aggregate := order.NewAggregate(orders, reservationSvc, outbox, timeline, nil)
	entitlementSvc := entitlement.NewService(entitlements, reservations, units, nil)

	sw := sweeper.New(
		[]sweeper.Source{
			sweeper.NewHoldSource(orders, aggregate),
			sweeper.NewEntitlementSource(entitlementSvc),
		},
		sweeper.WithBatchSize(batchSize),
	)

	result, err := sw.RunOnce(ctx, time.Now().UTC())
	if err != nil {
		fail("sweep failed: %v", err)
	}

	fmt.Printf("sweep ok: processed=%d released=%d\n", result.Processed, result.Released)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
