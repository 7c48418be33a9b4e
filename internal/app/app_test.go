package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/dispute"
	"github.com/vladislavdragonenkov/ledger/internal/service/entitlement"
	"github.com/vladislavdragonenkov/ledger/internal/service/order"
	"github.com/vladislavdragonenkov/ledger/internal/service/reservation"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return log.NewEntry(logger)
}

func TestRunMemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	require.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestNewRepositoriesMemory(t *testing.T) {
	repos, err := NewRepositories(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)

	require.NotNil(t, repos.Units)
	require.NotNil(t, repos.Orders)
	require.NotNil(t, repos.Reservations)
	require.NotNil(t, repos.Outbox)
	require.NotNil(t, repos.Timeline)
	require.NotNil(t, repos.Disputes)
	require.NotNil(t, repos.Entitlements)
	require.NotNil(t, repos.Idempotency)
	require.Nil(t, repos.Store)
	require.NoError(t, repos.Close())
}

type lifecycleStack struct {
	repos        *Repositories
	aggregate    *order.Aggregate
	resolver     *dispute.Resolver
	entitlements *entitlement.Service
	sweep        *sweeper.Sweeper
	clock        *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLifecycleStack(t *testing.T) *lifecycleStack {
	t.Helper()

	repos, err := NewRepositories(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)}

	reservationSvc := reservation.NewService(repos.Units, repos.Reservations, nil, nil)
	aggregate := order.NewAggregate(
		repos.Orders,
		reservationSvc,
		repos.Outbox,
		repos.Timeline,
		nil,
		order.WithHoldTTL(30*time.Minute),
		order.WithClock(clock.Now),
	)
	resolver := dispute.NewResolver(repos.Disputes, aggregate, nil, dispute.WithClock(clock.Now))
	entitlementSvc := entitlement.NewService(repos.Entitlements, repos.Reservations, repos.Units, nil)

	sweep := sweeper.New([]sweeper.Source{
		sweeper.NewHoldSource(repos.Orders, aggregate),
		sweeper.NewEntitlementSource(entitlementSvc),
	})

	return &lifecycleStack{
		repos:        repos,
		aggregate:    aggregate,
		resolver:     resolver,
		entitlements: entitlementSvc,
		sweep:        sweep,
		clock:        clock,
	}
}

func (s *lifecycleStack) seedUnit(t *testing.T, id string, capacity int64) {
	t.Helper()
	require.NoError(t, s.repos.Units.Create(domain.SellableUnit{
		ID:       id,
		SKU:      "sku-" + id,
		Name:     id,
		Capacity: &capacity,
	}))
}

func (s *lifecycleStack) committed(t *testing.T, unitID string) int64 {
	t.Helper()
	unit, err := s.repos.Units.Get(unitID)
	require.NoError(t, err)
	return unit.Committed
}

func (s *lifecycleStack) timelineTypes(t *testing.T, orderID string) []string {
	t.Helper()
	events, err := s.aggregate.Timeline(orderID)
	require.NoError(t, err)
	return lo.Map(events, func(e domain.TimelineEvent, _ int) string { return e.Type })
}

// Полный жизненный цикл через все сервисы: cash hold истекает и подметается,
// card-заказ проходит оплату, диспут и возврат с освобождением инвентаря.
func TestLedgerLifecycleEndToEnd(t *testing.T) {
	s := newLifecycleStack(t)
	s.seedUnit(t, "concert-ga", 100)

	cashOrder, err := s.aggregate.Create(order.CheckoutInput{
		CustomerID:    "cust-cash",
		Currency:      "EUR",
		PaymentMethod: domain.PaymentMethodCash,
		Items: []order.CheckoutItem{
			{UnitID: "concert-ga", SKU: "sku-concert-ga", Qty: 2, PriceMinor: 4500},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, cashOrder.ExpiresAt)
	require.Equal(t, s.clock.Now().Add(30*time.Minute), cashOrder.ExpiresAt.UTC())

	cardOrder, err := s.aggregate.Create(order.CheckoutInput{
		CustomerID:    "cust-card",
		Currency:      "EUR",
		PaymentMethod: domain.PaymentMethodCard,
		Items: []order.CheckoutItem{
			{UnitID: "concert-ga", SKU: "sku-concert-ga", Qty: 3, PriceMinor: 4500},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), s.committed(t, "concert-ga"))

	// Оплата card-заказа подтверждается, hold cash-заказа истекает.
	_, err = s.aggregate.ConfirmPayment(cardOrder.ID)
	require.NoError(t, err)

	s.clock.Advance(31 * time.Minute)
	result, err := s.sweep.RunOnce(context.Background(), s.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Released)

	swept, err := s.aggregate.Get(cashOrder.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, swept.Status)
	require.Equal(t, int64(3), s.committed(t, "concert-ga"))

	// Повторный sweep ничего не находит.
	result, err = s.sweep.RunOnce(context.Background(), s.clock.Now())
	require.NoError(t, err)
	require.Zero(t, result.Processed)

	// Chargeback по оплаченному заказу: open -> evidence -> lost -> refund.
	_, err = s.resolver.Open(dispute.OpenInput{
		ProviderID:  "dp_lifecycle",
		OrderID:     cardOrder.ID,
		AmountMinor: 13500,
		Currency:    "EUR",
		Reason:      "fraudulent",
	})
	require.NoError(t, err)

	_, err = s.resolver.SubmitEvidence("dp_lifecycle")
	require.NoError(t, err)

	resolved, err := s.resolver.Resolve("dp_lifecycle", "chargeback_lost")
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStatusLost, resolved.Status)

	refunded, err := s.aggregate.Get(cardOrder.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, refunded.Status)
	require.Zero(t, s.committed(t, "concert-ga"))

	wantCash := []string{"order.created", "order.expired"}
	if diff := cmp.Diff(wantCash, s.timelineTypes(t, cashOrder.ID)); diff != "" {
		t.Fatalf("cash order timeline mismatch (-want +got):\n%s", diff)
	}

	wantCard := []string{"order.created", "order.completed", "order.disputed", "order.refunded"}
	if diff := cmp.Diff(wantCard, s.timelineTypes(t, cardOrder.ID)); diff != "" {
		t.Fatalf("card order timeline mismatch (-want +got):\n%s", diff)
	}
}

// Два конкурирующих checkout'а не должны уместиться в остаток вдвоём.
func TestConcurrentCheckoutHonoursCapacity(t *testing.T) {
	s := newLifecycleStack(t)
	s.seedUnit(t, "workshop-seat", 5)

	input := func(customer string) order.CheckoutInput {
		return order.CheckoutInput{
			CustomerID:    customer,
			Currency:      "USD",
			PaymentMethod: domain.PaymentMethodCard,
			Items: []order.CheckoutItem{
				{UnitID: "workshop-seat", SKU: "sku-workshop-seat", Qty: 3, PriceMinor: 9900},
			},
		}
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = s.aggregate.Create(input("cust-" + string(rune('a'+idx))))
		}(i)
	}
	wg.Wait()

	failures := lo.CountBy(results, func(err error) bool { return err != nil })
	require.Equal(t, 1, failures, "exactly one checkout must fail on capacity")
	require.Equal(t, int64(3), s.committed(t, "workshop-seat"))
}

// Entitlement, выданный по заказу, истекает и возвращает инвентарь.
func TestEntitlementExpiryReturnsInventory(t *testing.T) {
	s := newLifecycleStack(t)
	s.seedUnit(t, "plan-slot", 10)

	created, err := s.aggregate.Create(order.CheckoutInput{
		CustomerID:    "cust-plan",
		Currency:      "USD",
		PaymentMethod: domain.PaymentMethodCard,
		Items: []order.CheckoutItem{
			{UnitID: "plan-slot", SKU: "sku-plan-slot", Qty: 1, PriceMinor: 2900},
		},
	})
	require.NoError(t, err)
	_, err = s.aggregate.ConfirmPayment(created.ID)
	require.NoError(t, err)

	expiry := s.clock.Now().Add(24 * time.Hour)
	granted, err := s.entitlements.Grant(entitlement.GrantInput{
		OrderID:   created.ID,
		UnitID:    "plan-slot",
		Kind:      "subscription",
		Qty:       1,
		StartedAt: s.clock.Now(),
		ExpiresAt: expiry,
	})
	require.NoError(t, err)
	require.Equal(t, domain.EntitlementStatusActive, granted.Status)

	s.clock.Advance(25 * time.Hour)
	result, err := s.sweep.RunOnce(context.Background(), s.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Zero(t, s.committed(t, "plan-slot"))

	// Возврат по заказу не освобождает ту же вместимость второй раз:
	// резерв перешёл к entitlement'у ещё при выдаче.
	releasedCount, err := s.aggregate.Refund(created.ID, "chargeback lost")
	require.NoError(t, err)
	require.Zero(t, releasedCount)
	require.Zero(t, s.committed(t, "plan-slot"))
}
