package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics содержит метрики жизненного цикла заказов и резервов.
type LedgerMetrics struct {
	ordersCreated   prometheus.Counter
	ordersCompleted prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRefunded  prometheus.Counter
	ordersDisputed  prometheus.Counter

	reservationsHeld     prometheus.Counter
	reservationsReleased prometheus.Counter
	reserveRejected      prometheus.Counter

	checkoutDuration prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewLedgerMetrics создаёт метрики с регистрацией в default registerer.
func NewLedgerMetrics() *LedgerMetrics {
	return newLedgerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLedgerMetricsWithRegisterer(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LedgerMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_orders_completed_total",
			Help: "Total number of orders that reached completed status",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_orders_refunded_total",
			Help: "Total number of orders refunded",
		}),
		ordersDisputed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_orders_disputed_total",
			Help: "Total number of orders moved to disputed status",
		}),
		reservationsHeld: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_reservations_held_total",
			Help: "Total number of reservation records created",
		}),
		reservationsReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_reservations_released_total",
			Help: "Total number of reservation records released back to inventory",
		}),
		reserveRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_reserve_rejected_total",
			Help: "Total number of reserve attempts rejected for insufficient capacity",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ledger_checkout_duration_seconds",
			Help:    "Duration of order checkout in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ledger_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

// RecordOrderCreated инкрементирует счётчик созданных заказов.
func (m *LedgerMetrics) RecordOrderCreated() { m.ordersCreated.Inc() }

// RecordOrderCompleted инкрементирует счётчик завершённых заказов.
func (m *LedgerMetrics) RecordOrderCompleted() { m.ordersCompleted.Inc() }

// RecordOrderCancelled инкрементирует счётчик отменённых заказов.
func (m *LedgerMetrics) RecordOrderCancelled() { m.ordersCancelled.Inc() }

// RecordOrderRefunded инкрементирует счётчик возвращённых заказов.
func (m *LedgerMetrics) RecordOrderRefunded() { m.ordersRefunded.Inc() }

// RecordOrderDisputed инкрементирует счётчик оспоренных заказов.
func (m *LedgerMetrics) RecordOrderDisputed() { m.ordersDisputed.Inc() }

// RecordReservationsHeld учитывает созданные резервы.
func (m *LedgerMetrics) RecordReservationsHeld(n int) {
	m.reservationsHeld.Add(float64(n))
}

// RecordReservationsReleased учитывает возвращённые резервы.
func (m *LedgerMetrics) RecordReservationsReleased(n int) {
	m.reservationsReleased.Add(float64(n))
}

// RecordReserveRejected учитывает отказ по вместимости.
func (m *LedgerMetrics) RecordReserveRejected() { m.reserveRejected.Inc() }

// RecordCheckoutDuration фиксирует длительность оформления заказа.
func (m *LedgerMetrics) RecordCheckoutDuration(d time.Duration) {
	m.checkoutDuration.Observe(d.Seconds())
}

// RecordTimelineEvent учитывает записанное событие timeline.
func (m *LedgerMetrics) RecordTimelineEvent() { m.timelineEvents.Inc() }

// RecordOutboxEvent учитывает событие, поставленное в outbox.
func (m *LedgerMetrics) RecordOutboxEvent() { m.outboxEvents.Inc() }

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}
