package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ledger/internal/health"
	"github.com/vladislavdragonenkov/ledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
	"github.com/vladislavdragonenkov/ledger/internal/service/dispute"
	"github.com/vladislavdragonenkov/ledger/internal/service/entitlement"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/order"
	"github.com/vladislavdragonenkov/ledger/internal/service/outbox"
	"github.com/vladislavdragonenkov/ledger/internal/service/reservation"
	"github.com/vladislavdragonenkov/ledger/internal/service/rest"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
	"github.com/vladislavdragonenkov/ledger/internal/service/webhook"
	"github.com/vladislavdragonenkov/ledger/internal/version"
)

// Run собирает все зависимости и запускает сервис до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	repos, err := NewRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repos.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics()
	sweepMetrics := metrics.NewSweepMetrics()

	kafkaProducer := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)

	reservationSvc := reservation.NewService(repos.Units, repos.Reservations, ledgerMetrics, nil)

	aggregateOptions := []order.Option{
		order.WithHoldTTL(cfg.HoldTTL),
		order.WithMetrics(ledgerMetrics),
	}
	if kafkaProducer != nil {
		aggregateOptions = append(aggregateOptions, order.WithKafkaProducer(kafkaProducer))
	}
	orderAggregate := order.NewAggregate(
		repos.Orders,
		reservationSvc,
		repos.Outbox,
		repos.Timeline,
		nil,
		aggregateOptions...,
	)

	resolverOptions := []dispute.Option{}
	if cfg.DisputeOutcomes != nil {
		resolverOptions = append(resolverOptions, dispute.WithOutcomeTable(cfg.DisputeOutcomes))
	}
	disputeResolver := dispute.NewResolver(repos.Disputes, orderAggregate, nil, resolverOptions...)

	entitlementSvc := entitlement.NewService(repos.Entitlements, repos.Reservations, repos.Units, nil)

	guard := idempotency.NewGuard(repos.Idempotency, nil)
	webhookProcessor := webhook.NewProcessor(guard, orderAggregate, disputeResolver, nil)

	holdSource := sweeper.NewHoldSource(repos.Orders, orderAggregate)
	entitlementSource := sweeper.NewEntitlementSource(entitlementSvc)

	holdSweeper := sweeper.New(
		[]sweeper.Source{holdSource},
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithMetrics(sweepMetrics),
	)
	entitlementSweeper := sweeper.New(
		[]sweeper.Source{entitlementSource},
		sweeper.WithInterval(cfg.EntitlementSweepInterval),
		sweeper.WithMetrics(sweepMetrics),
	)
	// Комбинированный инстанс обслуживает ручной POST /v1/sweep/run.
	manualSweeper := sweeper.New(
		[]sweeper.Source{holdSource, entitlementSource},
		sweeper.WithMetrics(sweepMetrics),
	)

	cleanupWorker := idempotency.NewCleanupWorker(
		repos.Idempotency,
		idempotency.WithInterval(cfg.CleanupInterval),
	)

	apiServer := rest.NewServer(
		orderAggregate,
		repos.Units,
		disputeResolver,
		entitlementSvc,
		webhookProcessor,
		manualSweeper,
		guard,
		nil,
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if repos.Store != nil {
		store := repos.Store
		healthHandler.Register("postgres", healthcheck.NewCheckFunc("postgres", store.Ping))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(workerCtx)
		}()
	}

	runWorker(holdSweeper.Run)
	runWorker(entitlementSweeper.Run)
	runWorker(cleanupWorker.Run)

	if kafkaProducer != nil {
		outboxWorker := outbox.NewWorker(
			repos.Outbox,
			kafka.NewOutboxPublisher(kafkaProducer),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer)),
		)
		runWorker(outboxWorker.Run)
	}

	consumer := initWebhookConsumer(cfg, webhookProcessor, kafkaProducer, logger)
	if consumer != nil {
		runWorker(func(ctx context.Context) {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("webhook consumer stopped with error")
			}
		})
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop webhook consumer")
			}
		}()
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiServer.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// initKafkaProducer создаёт producer, если brokers заданы. Отказ Kafka не
// блокирует запуск: события копятся в outbox и уходят после восстановления.
func initKafkaProducer(brokers []string, logger *log.Entry) *kafka.Producer {
	if len(brokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	}
}

// initWebhookConsumer подписывает processor на поток событий провайдера.
func initWebhookConsumer(cfg Config, processor *webhook.Processor, dlqProducer *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.KafkaBrokers,
		cfg.ConsumerGroup,
		[]string{kafka.TopicProviderEvents},
		processor.HandleMessage,
		dlqProducer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create webhook consumer, continuing without it")
		return nil
	}

	logger.WithField("topic", kafka.TopicProviderEvents).Info("webhook consumer initialized")
	return consumer
}

// startMetricsServer поднимает listener с /metrics и health-пробами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
