package sweeper

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/metrics"
)

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
)

// Source — очередь записей с дедлайном, которую обходит свипер.
// Expire обязан быть идемпотентным: запись, попавшая в два цикла подряд,
// освобождает вместимость не более одного раза.
type Source interface {
	Name() string
	// ListExpired возвращает идентификаторы записей с истёкшим дедлайном.
	ListExpired(before time.Time, limit int) ([]string, error)
	// Expire закрывает запись и возвращает количество выполненных
	// освобождений вместимости.
	Expire(id string) (int, error)
}

// Result — итог одного цикла sweep'а.
type Result struct {
	Processed int
	Released  int
}

// Options задаёт параметры свипера.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Metrics   *metrics.SweepMetrics
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задаёт logger для свипера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между циклами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер выборки за один проход источника.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithMetrics подключает метрики sweep'а.
func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// Sweeper периодически закрывает записи с истёкшим дедлайном по всем
// источникам: платёжные hold'ы заказов и окна entitlement'ов.
type Sweeper struct {
	sources   []Source
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	metrics   *metrics.SweepMetrics
	now       func() time.Time
}

// New создаёт свипер над набором источников.
func New(sources []Source, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultSweepInterval,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}

	return &Sweeper{
		sources:   sources,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодический sweep до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if len(s.sources) == 0 {
		s.logger.Warn("sweeper is disabled: no sources configured")
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result, err := s.RunOnce(ctx, s.now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.WithError(err).Warn("sweep cycle failed")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRun(s.now())
	}
	if result.Processed > 0 {
		s.logger.WithFields(log.Fields{
			"processed": result.Processed,
			"released":  result.Released,
		}).Info("sweep cycle completed")
	}
}

// RunOnce обходит все источники батчами до исчерпания просроченных записей.
// Отказ одной записи не останавливает цикл: остальные записи батча всё
// равно обрабатываются.
func (s *Sweeper) RunOnce(ctx context.Context, before time.Time) (Result, error) {
	if before.IsZero() {
		before = s.now()
	}

	var total Result
	for _, source := range s.sources {
		result, err := s.sweepSource(ctx, source, before)
		total.Processed += result.Processed
		total.Released += result.Released
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Sweeper) sweepSource(ctx context.Context, source Source, before time.Time) (Result, error) {
	var result Result

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := source.ListExpired(before, s.batchSize)
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			return result, nil
		}

		var processed, released int
		for _, id := range ids {
			n, err := source.Expire(id)
			if err != nil {
				if s.metrics != nil {
					s.metrics.RecordFailure(source.Name())
				}
				s.logger.WithError(err).WithFields(log.Fields{
					"source": source.Name(),
					"id":     id,
				}).Warn("failed to expire record")
				continue
			}

			processed++
			released += n
		}
		result.Processed += processed
		result.Released += released

		if s.metrics != nil {
			s.metrics.RecordProcessed(source.Name(), processed)
			s.metrics.RecordReleased(source.Name(), released)
		}

		// Если ни одна запись батча не закрылась, повторный ListExpired
		// вернёт те же id и цикл зациклится.
		if processed == 0 || len(ids) < s.batchSize {
			return result, nil
		}
	}
}
