package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultAttemptDelay = 500 * time.Millisecond

// MessageHandler обрабатывает одно сообщение провайдера. nil означает, что
// сообщение можно коммитить, в том числе когда ошибка постоянная и retry
// бессмыслен.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает поток событий платёжного провайдера. Транзиентные отказы
// обработчика повторяются на месте с паузой; после исчерпания попыток
// сообщение уходит в DLQ и коммитится, чтобы не блокировать partition.
type Consumer struct {
	group        sarama.ConsumerGroup
	topics       []string
	handler      MessageHandler
	logger       *log.Entry
	wg           sync.WaitGroup
	dlqProducer  *Producer
	maxAttempts  int
	attemptDelay time.Duration
}

// NewConsumer создаёт consumer без DLQ: после исчерпания попыток сообщение
// коммитится с логом об утере.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создаёт consumer group; maxAttempts ограничивает
// обработку одного сообщения включая первую попытку.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxAttempts int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return &Consumer{
		group:        group,
		topics:       topics,
		handler:      handler,
		logger:       log.WithField("component", "kafka-consumer"),
		dlqProducer:  dlqProducer,
		maxAttempts:  maxAttempts,
		attemptDelay: defaultAttemptDelay,
	}, nil
}

// Start запускает цикл потребления. Consume возвращается на каждом
// rebalance, поэтому вызывается в цикле до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			err := c.group.Consume(ctx, c.topics, c)
			if err != nil && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
				c.logger.WithError(err).Error("consumer group session failed")
			}
			if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и дожидается рабочих горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает partition до конца session. Сообщение коммитится
// всегда: либо после успешной обработки, либо после DLQ, либо с логом об
// утере, если DLQ не настроен. Partition не должен застревать на одном
// ядовитом сообщении.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if session.Context().Err() != nil {
			return nil
		}

		if err := c.process(session.Context(), message); err != nil {
			entry := c.logger.WithError(err).WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if dlqErr := c.quarantine(message, err); dlqErr != nil {
				entry.WithField("dlq_error", dlqErr.Error()).Error("message dropped: processing and DLQ both failed")
			} else if c.dlqProducer != nil {
				entry.Warn("message quarantined to DLQ")
			} else {
				entry.Error("message dropped: no DLQ configured")
			}
		}

		session.MarkMessage(message, "")
	}

	return nil
}

// process выполняет до maxAttempts попыток с паузой между ними.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.handler(ctx, message)
		if lastErr == nil {
			return nil
		}

		c.logger.WithError(lastErr).WithFields(log.Fields{
			"topic":   message.Topic,
			"offset":  message.Offset,
			"attempt": attempt,
		}).Warn("message processing failed")

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.attemptDelay):
		}
	}

	return fmt.Errorf("processing failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// quarantine переносит необработанное сообщение в DLQ, сохраняя исходный
// payload и контекст отказа в заголовках.
func (c *Consumer) quarantine(message *sarama.ConsumerMessage, processingErr error) error {
	if c.dlqProducer == nil {
		return nil
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(c.maxAttempts))},
		{Key: []byte(HeaderErrorMessage), Value: []byte(processingErr.Error())},
		{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	}

	return c.dlqProducer.PublishRaw(TopicDeadLetterQueue, string(message.Key), message.Value, headers)
}
