package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
	"github.com/focus-leaderboard/internal/metrics"
)

// Processor runs the side effects of one completion event
type Processor interface {
	Process(ctx context.Context, event domain.CompletionEvent) error
}

// Consumer consumes completion events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	processor     Processor
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, processor Processor, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer group: %w", err)
	}

	return newConsumer(cfg, consumerGroup, processor, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, group sarama.ConsumerGroup, processor Processor, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		processor:     processor,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins consuming messages and returns once the first session is set
// up. If no session is set up within the start timeout the consumer is
// stopped and an error returned.
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	ready := make(chan bool)
	c.wg.Add(1)
	go c.consume(ready)

	select {
	case <-ready:
	case <-time.After(c.config.StartTimeout):
		if err := c.Stop(); err != nil {
			c.logger.Warn("closing unready consumer group", "error", err)
		}
		return fmt.Errorf("kafka consumer not ready after %s", c.config.StartTimeout)
	}
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// consume joins the group session after session until the consumer stops.
// ready is closed by the first successful setup and renewed after each.
func (c *Consumer) consume(ready chan bool) {
	defer c.wg.Done()
	for {
		handler := &consumerGroupHandler{
			consumer: c,
			ready:    ready,
		}

		err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil {
			c.logger.Error("error from consumer", "error", err)
		}

		if c.ctx.Err() != nil {
			return
		}

		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.config.RetryDelay):
			}
		}

		select {
		case <-ready:
			ready = make(chan bool)
		default:
		}
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// handleMessage decodes and processes one message. Malformed messages are
// dropped; processing is retried up to the configured attempts.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := decodeEvent(message.Value)
	if err != nil {
		c.logger.Warn("dropping malformed completion event",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return nil
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err = c.processor.Process(ctx, event)
		if err == nil || attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.RetryDelay):
		}
	}
	metrics.ObserveJob("kafka", err)
	return err
}

func decodeEvent(value []byte) (domain.CompletionEvent, error) {
	var event domain.CompletionEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, err
	}
	if event.SessionID == "" || event.UserID == "" {
		return event, fmt.Errorf("%w: event missing session or user id", domain.ErrValidation)
	}
	return event, nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition in order. A message
// is marked only after it has been handled.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := h.consumer.handleMessage(session.Context(), message); err != nil {
				if session.Context().Err() != nil {
					return nil
				}
				h.consumer.logger.Error("completion event failed",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
			}
			session.MarkMessage(message, "")
		}
	}
}
