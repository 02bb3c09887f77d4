package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

const (
	OffsetEarliest = "earliest"
	OffsetLatest   = "latest"
)

// ConsumerConfig configures a consumer group reader for one topic.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	StartOffset  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Handler receives each decoded envelope. A handler error is retried and,
// once retries are exhausted, the message is skipped.
type Handler func(ctx context.Context, env *EventEnvelope) error

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerMetrics are cumulative counters since start.
type ConsumerMetrics struct {
	Consumed  int64
	Processed int64
	Failed    int64
	Malformed int64
	Lag       int64
}

type Consumer struct {
	reader ReaderInterface
	cfg    ConsumerConfig
	logger logging.Logger

	running   atomic.Bool
	consumed  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	malformed atomic.Int64
	lag       atomic.Int64
}

func NewConsumer(cfg ConsumerConfig, log logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	start := kafka.FirstOffset
	if cfg.StartOffset == OffsetLatest {
		start = kafka.LastOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       maxMessageBytes,
		MaxWait:        time.Second,
		StartOffset:    start,
		SessionTimeout: 30 * time.Second,
		Dialer:         &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})
	return NewConsumerWithReader(reader, cfg, log), nil
}

func NewConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{reader: r, cfg: cfg, logger: log.Named("kafka")}
}

// Run consumes until ctx is cancelled, which is not reported as an error.
// Every fetched message is committed after handling, including malformed
// ones and those whose handler kept failing.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.logger.Info("kafka consumer started",
		logging.String("group", c.cfg.GroupID),
		logging.String("topic", c.cfg.Topic))

	// Commits outlive cancellation so the last handled message is not redelivered.
	commitCtx := context.WithoutCancel(ctx)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka fetch failed", logging.Err(err))
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}
		c.consumed.Add(1)
		if m.HighWaterMark > 0 {
			c.lag.Store(m.HighWaterMark - m.Offset - 1)
		}

		c.handle(ctx, m, h)

		if err := c.reader.CommitMessages(commitCtx, m); err != nil {
			c.logger.Error("kafka commit failed",
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message, h Handler) {
	var env EventEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.EventType == "" {
		c.malformed.Add(1)
		c.logger.Warn("skipping malformed event",
			logging.Int("partition", m.Partition),
			logging.Int64("offset", m.Offset))
		return
	}

	backoff := c.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, backoff) {
				break
			}
			backoff *= 2
		}
		if err = h(ctx, &env); err == nil {
			c.processed.Add(1)
			return
		}
	}
	c.failed.Add(1)
	c.logger.Error("event handling failed",
		logging.String("event_id", env.EventID),
		logging.Int64("offset", m.Offset),
		logging.Err(err))
}

func (c *Consumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		Consumed:  c.consumed.Load(),
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Malformed: c.malformed.Load(),
		Lag:       c.lag.Load(),
	}
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	c.logger.Info("kafka consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}

func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "kafka consumer group required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "kafka topic required")
	}
	switch cfg.StartOffset {
	case "", OffsetEarliest, OffsetLatest:
	default:
		return errors.New(errors.ErrCodeValidation, "kafka start offset must be earliest or latest")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "kafka max retries must be >= 0")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
