// Package kafkaconsumer applies place change events published by other
// instances to the local result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/placefinder/internal/core/observability"
	"github.com/mohammed-shakir/placefinder/internal/events"
	mylog "github.com/mohammed-shakir/placefinder/internal/logger"
)

// Invalidator retires cached search results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Consumer struct {
	cfg    events.Config
	logger *slog.Logger
	inv    Invalidator
	source string
	seen   *idDedupe
}

// New returns a consumer that skips events stamped with source, since the
// publishing instance already invalidated synchronously.
func New(cfg events.Config, logger *slog.Logger, inv Invalidator, source string) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		inv:    inv,
		source: source,
		seen:   newIDDedupe(4096),
	}
}

// Start joins the consumer group and blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: missing invalidator")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	go func() {
		for err := range group.Errors() {
			obs.IncKafkaConsumerError()
			c.logger.Error("kafka consumer group error", "err", err)
		}
	}()

	ctx = mylog.WithComponent(ctx, "place_events")

	c.logger.InfoContext(ctx, "place event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, c); err != nil && ctx.Err() == nil {
			obs.IncKafkaConsumerError()
			c.logger.ErrorContext(ctx, "consumer error", "err", err, "topic", c.cfg.Topic)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "place event consumer shutting down")
			return nil
		}
	}
}

// ProcessOne handles a single message. Undecodable or invalid events are
// logged and skipped; only a failed invalidation is returned, so the message
// is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev events.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncEventConsumed("invalid")
		c.logger.ErrorContext(ctx, "place event decode failed",
			"err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncEventConsumed("invalid")
		c.logger.ErrorContext(ctx, "place event rejected",
			"err", err, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return nil
	}
	if ev.Source == c.source {
		obs.IncEventConsumed("own")
		return nil
	}
	if !c.seen.firstSeen(ev.ID) {
		obs.IncEventConsumed("duplicate")
		c.logger.DebugContext(ctx, "place event already applied", "id", ev.ID)
		return nil
	}

	if err := c.inv.Invalidate(ctx); err != nil {
		c.seen.forget(ev.ID)
		obs.IncKafkaConsumerError()
		return fmt.Errorf("invalidate after %s of place %d: %w", ev.Op, ev.PlaceID, err)
	}

	obs.IncEventConsumed("applied")
	obs.ObserveUpstreamLatency("place_event_lag", time.Since(ev.TS).Seconds())
	c.logger.DebugContext(ctx, "place event applied",
		"op", ev.Op, "place_id", ev.PlaceID, "source", ev.Source)
	return nil
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

func (c *Consumer) Setup(s sarama.ConsumerGroupSession) error {
	c.logger.InfoContext(s.Context(), "place event partitions assigned",
		"claims", s.Claims(), "generation", s.GenerationID())
	return nil
}

func (c *Consumer) Cleanup(s sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks an event only once its invalidation went through. A
// failed invalidation ends the claim unmarked so the event comes back after
// the rebalance.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.ProcessOne(ctx, msg); err != nil {
				return fmt.Errorf("place event %s/%d@%d left unmarked: %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
