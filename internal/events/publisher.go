package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/core/observability"
)

// Publisher emits one Event per committed place write. Publishing never
// blocks the write path: when the queue is full the event is dropped and
// counted, and the TTL on cached results bounds the staleness.
type Publisher struct {
	topic    string
	source   string
	logger   *slog.Logger
	events   chan Event
	prod     sarama.AsyncProducer
	stopped  chan struct{}
	errsDone chan struct{}
}

// Dial builds a Kafka async producer for cfg.Brokers.
func Dial(cfg Config, source string, logger *slog.Logger) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Errors = true
	sc.Producer.Return.Successes = false
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewPublisher(prod, cfg.Topic, source, cfg.QueueSize, logger), nil
}

func NewPublisher(prod sarama.AsyncProducer, topic, source string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		topic:    topic,
		source:   source,
		logger:   logger,
		events:   make(chan Event, queueSize),
		prod:     prod,
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("place event marshal failed", "err", err, "place_id", ev.PlaceID)
				observability.ObserveEventPublished(ev.Op, err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				// one partition per place keeps its events ordered
				Key:   sarama.StringEncoder(strconv.FormatInt(ev.PlaceID, 10)),
				Value: sarama.ByteEncoder(b),
			}
			observability.ObserveEventPublished(ev.Op, nil)
		}
	}()

	go func() {
		defer close(p.errsDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Error("place event producer error", "err", err.Err, "topic", err.Msg.Topic)
				observability.ObserveEventPublished("producer", err)
			}
		}
	}()

	return p
}

// PlaceChanged enqueues the change; it satisfies places.ChangeNotifier.
func (p *Publisher) PlaceChanged(ctx context.Context, op string, pl model.Place) {
	ev := NewEvent(op, p.source, pl)
	select {
	case p.events <- ev:
	default:
		observability.ObserveEventPublished(op, errQueueFull)
		p.logger.WarnContext(ctx, "place event queue full, dropping", "op", op, "place_id", pl.ID)
	}
}

// Source is the instance id stamped on every published event.
func (p *Publisher) Source() string { return p.source }

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errsDone
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}

var errQueueFull = errors.New("publish queue full")
