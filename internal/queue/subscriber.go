package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/ema/pkg/dto"
)

type EventHandler func(ctx context.Context, ev *dto.WSEvent) error

// Subscriber reads catalog events back from the CATALOG stream.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

func NewSubscriber(natsURL, subjectPrefix string) (*Subscriber, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, prefix: subjectPrefix}, nil
}

// Consume delivers events to handler until ctx is done. An empty consumerName
// creates an ephemeral consumer that starts with new events; a named consumer
// is durable and resumes where it left off. eventTypes narrows the subjects;
// none means every event.
func (s *Subscriber) Consume(ctx context.Context, consumerName string, handler EventHandler, eventTypes ...string) error {
	stream, err := s.js.Stream(ctx, CatalogStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", CatalogStreamName, err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	switch len(eventTypes) {
	case 0:
		cfg.FilterSubject = s.prefix + ".>"
	case 1:
		cfg.FilterSubject = Subject(s.prefix, eventTypes[0])
	default:
		for _, t := range eventTypes {
			cfg.FilterSubjects = append(cfg.FilterSubjects, Subject(s.prefix, t))
		}
	}
	if consumerName == "" {
		cfg.InactiveThreshold = time.Minute
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}
	slog.Info("event consumer started", "consumer", consumerName, "filter", cfg.FilterSubject)

	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("fetch catalog events", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range batch.Messages() {
			ev, err := DecodeEvent(msg.Data())
			if err != nil {
				slog.Warn("dropping malformed catalog event", "subject", msg.Subject(), "error", err)
				_ = msg.Term()
				continue
			}
			if err := handler(ctx, ev); err != nil {
				slog.Error("process catalog event", "subject", msg.Subject(), "error", err)
				_ = msg.Nak()
			} else {
				_ = msg.Ack()
			}
		}
	}
}

// DecodeEvent parses a published event payload.
func DecodeEvent(data []byte) (*dto.WSEvent, error) {
	var ev dto.WSEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode event: missing type")
	}
	return &ev, nil
}

func (s *Subscriber) Close() {
	s.nc.Close()
}
