package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/ema/pkg/dto"
)

const CatalogStreamName = "CATALOG"

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("ema"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// Subject returns the subject catalog events of eventType are published on.
func Subject(prefix, eventType string) string {
	return prefix + "." + strings.ReplaceAll(eventType, ".", "_")
}

// Publisher sends catalog events to JetStream. It implements catalog.Notifier.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

func NewPublisher(natsURL, subjectPrefix string) (*Publisher, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, prefix: subjectPrefix}, nil
}

// EnsureStream creates the CATALOG stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        CatalogStreamName,
		Subjects:    []string{p.prefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Description: "Evidence catalog change events",
	}

	const maxAttempts = 30
	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

// Publish sends one event and waits for the stream's acknowledgement.
func (p *Publisher) Publish(ctx context.Context, ev *dto.WSEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, Subject(p.prefix, ev.Type), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Notify publishes without waiting for the acknowledgement, so callers holding
// repository locks are never blocked on the broker.
func (p *Publisher) Notify(ev *dto.WSEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal catalog event", "type", ev.Type, "error", err)
		return
	}
	if _, err := p.js.PublishAsync(Subject(p.prefix, ev.Type), payload); err != nil {
		slog.Warn("publish catalog event", "type", ev.Type, "error", err)
	}
}

func (p *Publisher) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close waits briefly for outstanding acknowledgements and closes the connection.
func (p *Publisher) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		slog.Warn("closing NATS with unacknowledged events", "pending", p.js.PublishAsyncPending())
	}
	p.nc.Close()
}
