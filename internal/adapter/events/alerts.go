// Package events publishes operational events (quota threshold alerts) to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-device-compare/internal/adapter/observability"
	"github.com/fairyhunter13/ai-device-compare/internal/service/quota"
)

// DefaultTopic receives quota alerts when none is configured.
const DefaultTopic = "quota-alerts"

// producer is the subset of *kgo.Client used for publishing.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// AlertPublisher implements quota.AlertSink. Records are produced asynchronously;
// delivery failures are logged and never surface to the quota tracker.
type AlertPublisher struct {
	client producer
	topic  string
}

var _ quota.AlertSink = (*AlertPublisher)(nil)

// NewAlertPublisher connects to brokers and makes sure topic exists.
func NewAlertPublisher(ctx context.Context, brokers []string, topic string) (*AlertPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.NewAlertPublisher: no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	kt := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(5),
		kgo.DialTimeout(5*time.Second),
		kgo.WithHooks(kt.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.NewAlertPublisher: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("alert topic not ensured", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("alert publisher ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &AlertPublisher{client: client, topic: topic}, nil
}

// PublishQuotaAlert enqueues a for delivery. It returns an error only when the alert cannot be encoded.
func (p *AlertPublisher) PublishQuotaAlert(ctx context.Context, a quota.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("op=events.PublishQuotaAlert: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(a.Date),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "level", Value: []byte(a.Level)},
			{Key: "event", Value: []byte("quota_alert")},
		},
	}
	if rid := observability.RequestIDFromContext(ctx); rid != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte(rid)})
	}

	lg := observability.LoggerFromContext(ctx)
	p.client.Produce(observability.Detach(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			lg.Warn("quota alert delivery failed", slog.String("level", a.Level), slog.Any("error", err))
			return
		}
		lg.Info("quota alert delivered",
			slog.String("level", a.Level),
			slog.String("topic", r.Topic),
			slog.Int64("offset", r.Offset))
	})
	return nil
}

// Close flushes buffered alerts within ctx and closes the client.
func (p *AlertPublisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("op=events.Close: %w", err)
	}
	return nil
}
