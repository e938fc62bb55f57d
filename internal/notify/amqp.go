// Package notify publishes anomalies from committed snapshots to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miradorstack/equipment-monitor/internal/cache"
	"github.com/miradorstack/equipment-monitor/internal/metrics"
	"github.com/miradorstack/equipment-monitor/internal/models"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Options configures routing and filtering.
type Options struct {
	Exchange    string
	RoutingKey  string
	MinSeverity models.Severity
	DedupeTTL   time.Duration
}

// Message is the JSON body of one anomaly notification.
type Message struct {
	DeviceID   string         `json:"deviceId"`
	Generation uint64         `json:"generation"`
	Datetime   string         `json:"datetime,omitempty"`
	Anomaly    models.Anomaly `json:"anomaly"`
	SentAt     time.Time      `json:"sentAt"`
}

// AMQPPublisher implements monitor.Listener. Each anomaly at or above MinSeverity is published
// once per (device, type, datetime); the claim is recorded with SetNX so replicas sharing a
// cache publish it only once.
type AMQPPublisher struct {
	ch      Channel
	conn    *amqp.Connection
	opts    Options
	dedupe  cache.Provider
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Dial connects to url, declares the topic exchange and returns a ready publisher.
func Dial(url string, opts Options, dedupe cache.Provider, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}
	p := NewAMQPPublisher(ch, opts, dedupe, logger)
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher wraps an open channel. A nil dedupe provider disables de-duplication.
func NewAMQPPublisher(ch Channel, opts Options, dedupe cache.Provider, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupe == nil {
		dedupe = cache.NoopProvider{}
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = models.SeverityHigh
	}
	if opts.RoutingKey == "" {
		opts.RoutingKey = "anomaly"
	}
	return &AMQPPublisher{ch: ch, opts: opts, dedupe: dedupe, logger: logger, nowFunc: time.Now}
}

// OnSnapshot publishes the snapshot's qualifying anomalies. Failures are logged and counted.
func (p *AMQPPublisher) OnSnapshot(ctx context.Context, snap models.Snapshot) {
	if snap.Error != "" || len(snap.Analysis.Anomalies) == 0 {
		return
	}
	datetimes := make(map[string]string, len(snap.Series))
	for _, point := range snap.Series {
		if _, ok := datetimes[point.Time]; !ok {
			datetimes[point.Time] = point.Datetime
		}
	}

	minRank := p.opts.MinSeverity.Rank()
	routingKey := p.opts.RoutingKey + "." + routingSegment(snap.DeviceID)
	for _, a := range snap.Analysis.Anomalies {
		if a.Severity.Rank() < minRank {
			continue
		}
		datetime := datetimes[a.Time]
		if datetime == "" {
			datetime = a.Time
		}

		key := fmt.Sprintf("notify:%s:%s:%s", snap.DeviceID, a.Type, datetime)
		claimed, err := p.dedupe.SetNX(ctx, key, []byte("1"), p.opts.DedupeTTL)
		if err != nil {
			p.logger.Warn("notification dedupe failed, publishing anyway", slog.String("key", key), slog.Any("error", err))
			claimed = true
		}
		if !claimed {
			metrics.ObserveNotification(metrics.OutcomeSkipped)
			continue
		}

		body, err := json.Marshal(Message{
			DeviceID:   snap.DeviceID,
			Generation: snap.Generation,
			Datetime:   datetime,
			Anomaly:    a,
			SentAt:     p.nowFunc().UTC(),
		})
		if err != nil {
			metrics.ObserveNotification(metrics.OutcomeError)
			continue
		}

		err = p.ch.PublishWithContext(ctx, p.opts.Exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.nowFunc(),
			Type:         a.Type,
			Body:         body,
		})
		if err != nil {
			// Release the claim so the next cycle retries.
			_ = p.dedupe.Del(ctx, key)
			metrics.ObserveNotification(metrics.OutcomeError)
			p.logger.Error("publish anomaly failed", slog.String("type", a.Type), slog.Any("error", err))
			continue
		}
		metrics.ObserveNotification(metrics.OutcomeSuccess)
	}
}

// Close releases the channel and, when dialled, the connection.
func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// routingSegment keeps device ids from injecting topic separators or wildcards.
func routingSegment(deviceID string) string {
	if deviceID == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", "*", "_", "#", "_").Replace(deviceID)
}
