// Package publisher emits closed incidents onto a Kafka topic so fleet
// tooling can consume them. Delivery is best effort: a publish failure is
// logged and dropped, never surfaced to the frame loop.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"driveguard/internal/config"
	"driveguard/internal/model"
)

type Publisher struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	timeout time.Duration
}

// New returns nil when publishing is disabled; callers nil-check.
func New(cfg config.PublisherConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("incident publisher disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("incident publisher enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Publisher{writer: w, logger: logger, timeout: 2 * time.Second}
}

func (p *Publisher) Publish(entry model.IncidentEntry) {
	if p == nil || p.writer == nil {
		return
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(entry.Seq)),
		Value: value,
	})
	if err != nil && p.logger != nil {
		p.logger.Warn("incident publish failed", "seq", entry.Seq, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
