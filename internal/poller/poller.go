// Package poller consumes checkout events and empties the cart once its
// owner has checked out.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const retryDelay = time.Second

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type CartClearer interface {
	Clear(ctx context.Context)
}

type CheckoutCompletedEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

type Poller struct {
	reader  MessageReader
	cart    CartClearer
	ownerID string
	logger  *slog.Logger
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	OwnerID string
}

func NewPoller(cfg Config, cart CartClearer, logger *slog.Logger) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(reader, cart, cfg.OwnerID, logger)
}

func NewPollerWithReader(reader MessageReader, cart CartClearer, ownerID string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{reader: reader, cart: cart, ownerID: ownerID, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.processMessage(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing kafka reader", "error", err)
	}
}

// processMessage returns an error only when reading from the broker failed.
// Unusable messages are logged and skipped.
func (p *Poller) processMessage(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		p.logger.ErrorContext(ctx, "error reading message", "error", err)
		return err
	}

	var event CheckoutCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.logger.WarnContext(ctx, "error parsing message", "offset", m.Offset, "error", err)
		return nil
	}
	if event.UserID == "" {
		p.logger.WarnContext(ctx, "missing or invalid user_id", "offset", m.Offset)
		return nil
	}
	if event.UserID != p.ownerID {
		return nil
	}

	p.cart.Clear(ctx)
	p.logger.InfoContext(ctx, "cart cleared after checkout", "checkout_id", event.CheckoutID, "user_id", event.UserID)
	return nil
}
