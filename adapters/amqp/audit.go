// Package amqp publishes audit entries to RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lborres/portal/core"
)

// QueuePrefix is prepended to the audit action to form the queue name,
// e.g. "auth.sign_in".
const QueuePrefix = "auth."

var ErrClosed = errors.New("audit publisher closed")

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// DialFunc opens a channel. The returned close func releases everything
// DialFunc acquired.
type DialFunc func() (Channel, func() error, error)

// Publisher is a core.AuditSink writing each entry as a persistent JSON
// message to a durable queue named after its action. A broken channel is
// reopened on the next Record.
type Publisher struct {
	dial   DialFunc
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	ch       Channel
	release  func() error
	declared map[string]bool
	closed   bool
}

var _ core.AuditSink = (*Publisher)(nil)

// Dial returns a DialFunc connecting to url.
func Dial(url string) DialFunc {
	return func() (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to open channel: %w", err)
		}
		release := func() error {
			return errors.Join(ch.Close(), conn.Close())
		}
		return ch, release, nil
	}
}

func New(dial DialFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		dial:     dial,
		logger:   logger.With("component", "audit_publisher"),
		now:      time.Now,
		declared: make(map[string]bool),
	}
}

func (p *Publisher) Record(ctx context.Context, entry core.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	queue := QueuePrefix + entry.Action

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    entry.CreatedAt.UTC(),
		Type:         entry.Action,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	p.logger.Debug("audit entry published", "queue", queue, "user_id", entry.UserID)
	return nil
}

func (p *Publisher) channelLocked() (Channel, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	ch, release, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	p.release = release
	return ch, nil
}

// resetLocked drops the current channel. Queues are declared again on the
// next one.
func (p *Publisher) resetLocked() {
	if p.release != nil {
		if err := p.release(); err != nil {
			p.logger.Debug("failed to release channel", "error", err)
		}
	}
	p.ch = nil
	p.release = nil
	clear(p.declared)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.release != nil {
		err = p.release()
	}
	p.ch = nil
	p.release = nil
	return err
}
