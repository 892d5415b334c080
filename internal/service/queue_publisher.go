// Package service holds the application logic that sits between the HTTP
// handlers and the repositories: QR issuance, scan resolution, analytics
// and event publishing.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/fitcode-qr/internal/queue"
)

// EventPublisher receives scan notifications after commit.  Publishing is
// best-effort and must never block or fail the request that produced it.
type EventPublisher interface {
	PublishScan(ev queue.ScanRecordedEvent)
}

// NopPublisher discards every event.  It is used when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) PublishScan(queue.ScanRecordedEvent) {}

const publishBuffer = 256

// AMQPPublisher forwards scan events to RabbitMQ from a single background
// goroutine.  Events are queued in a bounded buffer; when the buffer is
// full new events are dropped and logged.
type AMQPPublisher struct {
	url    string
	log    *zap.Logger
	events chan queue.ScanRecordedEvent
	done   chan struct{}
	once   sync.Once

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher creates a publisher for url.  Call Run to start the
// delivery loop.
func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:    url,
		log:    log.Named("scan-publisher"),
		events: make(chan queue.ScanRecordedEvent, publishBuffer),
		done:   make(chan struct{}),
	}
}

// PublishScan enqueues ev without blocking.
func (p *AMQPPublisher) PublishScan(ev queue.ScanRecordedEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("publish buffer full, dropping event", zap.Uint64("scan_id", ev.ScanID))
	}
}

// Run delivers queued events until ctx is cancelled.  Connection failures
// drop the event in flight and are retried on the next one.
func (p *AMQPPublisher) Run(ctx context.Context) {
	defer p.once.Do(func() { close(p.done) })
	defer p.closeConn()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			if err := p.publish(ctx, ev); err != nil {
				p.log.Warn("publish failed", zap.Error(err), zap.Uint64("scan_id", ev.ScanID))
				p.closeConn()
			}
		}
	}
}

// Done is closed once Run has returned.
func (p *AMQPPublisher) Done() <-chan struct{} { return p.done }

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeConn()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queue.ScanQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) closeConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) publish(ctx context.Context, ev queue.ScanRecordedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(ctx,
		"",                  // default exchange
		queue.ScanQueueName, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			MessageId:    uuid.NewString(),
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}
