// Package service publishes POS events raised by the HTTP handlers, either
// straight to the local event hub or through RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/pos-waiter/internal/queue"
)

// Publisher announces a state change to connected clients.  Publishing is
// best effort: handlers log failures and still answer the request.
type Publisher interface {
	Publish(ctx context.Context, event string, data any) error
}

// Broadcaster is the part of the event hub a publisher needs.
type Broadcaster interface {
	Broadcast(event string, data any) error
}

// HubPublisher hands events straight to the in-process hub.
type HubPublisher struct{ Hub Broadcaster }

func (p HubPublisher) Publish(_ context.Context, event string, data any) error {
	return p.Hub.Broadcast(event, data)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, any) error { return nil }

// AMQPPublisher publishes events to the pos.events fanout exchange.  It
// keeps one connection and redials lazily after a failure.
type AMQPPublisher struct {
	URL string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for url.  No connection is made
// until the first Publish.
func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{URL: url} }

// Publish marshals the event and publishes it as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, event string, data any) error {
	ev, err := queue.NewPOSEvent(event, data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensure(); err != nil {
		log.Printf("rabbitmq: connect failed: %v", err)
		return err
	}
	err = p.ch.PublishWithContext(ctx, queue.ExchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         event,
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq: publish %s failed: %v", event, err)
		p.reset()
	}
	return err
}

// Close releases the connection.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}

// ensure opens the connection and channel when missing.  Callers hold p.mu.
func (p *AMQPPublisher) ensure() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	if p.URL == "" {
		return errors.New("no broker url")
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(queue.ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
