// Package events publishes scrape job lifecycle changes to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aluiziolira/go-scrape-rentals/logging"
	"github.com/aluiziolira/go-scrape-rentals/models"
)

const publishTimeout = 10 * time.Second

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// JobEvent is the message body for one job transition.
type JobEvent struct {
	JobID       string           `json:"job_id"`
	Kind        models.JobKind   `json:"kind"`
	Status      models.JobStatus `json:"status"`
	Priority    models.Priority  `json:"priority"`
	Suburb      string           `json:"suburb,omitempty"`
	State       string           `json:"state,omitempty"`
	Postcode    string           `json:"postcode,omitempty"`
	Targets     int              `json:"targets,omitempty"`
	Records     int              `json:"records"`
	Errors      []string         `json:"errors,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Publisher sends JobEvents to a topic exchange with routing key
// "job.<kind>.<status>".
type Publisher struct {
	ch       Channel
	conn     *amqp.Connection
	exchange string
	log      logging.Logger
	now      func() time.Time
}

// Dial connects to the broker, declares a durable topic exchange and returns
// a Publisher on it.
func Dial(url, exchange string, logger logging.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("events: exchange name cannot be empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to declare exchange %q: %w", exchange, err)
	}
	p := NewPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an open channel.
func NewPublisher(ch Channel, exchange string, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Publisher{ch: ch, exchange: exchange, log: logger, now: time.Now}
}

// RoutingKey is the routing key used for job.
func RoutingKey(job *models.ScrapeJob) string {
	return fmt.Sprintf("job.%s.%s", job.Kind, job.Status)
}

// NewJobEvent summarises job for publication.
func NewJobEvent(job *models.ScrapeJob, at time.Time) JobEvent {
	ev := JobEvent{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Priority:    job.Priority,
		Suburb:      job.Params.Suburb,
		State:       job.Params.State,
		Postcode:    job.Params.Postcode,
		Errors:      job.Errors,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: job.CompletedAt,
		OccurredAt:  at,
	}
	if job.Result != nil {
		ev.Targets = len(job.Result.Targets)
		ev.Records = job.Result.Records
	}
	return ev
}

func (p *Publisher) Publish(ctx context.Context, job *models.ScrapeJob) error {
	body, err := json.Marshal(NewJobEvent(job, p.now()))
	if err != nil {
		return fmt.Errorf("events: failed to marshal job %s: %w", job.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		MessageId:    fmt.Sprintf("%s.%s", job.ID, job.Status),
		Headers:      amqp.Table{"x-job-id": job.ID},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(job)
	if err := p.ch.PublishWithContext(publishCtx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("events: failed to publish %s for job %s: %w", key, job.ID, err)
	}
	p.log.Debug("job event published", slog.String("routing_key", key), slog.String("job_id", job.ID))
	return nil
}

// Close closes the channel and, when the publisher dialled it, the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
