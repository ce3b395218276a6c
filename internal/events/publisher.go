package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// Event names carried in the payload. Downstream consumers (notification
// senders, analytics) route on these.
const (
	EventJobCompleted   = "job.completed"
	EventJobFailed      = "job.failed"
	EventCreditsChanged = "credits.changed"
)

// Broker is the publish surface of the message broker client.
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher emits job lifecycle and ledger events to the broker. Delivery is
// best effort: publish failures are logged and never surfaced to the caller,
// so a broker outage cannot fail a job or a credit mutation.
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates an event publisher. A nil broker yields a publisher
// that silently drops events, which keeps call sites unconditional.
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		logger: logger,
	}
}

type jobEvent struct {
	Event        string         `json:"event"`
	JobID        string         `json:"job_id"`
	UserID       string         `json:"user_id"`
	JobType      domain.JobType `json:"job_type"`
	ErrorMessage string         `json:"error_message,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

type creditsEvent struct {
	Event      string    `json:"event"`
	UserID     string    `json:"user_id"`
	Delta      int       `json:"delta"`
	Balance    int       `json:"balance"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JobCompleted announces a job reaching COMPLETED.
func (p *Publisher) JobCompleted(ctx context.Context, jobID, userID string, jobType domain.JobType) {
	p.publish(ctx, jobEvent{
		Event:      EventJobCompleted,
		JobID:      jobID,
		UserID:     userID,
		JobType:    jobType,
		OccurredAt: time.Now(),
	})
}

// JobFailed announces a job reaching FAILED with its error message.
func (p *Publisher) JobFailed(ctx context.Context, jobID, userID string, jobType domain.JobType, errorMessage string) {
	p.publish(ctx, jobEvent{
		Event:        EventJobFailed,
		JobID:        jobID,
		UserID:       userID,
		JobType:      jobType,
		ErrorMessage: errorMessage,
		OccurredAt:   time.Now(),
	})
}

// CreditsChanged announces a ledger mutation. Delta is positive for credits
// added and negative for credits spent.
func (p *Publisher) CreditsChanged(ctx context.Context, userID string, delta, balance int, reason string) {
	p.publish(ctx, creditsEvent{
		Event:      EventCreditsChanged,
		UserID:     userID,
		Delta:      delta,
		Balance:    balance,
		Reason:     reason,
		OccurredAt: time.Now(),
	})
}

func (p *Publisher) publish(ctx context.Context, event any) {
	if p == nil || p.broker == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", slog.Any("error", err))
		return
	}

	if err := p.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		p.logger.Error("Failed to publish event", slog.Any("error", err))
	}
}
