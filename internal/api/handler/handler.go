package handler

import (
	"context"
	"log/slog"

	"github.com/tailorjd/tailorjd-be/internal/domain"
	"github.com/tailorjd/tailorjd-be/internal/events"
)

// Enqueuer submits a job to a queue and returns the job id. Both queues
// expose the same surface; the handler picks by endpoint.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload domain.JobPayload) (string, error)
	Cancel(jobID string) bool
	JobType() domain.JobType
}

// JobStore reads job records for status polling.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// DocStore reads the caller's document collections.
type DocStore interface {
	ListCollectionsByUser(ctx context.Context, userID string) ([]domain.CollectionWithDocs, error)
}

// Ledger is the credit surface the API exposes directly. Job-cost debits
// never go through here; the queues charge those themselves.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (int, error)
	DebitGuarded(ctx context.Context, userID string, amount int, reason string) (int, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	RewriteQueue Enqueuer
	DraftQueue   Enqueuer
	Jobs         JobStore
	Docs         DocStore
	Ledger       Ledger
	Events       *events.Publisher
}

// RewriteHandler handles job submission and status endpoints
type RewriteHandler struct {
	logger       *slog.Logger
	rewriteQueue Enqueuer
	draftQueue   Enqueuer
	jobs         JobStore
	docs         DocStore
	ledger       Ledger
}

// NewRewriteHandler creates a new RewriteHandler instance
func NewRewriteHandler(deps *Dependencies) *RewriteHandler {
	return &RewriteHandler{
		logger:       deps.Logger,
		rewriteQueue: deps.RewriteQueue,
		draftQueue:   deps.DraftQueue,
		jobs:         deps.Jobs,
		docs:         deps.Docs,
		ledger:       deps.Ledger,
	}
}

// CreditsHandler handles credit ledger endpoints
type CreditsHandler struct {
	logger *slog.Logger
	ledger Ledger
	events *events.Publisher
}

// NewCreditsHandler creates a new CreditsHandler instance
func NewCreditsHandler(deps *Dependencies) *CreditsHandler {
	return &CreditsHandler{
		logger: deps.Logger,
		ledger: deps.Ledger,
		events: deps.Events,
	}
}
