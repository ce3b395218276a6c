package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tailorjd/tailorjd-be/internal/config"
	"github.com/tailorjd/tailorjd-be/internal/domain"
	"github.com/tailorjd/tailorjd-be/internal/llm"
)

// JobStore persists job records. The record store is the durable,
// crash-visible proxy for in-memory queue state: the API layer reads only
// this store, never queue internals.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	MarkJobCompleted(ctx context.Context, jobID string, result *domain.JobResult) error
	MarkJobFailed(ctx context.Context, jobID, errorMessage string) error
}

// DocStore persists document collections and documents.
type DocStore interface {
	CreateCollection(ctx context.Context, col *domain.DocCollection) error
	CreateDocument(ctx context.Context, doc *domain.Document) error
}

// Ledger meters credit balances. Debit is unguarded by design; the queue
// checks the balance before starting work and charges only on success.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int, reason string) (int, error)
}

// EventPublisher receives job lifecycle notifications. Implementations must
// not block job processing on delivery guarantees.
type EventPublisher interface {
	JobCompleted(ctx context.Context, jobID, userID string, jobType domain.JobType)
	JobFailed(ctx context.Context, jobID, userID string, jobType domain.JobType, errorMessage string)
}

// Config holds the dependencies a queue is constructed with.
type Config struct {
	Logger       *slog.Logger
	Jobs         JobStore
	Docs         DocStore
	Ledger       Ledger
	Completer    llm.Completer
	Prompts      *config.Prompts
	Events       EventPublisher // optional
	StageTimeout time.Duration
	Now          func() time.Time // optional, defaults to time.Now
}

const defaultStageTimeout = 120 * time.Second

// Queue is a single-consumer FIFO scheduler for one job type. Jobs are
// processed strictly in enqueue order with at most one in flight; the
// consumer loop exits when the queue drains and restarts on the next
// enqueue. Queued-but-unstarted work lives in memory only: a restart loses
// it, and the stale-job sweep reconciles the orphaned PROCESSING records.
type Queue struct {
	jobType domain.JobType
	pipe    pipeline

	logger       *slog.Logger
	jobs         JobStore
	ledger       Ledger
	events       EventPublisher
	docs         DocStore
	completer    llm.Completer
	prompts      *config.Prompts
	stageTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pending []queueItem
	busy    bool
	closed  bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	inFlight atomic.Int32
}

type queueItem struct {
	jobID   string
	payload domain.JobPayload
}

// NewRewriteQueue creates the queue driving the three-stage rewrite chain.
func NewRewriteQueue(cfg *Config) *Queue {
	return newQueue(cfg, domain.JobTypeRewrite, rewritePipeline{})
}

// NewDraftQueue creates the queue driving the tokenize fan-out, the resume
// draft stage, and the shared rewrite chain.
func NewDraftQueue(cfg *Config) *Queue {
	return newQueue(cfg, domain.JobTypeDraft, draftPipeline{})
}

func newQueue(cfg *Config, jobType domain.JobType, pipe pipeline) *Queue {
	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Queue{
		jobType:      jobType,
		pipe:         pipe,
		logger:       cfg.Logger,
		jobs:         cfg.Jobs,
		ledger:       cfg.Ledger,
		events:       cfg.Events,
		docs:         cfg.Docs,
		completer:    cfg.Completer,
		prompts:      cfg.Prompts,
		stageTimeout: stageTimeout,
		now:          now,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// JobType returns the job type this queue serves.
func (q *Queue) JobType() domain.JobType {
	return q.jobType
}

// Enqueue assigns a fresh job id, synchronously persists the PROCESSING
// record, appends the payload to the queue tail and kicks the consumer loop
// if idle. It returns as soon as the record exists; it never blocks on
// upstream latency.
func (q *Queue) Enqueue(ctx context.Context, payload domain.JobPayload) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", fmt.Errorf("%s queue is shutting down", q.jobType)
	}

	jobID := uuid.New().String()
	job := &domain.Job{
		JobID:     jobID,
		UserID:    payload.UserID,
		JobType:   q.jobType,
		Status:    domain.JobStatusProcessing,
		CreatedAt: q.now(),
	}

	if err := q.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}

	q.mu.Lock()
	q.pending = append(q.pending, queueItem{jobID: jobID, payload: payload})
	if !q.busy {
		q.busy = true
		q.wg.Add(1)
		go q.consume()
	}
	q.mu.Unlock()

	q.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("job_type", string(q.jobType)),
		slog.String("user_id", payload.UserID),
	)

	return jobID, nil
}

// Pending returns the number of jobs waiting behind the one in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// consume pops and processes queue items one at a time until the queue is
// empty, then exits. The busy flag guarantees at most one consume loop per
// queue instance.
func (q *Queue) consume() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 {
			q.busy = false
			q.mu.Unlock()
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.process(item)
	}
}

func (q *Queue) process(item queueItem) {
	// Each job runs under its own cancellable context bound to its id, so a
	// future cancel or shutdown can abort in-flight upstream calls.
	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.cancels[item.jobID] = cancel
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, item.jobID)
		q.mu.Unlock()
	}()

	if n := q.inFlight.Add(1); n > 1 {
		q.logger.Error("Queue reentrancy detected",
			slog.String("job_type", string(q.jobType)),
			slog.Int("in_flight", int(n)),
		)
	}
	defer q.inFlight.Add(-1)

	q.logger.Info("Processing job",
		slog.String("job_id", item.jobID),
		slog.String("job_type", string(q.jobType)),
	)

	result, err := q.runJob(ctx, item)

	// Terminal writes use a fresh context so a canceled job can still record
	// its outcome. Record-store failures here are logged, not escalated: the
	// job may remain stuck in PROCESSING until the stale sweep catches it.
	termCtx := context.Background()

	if err != nil {
		q.logger.Error("Job failed",
			slog.String("job_id", item.jobID),
			slog.String("job_type", string(q.jobType)),
			slog.String("error", err.Error()),
		)

		if markErr := q.jobs.MarkJobFailed(termCtx, item.jobID, err.Error()); markErr != nil {
			q.logger.Error("Failed to mark job failed",
				slog.String("job_id", item.jobID),
				slog.Any("error", markErr),
			)
		}

		if q.events != nil {
			q.events.JobFailed(termCtx, item.jobID, item.payload.UserID, q.jobType, err.Error())
		}
		return
	}

	if markErr := q.jobs.MarkJobCompleted(termCtx, item.jobID, result); markErr != nil {
		q.logger.Error("Failed to mark job completed",
			slog.String("job_id", item.jobID),
			slog.Any("error", markErr),
		)
	}

	if q.events != nil {
		q.events.JobCompleted(termCtx, item.jobID, item.payload.UserID, q.jobType)
	}

	q.logger.Info("Job completed",
		slog.String("job_id", item.jobID),
		slog.String("job_type", string(q.jobType)),
	)
}

// runJob executes the per-job algorithm: re-check credits, validate inputs,
// run the pipeline, then charge the fixed cost. Any error short-circuits
// without a debit; documents already written stay in place as unbilled
// orphans.
func (q *Queue) runJob(ctx context.Context, item queueItem) (*domain.JobResult, error) {
	balance, err := q.ledger.Balance(ctx, item.payload.UserID)
	if err != nil {
		return nil, err
	}
	if balance <= 0 {
		return nil, fmt.Errorf("%w: you have insufficient credits", domain.ErrInsufficientCredits)
	}

	if err := q.pipe.validate(&item.payload); err != nil {
		return nil, err
	}

	result, err := q.pipe.run(ctx, q.runner(), &item.payload)
	if err != nil {
		return nil, err
	}

	cost := domain.JobCost(q.jobType)
	if _, err := q.ledger.Debit(ctx, item.payload.UserID, cost, fmt.Sprintf("%s job completed.", q.jobType)); err != nil {
		return nil, fmt.Errorf("failed to charge credits: %w", err)
	}

	return result, nil
}

func (q *Queue) runner() *runner {
	return &runner{
		docs:         q.docs,
		prompts:      q.prompts,
		stageTimeout: q.stageTimeout,
		now:          q.now,
		newConversation: func() *llm.Conversation {
			return llm.NewConversation(q.completer, q.prompts.System)
		},
	}
}

// Cancel aborts the job's upstream calls if it is currently in flight.
// Queued jobs cannot be canceled; they run when their turn comes.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	cancel, ok := q.cancels[jobID]
	q.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Shutdown stops accepting work and waits for the in-flight job to finish.
// If the context expires first, the in-flight job is canceled. Jobs still
// pending in memory are abandoned; their PROCESSING records are reconciled
// by the stale sweep on the next start.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for _, cancel := range q.cancels {
			cancel()
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}
