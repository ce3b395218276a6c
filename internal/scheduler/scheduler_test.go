package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorjd/tailorjd-be/internal/config"
	"github.com/tailorjd/tailorjd-be/internal/domain"
	"github.com/tailorjd/tailorjd-be/internal/llm"
)

type fakeJobs struct {
	mu             sync.Mutex
	created        []string
	completed      map[string]*domain.JobResult
	completedOrder []string
	failed         map[string]string
	createErr      error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		completed: make(map[string]*domain.JobResult),
		failed:    make(map[string]string),
	}
}

func (f *fakeJobs) CreateJob(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job.JobID)
	return nil
}

func (f *fakeJobs) MarkJobCompleted(_ context.Context, jobID string, result *domain.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[jobID] = result
	f.completedOrder = append(f.completedOrder, jobID)
	return nil
}

func (f *fakeJobs) MarkJobFailed(_ context.Context, jobID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = errorMessage
	return nil
}

func (f *fakeJobs) terminalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed) + len(f.failed)
}

func (f *fakeJobs) result(jobID string) *domain.JobResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[jobID]
}

func (f *fakeJobs) failure(jobID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed[jobID]
}

type fakeDocs struct {
	mu            sync.Mutex
	collections   []domain.DocCollection
	documents     []domain.Document
	collectionErr error
}

func (f *fakeDocs) CreateCollection(_ context.Context, col *domain.DocCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collectionErr != nil {
		return f.collectionErr
	}
	f.collections = append(f.collections, *col)
	return nil
}

func (f *fakeDocs) CreateDocument(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, *doc)
	return nil
}

func (f *fakeDocs) docTypes() []domain.DocType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DocType, 0, len(f.documents))
	for _, d := range f.documents {
		out = append(out, d.DocType)
	}
	return out
}

func (f *fakeDocs) docByType(t domain.DocType) (domain.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.documents {
		if d.DocType == t {
			return d, true
		}
	}
	return domain.Document{}, false
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int
	debits   []int
}

func newFakeLedger(userID string, balance int) *fakeLedger {
	return &fakeLedger{balances: map[string]int{userID: balance}}
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return balance, nil
}

func (f *fakeLedger) Debit(_ context.Context, userID string, amount int, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.balances[userID]; !ok {
		return 0, domain.ErrUserNotFound
	}
	f.balances[userID] -= amount
	f.debits = append(f.debits, amount)
	return f.balances[userID], nil
}

func (f *fakeLedger) debitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.debits)
}

func (f *fakeLedger) balance(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

type fakeChat struct {
	mu          sync.Mutex
	calls       [][]llm.Message
	reply       func(messages []llm.Message) (string, error)
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func (f *fakeChat) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)
	f.calls = append(f.calls, cp)
	call := len(f.calls)
	f.mu.Unlock()

	if f.reply != nil {
		return f.reply(messages)
	}
	return fmt.Sprintf("reply %d", call), nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEvents struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (f *fakeEvents) JobCompleted(_ context.Context, jobID, _ string, _ domain.JobType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, jobID)
}

func (f *fakeEvents) JobFailed(_ context.Context, jobID, _ string, _ domain.JobType, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, jobID)
}

func testPrompts() *config.Prompts {
	return &config.Prompts{
		System:      "You are a resume assistant.",
		Analysis:    "Analyze this job description: ",
		Compare:     "Rewrite this resume: ",
		CoverLetter: "Write a cover letter.",
		Tokenize:    " Distill the essentials.",
		Draft:       "Draft a resume targeting all three.",
	}
}

func testConfig(chat llm.Completer, jobs *fakeJobs, docs *fakeDocs, ledger *fakeLedger) *Config {
	return &Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Jobs:         jobs,
		Docs:         docs,
		Ledger:       ledger,
		Completer:    chat,
		Prompts:      testPrompts(),
		StageTimeout: 2 * time.Second,
	}
}

func waitDrained(t *testing.T, jobs *fakeJobs, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return jobs.terminalCount() >= n
	}, 3*time.Second, 5*time.Millisecond)
}

func TestRewriteQueue_CompletesAndDebitsOnce(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 10)
	chat := &fakeChat{}
	events := &fakeEvents{}

	cfg := testConfig(chat, jobs, docs, ledger)
	cfg.Events = events
	q := NewRewriteQueue(cfg)

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "my resume",
		JD:         "the job description",
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	waitDrained(t, jobs, 1)

	result := jobs.result(jobID)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.CollectionID)
	assert.Equal(t, []domain.DocType{
		domain.DocTypeUserResume,
		domain.DocTypeJD,
		domain.DocTypeAnalysis,
		domain.DocTypeRewriteResume,
		domain.DocTypeCoverLetter,
	}, docs.docTypes())

	// Exactly one debit of the fixed cost, applied after success.
	assert.Equal(t, []int{3}, ledger.debits)
	assert.Equal(t, 7, ledger.balance("user-1"))

	// Three chain stages means three upstream calls.
	assert.Equal(t, 3, chat.callCount())

	require.Len(t, docs.collections, 1)
	assert.True(t, strings.HasPrefix(docs.collections[0].Name, "Rewrite - "))
	assert.Equal(t, "my resume", docs.collections[0].UserResume)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{jobID}, events.completed)
	assert.Empty(t, events.failed)
}

func TestQueue_ProcessesInEnqueueOrder(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 100)
	chat := &fakeChat{delay: 2 * time.Millisecond}

	q := NewRewriteQueue(testConfig(chat, jobs, docs, ledger))

	var enqueued []string
	for i := 0; i < 5; i++ {
		jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
			UserID:     "user-1",
			UserResume: fmt.Sprintf("resume %d", i),
			JD:         "jd",
		})
		require.NoError(t, err)
		enqueued = append(enqueued, jobID)
	}

	waitDrained(t, jobs, 5)

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Equal(t, enqueued, jobs.completedOrder)
}

func TestQueue_AtMostOneJobInFlight(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 100)
	chat := &fakeChat{delay: 3 * time.Millisecond}

	q := NewRewriteQueue(testConfig(chat, jobs, docs, ledger))

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(context.Background(), domain.JobPayload{
			UserID:     "user-1",
			UserResume: "resume",
			JD:         "jd",
		})
		require.NoError(t, err)
	}

	waitDrained(t, jobs, 4)

	// The rewrite chain is strictly sequential, so concurrent upstream calls
	// would mean two jobs ran at once.
	assert.Equal(t, int32(1), atomic.LoadInt32(&chat.maxInFlight))
}

func TestQueue_UniqueJobIDs(t *testing.T) {
	jobs := newFakeJobs()
	ledger := newFakeLedger("user-1", 100)
	q := NewRewriteQueue(testConfig(&fakeChat{}, jobs, &fakeDocs{}, ledger))

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
			UserID:     "user-1",
			UserResume: "resume",
			JD:         "jd",
		})
		require.NoError(t, err)

		_, parseErr := uuid.Parse(jobID)
		require.NoError(t, parseErr)

		assert.False(t, seen[jobID], "job id %s issued twice", jobID)
		seen[jobID] = true
	}

	waitDrained(t, jobs, 10)
}

func TestQueue_InsufficientCreditsFailsBeforeUpstream(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 0)
	chat := &fakeChat{}
	events := &fakeEvents{}

	cfg := testConfig(chat, jobs, docs, ledger)
	cfg.Events = events
	q := NewRewriteQueue(cfg)

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	waitDrained(t, jobs, 1)

	assert.Contains(t, jobs.failure(jobID), "insufficient credits")
	assert.Zero(t, chat.callCount())
	assert.Zero(t, ledger.debitCount())
	assert.Empty(t, docs.collections)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{jobID}, events.failed)
}

func TestQueue_OverdraftAllowedAfterPassingPrecheck(t *testing.T) {
	jobs := newFakeJobs()
	ledger := newFakeLedger("user-1", 1)
	q := NewRewriteQueue(testConfig(&fakeChat{}, jobs, &fakeDocs{}, ledger))

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	waitDrained(t, jobs, 1)

	// A positive balance admits the job; the full cost is charged even when
	// it drives the balance negative.
	require.NotNil(t, jobs.result(jobID))
	assert.Equal(t, -2, ledger.balance("user-1"))
}

func TestQueue_MissingInputFailsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		build   func(cfg *Config) *Queue
		payload domain.JobPayload
	}{
		{
			name:    "rewrite without jd",
			build:   NewRewriteQueue,
			payload: domain.JobPayload{UserID: "user-1", UserResume: "resume"},
		},
		{
			name:    "rewrite without resume",
			build:   NewRewriteQueue,
			payload: domain.JobPayload{UserID: "user-1", JD: "jd"},
		},
		{
			name:    "draft with only two jds",
			build:   NewDraftQueue,
			payload: domain.JobPayload{UserID: "user-1", JD1: "a", JD2: "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobs()
			docs := &fakeDocs{}
			ledger := newFakeLedger("user-1", 10)
			chat := &fakeChat{}

			q := tt.build(testConfig(chat, jobs, docs, ledger))

			jobID, err := q.Enqueue(context.Background(), tt.payload)
			require.NoError(t, err)

			waitDrained(t, jobs, 1)

			assert.NotEmpty(t, jobs.failure(jobID))
			assert.Zero(t, chat.callCount())
			assert.Zero(t, ledger.debitCount())
			assert.Empty(t, docs.collections)
		})
	}
}

func TestQueue_UpstreamFailureSkipsDebit(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 10)
	chat := &fakeChat{
		reply: func([]llm.Message) (string, error) {
			return "", fmt.Errorf("%w: completion request failed", domain.ErrUpstream)
		},
	}

	q := NewRewriteQueue(testConfig(chat, jobs, docs, ledger))

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	waitDrained(t, jobs, 1)

	assert.Contains(t, jobs.failure(jobID), "analysis stage")
	assert.Zero(t, ledger.debitCount())
	assert.Equal(t, 10, ledger.balance("user-1"))
}

func TestQueue_FailureDoesNotBlockNextJob(t *testing.T) {
	jobs := newFakeJobs()
	ledger := newFakeLedger("user-1", 100)

	var failFirst atomic.Bool
	failFirst.Store(true)
	chat := &fakeChat{
		reply: func([]llm.Message) (string, error) {
			if failFirst.Swap(false) {
				return "", errors.New("transient upstream error")
			}
			return "ok", nil
		},
	}

	q := NewRewriteQueue(testConfig(chat, jobs, &fakeDocs{}, ledger))

	first, err := q.Enqueue(context.Background(), domain.JobPayload{UserID: "user-1", UserResume: "r", JD: "jd"})
	require.NoError(t, err)
	second, err := q.Enqueue(context.Background(), domain.JobPayload{UserID: "user-1", UserResume: "r", JD: "jd"})
	require.NoError(t, err)

	waitDrained(t, jobs, 2)

	assert.NotEmpty(t, jobs.failure(first))
	assert.NotNil(t, jobs.result(second))
}

func TestQueue_StripsCodeFencesFromPersistedDocs(t *testing.T) {
	jobs := newFakeJobs()
	docs := &fakeDocs{}
	ledger := newFakeLedger("user-1", 10)
	chat := &fakeChat{
		reply: func([]llm.Message) (string, error) {
			return "```markdown\ngenerated text\n```", nil
		},
	}

	q := NewRewriteQueue(testConfig(chat, jobs, docs, ledger))

	_, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	waitDrained(t, jobs, 1)

	for _, docType := range []domain.DocType{domain.DocTypeAnalysis, domain.DocTypeRewriteResume, domain.DocTypeCoverLetter} {
		doc, ok := docs.docByType(docType)
		require.True(t, ok)
		assert.Equal(t, "generated text", doc.Content)
	}
}

func TestQueue_EnqueueFailsWhenRecordCannotBeCreated(t *testing.T) {
	jobs := newFakeJobs()
	jobs.createErr = errors.New("db down")
	chat := &fakeChat{}

	q := NewRewriteQueue(testConfig(chat, jobs, &fakeDocs{}, newFakeLedger("user-1", 10)))

	_, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.Error(t, err)

	assert.Zero(t, q.Pending())
	assert.Zero(t, chat.callCount())
}

func TestQueue_ShutdownRejectsNewWork(t *testing.T) {
	jobs := newFakeJobs()
	q := NewRewriteQueue(testConfig(&fakeChat{}, jobs, &fakeDocs{}, newFakeLedger("user-1", 10)))

	require.NoError(t, q.Shutdown(context.Background()))

	_, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutting down")
}

func TestQueue_ShutdownWaitsForInFlightJob(t *testing.T) {
	jobs := newFakeJobs()
	ledger := newFakeLedger("user-1", 10)
	chat := &fakeChat{delay: 20 * time.Millisecond}

	q := NewRewriteQueue(testConfig(chat, jobs, &fakeDocs{}, ledger))

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	assert.NotNil(t, jobs.result(jobID))
}

func TestQueue_CancelAbortsInFlightJob(t *testing.T) {
	jobs := newFakeJobs()
	ledger := newFakeLedger("user-1", 10)
	chat := &fakeChat{delay: 200 * time.Millisecond}

	q := NewRewriteQueue(testConfig(chat, jobs, &fakeDocs{}, ledger))

	jobID, err := q.Enqueue(context.Background(), domain.JobPayload{
		UserID:     "user-1",
		UserResume: "resume",
		JD:         "jd",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.Cancel(jobID)
	}, time.Second, 2*time.Millisecond)

	waitDrained(t, jobs, 1)

	assert.NotEmpty(t, jobs.failure(jobID))
	assert.Zero(t, ledger.debitCount())
}
