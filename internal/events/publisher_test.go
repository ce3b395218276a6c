package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorjd/tailorjd-be/internal/domain"
)

type fakeBroker struct {
	published [][]byte
	err       error
}

func (f *fakeBroker) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_JobEvents(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, testLogger())

	p.JobCompleted(context.Background(), "job-1", "user-1", domain.JobTypeRewrite)
	p.JobFailed(context.Background(), "job-2", "user-1", domain.JobTypeDraft, "upstream error")

	require.Len(t, broker.published, 2)

	var completed jobEvent
	require.NoError(t, json.Unmarshal(broker.published[0], &completed))
	assert.Equal(t, EventJobCompleted, completed.Event)
	assert.Equal(t, "job-1", completed.JobID)
	assert.Equal(t, domain.JobTypeRewrite, completed.JobType)
	assert.Empty(t, completed.ErrorMessage)

	var failed jobEvent
	require.NoError(t, json.Unmarshal(broker.published[1], &failed))
	assert.Equal(t, EventJobFailed, failed.Event)
	assert.Equal(t, "upstream error", failed.ErrorMessage)
}

func TestPublisher_CreditsChanged(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, testLogger())

	p.CreditsChanged(context.Background(), "user-1", -3, 7, "REWRITE job completed.")

	require.Len(t, broker.published, 1)

	var event creditsEvent
	require.NoError(t, json.Unmarshal(broker.published[0], &event))
	assert.Equal(t, EventCreditsChanged, event.Event)
	assert.Equal(t, -3, event.Delta)
	assert.Equal(t, 7, event.Balance)
}

func TestPublisher_SwallowsBrokerFailures(t *testing.T) {
	broker := &fakeBroker{err: errors.New("broker down")}
	p := NewPublisher(broker, testLogger())

	assert.NotPanics(t, func() {
		p.JobCompleted(context.Background(), "job-1", "user-1", domain.JobTypeRewrite)
	})
}

func TestPublisher_NilBrokerDropsEvents(t *testing.T) {
	p := NewPublisher(nil, testLogger())

	assert.NotPanics(t, func() {
		p.JobFailed(context.Background(), "job-1", "user-1", domain.JobTypeDraft, "x")
		p.CreditsChanged(context.Background(), "user-1", 10, 10, "")
	})
}
